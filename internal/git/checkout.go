package git

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"go.uber.org/zap"
)

var (
	ErrNotRepository = errors.New("not inside a git repository")
	ErrNoOrigin      = errors.New("repository has no origin remote")
)

const remoteName = "origin"

// Checkout describes the local git repository enclosing a directory.
type Checkout struct {
	Root      string
	RemoteURL string
	Branch    string // empty when HEAD is detached
}

type Service struct {
	logger *zap.Logger
}

// NewService creates a Service.
func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger}
}

// Inspect opens the repository containing dir, searching parent directories
// for .git, and reports its origin URL and current branch.
func (s *Service) Inspect(dir string) (*Checkout, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotRepository, dir)
		}
		return nil, fmt.Errorf("open repository: %w", err)
	}

	co := &Checkout{Root: dir}
	if wt, err := repo.Worktree(); err == nil {
		co.Root = wt.Filesystem.Root()
	}

	remote, err := repo.Remote(remoteName)
	if err != nil {
		if errors.Is(err, git.ErrRemoteNotFound) {
			return nil, ErrNoOrigin
		}
		return nil, fmt.Errorf("read remote: %w", err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return nil, ErrNoOrigin
	}
	co.RemoteURL = urls[0]

	// HEAD is read unresolved so an empty repository still reports its branch.
	head, err := repo.Reference(plumbing.HEAD, false)
	if err != nil {
		s.logger.Warn("failed to read HEAD", zap.String("path", co.Root), zap.Error(err))
	} else if head.Type() == plumbing.SymbolicReference && head.Target().IsBranch() {
		co.Branch = head.Target().Short()
	}

	s.logger.Debug("inspected checkout",
		zap.String("path", co.Root),
		zap.String("remote", co.RemoteURL),
		zap.String("branch", co.Branch))

	return co, nil
}
