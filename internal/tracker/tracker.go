package tracker

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"repolens/internal/api"
	"repolens/internal/forge"
	"repolens/internal/model"
)

// MaxTracked is how many repositories an account may track from this client.
const MaxTracked = 1

const (
	capacityMessage = "You can only track one repository. Delete it before importing another."
	busyMessage     = "Analysis is already in progress."
)

// Gateway is the part of the API client the tracker needs.
type Gateway interface {
	ListRepositories(ctx context.Context) ([]model.TrackedRepository, error)
	CreateRepository(ctx context.Context, req api.CreateRepositoryRequest) (*model.TrackedRepository, string, error)
	GetRepository(ctx context.Context, id uuid.UUID) (*model.TrackedRepository, error)
	UpdateRepository(ctx context.Context, id uuid.UUID, upd api.RepositoryUpdate) (*model.TrackedRepository, error)
	DeleteRepository(ctx context.Context, id uuid.UUID) (string, error)
	Reanalyze(ctx context.Context, id uuid.UUID) (*model.TrackedRepository, string, error)
}

// Tracker holds the tracked repositories as last reported by the server.
// Analysis status is never changed locally.
//
// Every call takes a sequence number when it starts. A list result is
// applied only if no later call has settled first, so a slow refresh cannot
// undo an import or delete that finished before it.
type Tracker struct {
	api    Gateway
	logger *zap.Logger

	mu      sync.Mutex
	repos   []model.TrackedRepository
	seq     uint64
	settled uint64
}

// New returns an empty Tracker.
func New(gw Gateway, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{api: gw, logger: logger}
}

// Repositories returns a copy of the tracked repositories.
func (t *Tracker) Repositories() []model.TrackedRepository {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.repos)
}

// Find returns the tracked repository with id.
func (t *Tracker) Find(id uuid.UUID) (model.TrackedRepository, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return lo.Find(t.repos, func(r model.TrackedRepository) bool { return r.ID == id })
}

// CanImport reports whether another repository may be imported.
func (t *Tracker) CanImport() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.repos) < MaxTracked
}

// HasActive reports whether any repository is still being analysed.
func (t *Tracker) HasActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return lo.SomeBy(t.repos, func(r model.TrackedRepository) bool { return !r.AnalysisStatus.Terminal() })
}

// ImportRepository starts tracking the GitHub repository at url. It fails
// locally, without contacting the server, when the limit is reached or the
// URL is not a GitHub repository.
func (t *Tracker) ImportRepository(ctx context.Context, url string) (*model.TrackedRepository, error) {
	if !t.CanImport() {
		return nil, api.NewCapacity(capacityMessage)
	}

	repo, err := forge.Parse(url)
	if err != nil {
		verr := api.NewValidation("github_repo_url", "Enter a valid GitHub repository URL.")
		verr.Cause = err
		return nil, verr
	}

	seq := t.begin()
	created, msg, err := t.api.CreateRepository(ctx, api.CreateRepositoryRequest{GitHubRepoURL: repo.URL()})
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.repos = []model.TrackedRepository{*created}
	t.settle(seq)
	t.mu.Unlock()

	t.logger.Info("repository imported",
		zap.String("repository", created.FullName),
		zap.String("status", string(created.AnalysisStatus)),
		zap.String("message", msg))

	out := *created
	return &out, nil
}

// ListRepositories refreshes the whole set from the server. A result that
// lost the race to a newer call, or arrived after ctx was cancelled, is
// dropped and the current state is returned instead.
func (t *Tracker) ListRepositories(ctx context.Context) ([]model.TrackedRepository, error) {
	seq := t.begin()
	repos, err := t.api.ListRepositories(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.settled > seq {
		t.logger.Debug("dropping stale repository list", zap.Uint64("seq", seq), zap.Uint64("settled", t.settled))
		return slices.Clone(t.repos), nil
	}
	t.repos = slices.Clone(repos)
	t.settle(seq)
	return slices.Clone(t.repos), nil
}

// Get refreshes a single repository.
func (t *Tracker) Get(ctx context.Context, id uuid.UUID) (*model.TrackedRepository, error) {
	seq := t.begin()
	repo, err := t.api.GetRepository(ctx, id)
	if err != nil {
		t.forgetIfGone(id, seq, err)
		return nil, err
	}
	t.replace(*repo, seq)
	out := *repo
	return &out, nil
}

// Update changes branch or schedule settings of a repository.
func (t *Tracker) Update(ctx context.Context, id uuid.UUID, upd api.RepositoryUpdate) (*model.TrackedRepository, error) {
	seq := t.begin()
	repo, err := t.api.UpdateRepository(ctx, id, upd)
	if err != nil {
		t.forgetIfGone(id, seq, err)
		return nil, err
	}
	t.replace(*repo, seq)
	out := *repo
	return &out, nil
}

// Reanalyze restarts analysis. It fails locally with a conflict while the
// repository is fetching or analysing, and the server's "already in
// progress" rejection is reported as the same conflict.
func (t *Tracker) Reanalyze(ctx context.Context, id uuid.UUID) (*model.TrackedRepository, error) {
	if cur, ok := t.Find(id); ok && cur.AnalysisStatus.Busy() {
		return nil, api.NewConflict(busyMessage)
	}

	seq := t.begin()
	repo, msg, err := t.api.Reanalyze(ctx, id)
	if err != nil {
		t.forgetIfGone(id, seq, err)
		return nil, asBusyConflict(err)
	}
	t.replace(*repo, seq)

	t.logger.Info("reanalysis started", zap.String("repository", repo.FullName), zap.String("message", msg))
	out := *repo
	return &out, nil
}

// asBusyConflict turns a 400 rejecting a reanalysis that is already running
// into KindConflict.
func asBusyConflict(err error) error {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != api.KindValidation {
		return err
	}
	if !strings.Contains(strings.ToLower(apiErr.FieldMessage()), "in progress") {
		return err
	}
	conflict := *apiErr
	conflict.Kind = api.KindConflict
	return &conflict
}

// Delete removes a repository. Callers confirm with the user first. A
// repository the server no longer knows is removed locally as well.
func (t *Tracker) Delete(ctx context.Context, id uuid.UUID) error {
	seq := t.begin()
	if _, err := t.api.DeleteRepository(ctx, id); err != nil && !errors.Is(err, api.ErrNotFound) {
		return err
	}

	t.mu.Lock()
	t.repos = lo.Reject(t.repos, func(r model.TrackedRepository, _ int) bool { return r.ID == id })
	t.settle(seq)
	t.mu.Unlock()

	t.logger.Info("repository deleted", zap.Stringer("id", id))
	return nil
}

func (t *Tracker) begin() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	return t.seq
}

// settle must be called with mu held.
func (t *Tracker) settle(seq uint64) {
	t.settled = max(t.settled, seq)
}

func (t *Tracker) replace(repo model.TrackedRepository, seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := slices.IndexFunc(t.repos, func(r model.TrackedRepository) bool { return r.ID == repo.ID }); i >= 0 {
		t.repos[i] = repo
	} else {
		t.repos = append(t.repos, repo)
	}
	t.settle(seq)
}

func (t *Tracker) forgetIfGone(id uuid.UUID, seq uint64, err error) {
	if !errors.Is(err, api.ErrNotFound) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.repos = lo.Reject(t.repos, func(r model.TrackedRepository, _ int) bool { return r.ID == id })
	t.settle(seq)
}
