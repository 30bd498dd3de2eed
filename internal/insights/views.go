package insights

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"repolens/internal/api"
	"repolens/internal/model"
)

// Gateway is the part of the API client the detail views read from.
type Gateway interface {
	Contributors(ctx context.Context, id uuid.UUID) ([]model.Contributor, error)
	CommitGroups(ctx context.Context, id uuid.UUID, detail bool) ([]model.CommitGroup, error)
	PullRequests(ctx context.Context, id uuid.UUID, state string) ([]model.PullRequest, error)
	Issues(ctx context.Context, id uuid.UUID, state string) ([]model.Issue, error)
	Summary(ctx context.Context, id uuid.UUID) (*model.Summary, error)
	Stats(ctx context.Context, id uuid.UUID) (*model.Stats, error)
	Branches(ctx context.Context, id uuid.UUID) (*model.Branches, error)
	Exports(ctx context.Context, id uuid.UUID) ([]model.Export, error)
	CreateExport(ctx context.Context, id uuid.UUID, req api.CreateExportRequest) (string, string, error)
	DownloadExport(ctx context.Context, exportID uuid.UUID) (*api.Download, error)
}

// Views holds the read-only detail collections of one tracked repository.
// Lists keep server order.
type Views struct {
	api    Gateway
	repoID uuid.UUID
	logger *zap.Logger

	Contributors Collection[[]model.Contributor]
	Timeline     Collection[[]model.CommitGroup]
	PullRequests Collection[[]model.PullRequest]
	Issues       Collection[[]model.Issue]
	Summary      Collection[*model.Summary]
	Stats        Collection[*model.Stats]
	Branches     Collection[*model.Branches]
	Exports      Collection[[]model.Export]

	mu          sync.Mutex
	expanded    map[uuid.UUID]bool
	prFilter    PRFilter
	issueFilter IssueFilter
}

// NewViews returns empty views for a repository.
func NewViews(gw Gateway, repoID uuid.UUID, logger *zap.Logger) *Views {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Views{
		api:         gw,
		repoID:      repoID,
		logger:      logger.With(zap.Stringer("repository", repoID)),
		expanded:    map[uuid.UUID]bool{},
		prFilter:    PRAll,
		issueFilter: IssueAll,
	}
}

// RepositoryID is the repository the views belong to.
func (v *Views) RepositoryID() uuid.UUID { return v.repoID }

func (v *Views) LoadContributors(ctx context.Context) error {
	_, err := v.Contributors.Load(ctx, func(ctx context.Context) ([]model.Contributor, error) {
		return v.api.Contributors(ctx, v.repoID)
	})
	return v.logged("contributors", err)
}

// LoadTimeline fetches commit groups with their commits so any group can be
// expanded without another request.
func (v *Views) LoadTimeline(ctx context.Context) error {
	_, err := v.Timeline.Load(ctx, func(ctx context.Context) ([]model.CommitGroup, error) {
		return v.api.CommitGroups(ctx, v.repoID, true)
	})
	return v.logged("timeline", err)
}

// LoadPullRequests fetches every pull request; filtering happens locally so
// the per-state counts stay available.
func (v *Views) LoadPullRequests(ctx context.Context) error {
	_, err := v.PullRequests.Load(ctx, func(ctx context.Context) ([]model.PullRequest, error) {
		return v.api.PullRequests(ctx, v.repoID, "")
	})
	return v.logged("pull requests", err)
}

func (v *Views) LoadIssues(ctx context.Context) error {
	_, err := v.Issues.Load(ctx, func(ctx context.Context) ([]model.Issue, error) {
		return v.api.Issues(ctx, v.repoID, "")
	})
	return v.logged("issues", err)
}

func (v *Views) LoadSummary(ctx context.Context) error {
	_, err := v.Summary.Load(ctx, func(ctx context.Context) (*model.Summary, error) {
		return v.api.Summary(ctx, v.repoID)
	})
	return v.logged("summary", err)
}

func (v *Views) LoadStats(ctx context.Context) error {
	_, err := v.Stats.Load(ctx, func(ctx context.Context) (*model.Stats, error) {
		return v.api.Stats(ctx, v.repoID)
	})
	return v.logged("stats", err)
}

func (v *Views) LoadBranches(ctx context.Context) error {
	_, err := v.Branches.Load(ctx, func(ctx context.Context) (*model.Branches, error) {
		return v.api.Branches(ctx, v.repoID)
	})
	return v.logged("branches", err)
}

func (v *Views) LoadExports(ctx context.Context) error {
	_, err := v.Exports.Load(ctx, func(ctx context.Context) ([]model.Export, error) {
		return v.api.Exports(ctx, v.repoID)
	})
	return v.logged("exports", err)
}

// CreateExport validates and queues an export, then reloads the export list
// once. Generation runs in the background; the list is not polled.
func (v *Views) CreateExport(ctx context.Context, kind, start, end string) (string, error) {
	req, err := NewExportRequest(kind, start, end)
	if err != nil {
		return "", err
	}
	msg, taskID, err := v.api.CreateExport(ctx, v.repoID, req)
	if err != nil {
		return "", err
	}
	v.logger.Info("export queued", zap.String("type", string(req.ExportType)), zap.String("task", taskID))
	if err := v.LoadExports(ctx); err != nil {
		v.logger.Warn("failed to reload exports", zap.Error(err))
	}
	if msg == "" {
		msg = "Export generation started."
	}
	return msg, nil
}

// Download fetches an export and saves it into dir.
func (v *Views) Download(ctx context.Context, exportID uuid.UUID, dir string) (string, error) {
	d, err := v.api.DownloadExport(ctx, exportID)
	if err != nil {
		return "", err
	}
	path, err := SaveDownload(d, dir)
	if err != nil {
		return "", err
	}
	v.logger.Info("export saved", zap.String("path", path))
	return path, nil
}

// ToggleGroup expands or collapses a timeline group and returns the new state.
func (v *Views) ToggleGroup(id uuid.UUID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.expanded[id] {
		delete(v.expanded, id)
		return false
	}
	v.expanded[id] = true
	return true
}

// Expanded reports whether a timeline group is expanded.
func (v *Views) Expanded(id uuid.UUID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.expanded[id]
}

func (v *Views) SetPRFilter(f PRFilter) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.prFilter = f
}

func (v *Views) PRFilter() PRFilter {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.prFilter
}

func (v *Views) SetIssueFilter(f IssueFilter) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.issueFilter = f
}

func (v *Views) IssueFilter() IssueFilter {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.issueFilter
}

// VisiblePullRequests applies the current filter to the loaded list.
func (v *Views) VisiblePullRequests() []model.PullRequest {
	return FilterPullRequests(v.PullRequests.Get().Data, v.PRFilter())
}

// VisibleIssues applies the current filter to the loaded list.
func (v *Views) VisibleIssues() []model.Issue {
	return FilterIssues(v.Issues.Get().Data, v.IssueFilter())
}

func (v *Views) logged(what string, err error) error {
	if err != nil && ctxAlive(err) {
		v.logger.Warn("failed to load "+what, zap.Error(err))
	}
	return err
}

func ctxAlive(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
