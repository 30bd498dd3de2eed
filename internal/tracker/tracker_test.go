package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"repolens/internal/api"
	"repolens/internal/model"
)

// fakeGateway keeps server-side state in memory. listHold, when set, blocks
// the next ListRepositories after it has read the server state.
type fakeGateway struct {
	mu        sync.Mutex
	server    []model.TrackedRepository
	calls     map[string]int
	listHold  chan struct{}
	listErr   error
	createErr error
}

func newFakeGateway(repos ...model.TrackedRepository) *fakeGateway {
	return &fakeGateway{server: repos, calls: map[string]int{}}
}

func (f *fakeGateway) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeGateway) setStatus(id uuid.UUID, s model.AnalysisStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.server {
		if f.server[i].ID == id {
			f.server[i].AnalysisStatus = s
		}
	}
}

func (f *fakeGateway) ListRepositories(context.Context) ([]model.TrackedRepository, error) {
	f.mu.Lock()
	f.calls["list"]++
	out := append([]model.TrackedRepository(nil), f.server...)
	hold, err := f.listHold, f.listErr
	f.listHold = nil
	f.mu.Unlock()

	if hold != nil {
		<-hold
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *fakeGateway) CreateRepository(_ context.Context, req api.CreateRepositoryRequest) (*model.TrackedRepository, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["create"]++
	if f.createErr != nil {
		return nil, "", f.createErr
	}
	repo := model.TrackedRepository{
		ID:             uuid.New(),
		FullName:       "acme/widget",
		Owner:          "acme",
		Name:           "widget",
		URL:            req.GitHubRepoURL,
		AnalysisStatus: model.StatusPending,
	}
	f.server = append(f.server, repo)
	return &repo, "Repository added successfully. Analysis started.", nil
}

func (f *fakeGateway) GetRepository(_ context.Context, id uuid.UUID) (*model.TrackedRepository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["get"]++
	for _, r := range f.server {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, &api.Error{Kind: api.KindNotFound, Status: 404, Message: "Not found."}
}

func (f *fakeGateway) UpdateRepository(_ context.Context, id uuid.UUID, upd api.RepositoryUpdate) (*model.TrackedRepository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["update"]++
	for i := range f.server {
		if f.server[i].ID == id {
			if upd.SelectedBranch != nil {
				f.server[i].Branch = *upd.SelectedBranch
			}
			if upd.CronEnabled != nil {
				f.server[i].CronEnabled = *upd.CronEnabled
			}
			r := f.server[i]
			return &r, nil
		}
	}
	return nil, &api.Error{Kind: api.KindNotFound, Status: 404}
}

func (f *fakeGateway) DeleteRepository(_ context.Context, id uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["delete"]++
	for i := range f.server {
		if f.server[i].ID == id {
			f.server = append(f.server[:i], f.server[i+1:]...)
			return "Repository deleted successfully.", nil
		}
	}
	return "", &api.Error{Kind: api.KindNotFound, Status: 404}
}

func (f *fakeGateway) Reanalyze(_ context.Context, id uuid.UUID) (*model.TrackedRepository, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["reanalyze"]++
	for i := range f.server {
		if f.server[i].ID == id {
			f.server[i].AnalysisStatus = model.StatusPending
			r := f.server[i]
			return &r, "Re-analysis started.", nil
		}
	}
	return nil, "", &api.Error{Kind: api.KindNotFound, Status: 404}
}

func repo(status model.AnalysisStatus) model.TrackedRepository {
	return model.TrackedRepository{
		ID:             uuid.New(),
		FullName:       "acme/widget",
		Owner:          "acme",
		Name:           "widget",
		URL:            "https://github.com/acme/widget",
		AnalysisStatus: status,
	}
}

func TestTracker_ImportCapacity(t *testing.T) {
	gw := newFakeGateway(repo(model.StatusCompleted))
	tr := New(gw, zaptest.NewLogger(t))
	ctx := context.Background()

	assert.True(t, tr.CanImport())
	_, err := tr.ListRepositories(ctx)
	require.NoError(t, err)
	assert.False(t, tr.CanImport())

	_, err = tr.ImportRepository(ctx, "https://github.com/acme/other")
	assert.ErrorIs(t, err, api.ErrCapacity)
	assert.Zero(t, gw.count("create"), "capacity is enforced without a request")
}

func TestTracker_ImportNormalisesURL(t *testing.T) {
	gw := newFakeGateway()
	tr := New(gw, zaptest.NewLogger(t))

	got, err := tr.ImportRepository(context.Background(), "git@github.com:acme/widget.git")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/widget", got.URL)
	assert.Equal(t, model.StatusPending, got.AnalysisStatus)
	assert.Len(t, tr.Repositories(), 1)
	assert.False(t, tr.CanImport())
	assert.True(t, tr.HasActive())
}

func TestTracker_ImportRejectsNonGitHub(t *testing.T) {
	gw := newFakeGateway()
	tr := New(gw, zaptest.NewLogger(t))

	_, err := tr.ImportRepository(context.Background(), "https://gitlab.com/acme/widget")
	require.ErrorIs(t, err, api.ErrValidation)
	assert.Equal(t, "Enter a valid GitHub repository URL.", api.Message(err, "", "github_repo_url"))
	assert.Zero(t, gw.count("create"))
}

func TestTracker_ImportServerValidation(t *testing.T) {
	gw := newFakeGateway()
	gw.createErr = &api.Error{Kind: api.KindValidation, Status: 400, Fields: map[string][]string{
		"github_repo_url": {"You have already added this repository."},
	}}
	tr := New(gw, zaptest.NewLogger(t))

	_, err := tr.ImportRepository(context.Background(), "https://github.com/acme/widget")
	assert.ErrorIs(t, err, api.ErrValidation)
	assert.Empty(t, tr.Repositories())
}

func TestTracker_ListIsIdempotent(t *testing.T) {
	gw := newFakeGateway(repo(model.StatusAnalyzing))
	tr := New(gw, zaptest.NewLogger(t))
	ctx := context.Background()

	first, err := tr.ListRepositories(ctx)
	require.NoError(t, err)
	second, err := tr.ListRepositories(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, second, tr.Repositories())
}

func TestTracker_ReanalyzeConflictWhileBusy(t *testing.T) {
	for _, status := range []model.AnalysisStatus{model.StatusFetching, model.StatusAnalyzing} {
		t.Run(string(status), func(t *testing.T) {
			r := repo(status)
			gw := newFakeGateway(r)
			tr := New(gw, zaptest.NewLogger(t))
			ctx := context.Background()
			_, err := tr.ListRepositories(ctx)
			require.NoError(t, err)

			_, err = tr.Reanalyze(ctx, r.ID)
			assert.ErrorIs(t, err, api.ErrConflict)
			assert.Zero(t, gw.count("reanalyze"))

			cur, ok := tr.Find(r.ID)
			require.True(t, ok)
			assert.Equal(t, status, cur.AnalysisStatus)
		})
	}
}

func TestTracker_ReanalyzeTerminal(t *testing.T) {
	r := repo(model.StatusFailed)
	gw := newFakeGateway(r)
	tr := New(gw, zaptest.NewLogger(t))
	ctx := context.Background()
	_, err := tr.ListRepositories(ctx)
	require.NoError(t, err)
	assert.False(t, tr.HasActive())

	got, err := tr.Reanalyze(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.AnalysisStatus)
	assert.True(t, tr.HasActive())
}

func TestTracker_Delete(t *testing.T) {
	r := repo(model.StatusCompleted)
	gw := newFakeGateway(r)
	tr := New(gw, zaptest.NewLogger(t))
	ctx := context.Background()
	_, err := tr.ListRepositories(ctx)
	require.NoError(t, err)

	require.NoError(t, tr.Delete(ctx, r.ID))
	assert.Empty(t, tr.Repositories())
	assert.True(t, tr.CanImport())

	// Already gone on the server: still succeeds locally.
	require.NoError(t, tr.Delete(ctx, r.ID))
}

func TestTracker_GetNotFoundForgets(t *testing.T) {
	r := repo(model.StatusCompleted)
	gw := newFakeGateway(r)
	tr := New(gw, zaptest.NewLogger(t))
	ctx := context.Background()
	_, err := tr.ListRepositories(ctx)
	require.NoError(t, err)

	gw.mu.Lock()
	gw.server = nil
	gw.mu.Unlock()

	_, err = tr.Get(ctx, r.ID)
	assert.ErrorIs(t, err, api.ErrNotFound)
	assert.Empty(t, tr.Repositories())
}

func TestTracker_Update(t *testing.T) {
	r := repo(model.StatusCompleted)
	gw := newFakeGateway(r)
	tr := New(gw, zaptest.NewLogger(t))
	ctx := context.Background()
	_, err := tr.ListRepositories(ctx)
	require.NoError(t, err)

	branch, cron := "develop", true
	got, err := tr.Update(ctx, r.ID, api.RepositoryUpdate{SelectedBranch: &branch, CronEnabled: &cron})
	require.NoError(t, err)
	assert.Equal(t, "develop", got.Branch)

	cur, ok := tr.Find(r.ID)
	require.True(t, ok)
	assert.True(t, cur.CronEnabled)
}

func TestTracker_StaleListCannotUndoDelete(t *testing.T) {
	r := repo(model.StatusAnalyzing)
	gw := newFakeGateway(r)
	tr := New(gw, zaptest.NewLogger(t))
	ctx := context.Background()
	_, err := tr.ListRepositories(ctx)
	require.NoError(t, err)

	release := make(chan struct{})
	gw.mu.Lock()
	gw.listHold = release
	gw.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = tr.ListRepositories(ctx)
	}()
	require.Eventually(t, func() bool { return gw.count("list") == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, tr.Delete(ctx, r.ID))
	close(release)
	<-done

	assert.Empty(t, tr.Repositories(), "list started before the delete must not resurrect it")
}

func TestTracker_StaleListCannotUndoImport(t *testing.T) {
	gw := newFakeGateway()
	tr := New(gw, zaptest.NewLogger(t))
	ctx := context.Background()

	release := make(chan struct{})
	gw.listHold = release

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = tr.ListRepositories(ctx)
	}()
	require.Eventually(t, func() bool { return gw.count("list") == 1 }, time.Second, 5*time.Millisecond)

	_, err := tr.ImportRepository(ctx, "https://github.com/acme/widget")
	require.NoError(t, err)
	close(release)
	<-done

	assert.Len(t, tr.Repositories(), 1)
}

func TestTracker_ListDroppedAfterCancel(t *testing.T) {
	gw := newFakeGateway(repo(model.StatusPending))
	tr := New(gw, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())

	release := make(chan struct{})
	gw.listHold = release
	done := make(chan error, 1)
	go func() {
		_, err := tr.ListRepositories(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return gw.count("list") == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	close(release)
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Empty(t, tr.Repositories())
}

func TestTracker_ReanalyzeServerBusyIsConflict(t *testing.T) {
	id := uuid.New()
	var reanalyzed atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method + " " + r.URL.Path {
		case "GET /api/repositories/":
			_ = json.NewEncoder(w).Encode([]map[string]any{{
				"id":              id,
				"github_repo_url": "https://github.com/acme/widget",
				"full_name":       "acme/widget",
				"analysis_status": "pending",
			}})
		case "POST /api/repositories/" + id.String() + "/reanalyze/":
			reanalyzed.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "Analysis is already in progress."})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	logger := zaptest.NewLogger(t)
	tr := New(api.New(api.Config{BaseURL: srv.URL}, api.TokenFunc(func() string { return "tok" }), logger), logger)
	ctx := context.Background()
	_, err := tr.ListRepositories(ctx)
	require.NoError(t, err)

	_, err = tr.Reanalyze(ctx, id)
	require.ErrorIs(t, err, api.ErrConflict)
	assert.Equal(t, api.KindConflict, api.KindOf(err))
	assert.Equal(t, "Analysis is already in progress.", api.Message(err, ""))
	assert.Equal(t, int32(1), reanalyzed.Load())

	cur, ok := tr.Find(id)
	require.True(t, ok)
	assert.Equal(t, model.StatusPending, cur.AnalysisStatus)
}

func TestTracker_ReanalyzeOtherValidationUnchanged(t *testing.T) {
	err := asBusyConflict(&api.Error{Kind: api.KindValidation, Status: http.StatusBadRequest, Fields: map[string][]string{"error": {"GitHub token missing"}}})
	assert.ErrorIs(t, err, api.ErrValidation)
	assert.NotErrorIs(t, err, api.ErrConflict)
}
