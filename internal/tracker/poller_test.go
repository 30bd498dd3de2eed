package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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

const testInterval = 10 * time.Millisecond

// await reads snapshots until cond holds or the deadline passes.
func await(t *testing.T, p *Poller, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-p.Updates():
			if cond(s) {
				return s
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
			return Snapshot{}
		}
	}
}

func statusOf(s Snapshot) model.AnalysisStatus {
	if len(s.Repositories) == 0 {
		return ""
	}
	return s.Repositories[0].AnalysisStatus
}

func TestPoller_StopsWhenTerminal(t *testing.T) {
	r := repo(model.StatusPending)
	gw := newFakeGateway(r)
	tr := New(gw, zaptest.NewLogger(t))
	ctx := context.Background()
	_, err := tr.ListRepositories(ctx)
	require.NoError(t, err)

	p := NewPoller(tr, testInterval, zaptest.NewLogger(t))
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	gw.setStatus(r.ID, model.StatusAnalyzing)
	await(t, p, func(s Snapshot) bool { return statusOf(s) == model.StatusAnalyzing })

	gw.setStatus(r.ID, model.StatusCompleted)
	last := await(t, p, func(s Snapshot) bool { return s.Done })
	assert.Equal(t, model.StatusCompleted, statusOf(last))
	require.NoError(t, <-done)
	assert.False(t, p.Running())

	calls := gw.count("list")
	time.Sleep(5 * testInterval)
	assert.Equal(t, calls, gw.count("list"), "no refresh is scheduled after every repository is terminal")
}

func TestPoller_NothingActive(t *testing.T) {
	gw := newFakeGateway(repo(model.StatusCompleted))
	tr := New(gw, zaptest.NewLogger(t))
	_, err := tr.ListRepositories(context.Background())
	require.NoError(t, err)

	p := NewPoller(tr, testInterval, zaptest.NewLogger(t))
	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 1, gw.count("list"))

	s := <-p.Updates()
	assert.True(t, s.Done)
}

func TestPoller_AuthErrorStops(t *testing.T) {
	gw := newFakeGateway(repo(model.StatusAnalyzing))
	tr := New(gw, zaptest.NewLogger(t))
	_, err := tr.ListRepositories(context.Background())
	require.NoError(t, err)

	gw.mu.Lock()
	gw.listErr = &api.Error{Kind: api.KindAuth, Status: 401, Message: "Invalid token."}
	gw.mu.Unlock()

	p := NewPoller(tr, testInterval, zaptest.NewLogger(t))
	err = p.Run(context.Background())
	assert.ErrorIs(t, err, api.ErrAuth)

	s := <-p.Updates()
	assert.ErrorIs(t, s.Err, api.ErrAuth)
	assert.Equal(t, model.StatusAnalyzing, statusOf(s), "last good state is kept")
}

func TestPoller_NetworkErrorKeepsPolling(t *testing.T) {
	r := repo(model.StatusAnalyzing)
	gw := newFakeGateway(r)
	tr := New(gw, zaptest.NewLogger(t))
	_, err := tr.ListRepositories(context.Background())
	require.NoError(t, err)

	gw.mu.Lock()
	gw.listErr = &api.Error{Kind: api.KindNetwork, Message: "Could not reach the server."}
	gw.mu.Unlock()

	p := NewPoller(tr, testInterval, zaptest.NewLogger(t))
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	failed := await(t, p, func(s Snapshot) bool { return s.Err != nil })
	assert.ErrorIs(t, failed.Err, api.ErrNetwork)

	gw.mu.Lock()
	gw.listErr = nil
	gw.mu.Unlock()
	gw.setStatus(r.ID, model.StatusFailed)

	await(t, p, func(s Snapshot) bool { return s.Done })
	require.NoError(t, <-done)
}

func TestPoller_Cancel(t *testing.T) {
	gw := newFakeGateway(repo(model.StatusFetching))
	tr := New(gw, zaptest.NewLogger(t))
	_, err := tr.ListRepositories(context.Background())
	require.NoError(t, err)

	p := NewPoller(tr, testInterval, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	await(t, p, func(Snapshot) bool { return true })
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	calls := gw.count("list")
	time.Sleep(5 * testInterval)
	assert.Equal(t, calls, gw.count("list"))
}

func TestPoller_SingleRun(t *testing.T) {
	gw := newFakeGateway(repo(model.StatusPending))
	tr := New(gw, zaptest.NewLogger(t))
	_, err := tr.ListRepositories(context.Background())
	require.NoError(t, err)

	p := NewPoller(tr, time.Hour, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	require.Eventually(t, p.Running, time.Second, time.Millisecond)

	assert.ErrorIs(t, p.Run(ctx), ErrPollerRunning)
	cancel()
	<-done
}

// TestPoller_ImportThroughAPI drives import and polling against a fake
// analytics server. Status only ever changes through list responses.
func TestPoller_ImportThroughAPI(t *testing.T) {
	id := uuid.New()
	var lists atomic.Int32
	statusFor := func(n int32) string {
		switch {
		case n < 2:
			return "pending"
		case n < 3:
			return "analyzing"
		default:
			return "completed"
		}
	}
	body := func(status string) map[string]any {
		return map[string]any{
			"id":              id.String(),
			"github_repo_url": "https://github.com/acme/widget",
			"repo_name":       "widget",
			"owner":           "acme",
			"full_name":       "acme/widget",
			"analysis_status": status,
		}
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/repositories/":
			var req map[string]string
			_ = json.NewDecoder(r.Body).Decode(&req)
			assert.Equal(t, "https://github.com/acme/widget", req["github_repo_url"])
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"message":    "Repository added successfully. Analysis started.",
				"repository": body("pending"),
			})
		case r.Method == http.MethodGet && r.URL.Path == "/api/repositories/":
			n := lists.Add(1)
			_ = json.NewEncoder(w).Encode([]any{body(statusFor(n))})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	logger := zaptest.NewLogger(t)
	client := api.New(api.Config{BaseURL: srv.URL}, api.TokenFunc(func() string { return "tok" }), logger)
	tr := New(client, logger)
	ctx := context.Background()

	got, err := tr.ImportRepository(ctx, "https://github.com/acme/widget.git")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.AnalysisStatus)
	assert.Equal(t, id, got.ID)

	p := NewPoller(tr, testInterval, logger)
	require.NoError(t, p.Run(ctx))

	repos := tr.Repositories()
	require.Len(t, repos, 1)
	assert.Equal(t, model.StatusCompleted, repos[0].AnalysisStatus)
	assert.Equal(t, int32(3), lists.Load())
}
