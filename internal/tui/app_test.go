package tui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"repolens/internal/api"
	"repolens/internal/credential"
	"repolens/internal/insights"
	"repolens/internal/model"
	"repolens/internal/picker"
	"repolens/internal/session"
	"repolens/internal/tracker"
)

const testToken = "tok-1"

type backend struct {
	mu      sync.Mutex
	repos   []map[string]any
	calls   map[string]int
	revoked bool
}

func (b *backend) count(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[key]
}

func (b *backend) track(fullName, status string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	owner, name, _ := strings.Cut(fullName, "/")
	b.repos = append(b.repos, map[string]any{
		"id":              uuid.New(),
		"github_repo_url": "https://github.com/" + fullName,
		"repo_name":       name,
		"owner":           owner,
		"full_name":       fullName,
		"analysis_status": status,
	})
}

func (b *backend) serve(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := r.Method + " " + r.URL.Path
	b.calls[key]++
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	reply := func(status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	user := map[string]any{"id": 7, "email": "ada@example.com", "username": "ada"}

	if key == "POST /api/auth/login/" {
		if body["password"] != "hunter22" {
			reply(http.StatusBadRequest, map[string]any{"non_field_errors": []string{"Unable to log in with provided credentials."}})
			return
		}
		reply(http.StatusOK, map[string]any{"user": user, "token": testToken})
		return
	}
	if b.revoked || r.Header.Get("Authorization") != "Token "+testToken {
		reply(http.StatusUnauthorized, map[string]any{"detail": "Invalid token."})
		return
	}

	switch {
	case key == "GET /api/auth/profile/":
		reply(http.StatusOK, user)
	case key == "GET /api/auth/github-repos/":
		reply(http.StatusOK, map[string]any{
			"repositories": []map[string]any{
				{"id": 1, "name": "widget", "full_name": "acme/widget", "html_url": "https://github.com/acme/widget"},
				{"id": 2, "name": "gadget", "full_name": "acme/gadget", "html_url": "https://github.com/acme/gadget"},
			},
			"total_count": 2,
			"page":        1,
			"per_page":    10,
		})
	case key == "GET /api/repositories/":
		reply(http.StatusOK, b.repos)
	case r.Method == http.MethodDelete:
		b.repos = nil
		w.WriteHeader(http.StatusNoContent)
	default:
		reply(http.StatusNotFound, map[string]any{"detail": "Not found."})
	}
}

// fakeInsights serves fixed detail data.
type fakeInsights struct {
	prs     []model.PullRequest
	exports []model.Export
	created []api.CreateExportRequest
}

func (f *fakeInsights) Contributors(context.Context, uuid.UUID) ([]model.Contributor, error) {
	return []model.Contributor{{GitHubUsername: "ada", TotalCommits: 12}}, nil
}

func (f *fakeInsights) CommitGroups(context.Context, uuid.UUID, bool) ([]model.CommitGroup, error) {
	return []model.CommitGroup{{ID: uuid.New(), GroupType: "weekly", StartDate: "2026-10-05", EndDate: "2026-10-11", CommitCount: 4}}, nil
}

func (f *fakeInsights) PullRequests(context.Context, uuid.UUID, string) ([]model.PullRequest, error) {
	return f.prs, nil
}

func (f *fakeInsights) Issues(context.Context, uuid.UUID, string) ([]model.Issue, error) {
	return nil, nil
}

func (f *fakeInsights) Summary(context.Context, uuid.UUID) (*model.Summary, error) {
	return &model.Summary{Text: "A busy week."}, nil
}

func (f *fakeInsights) Stats(context.Context, uuid.UUID) (*model.Stats, error) {
	return &model.Stats{TotalCommits: 12}, nil
}

func (f *fakeInsights) Branches(context.Context, uuid.UUID) (*model.Branches, error) {
	return &model.Branches{}, nil
}

func (f *fakeInsights) Exports(context.Context, uuid.UUID) ([]model.Export, error) {
	return f.exports, nil
}

func (f *fakeInsights) CreateExport(_ context.Context, _ uuid.UUID, req api.CreateExportRequest) (string, string, error) {
	f.created = append(f.created, req)
	return "Export generation started", "task-1", nil
}

func (f *fakeInsights) DownloadExport(context.Context, uuid.UUID) (*api.Download, error) {
	return nil, api.NewValidation("export", "not ready")
}

type fixture struct {
	backend *backend
	gw      *fakeInsights
	deps    Deps
}

func newFixture(t *testing.T, signedIn bool) *fixture {
	t.Helper()
	b := &backend{calls: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(srv.Close)

	logger := zaptest.NewLogger(t)
	creds, err := credential.New(filepath.Join(t.TempDir(), "credentials.yaml"))
	require.NoError(t, err)
	if signedIn {
		require.NoError(t, creds.Save(testToken))
	}
	client := api.New(api.Config{BaseURL: srv.URL}, creds, logger)
	tr := tracker.New(client, logger)
	gw := &fakeInsights{}

	return &fixture{
		backend: b,
		gw:      gw,
		deps: Deps{
			Session:    session.New(client, creds, logger),
			Tracker:    tr,
			Picker:     picker.New(client, tr, 10, logger),
			Poller:     func() *tracker.Poller { return tracker.NewPoller(tr, time.Hour, logger) },
			Insights:   gw,
			ExportsDir: t.TempDir(),
			Logger:     logger,
		},
	}
}

// start loads the session and, when signed in, the dashboard.
func (f *fixture) start(t *testing.T) Model {
	t.Helper()
	m := New(context.Background(), f.deps)
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	next, cmd := m.Update(m.loadSessionCmd()())
	m = next.(Model)
	if m.screen == screenDashboard {
		require.NotNil(t, cmd)
		m = update(t, m, cmd())
	}
	return m
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func press(t *testing.T, m Model, key string) (Model, tea.Cmd) {
	t.Helper()
	var msg tea.KeyMsg
	switch key {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestStart_WithoutCredentialShowsSignIn(t *testing.T) {
	f := newFixture(t, false)

	m := f.start(t)

	assert.Equal(t, screenAuth, m.screen)
	assert.Contains(t, m.View(), "Sign in")
	assert.Zero(t, f.backend.count("GET /api/auth/profile/"))
}

func TestSignIn_EntersDashboard(t *testing.T) {
	f := newFixture(t, false)
	f.backend.track("acme/widget", "completed")
	m := f.start(t)

	m.auth.inputs[fieldEmail].SetValue("ada@example.com")
	m.auth.inputs[fieldPassword].SetValue("hunter22")
	m, _ = press(t, m, "enter")
	m, cmd := press(t, m, "enter")
	require.True(t, m.auth.submitting)
	require.NotNil(t, cmd)

	next, cmd := m.Update(cmd())
	m = next.(Model)
	require.Equal(t, screenDashboard, m.screen)
	assert.Equal(t, "Signed in as ada", m.flash)

	m = update(t, m, cmd())
	require.Len(t, m.repos, 1)
	assert.Equal(t, "acme/widget", m.repos[0].FullName)
	assert.False(t, m.poll.running)
}

func TestSignIn_ShowsServerMessage(t *testing.T) {
	f := newFixture(t, false)
	m := f.start(t)

	m.auth.inputs[fieldEmail].SetValue("ada@example.com")
	m.auth.inputs[fieldPassword].SetValue("nope")
	m.auth.focused = 1
	m, cmd := press(t, m, "enter")
	m = update(t, m, cmd())

	assert.Equal(t, screenAuth, m.screen)
	assert.Equal(t, "Unable to log in with provided credentials.", m.auth.err)
	assert.False(t, m.auth.submitting)
}

func TestSignIn_RequiresEveryField(t *testing.T) {
	f := newFixture(t, false)
	m := f.start(t)

	m.auth.focused = 1
	m, cmd := press(t, m, "enter")

	assert.Nil(t, cmd)
	assert.Equal(t, "Please fill in every field.", m.auth.err)
	assert.Zero(t, f.backend.count("POST /api/auth/login/"))
}

func TestDashboard_ImportAtCapacity(t *testing.T) {
	f := newFixture(t, true)
	f.backend.track("acme/widget", "completed")
	m := f.start(t)
	require.Equal(t, screenDashboard, m.screen)

	m, cmd := press(t, m, "i")

	assert.Nil(t, cmd)
	assert.Equal(t, overlayNone, m.overlay)
	assert.Contains(t, m.err, "only track one repository")
	assert.Zero(t, f.backend.count("GET /api/auth/github-repos/"))
}

func TestDashboard_PickerFiltersPage(t *testing.T) {
	f := newFixture(t, true)
	m := f.start(t)

	m, cmd := press(t, m, "i")
	require.Equal(t, overlayPicker, m.overlay)
	m = update(t, m, cmd())
	require.Len(t, m.pick.Items, 2)

	m, _ = press(t, m, "/")
	require.True(t, m.filtering)
	m, _ = press(t, m, "gad")

	require.Len(t, m.pick.Items, 1)
	assert.Equal(t, "acme/gadget", m.pick.Items[0].FullName)
	assert.Equal(t, 1, f.backend.count("GET /api/auth/github-repos/"))

	m, _ = press(t, m, "esc")
	m, _ = press(t, m, "esc")
	assert.Equal(t, overlayNone, m.overlay)
}

func TestDashboard_StalePollIgnored(t *testing.T) {
	f := newFixture(t, true)
	f.backend.track("acme/widget", "completed")
	m := f.start(t)
	m.poll.gen = 3

	m = update(t, m, pollMsg{gen: 2, snap: tracker.Snapshot{Repositories: nil, Done: true}})

	assert.Len(t, m.repos, 1)
}

func TestDashboard_DeleteNeedsConfirmation(t *testing.T) {
	f := newFixture(t, true)
	f.backend.track("acme/widget", "failed")
	m := f.start(t)

	m, _ = press(t, m, "d")
	require.Equal(t, overlayDeleteConfirm, m.overlay)
	m, cmd := press(t, m, "n")
	assert.Nil(t, cmd)
	assert.Equal(t, overlayNone, m.overlay)
	assert.Len(t, m.repos, 1)

	m, _ = press(t, m, "d")
	m, cmd = press(t, m, "y")
	require.NotNil(t, cmd)
	m = update(t, m, cmd())

	assert.Equal(t, "Deleted acme/widget", m.flash)
	assert.Empty(t, m.repos)
	assert.True(t, f.deps.Tracker.CanImport())
}

func TestDashboard_RejectedCredentialReturnsToSignIn(t *testing.T) {
	f := newFixture(t, true)
	f.backend.track("acme/widget", "completed")
	m := f.start(t)
	require.Equal(t, screenDashboard, m.screen)

	f.backend.mu.Lock()
	f.backend.revoked = true
	f.backend.mu.Unlock()
	m, cmd := press(t, m, "r")
	m = update(t, m, cmd())

	assert.Equal(t, screenAuth, m.screen)
	assert.Contains(t, m.auth.err, "session has expired")
	assert.False(t, f.deps.Session.Current().Authenticated)
}

func TestDashboard_DetailNeedsCompletedAnalysis(t *testing.T) {
	f := newFixture(t, true)
	f.backend.track("acme/widget", "failed")
	m := f.start(t)

	m, cmd := press(t, m, "enter")

	assert.Nil(t, cmd)
	assert.Equal(t, screenDashboard, m.screen)
	assert.Contains(t, m.err, "once the analysis has completed")
}

func TestDashboard_RefreshSkippedWhilePolling(t *testing.T) {
	f := newFixture(t, true)
	f.backend.track("acme/widget", "analyzing")
	m := f.start(t)
	require.True(t, m.poll.running)
	lists := f.backend.count("GET /api/repositories/")

	m, cmd := press(t, m, "r")

	assert.Nil(t, cmd)
	assert.Empty(t, m.busy)
	assert.Equal(t, "Statuses are already refreshing", m.flash)
	assert.Equal(t, lists, f.backend.count("GET /api/repositories/"))
	m.stopPolling()
}

func TestDetail_PausesPolling(t *testing.T) {
	f := newFixture(t, true)
	f.backend.track("acme/widget", "completed")
	m := f.start(t)
	ctx, cancel := context.WithCancel(context.Background())
	m.poll = pollState{gen: 4, running: true, cancel: cancel, ctx: ctx}

	m, _ = press(t, m, "enter")
	require.Equal(t, screenDetail, m.screen)
	assert.False(t, m.poll.running)
	assert.Equal(t, 5, m.poll.gen)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	m, cmd := press(t, m, "esc")
	assert.Equal(t, screenDashboard, m.screen)
	assert.Nil(t, cmd, "nothing left to poll once the analysis has completed")
	assert.False(t, m.poll.running)
}

func TestDetail_PullRequestFilter(t *testing.T) {
	f := newFixture(t, true)
	f.backend.track("acme/widget", "completed")
	f.gw.prs = []model.PullRequest{
		{Number: 3, Title: "Fix crash", State: "merged", Labels: []string{"bug"}},
		{Number: 2, Title: "Dark mode", State: "open", Labels: []string{"feature"}},
		{Number: 1, Title: "Add retries", State: "merged"},
	}
	m := f.start(t)

	m, cmd := press(t, m, "enter")
	require.Equal(t, screenDetail, m.screen)
	m = update(t, m, cmd())
	assert.Contains(t, m.View(), "A busy week.")

	m, cmd = press(t, m, "4")
	require.Equal(t, tabPullRequests, m.detail.tab)
	m = update(t, m, cmd())
	assert.Equal(t, 3, m.detail.rows())

	m, _ = press(t, m, "f")
	assert.Equal(t, insights.PROpen, m.detail.views.PRFilter())
	assert.Equal(t, 1, m.detail.rows())
	assert.Contains(t, m.View(), "Dark mode")
	assert.NotContains(t, m.View(), "Fix crash")

	m, _ = press(t, m, "esc")
	assert.Equal(t, screenDashboard, m.screen)
	assert.Nil(t, m.detail)
}

func TestDetail_CreateExport(t *testing.T) {
	f := newFixture(t, true)
	f.backend.track("acme/widget", "completed")
	m := f.start(t)

	m, _ = press(t, m, "enter")
	m, cmd := press(t, m, "6")
	m = update(t, m, cmd())
	assert.Contains(t, m.View(), "No exports yet")

	m, cmd = press(t, m, "w")
	require.NotNil(t, cmd)
	m = update(t, m, cmd())

	require.Len(t, f.gw.created, 1)
	assert.Equal(t, model.ExportWeekly, f.gw.created[0].ExportType)
	assert.Equal(t, "Export generation started", m.detail.note)
	assert.True(t, m.detail.noteOK)
}

func TestExportRange(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

	kind, start, end := exportRange("w", now)
	assert.Equal(t, "weekly", kind)
	assert.Equal(t, "2026-10-10", start)
	assert.Equal(t, "2026-10-16", end)

	kind, start, _ = exportRange("m", now)
	assert.Equal(t, "monthly", kind)
	assert.Equal(t, "2026-09-17", start)

	kind, start, end = exportRange("c", now)
	assert.Equal(t, "complete", kind)
	assert.Empty(t, start)
	assert.Empty(t, end)
}

func TestClip(t *testing.T) {
	lines := []string{"a", "b", "c", "d", "e"}

	assert.Equal(t, lines, clip(lines, 0, 10))
	assert.Equal(t, []string{"a", "b"}, clip(lines, 1, 2))
	assert.Equal(t, []string{"d", "e"}, clip(lines, 4, 2))
}
