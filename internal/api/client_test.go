package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"repolens/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL}, TokenFunc(func() string { return token }), zaptest.NewLogger(t))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_Login(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/login/", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ada@example.com", body["email"])

		writeJSON(w, http.StatusOK, map[string]any{
			"user":    map[string]any{"id": 7, "email": "ada@example.com", "username": "ada"},
			"token":   "abc123",
			"message": "Login successful",
		})
	}, "")

	res, err := c.Login(context.Background(), LoginRequest{Email: "ada@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", res.Token)
	assert.Equal(t, int64(7), res.User.ID)
	assert.Equal(t, "ada", res.User.Username)
}

func TestClient_AuthorizationHeader(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{"id": 1, "email": "a@b.c", "username": "a"})
	}, "secret")

	_, err := c.Profile(context.Background())
	require.NoError(t, err)
}

func TestClient_LocalValidationSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}, "")

	_, err := c.Signup(context.Background(), SignupRequest{
		Email:     "not-an-email",
		Username:  "ada",
		Password:  "one",
		Password2: "two",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Zero(t, calls.Load())

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Enter a valid email address.", apiErr.FieldMessage("email", "password2"))
	assert.Equal(t, "Password fields didn't match.", apiErr.FieldMessage("password2"))
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
		want   error
		msg    string
	}{
		{"field error", http.StatusBadRequest, map[string]any{"github_repo_url": []string{"You have already added this repository."}}, ErrValidation, "You have already added this repository."},
		{"non field", http.StatusBadRequest, map[string]any{"non_field_errors": []string{"Invalid credentials"}}, ErrValidation, "Invalid credentials"},
		{"auth", http.StatusUnauthorized, map[string]any{"detail": "Invalid token."}, ErrAuth, "Invalid token."},
		{"not found", http.StatusNotFound, map[string]any{"detail": "Not found."}, ErrNotFound, "Not found."},
		{"conflict", http.StatusConflict, map[string]any{"error": "Analysis is already in progress."}, ErrConflict, "Analysis is already in progress."},
		{"server", http.StatusBadGateway, "upstream down", ErrNetwork, "upstream down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			}, "tok")

			_, err := c.ListRepositories(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.msg, Message(err, "", "github_repo_url"))
		})
	}
}

func TestClient_TransportFailureIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil, zaptest.NewLogger(t))
	_, err := c.ListRepositories(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestClient_ListRepositories_Paginated(t *testing.T) {
	id := uuid.New()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"count": 1,
			"results": []map[string]any{{
				"id":              id.String(),
				"github_repo_url": "https://github.com/acme/widget",
				"repo_name":       "widget",
				"owner":           "acme",
				"full_name":       "acme/widget",
				"branch":          "main",
				"analysis_status": "analyzing",
				"stars_count":     3,
			}},
		})
	}, "tok")

	repos, err := c.ListRepositories(context.Background())
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, id, repos[0].ID)
	assert.Equal(t, model.StatusAnalyzing, repos[0].AnalysisStatus)
	assert.Equal(t, "acme/widget", repos[0].FullName)
	assert.Equal(t, 3, repos[0].StarCount)
}

func TestClient_GitHubRepos_Query(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "10", q.Get("per_page"))
		assert.Equal(t, "updated", q.Get("sort"))
		writeJSON(w, http.StatusOK, map[string]any{
			"repositories": []map[string]any{{"id": 1, "name": "widget", "full_name": "acme/widget", "html_url": "https://github.com/acme/widget"}},
			"total_count":  11,
			"page":         2,
			"per_page":     10,
			"has_next":     false,
			"has_previous": true,
		})
	}, "tok")

	p, err := c.GitHubRepos(context.Background(), CandidateQuery{Page: 2, PerPage: 10, Sort: "updated"})
	require.NoError(t, err)
	assert.Equal(t, 11, p.TotalCount)
	assert.True(t, p.HasPrevious)
	assert.False(t, p.HasNext)
	require.Len(t, p.Items, 1)
	assert.Equal(t, "https://github.com/acme/widget", p.Items[0].URL)
}

func TestClient_GitHubRepos_InvalidQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unexpected request")
	}, "tok")

	_, err := c.GitHubRepos(context.Background(), CandidateQuery{Page: 0, PerPage: 10})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestClient_DeleteRepository_EmptyBody(t *testing.T) {
	id := uuid.New()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/repositories/"+id.String()+"/", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}, "tok")

	_, err := c.DeleteRepository(context.Background(), id)
	require.NoError(t, err)
}

func TestClient_DownloadExport(t *testing.T) {
	id := uuid.New()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/exports/"+id.String()+"/download/", r.URL.Path)
		w.Header().Set("Content-Type", "text/markdown")
		w.Header().Set("Content-Disposition", `attachment; filename="acme_widget_complete.md"`)
		_, _ = w.Write([]byte("# Report\n"))
	}, "tok")

	d, err := c.DownloadExport(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "acme_widget_complete.md", d.Filename)
	assert.Equal(t, "# Report\n", string(d.Data))
}

func TestClient_CreateExport_Validation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unexpected request")
	}, "tok")

	_, _, err := c.CreateExport(context.Background(), uuid.New(), CreateExportRequest{ExportType: "yearly"})
	assert.ErrorIs(t, err, ErrValidation)
}
