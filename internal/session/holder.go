package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"repolens/internal/api"
	"repolens/internal/model"
)

// ErrNotAuthenticated is returned by RequireAuth once loading has finished
// without a signed-in user.
var ErrNotAuthenticated = errors.New("not signed in")

// AuthFields is the order in which field errors of login and signup are
// surfaced.
var AuthFields = []string{"email", "username", "password", "password2"}

// Gateway is the part of the API client the holder needs.
type Gateway interface {
	Login(ctx context.Context, req api.LoginRequest) (*api.AuthResult, error)
	Signup(ctx context.Context, req api.SignupRequest) (*api.AuthResult, error)
	Logout(ctx context.Context) error
	Profile(ctx context.Context) (*model.User, error)
	UpdateProfile(ctx context.Context, upd api.ProfileUpdate) (*model.User, error)
	ValidateGitHubToken(ctx context.Context, token string) (*model.GitHubTokenCheck, error)
	GitHubTokenStatus(ctx context.Context) (*model.GitHubTokenStatus, error)
}

// CredentialStore persists the auth credential.
type CredentialStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// Holder owns the signed-in identity. Construct one per process and pass it
// to whatever needs it.
type Holder struct {
	api    Gateway
	store  CredentialStore
	logger *zap.Logger

	mu      sync.Mutex
	user    *model.User
	loading bool
}

// New returns a Holder in the loading state; call Load to settle it.
func New(gw Gateway, store CredentialStore, logger *zap.Logger) *Holder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Holder{api: gw, store: store, logger: logger, loading: true}
}

// Current returns a copy of the session.
func (h *Holder) Current() model.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.user == nil {
		return model.Session{}
	}
	u := *h.user
	return model.Session{User: &u, Authenticated: true}
}

// Loading reports whether the initial identity check is still running.
func (h *Holder) Loading() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loading
}

// RequireAuth returns ErrNotAuthenticated when loading is over and nobody is
// signed in.
func (h *Holder) RequireAuth() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.loading && h.user == nil {
		return ErrNotAuthenticated
	}
	return nil
}

// Load restores the session from the stored credential. A rejected
// credential is cleared; other failures keep it and are returned.
func (h *Holder) Load(ctx context.Context) error {
	h.setLoading(true)
	defer h.setLoading(false)

	token, err := h.store.Load()
	if err != nil {
		h.setUser(nil)
		return fmt.Errorf("load credential: %w", err)
	}
	if token == "" {
		h.setUser(nil)
		return nil
	}

	user, err := h.api.Profile(ctx)
	if err != nil {
		h.setUser(nil)
		if errors.Is(err, api.ErrAuth) {
			h.logger.Info("stored credential rejected, clearing")
			if clearErr := h.store.Clear(); clearErr != nil {
				h.logger.Warn("failed to clear credential", zap.Error(clearErr))
			}
			return nil
		}
		return err
	}
	h.setUser(user)
	return nil
}

// Login signs in and persists the returned credential.
func (h *Holder) Login(ctx context.Context, email, password string) (*model.User, error) {
	res, err := h.api.Login(ctx, api.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	return h.establish(res)
}

// Signup creates an account and signs in with it.
func (h *Holder) Signup(ctx context.Context, email, username, password, confirm string) (*model.User, error) {
	res, err := h.api.Signup(ctx, api.SignupRequest{
		Email:     email,
		Username:  username,
		Password:  password,
		Password2: confirm,
	})
	if err != nil {
		return nil, err
	}
	return h.establish(res)
}

func (h *Holder) establish(res *api.AuthResult) (*model.User, error) {
	if err := h.store.Save(res.Token); err != nil {
		return nil, fmt.Errorf("save credential: %w", err)
	}
	h.setUser(res.User)
	h.logger.Info("signed in", zap.String("username", res.User.Username))
	u := *res.User
	return &u, nil
}

// Logout tells the server and then always clears local state. The remote
// error, if any, is only logged.
func (h *Holder) Logout(ctx context.Context) error {
	if err := h.api.Logout(ctx); err != nil {
		h.logger.Warn("remote logout failed", zap.Error(err))
	}
	h.setUser(nil)
	if err := h.store.Clear(); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

// Expire drops the session after the server rejected the credential
// mid-use.
func (h *Holder) Expire() {
	h.setUser(nil)
	if err := h.store.Clear(); err != nil {
		h.logger.Warn("failed to clear credential", zap.Error(err))
	}
}

// Refresh re-reads the profile from the server.
func (h *Holder) Refresh(ctx context.Context) (*model.User, error) {
	user, err := h.api.Profile(ctx)
	if err != nil {
		if errors.Is(err, api.ErrAuth) {
			h.Expire()
		}
		return nil, err
	}
	h.setUser(user)
	u := *user
	return &u, nil
}

// UpdateProfile applies a partial change and stores the returned identity.
func (h *Holder) UpdateProfile(ctx context.Context, upd api.ProfileUpdate) (*model.User, error) {
	user, err := h.api.UpdateProfile(ctx, upd)
	if err != nil {
		return nil, err
	}
	h.setUser(user)
	u := *user
	return &u, nil
}

// ValidateGitHubToken checks a GitHub PAT without saving it.
func (h *Holder) ValidateGitHubToken(ctx context.Context, token string) (*model.GitHubTokenCheck, error) {
	if token == "" {
		return nil, api.NewValidation("token", "Please enter a token.")
	}
	return h.api.ValidateGitHubToken(ctx, token)
}

// GitHubTokenStatus reports whether the account has a PAT configured.
func (h *Holder) GitHubTokenStatus(ctx context.Context) (*model.GitHubTokenStatus, error) {
	return h.api.GitHubTokenStatus(ctx)
}

// ErrorMessage renders a login or signup failure using the auth field order.
func ErrorMessage(err error) string {
	return api.Message(err, api.GenericMessage, AuthFields...)
}

func (h *Holder) setUser(u *model.User) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if u == nil {
		h.user = nil
		return
	}
	cp := *u
	h.user = &cp
}

func (h *Holder) setLoading(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loading = v
}
