package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"repolens/internal/model"
)

// LoginRequest is the body of POST /api/auth/login/.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignupRequest is the body of POST /api/auth/signup/.
type SignupRequest struct {
	Email     string `json:"email"     validate:"required,email"`
	Username  string `json:"username"  validate:"required,max=150"`
	Password  string `json:"password"  validate:"required"`
	Password2 string `json:"password2" validate:"required,eqfield=Password"`
}

// ProfileUpdate is a partial profile change. Nil fields are left unchanged;
// an empty GitHubToken removes the stored PAT.
type ProfileUpdate struct {
	Username       *string `json:"username,omitempty"        validate:"omitempty,min=1,max=150"`
	GitHubUsername *string `json:"github_username,omitempty"`
	GitHubToken    *string `json:"github_token,omitempty"`
}

type validatePATRequest struct {
	Token string `json:"token" validate:"required"`
}

// CandidateQuery selects a page of the user's GitHub repositories.
type CandidateQuery struct {
	Page    int    `validate:"min=1"`
	PerPage int    `validate:"min=1,max=100"`
	Sort    string `validate:"omitempty,oneof=created updated pushed full_name"`
	Type    string `validate:"omitempty,oneof=all owner public private member"`
}

// userDTO mirrors the profile serializer.
type userDTO struct {
	ID             int64   `json:"id"`
	Email          string  `json:"email"`
	Username       string  `json:"username"`
	GitHubUsername *string `json:"github_username"`
	HasGitHubToken bool    `json:"has_github_token"`
	CreatedAt      *string `json:"created_at"`
}

func (u userDTO) toModel() *model.User {
	user := &model.User{
		ID:             u.ID,
		Email:          u.Email,
		Username:       u.Username,
		GitHubUsername: deref(u.GitHubUsername),
		HasGitHubToken: u.HasGitHubToken,
	}
	if t := parseTime(u.CreatedAt); t != nil {
		user.CreatedAt = *t
	}
	return user
}

type authResponse struct {
	User    userDTO `json:"user"`
	Token   string  `json:"token"`
	Message string  `json:"message"`
}

// AuthResult is the outcome of login or signup.
type AuthResult struct {
	User    *model.User
	Token   string
	Message string
}

// ghRepoDTO mirrors one entry of the GitHub repository proxy.
type ghRepoDTO struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	FullName      string  `json:"full_name"`
	Description   *string `json:"description"`
	HTMLURL       string  `json:"html_url"`
	CloneURL      string  `json:"clone_url"`
	DefaultBranch string  `json:"default_branch"`
	Private       bool    `json:"private"`
	Fork          bool    `json:"fork"`
	StarsCount    int     `json:"stars_count"`
	ForksCount    int     `json:"forks_count"`
	Language      *string `json:"language"`
	UpdatedAt     *string `json:"updated_at"`
	PushedAt      *string `json:"pushed_at"`
}

type ghReposResponse struct {
	Repositories []ghRepoDTO `json:"repositories"`
	TotalCount   int         `json:"total_count"`
	Page         int         `json:"page"`
	PerPage      int         `json:"per_page"`
	HasNext      bool        `json:"has_next"`
	HasPrevious  bool        `json:"has_previous"`
}

// Signup creates an account and returns its credential.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (*AuthResult, error) {
	var out authResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/signup/", nil, req, &out); err != nil {
		return nil, err
	}
	return &AuthResult{User: out.User.toModel(), Token: out.Token, Message: out.Message}, nil
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	var out authResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login/", nil, req, &out); err != nil {
		return nil, err
	}
	return &AuthResult{User: out.User.toModel(), Token: out.Token, Message: out.Message}, nil
}

// Logout invalidates the current token on the server.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout/", nil, nil, nil)
}

// Profile returns the signed-in user.
func (c *Client) Profile(ctx context.Context) (*model.User, error) {
	var out userDTO
	if err := c.do(ctx, http.MethodGet, "/api/auth/profile/", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.toModel(), nil
}

// UpdateProfile applies a partial profile change.
func (c *Client) UpdateProfile(ctx context.Context, upd ProfileUpdate) (*model.User, error) {
	var out struct {
		User    *userDTO `json:"user"`
		Message string   `json:"message"`
		userDTO
	}
	if err := c.do(ctx, http.MethodPatch, "/api/auth/profile/", nil, upd, &out); err != nil {
		return nil, err
	}
	// Some deployments answer with {user, message}, others with the bare user.
	if out.User != nil {
		return out.User.toModel(), nil
	}
	return out.userDTO.toModel(), nil
}

// ValidateGitHubToken checks a PAT against GitHub without storing it.
func (c *Client) ValidateGitHubToken(ctx context.Context, token string) (*model.GitHubTokenCheck, error) {
	var out struct {
		IsValid  bool    `json:"is_valid"`
		Username *string `json:"username"`
		Message  string  `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/validate-pat/", nil, validatePATRequest{Token: token}, &out); err != nil {
		return nil, err
	}
	return &model.GitHubTokenCheck{Valid: out.IsValid, Username: deref(out.Username), Message: out.Message}, nil
}

// GitHubTokenStatus reports whether a PAT is configured for the account.
func (c *Client) GitHubTokenStatus(ctx context.Context) (*model.GitHubTokenStatus, error) {
	var out struct {
		HasToken       bool    `json:"has_token"`
		GitHubUsername *string `json:"github_username"`
		Message        string  `json:"message"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/check-pat/", nil, nil, &out); err != nil {
		return nil, err
	}
	return &model.GitHubTokenStatus{
		HasToken:       out.HasToken,
		GitHubUsername: deref(out.GitHubUsername),
		Message:        out.Message,
	}, nil
}

// GitHubRepos lists one page of the user's GitHub repositories through the
// backend proxy.
func (c *Client) GitHubRepos(ctx context.Context, q CandidateQuery) (*model.CandidatePage, error) {
	if err := c.check(q); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("per_page", strconv.Itoa(q.PerPage))
	if q.Sort != "" {
		params.Set("sort", q.Sort)
	}
	if q.Type != "" {
		params.Set("type", q.Type)
	}

	var out ghReposResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/github-repos/", params, nil, &out); err != nil {
		return nil, err
	}

	p := &model.CandidatePage{
		Items:       make([]model.GitHubCandidate, 0, len(out.Repositories)),
		TotalCount:  out.TotalCount,
		Page:        out.Page,
		PerPage:     out.PerPage,
		HasNext:     out.HasNext,
		HasPrevious: out.HasPrevious,
	}
	for _, r := range out.Repositories {
		p.Items = append(p.Items, model.GitHubCandidate{
			ExternalID:      r.ID,
			Name:            r.Name,
			FullName:        r.FullName,
			Description:     deref(r.Description),
			URL:             r.HTMLURL,
			CloneURL:        r.CloneURL,
			DefaultBranch:   r.DefaultBranch,
			Private:         r.Private,
			Fork:            r.Fork,
			StarCount:       r.StarsCount,
			ForkCount:       r.ForksCount,
			PrimaryLanguage: deref(r.Language),
			UpdatedAt:       parseTime(r.UpdatedAt),
			PushedAt:        parseTime(r.PushedAt),
		})
	}
	return p, nil
}
