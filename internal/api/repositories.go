package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"repolens/internal/model"
)

// CreateRepositoryRequest is the body of POST /api/repositories/.
type CreateRepositoryRequest struct {
	GitHubRepoURL  string `json:"github_repo_url"           validate:"required,url"`
	SelectedBranch string `json:"selected_branch,omitempty"`
}

// RepositoryUpdate is a partial repository change.
type RepositoryUpdate struct {
	SelectedBranch *string `json:"selected_branch,omitempty"`
	CronEnabled    *bool   `json:"cron_enabled,omitempty"`
	CronFrequency  *string `json:"cron_frequency,omitempty" validate:"omitempty,oneof=weekly monthly"`
}

// repositoryDTO mirrors both the list and detail repository serializers.
type repositoryDTO struct {
	ID                uuid.UUID `json:"id"`
	GitHubRepoURL     string    `json:"github_repo_url"`
	RepoName          string    `json:"repo_name"`
	Owner             string    `json:"owner"`
	FullName          string    `json:"full_name"`
	Description       *string   `json:"description"`
	Branch            string    `json:"branch"`
	AnalysisStatus    string    `json:"analysis_status"`
	AnalysisError     *string   `json:"analysis_error"`
	LastAnalyzedAt    *string   `json:"last_analyzed_at"`
	StarsCount        int       `json:"stars_count"`
	ForksCount        int       `json:"forks_count"`
	ContributorsCount int       `json:"contributors_count"`
	CommitsCount      int       `json:"commits_count"`
	CronEnabled       bool      `json:"cron_enabled"`
	CronFrequency     *string   `json:"cron_frequency"`
	CreatedAt         *string   `json:"created_at"`
}

func (r repositoryDTO) toModel() model.TrackedRepository {
	repo := model.TrackedRepository{
		ID:               r.ID,
		FullName:         r.FullName,
		Owner:            r.Owner,
		Name:             r.RepoName,
		URL:              r.GitHubRepoURL,
		Branch:           r.Branch,
		Description:      deref(r.Description),
		StarCount:        r.StarsCount,
		ForkCount:        r.ForksCount,
		ContributorCount: r.ContributorsCount,
		CommitCount:      r.CommitsCount,
		AnalysisStatus:   model.AnalysisStatus(r.AnalysisStatus),
		AnalysisError:    deref(r.AnalysisError),
		LastAnalyzedAt:   parseTime(r.LastAnalyzedAt),
		CronEnabled:      r.CronEnabled,
		CronFrequency:    deref(r.CronFrequency),
	}
	if repo.FullName == "" && r.Owner != "" {
		repo.FullName = r.Owner + "/" + r.RepoName
	}
	if t := parseTime(r.CreatedAt); t != nil {
		repo.CreatedAt = *t
	}
	return repo
}

func repoPath(id uuid.UUID, suffix string) string {
	return "/api/repositories/" + id.String() + "/" + suffix
}

// ListRepositories returns every repository tracked by the account.
func (c *Client) ListRepositories(ctx context.Context) ([]model.TrackedRepository, error) {
	var out listOf[repositoryDTO]
	if err := c.do(ctx, http.MethodGet, "/api/repositories/", nil, nil, &out); err != nil {
		return nil, err
	}
	repos := make([]model.TrackedRepository, 0, len(out))
	for _, r := range out {
		repos = append(repos, r.toModel())
	}
	return repos, nil
}

// CreateRepository imports a GitHub repository and starts its analysis.
func (c *Client) CreateRepository(ctx context.Context, req CreateRepositoryRequest) (*model.TrackedRepository, string, error) {
	var out struct {
		Repository repositoryDTO `json:"repository"`
		Message    string        `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/repositories/", nil, req, &out); err != nil {
		return nil, "", err
	}
	repo := out.Repository.toModel()
	return &repo, out.Message, nil
}

// GetRepository fetches one repository.
func (c *Client) GetRepository(ctx context.Context, id uuid.UUID) (*model.TrackedRepository, error) {
	var out repositoryDTO
	if err := c.do(ctx, http.MethodGet, repoPath(id, ""), nil, nil, &out); err != nil {
		return nil, err
	}
	repo := out.toModel()
	return &repo, nil
}

// UpdateRepository changes branch or scheduled analysis settings.
func (c *Client) UpdateRepository(ctx context.Context, id uuid.UUID, upd RepositoryUpdate) (*model.TrackedRepository, error) {
	var out repositoryDTO
	if err := c.do(ctx, http.MethodPatch, repoPath(id, ""), nil, upd, &out); err != nil {
		return nil, err
	}
	repo := out.toModel()
	return &repo, nil
}

// DeleteRepository removes a repository and all of its analysis data.
func (c *Client) DeleteRepository(ctx context.Context, id uuid.UUID) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodDelete, repoPath(id, ""), nil, nil, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// Reanalyze restarts the analysis job of a repository.
func (c *Client) Reanalyze(ctx context.Context, id uuid.UUID) (*model.TrackedRepository, string, error) {
	var out struct {
		Message    string        `json:"message"`
		Repository repositoryDTO `json:"repository"`
	}
	if err := c.do(ctx, http.MethodPost, repoPath(id, "reanalyze/"), nil, nil, &out); err != nil {
		return nil, "", err
	}
	repo := out.Repository.toModel()
	return &repo, out.Message, nil
}
