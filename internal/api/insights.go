package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"repolens/internal/model"
)

// CreateExportRequest is the body of POST /api/repositories/{id}/export/.
type CreateExportRequest struct {
	ExportType     model.ExportType `json:"export_type"                validate:"required,oneof=weekly monthly complete"`
	DateRangeStart string           `json:"date_range_start,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DateRangeEnd   string           `json:"date_range_end,omitempty"   validate:"omitempty,datetime=2006-01-02"`
}

type contributorDTO struct {
	ID             uuid.UUID `json:"id"`
	GitHubUsername string    `json:"github_username"`
	AvatarURL      *string   `json:"avatar_url"`
	Email          *string   `json:"email"`
	TotalCommits   int       `json:"total_commits"`
	TotalAdditions int       `json:"total_additions"`
	TotalDeletions int       `json:"total_deletions"`
	PRsOpened      int       `json:"prs_opened"`
	PRsMerged      int       `json:"prs_merged"`
	IssuesOpened   int       `json:"issues_opened"`
	IssuesClosed   int       `json:"issues_closed"`
	ImpactScore    int       `json:"impact_score"`
}

type commitDTO struct {
	SHA                 string  `json:"commit_sha"`
	Message             string  `json:"commit_message"`
	Date                *string `json:"commit_date"`
	AuthorName          string  `json:"author_name"`
	Additions           int     `json:"additions"`
	Deletions           int     `json:"deletions"`
	ContributorUsername *string `json:"contributor_username"`
}

type commitGroupDTO struct {
	ID                 uuid.UUID   `json:"id"`
	GroupType          string      `json:"group_type"`
	StartDate          string      `json:"start_date"`
	EndDate            string      `json:"end_date"`
	CommitCount        int         `json:"commit_count"`
	Summary            *string     `json:"summary"`
	KeyChanges         []string    `json:"key_changes"`
	NotableFeatures    []string    `json:"notable_features"`
	BugFixes           []string    `json:"bug_fixes"`
	TechnicalDecisions []string    `json:"technical_decisions"`
	MainContributors   []string    `json:"main_contributors"`
	Commits            []commitDTO `json:"commits"`
}

type pullRequestDTO struct {
	ID        uuid.UUID `json:"id"`
	Number    int       `json:"pr_number"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	State     string    `json:"state"`
	Labels    []string  `json:"labels"`
	CreatedAt *string   `json:"created_at_github"`
	MergedAt  *string   `json:"merged_at"`
	AISummary *string   `json:"ai_summary"`
}

type issueDTO struct {
	ID                 uuid.UUID `json:"id"`
	Number             int       `json:"issue_number"`
	Title              string    `json:"title"`
	Author             string    `json:"author"`
	State              string    `json:"state"`
	Labels             []string  `json:"labels"`
	CreatedAt          *string   `json:"created_at_github"`
	ClosedAt           *string   `json:"closed_at"`
	AISummary          *string   `json:"ai_summary"`
	ResolutionPRNumber *int      `json:"resolution_pr_number"`
}

type summaryDTO struct {
	ID                uuid.UUID `json:"id"`
	SummaryText       string    `json:"summary_text"`
	TotalCommits      int       `json:"total_commits"`
	TotalContributors int       `json:"total_contributors"`
	TotalPRs          int       `json:"total_prs"`
	TotalIssues       int       `json:"total_issues"`
	PeriodStart       *string   `json:"analysis_period_start"`
	PeriodEnd         *string   `json:"analysis_period_end"`
	GeneratedAt       *string   `json:"generated_at"`
}

type statsDTO struct {
	Repository     string  `json:"repository"`
	AnalysisStatus string  `json:"analysis_status"`
	LastAnalyzedAt *string `json:"last_analyzed_at"`
	Stats          struct {
		TotalCommits      int `json:"total_commits"`
		TotalContributors int `json:"total_contributors"`
		TotalPRs          int `json:"total_prs"`
		TotalIssues       int `json:"total_issues"`
		OpenPRs           int `json:"open_prs"`
		MergedPRs         int `json:"merged_prs"`
		OpenIssues        int `json:"open_issues"`
		ClosedIssues      int `json:"closed_issues"`
	} `json:"stats"`
	GitHubStats struct {
		Stars      int `json:"stars"`
		Forks      int `json:"forks"`
		OpenIssues int `json:"open_issues"`
	} `json:"github_stats"`
}

type exportDTO struct {
	ID             uuid.UUID `json:"id"`
	ExportType     string    `json:"export_type"`
	DateRangeStart *string   `json:"date_range_start"`
	DateRangeEnd   *string   `json:"date_range_end"`
	FilePath       string    `json:"file_path"`
	FileSize       int64     `json:"file_size"`
	CreatedAt      *string   `json:"created_at"`
}

// Contributors returns contributors in server rank order.
func (c *Client) Contributors(ctx context.Context, id uuid.UUID) ([]model.Contributor, error) {
	var out listOf[contributorDTO]
	if err := c.do(ctx, http.MethodGet, repoPath(id, "contributors/"), nil, nil, &out); err != nil {
		return nil, err
	}
	res := make([]model.Contributor, 0, len(out))
	for _, d := range out {
		res = append(res, model.Contributor{
			ID:             d.ID,
			GitHubUsername: d.GitHubUsername,
			AvatarURL:      deref(d.AvatarURL),
			Email:          deref(d.Email),
			TotalCommits:   d.TotalCommits,
			Additions:      d.TotalAdditions,
			Deletions:      d.TotalDeletions,
			PRsOpened:      d.PRsOpened,
			PRsMerged:      d.PRsMerged,
			IssuesOpened:   d.IssuesOpened,
			IssuesClosed:   d.IssuesClosed,
			ImpactScore:    d.ImpactScore,
		})
	}
	return res, nil
}

// CommitGroups returns the timeline. detail includes the commits of each group.
func (c *Client) CommitGroups(ctx context.Context, id uuid.UUID, detail bool) ([]model.CommitGroup, error) {
	q := url.Values{"detail": {strconv.FormatBool(detail)}}
	var out listOf[commitGroupDTO]
	if err := c.do(ctx, http.MethodGet, repoPath(id, "commit_groups/"), q, nil, &out); err != nil {
		return nil, err
	}
	res := make([]model.CommitGroup, 0, len(out))
	for _, d := range out {
		g := model.CommitGroup{
			ID:                 d.ID,
			GroupType:          d.GroupType,
			StartDate:          d.StartDate,
			EndDate:            d.EndDate,
			CommitCount:        d.CommitCount,
			Summary:            deref(d.Summary),
			KeyChanges:         d.KeyChanges,
			NotableFeatures:    d.NotableFeatures,
			BugFixes:           d.BugFixes,
			TechnicalDecisions: d.TechnicalDecisions,
			MainContributors:   d.MainContributors,
		}
		for _, cm := range d.Commits {
			commit := model.Commit{
				SHA:         cm.SHA,
				Message:     cm.Message,
				AuthorName:  cm.AuthorName,
				Additions:   cm.Additions,
				Deletions:   cm.Deletions,
				Contributor: deref(cm.ContributorUsername),
			}
			if t := parseTime(cm.Date); t != nil {
				commit.Date = *t
			}
			g.Commits = append(g.Commits, commit)
		}
		res = append(res, g)
	}
	return res, nil
}

// PullRequests returns pull requests; state "" means all.
func (c *Client) PullRequests(ctx context.Context, id uuid.UUID, state string) ([]model.PullRequest, error) {
	q := url.Values{}
	if state != "" {
		q.Set("state", state)
	}
	var out listOf[pullRequestDTO]
	if err := c.do(ctx, http.MethodGet, repoPath(id, "pull_requests/"), q, nil, &out); err != nil {
		return nil, err
	}
	res := make([]model.PullRequest, 0, len(out))
	for _, d := range out {
		res = append(res, model.PullRequest{
			ID:        d.ID,
			Number:    d.Number,
			Title:     d.Title,
			Author:    d.Author,
			State:     d.State,
			Labels:    d.Labels,
			CreatedAt: parseTime(d.CreatedAt),
			MergedAt:  parseTime(d.MergedAt),
			AISummary: deref(d.AISummary),
		})
	}
	return res, nil
}

// Issues returns issues; state "" means all.
func (c *Client) Issues(ctx context.Context, id uuid.UUID, state string) ([]model.Issue, error) {
	q := url.Values{}
	if state != "" {
		q.Set("state", state)
	}
	var out listOf[issueDTO]
	if err := c.do(ctx, http.MethodGet, repoPath(id, "issues/"), q, nil, &out); err != nil {
		return nil, err
	}
	res := make([]model.Issue, 0, len(out))
	for _, d := range out {
		res = append(res, model.Issue{
			ID:                 d.ID,
			Number:             d.Number,
			Title:              d.Title,
			Author:             d.Author,
			State:              d.State,
			Labels:             d.Labels,
			CreatedAt:          parseTime(d.CreatedAt),
			ClosedAt:           parseTime(d.ClosedAt),
			AISummary:          deref(d.AISummary),
			ResolutionPRNumber: d.ResolutionPRNumber,
		})
	}
	return res, nil
}

// Summary returns the latest overall summary. A repository that has not been
// summarised yet yields a not-found error.
func (c *Client) Summary(ctx context.Context, id uuid.UUID) (*model.Summary, error) {
	var out summaryDTO
	if err := c.do(ctx, http.MethodGet, repoPath(id, "summary/"), nil, nil, &out); err != nil {
		return nil, err
	}
	return &model.Summary{
		ID:                out.ID,
		Text:              out.SummaryText,
		TotalCommits:      out.TotalCommits,
		TotalContributors: out.TotalContributors,
		TotalPRs:          out.TotalPRs,
		TotalIssues:       out.TotalIssues,
		PeriodStart:       parseTime(out.PeriodStart),
		PeriodEnd:         parseTime(out.PeriodEnd),
		GeneratedAt:       parseTime(out.GeneratedAt),
	}, nil
}

// Branches lists the remote branches of a repository.
func (c *Client) Branches(ctx context.Context, id uuid.UUID) (*model.Branches, error) {
	var out struct {
		Branches       []string `json:"branches"`
		DefaultBranch  string   `json:"default_branch"`
		SelectedBranch *string  `json:"selected_branch"`
	}
	if err := c.do(ctx, http.MethodGet, repoPath(id, "branches/"), nil, nil, &out); err != nil {
		return nil, err
	}
	return &model.Branches{
		Branches:      out.Branches,
		DefaultBranch: out.DefaultBranch,
		Selected:      deref(out.SelectedBranch),
	}, nil
}

// Stats returns aggregate counts for a repository.
func (c *Client) Stats(ctx context.Context, id uuid.UUID) (*model.Stats, error) {
	var out statsDTO
	if err := c.do(ctx, http.MethodGet, repoPath(id, "stats/"), nil, nil, &out); err != nil {
		return nil, err
	}
	return &model.Stats{
		Repository:     out.Repository,
		AnalysisStatus: model.AnalysisStatus(out.AnalysisStatus),
		LastAnalyzedAt: parseTime(out.LastAnalyzedAt),
		TotalCommits:   out.Stats.TotalCommits,
		Contributors:   out.Stats.TotalContributors,
		TotalPRs:       out.Stats.TotalPRs,
		TotalIssues:    out.Stats.TotalIssues,
		OpenPRs:        out.Stats.OpenPRs,
		MergedPRs:      out.Stats.MergedPRs,
		OpenIssues:     out.Stats.OpenIssues,
		ClosedIssues:   out.Stats.ClosedIssues,
		Stars:          out.GitHubStats.Stars,
		Forks:          out.GitHubStats.Forks,
		GitHubOpen:     out.GitHubStats.OpenIssues,
	}, nil
}

// Exports lists generated exports of a repository.
func (c *Client) Exports(ctx context.Context, id uuid.UUID) ([]model.Export, error) {
	var out listOf[exportDTO]
	if err := c.do(ctx, http.MethodGet, repoPath(id, "exports/"), nil, nil, &out); err != nil {
		return nil, err
	}
	res := make([]model.Export, 0, len(out))
	for _, d := range out {
		e := model.Export{
			ID:             d.ID,
			Type:           model.ExportType(d.ExportType),
			DateRangeStart: deref(d.DateRangeStart),
			DateRangeEnd:   deref(d.DateRangeEnd),
			FilePath:       d.FilePath,
			FileSize:       d.FileSize,
		}
		if t := parseTime(d.CreatedAt); t != nil {
			e.CreatedAt = *t
		}
		res = append(res, e)
	}
	return res, nil
}

// CreateExport queues a markdown export and returns the server message and
// background task id.
func (c *Client) CreateExport(ctx context.Context, id uuid.UUID, req CreateExportRequest) (string, string, error) {
	var out struct {
		Message string `json:"message"`
		TaskID  string `json:"task_id"`
	}
	if err := c.do(ctx, http.MethodPost, repoPath(id, "export/"), nil, req, &out); err != nil {
		return "", "", err
	}
	return out.Message, out.TaskID, nil
}

// DownloadExport fetches the export file.
func (c *Client) DownloadExport(ctx context.Context, exportID uuid.UUID) (*Download, error) {
	return c.download(ctx, "/api/exports/"+exportID.String()+"/download/", "export-"+exportID.String()+".md")
}
