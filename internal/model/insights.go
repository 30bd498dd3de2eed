package model

import (
	"time"

	"github.com/google/uuid"
)

// Contributor is ranked by ImpactScore on the server.
type Contributor struct {
	ID             uuid.UUID
	GitHubUsername string
	AvatarURL      string
	Email          string
	TotalCommits   int
	Additions      int
	Deletions      int
	PRsOpened      int
	PRsMerged      int
	IssuesOpened   int
	IssuesClosed   int
	ImpactScore    int
}

// Commit is only present on commit groups fetched with detail.
type Commit struct {
	SHA         string
	Message     string
	Date        time.Time
	AuthorName  string
	Additions   int
	Deletions   int
	Contributor string
}

// CommitGroup is one weekly or monthly slice of the timeline.
type CommitGroup struct {
	ID                 uuid.UUID
	GroupType          string // "weekly" | "monthly"
	StartDate          string // YYYY-MM-DD
	EndDate            string
	CommitCount        int
	Summary            string
	KeyChanges         []string
	NotableFeatures    []string
	BugFixes           []string
	TechnicalDecisions []string
	MainContributors   []string
	Commits            []Commit
}

// PullRequest state is "open", "merged" or "closed".
type PullRequest struct {
	ID        uuid.UUID
	Number    int
	Title     string
	Author    string
	State     string
	Labels    []string
	CreatedAt *time.Time
	MergedAt  *time.Time
	AISummary string
}

// Issue state is "open" or "closed".
type Issue struct {
	ID                 uuid.UUID
	Number             int
	Title              string
	Author             string
	State              string
	Labels             []string
	CreatedAt          *time.Time
	ClosedAt           *time.Time
	AISummary          string
	ResolutionPRNumber *int
}

// Summary is the latest AI-generated overview of a repository.
type Summary struct {
	ID                uuid.UUID
	Text              string
	TotalCommits      int
	TotalContributors int
	TotalPRs          int
	TotalIssues       int
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
	GeneratedAt       *time.Time
}

// Stats aggregates counts computed by the server.
type Stats struct {
	Repository     string
	AnalysisStatus AnalysisStatus
	LastAnalyzedAt *time.Time
	TotalCommits   int
	Contributors   int
	TotalPRs       int
	TotalIssues    int
	OpenPRs        int
	MergedPRs      int
	OpenIssues     int
	ClosedIssues   int
	Stars          int
	Forks          int
	GitHubOpen     int
}

// Branches lists the remote branches of a tracked repository.
type Branches struct {
	Branches      []string
	DefaultBranch string
	Selected      string
}

// ExportType selects the period an export covers.
type ExportType string

const (
	ExportWeekly   ExportType = "weekly"
	ExportMonthly  ExportType = "monthly"
	ExportComplete ExportType = "complete"
)

// Export is a generated markdown report.
type Export struct {
	ID             uuid.UUID
	Type           ExportType
	DateRangeStart string
	DateRangeEnd   string
	FilePath       string
	FileSize       int64
	CreatedAt      time.Time
}
