package model

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisStatus is the server-side lifecycle of a tracked repository.
type AnalysisStatus string

const (
	StatusPending   AnalysisStatus = "pending"
	StatusFetching  AnalysisStatus = "fetching"
	StatusAnalyzing AnalysisStatus = "analyzing"
	StatusCompleted AnalysisStatus = "completed"
	StatusFailed    AnalysisStatus = "failed"
)

// Terminal reports whether no further server-side transition is expected
// without a new request.
func (s AnalysisStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Busy reports whether the analysis job is actively running.
func (s AnalysisStatus) Busy() bool {
	return s == StatusFetching || s == StatusAnalyzing
}

// TrackedRepository is the single GitHub repository imported for analysis.
type TrackedRepository struct {
	ID               uuid.UUID
	FullName         string // "owner/name"
	Owner            string
	Name             string
	URL              string
	Branch           string
	Description      string
	StarCount        int
	ForkCount        int
	ContributorCount int
	CommitCount      int
	AnalysisStatus   AnalysisStatus
	AnalysisError    string
	LastAnalyzedAt   *time.Time
	CronEnabled      bool
	CronFrequency    string // "weekly" | "monthly" | ""
	CreatedAt        time.Time
}

// GitHubCandidate is a repository offered by the picker, not yet imported.
type GitHubCandidate struct {
	ExternalID      int64
	Name            string
	FullName        string
	Description     string
	URL             string
	CloneURL        string
	DefaultBranch   string
	Private         bool
	Fork            bool
	StarCount       int
	ForkCount       int
	PrimaryLanguage string
	UpdatedAt       *time.Time
	PushedAt        *time.Time
}

// CandidatePage is one server page of candidates.
type CandidatePage struct {
	Items       []GitHubCandidate
	TotalCount  int
	Page        int
	PerPage     int
	HasNext     bool
	HasPrevious bool
}
