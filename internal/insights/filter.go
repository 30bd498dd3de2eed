package insights

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"repolens/internal/model"
)

// PRFilter selects pull requests by state.
type PRFilter string

const (
	PRAll    PRFilter = "all"
	PROpen   PRFilter = "open"
	PRMerged PRFilter = "merged"
	PRClosed PRFilter = "closed"
)

// PRFilters lists the pull request filters in display order.
var PRFilters = []PRFilter{PRAll, PROpen, PRMerged, PRClosed}

// IssueFilter selects issues by state.
type IssueFilter string

const (
	IssueAll    IssueFilter = "all"
	IssueOpen   IssueFilter = "open"
	IssueClosed IssueFilter = "closed"
)

// IssueFilters lists the issue filters in display order.
var IssueFilters = []IssueFilter{IssueAll, IssueOpen, IssueClosed}

// ParsePRFilter accepts "" as all.
func ParsePRFilter(s string) (PRFilter, error) {
	f := PRFilter(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return PRAll, nil
	}
	if !lo.Contains(PRFilters, f) {
		return "", fmt.Errorf("unknown pull request state %q (want all, open, merged or closed)", s)
	}
	return f, nil
}

// ParseIssueFilter accepts "" as all.
func ParseIssueFilter(s string) (IssueFilter, error) {
	f := IssueFilter(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return IssueAll, nil
	}
	if !lo.Contains(IssueFilters, f) {
		return "", fmt.Errorf("unknown issue state %q (want all, open or closed)", s)
	}
	return f, nil
}

// FilterPullRequests keeps server order.
func FilterPullRequests(prs []model.PullRequest, f PRFilter) []model.PullRequest {
	if f == PRAll || f == "" {
		return prs
	}
	return lo.Filter(prs, func(pr model.PullRequest, _ int) bool { return pr.State == string(f) })
}

// FilterIssues keeps server order.
func FilterIssues(issues []model.Issue, f IssueFilter) []model.Issue {
	if f == IssueAll || f == "" {
		return issues
	}
	return lo.Filter(issues, func(is model.Issue, _ int) bool { return is.State == string(f) })
}

// PRCounts is the number of pull requests per state.
type PRCounts struct {
	All, Open, Merged, Closed int
}

// CountPullRequests tallies prs by state.
func CountPullRequests(prs []model.PullRequest) PRCounts {
	by := lo.CountValuesBy(prs, func(pr model.PullRequest) string { return pr.State })
	return PRCounts{All: len(prs), Open: by["open"], Merged: by["merged"], Closed: by["closed"]}
}

// Count returns the tally for f.
func (c PRCounts) Count(f PRFilter) int {
	switch f {
	case PROpen:
		return c.Open
	case PRMerged:
		return c.Merged
	case PRClosed:
		return c.Closed
	default:
		return c.All
	}
}

// IssueCounts is the number of issues per state.
type IssueCounts struct {
	All, Open, Closed int
}

// CountIssues tallies issues by state.
func CountIssues(issues []model.Issue) IssueCounts {
	by := lo.CountValuesBy(issues, func(is model.Issue) string { return is.State })
	return IssueCounts{All: len(issues), Open: by["open"], Closed: by["closed"]}
}

// Count returns the tally for f.
func (c IssueCounts) Count(f IssueFilter) int {
	switch f {
	case IssueOpen:
		return c.Open
	case IssueClosed:
		return c.Closed
	default:
		return c.All
	}
}
