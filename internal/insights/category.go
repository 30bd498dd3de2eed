package insights

import (
	"strings"

	"github.com/samber/lo"

	"repolens/internal/model"
)

// Category groups pull requests and issues by their labels.
type Category string

const (
	CategoryBugs     Category = "bugs"
	CategoryFeatures Category = "features"
	CategoryOther    Category = "other"
)

// Categories lists the categories in priority order.
var Categories = []Category{CategoryBugs, CategoryFeatures, CategoryOther}

// Title is the section heading for c.
func (c Category) Title() string {
	switch c {
	case CategoryBugs:
		return "Bugs"
	case CategoryFeatures:
		return "Features & Enhancements"
	default:
		return "Other"
	}
}

// Categorize picks the category of a label set. Matching is a
// case-insensitive substring test and bugs win over features.
func Categorize(labels []string) Category {
	has := func(needles ...string) bool {
		return lo.SomeBy(labels, func(l string) bool {
			l = strings.ToLower(l)
			return lo.SomeBy(needles, func(n string) bool { return strings.Contains(l, n) })
		})
	}
	switch {
	case has("bug"):
		return CategoryBugs
	case has("feature", "enhancement"):
		return CategoryFeatures
	default:
		return CategoryOther
	}
}

// Grouped holds items by category, each keeping the input order.
type Grouped[T any] map[Category][]T

// GroupIssues splits issues into categories.
func GroupIssues(issues []model.Issue) Grouped[model.Issue] {
	return lo.GroupBy(issues, func(is model.Issue) Category { return Categorize(is.Labels) })
}

// GroupPullRequests splits pull requests into categories.
func GroupPullRequests(prs []model.PullRequest) Grouped[model.PullRequest] {
	return lo.GroupBy(prs, func(pr model.PullRequest) Category { return Categorize(pr.Labels) })
}
