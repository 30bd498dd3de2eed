package forge

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedHost is returned for remotes outside github.com, such as
	// GitLab or self-hosted forges.
	ErrUnsupportedHost = errors.New("only github.com repositories can be analysed")
	// ErrInvalidURL is returned when the owner or name cannot be found.
	ErrInvalidURL = errors.New("not a repository URL")
)

// Repo identifies a GitHub repository.
type Repo struct {
	Owner string
	Name  string
}

// FullName is "owner/name".
func (r Repo) FullName() string { return r.Owner + "/" + r.Name }

// URL is the canonical web URL the analytics API expects.
func (r Repo) URL() string { return "https://" + githubHost + "/" + r.FullName() }

// Kind reports which forge a remote URL points at: "github", "gitlab" or ""
// when unrecognised.
func Kind(remote string) string {
	remote = strings.ToLower(strings.TrimSpace(remote))
	switch {
	case strings.Contains(remote, githubHost):
		return "github"
	case strings.Contains(remote, "gitlab"):
		return "gitlab"
	default:
		return ""
	}
}

// Parse normalises a GitHub URL in HTTPS, SSH or scp-like form.
func Parse(raw string) (Repo, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Repo{}, ErrInvalidURL
	}
	if Kind(raw) != "github" {
		return Repo{}, fmt.Errorf("%w: %s", ErrUnsupportedHost, raw)
	}
	return parseGitHub(raw)
}
