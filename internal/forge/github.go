package forge

import (
	"fmt"
	"net/url"
	"strings"
)

const githubHost = "github.com"

// parseGitHub accepts
//
//	https://github.com/owner/name(.git)(/)
//	ssh://git@github.com/owner/name.git
//	git@github.com:owner/name(.git)
//	github.com/owner/name
func parseGitHub(raw string) (Repo, error) {
	var path string
	switch {
	case strings.HasPrefix(raw, "git@"):
		host, p, ok := strings.Cut(strings.TrimPrefix(raw, "git@"), ":")
		if !ok || !strings.EqualFold(host, githubHost) {
			return Repo{}, fmt.Errorf("%w: %s", ErrInvalidURL, raw)
		}
		path = p
	case strings.Contains(raw, "://"):
		u, err := url.Parse(raw)
		if err != nil {
			return Repo{}, fmt.Errorf("%w: %w", ErrInvalidURL, err)
		}
		if !strings.EqualFold(u.Hostname(), githubHost) && !strings.EqualFold(u.Hostname(), "www."+githubHost) {
			return Repo{}, fmt.Errorf("%w: %s", ErrUnsupportedHost, raw)
		}
		path = u.Path
	default:
		host, p, _ := strings.Cut(raw, "/")
		if !strings.EqualFold(host, githubHost) {
			return Repo{}, fmt.Errorf("%w: %s", ErrInvalidURL, raw)
		}
		path = p
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 {
		return Repo{}, fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	owner := parts[0]
	name := strings.TrimSuffix(parts[1], ".git")
	if owner == "" || name == "" {
		return Repo{}, fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	return Repo{Owner: owner, Name: name}, nil
}
