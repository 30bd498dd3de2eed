package model

import "time"

// User is the identity returned by the auth endpoints.
type User struct {
	ID             int64
	Email          string
	Username       string
	GitHubUsername string
	HasGitHubToken bool
	CreatedAt      time.Time
}

// Session is the client-side view of who is signed in.
type Session struct {
	User          *User // nil when logged out
	Authenticated bool
}

// GitHubTokenStatus reports whether the account has a GitHub PAT configured.
type GitHubTokenStatus struct {
	HasToken       bool
	GitHubUsername string
	Message        string
}

// GitHubTokenCheck is the result of validating a PAT without storing it.
type GitHubTokenCheck struct {
	Valid    bool
	Username string
	Message  string
}
