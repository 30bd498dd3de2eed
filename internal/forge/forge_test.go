package forge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://github.com/acme/widget", "https://github.com/acme/widget"},
		{"https://github.com/acme/widget.git", "https://github.com/acme/widget"},
		{"https://github.com/acme/widget/", "https://github.com/acme/widget"},
		{"https://github.com/acme/widget/tree/main/docs", "https://github.com/acme/widget"},
		{"  https://www.github.com/acme/widget  ", "https://github.com/acme/widget"},
		{"git@github.com:acme/widget.git", "https://github.com/acme/widget"},
		{"git@github.com:acme/widget", "https://github.com/acme/widget"},
		{"ssh://git@github.com/acme/widget.git", "https://github.com/acme/widget"},
		{"github.com/acme/widget", "https://github.com/acme/widget"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			repo, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, repo.URL())
			assert.Equal(t, "acme/widget", repo.FullName())
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{"", ErrInvalidURL},
		{"https://gitlab.com/acme/widget", ErrUnsupportedHost},
		{"https://example.com/acme/widget", ErrUnsupportedHost},
		{"https://github.com/acme", ErrInvalidURL},
		{"https://github.com/", ErrInvalidURL},
		{"git@github.com", ErrInvalidURL},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := Parse(tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestKind(t *testing.T) {
	assert.Equal(t, "github", Kind("git@github.com:acme/widget.git"))
	assert.Equal(t, "gitlab", Kind("https://gitlab.example.org/acme/widget"))
	assert.Equal(t, "", Kind("https://example.com/acme/widget"))
}
