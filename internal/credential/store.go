package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// file is the on-disk layout. The key name is fixed so other tools sharing
// the account can read it.
type file struct {
	AuthToken string `yaml:"auth_token"`
}

// Store persists the single opaque auth credential. It also serves as the
// API client's token source, caching the value after the first read.
type Store struct {
	mu     sync.Mutex
	path   string
	token  string
	cached bool
}

// DefaultPath returns <UserConfigDir>/repolens/credentials.yaml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("user config dir: %w", err)
	}
	return filepath.Join(dir, "repolens", "credentials.yaml"), nil
}

// New returns a Store at path, or at DefaultPath when path is empty.
func New(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &Store{path: path}, nil
}

// Path is the credential file location.
func (s *Store) Path() string { return s.path }

// Token returns the cached credential, reading the file on first use.
// Read failures yield "".
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cached {
		tok, _ := s.read()
		s.token, s.cached = tok, true
	}
	return s.token
}

// Load returns the stored credential, or "" when none is stored.
func (s *Store) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, err := s.read()
	if err != nil {
		return "", err
	}
	s.token, s.cached = tok, true
	return tok, nil
}

func (s *Store) read() (string, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read credentials: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return "", fmt.Errorf("parse credentials: %w", err)
	}
	return f.AuthToken, nil
}

// Save replaces the stored credential.
func (s *Store) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	raw, err := yaml.Marshal(file{AuthToken: token})
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write credentials: %w", err)
	}
	s.token, s.cached = token, true
	return nil
}

// Clear removes the stored credential. Clearing an empty store is not an error.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	s.token, s.cached = "", true
	return nil
}
