// Package approval tracks pending operator confirmations for actions the
// policy engine flagged NEEDS_CONFIRMATION. Each request is one JSON
// file; the CLI resolves them, and the agent loop consumes a grant
// exactly once unless it carries an expiry window.
package approval

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

var validKey = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("key must not contain '..'")
	}
	if !validKey.MatchString(key) {
		return fmt.Errorf("key contains invalid characters: only alphanumeric, dash, underscore, and dot are allowed")
	}
	return nil
}

// Key derives a deterministic approval key for an action. The same
// app/verb pair maps to the same pending file, so repeated denials do
// not pile up duplicate requests.
func Key(app, verb string) string {
	clean := func(s string) string {
		var b strings.Builder
		for _, r := range s {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
				b.WriteRune(r)
			default:
				b.WriteRune('_')
			}
		}
		return b.String()
	}
	return clean(app) + "_" + clean(verb)
}

// Status represents the state of a confirmation request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusConsumed Status = "consumed"
	StatusExpired  Status = "expired"
)

// Approval is a single confirmation request and its state.
type Approval struct {
	Key        string     `json:"key"`
	Status     Status     `json:"status"`
	App        string     `json:"app"`
	Verb       string     `json:"verb"`
	Reason     string     `json:"reason"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Store manages confirmation files on disk.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a store backed by the given directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create approval directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// DefaultDir returns the default confirmation store directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "screenpilot-pending")
	}
	return filepath.Join(home, ".screenpilot", "pending")
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string { return s.dir }

// Request creates a pending confirmation. No-op if one already exists.
func (s *Store) Request(key, app, verb, reason string) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid approval key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	a := Approval{
		Key:       key,
		Status:    StatusPending,
		App:       app,
		Verb:      verb,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	return s.writeAtomic(path, a)
}

// Approve marks a request approved. duration > 0 grants a window;
// duration == 0 grants a single use, consumed on first pass.
func (s *Store) Approve(key string, duration time.Duration) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid approval key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.read(key)
	if err != nil {
		return fmt.Errorf("approval %q not found: %w", key, err)
	}

	a.Status = StatusApproved
	now := time.Now().UTC()
	a.ResolvedAt = &now
	if duration > 0 {
		exp := now.Add(duration)
		a.ExpiresAt = &exp
	}
	return s.writeAtomic(s.path(key), *a)
}

// Deny marks a request denied.
func (s *Store) Deny(key string) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid approval key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.read(key)
	if err != nil {
		return fmt.Errorf("approval %q not found: %w", key, err)
	}

	a.Status = StatusDenied
	now := time.Now().UTC()
	a.ResolvedAt = &now
	return s.writeAtomic(s.path(key), *a)
}

// Check returns the current status, demoting a timed-out grant to
// StatusExpired on read.
func (s *Store) Check(key string) (Status, error) {
	if err := validateKey(key); err != nil {
		return "", fmt.Errorf("invalid approval key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.read(key)
	if err != nil {
		return "", fmt.Errorf("approval %q not found", key)
	}

	if a.Status == StatusApproved && a.ExpiresAt != nil && time.Now().UTC().After(*a.ExpiresAt) {
		a.Status = StatusExpired
		s.writeAtomic(s.path(key), *a)
		return StatusExpired, nil
	}
	return a.Status, nil
}

// Consume marks a one-time grant used. A grant with an expiry window is
// left in place until it expires.
func (s *Store) Consume(key string) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid approval key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.read(key)
	if err != nil {
		return fmt.Errorf("approval %q not found: %w", key, err)
	}
	if a.Status == StatusConsumed {
		return fmt.Errorf("approval %q already consumed", key)
	}
	if a.ExpiresAt != nil {
		return nil
	}

	a.Status = StatusConsumed
	now := time.Now().UTC()
	a.ResolvedAt = &now
	return s.writeAtomic(s.path(key), *a)
}

// List returns every request in the store.
func (s *Store) List() ([]Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var approvals []Approval
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		a, err := s.read(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		approvals = append(approvals, *a)
	}
	return approvals, nil
}

// Remove deletes a single request so a fresh one can be filed.
func (s *Store) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid approval key: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Cleanup prunes request files that can never grant again: consumed,
// denied, expired, and corrupt entries. Pending requests and live
// grants survive, so an approval issued from another terminal still
// works on the next invocation.
func (s *Store) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	now := time.Now().UTC()
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		a, err := s.read(strings.TrimSuffix(e.Name(), ".json"))
		stale := err != nil
		if !stale {
			switch {
			case a.Status == StatusConsumed || a.Status == StatusDenied || a.Status == StatusExpired:
				stale = true
			case a.Status == StatusApproved && a.ExpiresAt != nil && now.After(*a.ExpiresAt):
				stale = true
			}
		}
		if !stale {
			continue
		}
		if err := os.Remove(path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *Store) read(key string) (*Approval, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, err
	}
	var a Approval
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("corrupt approval file: %w", err)
	}
	return &a, nil
}

// writeAtomic writes via a temp file and rename so a reader never sees
// a partial JSON document.
func (s *Store) writeAtomic(path string, a Approval) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
