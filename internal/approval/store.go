// Package approval keeps review tickets for held decisions on disk.
// A ticket records what a human reviewer resolved; it never changes a
// decision that was already issued.
package approval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// validKey matches alphanumeric, dash, underscore, and dot characters only.
var validKey = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// validateKey rejects keys that could cause path traversal.
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

// Status represents the state of a ticket.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusExpired  Status = "expired"
)

// Ticket is a review request filed for one held decision.
type Ticket struct {
	Key             string     `json:"key"`
	Status          Status     `json:"status"`
	Reason          string     `json:"reason"`
	Actor           string     `json:"actor"`
	Action          string     `json:"action"`
	Resource        string     `json:"resource"`
	RequiredActions []string   `json:"required_actions,omitempty"`
	Note            string     `json:"note,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

// Store manages ticket files on disk, one JSON file per key.
type Store struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewStore creates a Store backed by the given directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("approval: create directory: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// DefaultDir returns the default ticket directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "actiongate-holds")
	}
	return filepath.Join(home, ".actiongate", "holds")
}

// Dir returns the backing directory.
func (s *Store) Dir() string { return s.dir }

// Request files a pending ticket. No-op if one already exists for t.Key.
func (s *Store) Request(t Ticket) error {
	if err := validateKey(t.Key); err != nil {
		return fmt.Errorf("approval: invalid key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(t.Key)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	t.Status = StatusPending
	t.CreatedAt = s.now().UTC()
	t.ExpiresAt = nil
	t.ResolvedAt = nil
	return s.writeAtomic(path, t)
}

// Approve resolves a pending ticket as approved. A duration > 0 bounds how
// long the approval stays valid.
func (s *Store) Approve(key, note string, duration time.Duration) error {
	return s.resolve(key, StatusApproved, note, duration)
}

// Deny resolves a pending ticket as denied.
func (s *Store) Deny(key, note string) error {
	return s.resolve(key, StatusDenied, note, 0)
}

func (s *Store) resolve(key string, status Status, note string, duration time.Duration) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("approval: invalid key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.read(key)
	if err != nil {
		return fmt.Errorf("approval: ticket %q not found: %w", key, err)
	}
	if t.Status != StatusPending {
		return fmt.Errorf("approval: ticket %q already %s", key, t.Status)
	}

	now := s.now().UTC()
	t.Status = status
	t.Note = note
	t.ResolvedAt = &now
	if duration > 0 {
		exp := now.Add(duration)
		t.ExpiresAt = &exp
	}
	return s.writeAtomic(s.path(key), *t)
}

// Check returns the current status of a ticket.
// Returns StatusExpired once an approval has passed its deadline.
func (s *Store) Check(key string) (Status, error) {
	t, err := s.Get(key)
	if err != nil {
		return "", err
	}
	return t.Status, nil
}

// Get returns the ticket for key.
func (s *Store) Get(key string) (*Ticket, error) {
	if err := validateKey(key); err != nil {
		return nil, fmt.Errorf("approval: invalid key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.read(key)
	if err != nil {
		return nil, fmt.Errorf("approval: ticket %q not found", key)
	}
	s.expire(t)
	return t, nil
}

// expire marks an approved ticket expired once past its deadline. The
// on-disk state is updated best-effort; the caller already has the answer.
func (s *Store) expire(t *Ticket) {
	if t.Status == StatusApproved && t.ExpiresAt != nil && s.now().UTC().After(*t.ExpiresAt) {
		t.Status = StatusExpired
		_ = s.writeAtomic(s.path(t.Key), *t)
	}
}

// List returns all tickets, oldest first.
func (s *Store) List() ([]Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("approval: list: %w", err)
	}

	var tickets []Ticket
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		t, err := s.read(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		s.expire(t)
		tickets = append(tickets, *t)
	}

	sort.SliceStable(tickets, func(i, j int) bool {
		return tickets[i].CreatedAt.Before(tickets[j].CreatedAt)
	})
	return tickets, nil
}

// Pending returns the tickets still awaiting review.
func (s *Store) Pending() ([]Ticket, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var out []Ticket
	for _, t := range all {
		if t.Status == StatusPending {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *Store) read(key string) (*Ticket, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, err
	}

	var t Ticket
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) writeAtomic(path string, t Ticket) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
