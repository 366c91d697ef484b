package gate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// HistoryLimit is how many gate outcomes the durable trail keeps.
const HistoryLimit = 100

const timestampFormat = "2006-01-02T15:04:05.000Z"

// History is a bounded, durable trail of gate outcomes, kept separately from
// the authorizer's audit log. Each Append rewrites the file atomically.
type History struct {
	path    string
	mu      sync.Mutex
	entries []Result
}

// OpenHistory loads an existing trail at path or starts an empty one.
func OpenHistory(path string) (*History, error) {
	h := &History{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return h, nil
		}
		return nil, fmt.Errorf("gate: read history: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &h.entries); err != nil {
			return nil, fmt.Errorf("gate: parse history: %w", err)
		}
	}
	if len(h.entries) > HistoryLimit {
		h.entries = h.entries[len(h.entries)-HistoryLimit:]
	}
	return h, nil
}

// Append records r, dropping the oldest entries beyond HistoryLimit.
func (h *History) Append(r Result) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, r)
	if len(h.entries) > HistoryLimit {
		h.entries = slices.Clone(h.entries[len(h.entries)-HistoryLimit:])
	}
	return h.writeAtomic()
}

// Entries returns the trail, oldest first.
func (h *History) Entries() []Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.entries)
}

// Last returns the most recent outcome.
func (h *History) Last() (Result, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		return Result{}, false
	}
	return h.entries[len(h.entries)-1], true
}

func (h *History) writeAtomic() error {
	if h.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0755); err != nil {
		return fmt.Errorf("gate: create history directory: %w", err)
	}

	data, err := json.MarshalIndent(h.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("gate: marshal history: %w", err)
	}

	tmp := h.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("gate: write history: %w", err)
	}
	return os.Rename(tmp, h.path)
}
