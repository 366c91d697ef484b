package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/actiongate/internal/model"
)

// ReplayFilter holds filtering criteria for reading back recorded events.
// Empty fields match everything.
type ReplayFilter struct {
	ActorName string
	Mode      model.Mode
	From      time.Time // zero value = no lower bound
	To        time.Time // zero value = no upper bound
	Limit     int       // keep only the last Limit matches; 0 = all
}

// ReplaySummary holds decision counts for a replayed range.
type ReplaySummary struct {
	Total          int    `json:"total"`
	AllowCount     int    `json:"allow_count"`
	DenyCount      int    `json:"deny_count"`
	HoldCount      int    `json:"hold_count"`
	EscalateCount  int    `json:"escalate_count"`
	FirstTimestamp string `json:"first_timestamp"`
	LastTimestamp  string `json:"last_timestamp"`
}

// ReplayResult holds filtered events and their summary.
type ReplayResult struct {
	Events  []model.AuditEvent `json:"events"`
	Summary ReplaySummary      `json:"summary"`
}

// Replay reads a JSONL event file, either a chain log or a Flush output, and
// returns the events matching filter. Malformed and partial lines are
// skipped; duplicate IDs after a crash are reported once.
func Replay(path string, filter ReplayFilter) (*ReplayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	defer f.Close()

	var matched []model.AuditEvent
	seen := map[string]bool{}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		var e model.AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if e.ID != "" {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
		}
		if !filter.match(e) {
			continue
		}
		matched = append(matched, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: read log: %w", err)
	}

	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[len(matched)-filter.Limit:]
	}

	return Summarize(matched), nil
}

// Summarize wraps events, oldest first, in a ReplayResult with counts.
func Summarize(events []model.AuditEvent) *ReplayResult {
	result := &ReplayResult{Events: events}
	for _, e := range events {
		updateSummary(&result.Summary, e)
	}
	return result
}

func (f ReplayFilter) match(e model.AuditEvent) bool {
	if f.ActorName != "" && e.ActorName != f.ActorName {
		return false
	}
	if f.Mode != "" && e.Mode != f.Mode {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	ts, err := time.Parse(model.TimestampFormat, e.TimestampUTC)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ts.After(f.To) {
		return false
	}
	return true
}

func updateSummary(s *ReplaySummary, e model.AuditEvent) {
	s.Total++
	switch e.Mode {
	case model.Allow:
		s.AllowCount++
	case model.Deny:
		s.DenyCount++
	case model.Hold:
		s.HoldCount++
	case model.Escalate:
		s.EscalateCount++
	}

	if s.FirstTimestamp == "" {
		s.FirstTimestamp = e.TimestampUTC
	}
	s.LastTimestamp = e.TimestampUTC
}
