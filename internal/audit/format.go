package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/actiongate/internal/model"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a ReplayResult as a human-readable text timeline.
func FormatTimeline(result *ReplayResult) string {
	if len(result.Events) == 0 {
		return "No events found.\n"
	}

	var b strings.Builder

	first := formatDateTime(result.Summary.FirstTimestamp)
	last := formatTimeOnly(result.Summary.LastTimestamp)
	b.WriteString(fmt.Sprintf("Audit: %d events | %s–%s UTC\n", result.Summary.Total, first, last))
	b.WriteString(separator + "\n")

	for _, e := range result.Events {
		ts := formatTimeOnly(e.TimestampUTC)
		mode := strings.ToUpper(string(e.Mode))
		actor := truncate(e.ActorName, 16)
		action := truncate(string(e.Action), 22)
		target := truncate(e.TargetPath, 30)

		tag := ""
		if e.HasRisk(model.RiskConstitutionalViolation) {
			tag = "  [constitution]"
		} else if e.HasRisk(model.RiskProtectedPath) {
			tag = "  [protected]"
		}

		b.WriteString(fmt.Sprintf("%-10s %-6s %-16s %-22s %-30s%s\n",
			ts, mode, actor, action, target, tag))
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))

	return b.String()
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal replay result: %w", err)
	}
	return string(data), nil
}

func formatDateTime(ts string) string {
	t, err := time.Parse(model.TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(model.TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s ReplaySummary) string {
	var parts []string
	if s.AllowCount > 0 {
		parts = append(parts, fmt.Sprintf("%d allow", s.AllowCount))
	}
	if s.DenyCount > 0 {
		parts = append(parts, fmt.Sprintf("%d deny", s.DenyCount))
	}
	if s.HoldCount > 0 {
		parts = append(parts, fmt.Sprintf("%d hold", s.HoldCount))
	}
	if s.EscalateCount > 0 {
		parts = append(parts, fmt.Sprintf("%d escalate", s.EscalateCount))
	}
	return fmt.Sprintf("Summary: %s\n", strings.Join(parts, ", "))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
