package gate

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Error codes carried in Result.Error. Every one of them means Passed=false.
const (
	ErrTimeout           = "timeout"
	ErrExecFailed        = "exec_failed"
	ErrArtifactMissing   = "artifact_missing"
	ErrArtifactMalformed = "artifact_malformed"
	ErrNoChecks          = "no_checks"
	ErrNotConfigured     = "command_not_configured"
	ErrBelowThreshold    = "below_threshold"
	ErrPhaseFailed       = "phase_failed"
	ErrNonZeroExit       = "non_zero_exit"
)

// Result is the reduced outcome of one validation run.
type Result struct {
	RunID        string   `json:"run_id"`
	Passed       bool     `json:"passed"`
	PassRate     float64  `json:"pass_rate"`
	Total        int      `json:"total"`
	PassedChecks int      `json:"passed_checks"`
	FailedPhases []string `json:"failed_phases"`
	Degraded     bool     `json:"degraded,omitempty"`
	ExitCode     int      `json:"exit_code"`
	Error        string   `json:"error,omitempty"`
	Detail       string   `json:"detail,omitempty"`
	StartedUTC   string   `json:"started_utc"`
	FinishedUTC  string   `json:"finished_utc"`
	DurationMs   int64    `json:"duration_ms"`
}

// Summary is the validated content of a summary artifact.
type Summary struct {
	Total        int
	Passed       int
	PassRate     float64
	FailedPhases []string
}

type artifact struct {
	Summary *struct {
		Total    *int     `json:"total"`
		Passed   *int     `json:"passed"`
		PassRate *float64 `json:"pass_rate"`
	} `json:"summary"`
	Phases map[string]struct {
		OK *bool `json:"ok"`
	} `json:"phases"`
}

var errMalformed = errors.New(ErrArtifactMalformed)

// ParseArtifact decodes a summary artifact of the shape
//
//	{"summary": {"total": int, "passed": int, "pass_rate": float}, "phases": {"<name>": {"ok": bool}}}
//
// Any other shape is rejected.
func ParseArtifact(data []byte) (Summary, error) {
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return Summary{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if a.Summary == nil || a.Summary.Total == nil || a.Summary.Passed == nil || a.Summary.PassRate == nil {
		return Summary{}, fmt.Errorf("%w: summary.total, summary.passed and summary.pass_rate are required", errMalformed)
	}
	if a.Phases == nil {
		return Summary{}, fmt.Errorf("%w: phases object is required", errMalformed)
	}

	s := Summary{
		Total:        *a.Summary.Total,
		Passed:       *a.Summary.Passed,
		PassRate:     *a.Summary.PassRate,
		FailedPhases: []string{},
	}
	for name, phase := range a.Phases {
		if phase.OK == nil {
			return Summary{}, fmt.Errorf("%w: phase %q has no ok field", errMalformed, name)
		}
		if !*phase.OK {
			s.FailedPhases = append(s.FailedPhases, name)
		}
	}
	sort.Strings(s.FailedPhases)
	return s, nil
}

// passRateEpsilon absorbs float noise in artifact pass rates.
const passRateEpsilon = 1e-9

// Evaluate judges a summary under policy p. It returns whether the gate
// passed, whether the pass is degraded, and an error code when it did not pass.
// A summary with zero total checks never passes.
func Evaluate(p Policy, s Summary, exitCode int) (passed, degraded bool, code string) {
	if s.Total <= 0 {
		return false, false, ErrNoChecks
	}

	if p.StrictAll {
		if exitCode != 0 {
			return false, false, ErrNonZeroExit
		}
		if s.PassRate < 100-passRateEpsilon {
			return false, false, ErrBelowThreshold
		}
		return true, false, ""
	}

	if s.PassRate < p.MinPassRatio*100-passRateEpsilon {
		return false, false, ErrBelowThreshold
	}
	if len(s.FailedPhases) > 0 {
		if !p.AllowDegraded {
			return false, false, ErrPhaseFailed
		}
		return true, true, ""
	}
	return true, false, ""
}
