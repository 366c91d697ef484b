package gate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEvaluateZeroTotalAlwaysFails(t *testing.T) {
	policies := []Policy{
		DefaultPolicy(),
		{StrictAll: true},
		{MinPassRatio: 0, AllowDegraded: true},
	}
	for _, p := range policies {
		passed, _, code := Evaluate(p, Summary{Total: 0, PassRate: 100}, 0)
		if passed {
			t.Errorf("policy %+v: zero total must never pass", p)
		}
		if code != ErrNoChecks {
			t.Errorf("policy %+v: expected no_checks, got %q", p, code)
		}
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name         string
		policy       Policy
		summary      Summary
		exitCode     int
		wantPassed   bool
		wantDegraded bool
		wantCode     string
	}{
		{"default full pass", DefaultPolicy(), Summary{Total: 10, Passed: 10, PassRate: 100}, 0, true, false, ""},
		{"default at threshold", DefaultPolicy(), Summary{Total: 10, Passed: 7, PassRate: 70}, 1, true, false, ""},
		{"default below threshold", DefaultPolicy(), Summary{Total: 10, Passed: 6, PassRate: 60}, 0, false, false, ErrBelowThreshold},
		{"default degraded", DefaultPolicy(), Summary{Total: 10, Passed: 8, PassRate: 80, FailedPhases: []string{"lint"}}, 1, true, true, ""},
		{"no degraded allowed", Policy{MinPassRatio: 0.7}, Summary{Total: 10, Passed: 8, PassRate: 80, FailedPhases: []string{"lint"}}, 0, false, false, ErrPhaseFailed},
		{"strict pass", Policy{StrictAll: true}, Summary{Total: 5, Passed: 5, PassRate: 100}, 0, true, false, ""},
		{"strict non-zero exit", Policy{StrictAll: true}, Summary{Total: 5, Passed: 5, PassRate: 100}, 2, false, false, ErrNonZeroExit},
		{"strict partial", Policy{StrictAll: true}, Summary{Total: 5, Passed: 4, PassRate: 80}, 0, false, false, ErrBelowThreshold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passed, degraded, code := Evaluate(tt.policy, tt.summary, tt.exitCode)
			if passed != tt.wantPassed || degraded != tt.wantDegraded || code != tt.wantCode {
				t.Errorf("got (%v, %v, %q), want (%v, %v, %q)",
					passed, degraded, code, tt.wantPassed, tt.wantDegraded, tt.wantCode)
			}
		})
	}
}

func TestPolicyValidate(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Errorf("default policy invalid: %v", err)
	}
	for _, r := range []float64{-0.1, 1.01} {
		if err := (Policy{MinPassRatio: r}).Validate(); err == nil {
			t.Errorf("ratio %v should be rejected", r)
		}
	}
}

func TestParseArtifact(t *testing.T) {
	good := `{"summary": {"total": 4, "passed": 3, "pass_rate": 75.0}, "phases": {"unit": {"ok": true}, "lint": {"ok": false}, "e2e": {"ok": false}}}`
	s, err := ParseArtifact([]byte(good))
	if err != nil {
		t.Fatalf("ParseArtifact: %v", err)
	}
	if s.Total != 4 || s.Passed != 3 || s.PassRate != 75 {
		t.Errorf("unexpected summary %+v", s)
	}
	if diff := cmp.Diff([]string{"e2e", "lint"}, s.FailedPhases); diff != "" {
		t.Errorf("failed phases (-want +got):\n%s", diff)
	}

	bad := []string{
		`not json`,
		`[]`,
		`{"phases": {}}`,
		`{"summary": {"total": 1, "passed": 1}, "phases": {}}`,
		`{"summary": {"total": 1, "passed": 1, "pass_rate": 100}}`,
		`{"summary": {"total": 1, "passed": 1, "pass_rate": 100}, "phases": {"unit": {}}}`,
		`{"summary": {"total": "1", "passed": 1, "pass_rate": 100}, "phases": {}}`,
	}
	for _, b := range bad {
		if _, err := ParseArtifact([]byte(b)); !errors.Is(err, errMalformed) {
			t.Errorf("artifact %s: expected malformed error, got %v", b, err)
		}
	}
}

// shellRunner returns a runner whose command is `sh -c script`.
func shellRunner(t *testing.T, script string, p Policy, timeout time.Duration) (*Runner, string) {
	t.Helper()
	artifact := filepath.Join(t.TempDir(), "out", "summary.json")
	r := NewRunner(Config{
		Command:      []string{"sh", "-c", script},
		ArtifactPath: artifact,
		Timeout:      timeout,
		Policy:       p,
	}, nil, nil)
	return r, artifact
}

const passingScript = `printf '%s' '{"summary":{"total":10,"passed":10,"pass_rate":100},"phases":{"unit":{"ok":true}}}' > "$ACTIONGATE_ARTIFACT"`

func TestRunnerPass(t *testing.T) {
	r, _ := shellRunner(t, passingScript, DefaultPolicy(), 10*time.Second)

	res := r.Run()
	if !res.Passed {
		t.Fatalf("expected pass, got %+v", res)
	}
	if res.Total != 10 || res.PassRate != 100 || res.Error != "" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.RunID == "" || res.FinishedUTC == "" {
		t.Errorf("expected run id and finish time, got %+v", res)
	}
	if res.FailedPhases == nil {
		t.Error("failed phases should be an empty slice, not nil")
	}
}

func TestRunnerStrictRejectsNonZeroExit(t *testing.T) {
	r, _ := shellRunner(t, passingScript+"; exit 3", Policy{StrictAll: true}, 10*time.Second)

	res := r.Run()
	if res.Passed {
		t.Fatal("strict mode must fail on non-zero exit")
	}
	if res.ExitCode != 3 || res.Error != ErrNonZeroExit {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestRunnerZeroTotal(t *testing.T) {
	script := `printf '%s' '{"summary":{"total":0,"passed":0,"pass_rate":100},"phases":{}}' > "$ACTIONGATE_ARTIFACT"`
	for _, p := range []Policy{DefaultPolicy(), {StrictAll: true}} {
		r, _ := shellRunner(t, script, p, 10*time.Second)
		res := r.Run()
		if res.Passed || res.Error != ErrNoChecks {
			t.Errorf("policy %+v: expected no_checks failure, got %+v", p, res)
		}
	}
}

func TestRunnerTimeout(t *testing.T) {
	r, _ := shellRunner(t, "sleep 30", DefaultPolicy(), 200*time.Millisecond)

	start := time.Now()
	res := r.Run()
	if time.Since(start) > 10*time.Second {
		t.Fatal("run was not killed on timeout")
	}
	if res.Passed || res.Error != ErrTimeout {
		t.Errorf("expected timeout failure, got %+v", res)
	}
}

func TestRunnerMissingArtifact(t *testing.T) {
	r, _ := shellRunner(t, "exit 0", DefaultPolicy(), 10*time.Second)
	if res := r.Run(); res.Passed || res.Error != ErrArtifactMissing {
		t.Errorf("expected artifact_missing, got %+v", res)
	}
}

func TestRunnerMalformedArtifact(t *testing.T) {
	r, _ := shellRunner(t, `echo '{"ok": true}' > "$ACTIONGATE_ARTIFACT"`, DefaultPolicy(), 10*time.Second)
	if res := r.Run(); res.Passed || res.Error != ErrArtifactMalformed {
		t.Errorf("expected artifact_malformed, got %+v", res)
	}
}

func TestRunnerIgnoresStaleArtifact(t *testing.T) {
	r, artifact := shellRunner(t, "exit 0", DefaultPolicy(), 10*time.Second)
	os.MkdirAll(filepath.Dir(artifact), 0755)
	stale := `{"summary":{"total":10,"passed":10,"pass_rate":100},"phases":{}}`
	if err := os.WriteFile(artifact, []byte(stale), 0644); err != nil {
		t.Fatal(err)
	}

	if res := r.Run(); res.Passed {
		t.Fatal("stale artifact from a previous run must not pass the gate")
	}
}

func TestRunnerNotConfigured(t *testing.T) {
	r := NewRunner(Config{}, nil, nil)
	if res := r.Run(); res.Passed || res.Error != ErrNotConfigured {
		t.Errorf("expected command_not_configured, got %+v", res)
	}
}

func TestRunnerExecFailed(t *testing.T) {
	r := NewRunner(Config{
		Command:      []string{filepath.Join(t.TempDir(), "no-such-binary")},
		ArtifactPath: filepath.Join(t.TempDir(), "a.json"),
	}, nil, nil)
	if res := r.Run(); res.Passed || res.Error != ErrExecFailed {
		t.Errorf("expected exec_failed, got %+v", res)
	}
}

func TestHistoryBoundedAndDurable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	h, err := OpenHistory(path)
	if err != nil {
		t.Fatalf("OpenHistory: %v", err)
	}

	for i := 0; i < HistoryLimit+15; i++ {
		if err := h.Append(Result{Total: i}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	entries := h.Entries()
	if len(entries) != HistoryLimit {
		t.Fatalf("expected %d entries, got %d", HistoryLimit, len(entries))
	}
	if entries[0].Total != 15 {
		t.Errorf("expected oldest kept entry 15, got %d", entries[0].Total)
	}

	reopened, err := OpenHistory(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	last, ok := reopened.Last()
	if !ok || last.Total != HistoryLimit+14 {
		t.Errorf("unexpected last entry %+v", last)
	}
}

func TestRunnerRecordsHistory(t *testing.T) {
	h, _ := OpenHistory(filepath.Join(t.TempDir(), "history.json"))
	artifact := filepath.Join(t.TempDir(), "summary.json")
	r := NewRunner(Config{
		Command:      []string{"sh", "-c", passingScript},
		ArtifactPath: artifact,
		Policy:       DefaultPolicy(),
	}, h, nil)

	r.Run()
	r.Run()
	if n := len(h.Entries()); n != 2 {
		t.Errorf("expected 2 history entries, got %d", n)
	}
}
