package gate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single validation run.
const DefaultTimeout = 300 * time.Second

// ArtifactEnv names the environment variable that tells the validation
// command where to write its summary.
const ArtifactEnv = "ACTIONGATE_ARTIFACT"

// outputTail is how much trailing command output is kept in Result.Detail.
const outputTail = 2048

// Config is the operator-supplied gate configuration. Callers of Authorize
// cannot change it.
type Config struct {
	Command      []string      `yaml:"command"`
	ArtifactPath string        `yaml:"artifact"`
	Timeout      time.Duration `yaml:"timeout"`
	HistoryPath  string        `yaml:"history"`
	Policy       `yaml:",inline"`
}

// Runner executes the validation command and judges its artifact.
type Runner struct {
	command  []string
	artifact string
	timeout  time.Duration
	policy   Policy
	history  *History
	logger   *zap.Logger
	now      func() time.Time
}

// NewRunner builds a Runner. A nil history disables the durable trail.
func NewRunner(cfg Config, history *History, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{
		command:  append([]string(nil), cfg.Command...),
		artifact: cfg.ArtifactPath,
		timeout:  timeout,
		policy:   cfg.Policy,
		history:  history,
		logger:   logger,
		now:      time.Now,
	}
}

// Policy returns the runner's evaluation policy.
func (r *Runner) Policy() Policy { return r.policy }

// Run executes the validation command once. It never panics and never
// returns an error: every failure is reported as Passed=false with Error set.
// The run is bounded by the runner's own timeout, independent of any caller;
// on timeout the process group is killed.
func (r *Runner) Run() Result {
	start := r.now()
	res := r.run()
	end := r.now()

	res.RunID = uuid.NewString()
	res.StartedUTC = start.UTC().Format(timestampFormat)
	res.FinishedUTC = end.UTC().Format(timestampFormat)
	res.DurationMs = end.Sub(start).Milliseconds()
	if res.FailedPhases == nil {
		res.FailedPhases = []string{}
	}

	if r.history != nil {
		if err := r.history.Append(res); err != nil {
			r.logger.Warn("gate history append failed", zap.Error(err))
		}
	}

	r.logger.Info("gate run finished",
		zap.String("run_id", res.RunID),
		zap.Bool("passed", res.Passed),
		zap.Float64("pass_rate", res.PassRate),
		zap.Int("total", res.Total),
		zap.Strings("failed_phases", res.FailedPhases),
		zap.String("error", res.Error),
		zap.Int64("duration_ms", res.DurationMs))
	return res
}

func (r *Runner) run() Result {
	if len(r.command) == 0 || r.artifact == "" {
		return Result{Error: ErrNotConfigured, ExitCode: -1}
	}

	artifact, err := filepath.Abs(r.artifact)
	if err != nil {
		return Result{Error: ErrExecFailed, ExitCode: -1, Detail: err.Error()}
	}
	// A stale artifact from an earlier run must never be judged.
	if err := os.Remove(artifact); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Result{Error: ErrExecFailed, ExitCode: -1, Detail: fmt.Sprintf("remove stale artifact: %v", err)}
	}
	if err := os.MkdirAll(filepath.Dir(artifact), 0755); err != nil {
		return Result{Error: ErrExecFailed, ExitCode: -1, Detail: fmt.Sprintf("create artifact directory: %v", err)}
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	r.logger.Debug("gate run starting", zap.Strings("command", r.command), zap.Duration("timeout", r.timeout))

	cmd := exec.CommandContext(ctx, r.command[0], r.command[1:]...)
	cmd.Env = append(os.Environ(), ArtifactEnv+"="+artifact)
	cmd.WaitDelay = 2 * time.Second
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	setProcessGroup(cmd)

	exitCode := 0
	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return Result{Error: ErrTimeout, ExitCode: -1, Detail: tail(out.Bytes())}
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return Result{Error: ErrExecFailed, ExitCode: -1, Detail: runErr.Error()}
		}
		exitCode = exitErr.ExitCode()
	}

	data, err := os.ReadFile(artifact)
	if err != nil {
		return Result{Error: ErrArtifactMissing, ExitCode: exitCode, Detail: tail(out.Bytes())}
	}
	summary, err := ParseArtifact(data)
	if err != nil {
		return Result{Error: ErrArtifactMalformed, ExitCode: exitCode, Detail: err.Error()}
	}

	passed, degraded, code := Evaluate(r.policy, summary, exitCode)
	return Result{
		Passed:       passed,
		Degraded:     degraded,
		PassRate:     summary.PassRate,
		Total:        summary.Total,
		PassedChecks: summary.Passed,
		FailedPhases: summary.FailedPhases,
		ExitCode:     exitCode,
		Error:        code,
	}
}

func tail(b []byte) string {
	if len(b) > outputTail {
		b = b[len(b)-outputTail:]
	}
	return string(bytes.TrimSpace(b))
}
