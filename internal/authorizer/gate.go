package authorizer

import (
	"context"
	"slices"

	"github.com/ppiankov/actiongate/internal/gate"
)

// Gate status values.
const (
	GateNeverRun = "never_run"
	GatePassed   = "passed"
	GateFailed   = "failed"
)

const gateKey = "gate"

// GateStatus summarizes the cached gate result.
type GateStatus struct {
	Status       string   `json:"status"`
	Passed       bool     `json:"passed"`
	PassRate     float64  `json:"pass_rate"`
	FailedPhases []string `json:"failed_phases"`
	LastRunUTC   string   `json:"last_run_utc,omitempty"`
	RunID        string   `json:"run_id,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// GateStatus reports the cached gate result without running the gate.
func (a *Authorizer) GateStatus() GateStatus {
	r, ok := a.cachedGate()
	if !ok {
		return GateStatus{Status: GateNeverRun, FailedPhases: []string{}}
	}
	status := GateFailed
	if r.Passed {
		status = GatePassed
	}
	return GateStatus{
		Status:       status,
		Passed:       r.Passed,
		PassRate:     r.PassRate,
		FailedPhases: slices.Clone(r.FailedPhases),
		LastRunUTC:   r.FinishedUTC,
		RunID:        r.RunID,
		Error:        r.Error,
	}
}

// RunGate runs the gate now and caches the result. A run already in flight is
// joined instead of starting another.
func (a *Authorizer) RunGate(ctx context.Context) (gate.Result, error) {
	return a.gateResult(ctx, true)
}

func (a *Authorizer) cachedGate() (gate.Result, bool) {
	a.gateMu.RLock()
	defer a.gateMu.RUnlock()
	if a.gateCache == nil {
		return gate.Result{}, false
	}
	return *a.gateCache, true
}

// gateResult returns the cached result, or runs the gate when nothing is
// cached or force is set. At most one run is in flight; concurrent callers
// share it. If ctx ends first the caller gets ctx.Err() while the run goes on
// under the runner's own timeout and still fills the cache.
func (a *Authorizer) gateResult(ctx context.Context, force bool) (gate.Result, error) {
	if !force {
		if r, ok := a.cachedGate(); ok {
			return r, nil
		}
	}

	ch := a.gateGroup.DoChan(gateKey, func() (any, error) {
		if !force {
			if r, ok := a.cachedGate(); ok {
				return r, nil
			}
		}
		r := a.runner.Run()
		a.gateMu.Lock()
		a.gateCache = &r
		a.gateMu.Unlock()
		return r, nil
	})

	select {
	case res := <-ch:
		return res.Val.(gate.Result), nil
	case <-ctx.Done():
		return gate.Result{}, ctx.Err()
	}
}
