// Package authorizer decides whether an actor may perform an action on a
// resource. Every decision is recorded, including denials and holds.
package authorizer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ppiankov/actiongate/internal/approval"
	"github.com/ppiankov/actiongate/internal/audit"
	"github.com/ppiankov/actiongate/internal/constitution"
	"github.com/ppiankov/actiongate/internal/gate"
	"github.com/ppiankov/actiongate/internal/model"
	"github.com/ppiankov/actiongate/internal/policy"
)

// Decision reasons.
const (
	ReasonReversible           = "action_is_reversible"
	ReasonProtectedPath        = "protected path — only privileged agent may modify"
	ReasonOverrideRequired     = "protected path — explicit override action required"
	ReasonPrivilegedOnly       = "action is privileged-agent-only"
	ReasonGateFailed           = "gate failed"
	ReasonGatePassed           = "privileged_actor_with_gate_passed"
	ReasonConstitutionalPrefix = "CONSTITUTIONAL_VIOLATION: missing "
)

// Metadata keys set on decisions.
const (
	MetaGatePassed      = "gate_passed"
	MetaGateError       = "gate_error"
	MetaGateRunID       = "gate_run_id"
	MetaGatePassRate    = "gate_pass_rate"
	MetaGateDegraded    = "gate_degraded"
	MetaProtectedReason = "protected_reason"
	MetaRiskLevel       = "risk_level"
	MetaRequires        = "requires"
	MetaHoldKey         = "hold_key"
)

// GateErrWaitCancelled is the gate_error of a decision whose caller stopped
// waiting for an in-flight gate run.
const GateErrWaitCancelled = "wait_cancelled"

// GateRunner runs the validation gate once.
type GateRunner interface {
	Run() gate.Result
}

// GateRunnerFunc adapts a function to GateRunner.
type GateRunnerFunc func() gate.Result

// Run calls f.
func (f GateRunnerFunc) Run() gate.Result { return f() }

// Request is one authorization request.
type Request struct {
	Actor          model.Actor
	Action         model.ActionKind
	Target         model.Resource
	Context        map[string]string
	ForceGateRerun bool

	// pinned, when set, is used instead of the gate cache.
	pinned *gateOutcome
}

// gateOutcome is the result of one gate wait.
type gateOutcome struct {
	res gate.Result
	err error
}

// Options wires an Authorizer. Constitution is required; a nil Gate holds
// every gate-requiring action; a nil Log gets a default-capacity ring.
type Options struct {
	Constitution *constitution.Store
	Gate         GateRunner
	Log          *audit.Log
	Sinks        []audit.Sink
	Holds        *approval.Store
	Logger       *zap.Logger
}

// Authorizer is safe for concurrent use.
type Authorizer struct {
	constitution *constitution.Store
	runner       GateRunner
	log          *audit.Log
	sinks        []audit.Sink
	holds        *approval.Store
	logger       *zap.Logger
	now          func() time.Time

	gateMu    sync.RWMutex
	gateCache *gate.Result
	gateGroup singleflight.Group
}

// New builds an Authorizer.
func New(opts Options) (*Authorizer, error) {
	if opts.Constitution == nil {
		return nil, fmt.Errorf("authorizer: constitution store is required")
	}
	a := &Authorizer{
		constitution: opts.Constitution,
		runner:       opts.Gate,
		log:          opts.Log,
		sinks:        opts.Sinks,
		holds:        opts.Holds,
		logger:       opts.Logger,
		now:          time.Now,
	}
	if a.runner == nil {
		a.runner = GateRunnerFunc(func() gate.Result {
			return gate.Result{Error: gate.ErrNotConfigured, ExitCode: -1, FailedPhases: []string{}}
		})
	}
	if a.log == nil {
		a.log = audit.NewLog(audit.DefaultCapacity)
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	return a, nil
}

// Log returns the in-memory audit log.
func (a *Authorizer) Log() *audit.Log { return a.log }

// SaveAuditLog appends the events not yet written to path.
func (a *Authorizer) SaveAuditLog(path string) error {
	return a.log.Flush(path)
}

// Authorize decides req. It never returns an error and never panics on
// request data; every failure is a Deny or Hold decision. ctx bounds only the
// wait for a gate run.
func (a *Authorizer) Authorize(ctx context.Context, req Request) model.Decision {
	c := a.constitution.Current()
	flags := policy.RiskFlags(req.Action, req.Target, req.Context)

	d := a.decide(ctx, c, req)
	if d.Mode == model.Deny && strings.HasPrefix(d.Reason, ReasonConstitutionalPrefix) {
		flags = append(flags, model.RiskConstitutionalViolation)
	}

	d.AuditEvent = model.NewAuditEvent(model.EventInput{
		Actor:            req.Actor,
		Action:           req.Action,
		Target:           req.Target,
		Mode:             d.Mode,
		Reason:           d.Reason,
		RiskFlags:        flags,
		Context:          req.Context,
		ConstitutionHash: c.Hash(),
		At:               a.now(),
	})
	if d.Mode == model.Hold && a.holds != nil {
		d.Metadata[MetaHoldKey] = d.AuditEvent.ID
	}

	a.record(ctx, d)
	return d
}

func (a *Authorizer) decide(ctx context.Context, c *constitution.Constitution, req Request) model.Decision {
	if v := c.Validate(); !v.Valid {
		return withMeta(model.NewDecision(model.Deny, ReasonConstitutionalPrefix+strings.Join(v.Missing, ", "), v.Missing...))
	}

	if err := model.ValidateRequest(req.Actor, req.Action, req.Target); err != nil {
		return withMeta(model.NewDecision(model.Deny, err.Error()))
	}

	if !req.Action.Irreversible() {
		return withMeta(model.NewDecision(model.Allow, ReasonReversible))
	}

	meta := map[string]string{}
	if reqs := c.RequirementsFor(string(req.Action)); reqs.Declared {
		if reqs.RiskLevel != "" {
			meta[MetaRiskLevel] = reqs.RiskLevel
		}
		if len(reqs.Requires) > 0 {
			meta[MetaRequires] = strings.Join(reqs.Requires, ",")
		}
	}

	privileged := req.Actor.Privileged()

	if p, ok := policy.MatchProtected(req.Target.Path); ok {
		if !privileged {
			meta[MetaProtectedReason] = p.Reason
			return hold(ReasonProtectedPath, meta, model.ActionRequestHumanReview)
		}
		if !policy.IsOverride(req.Action) {
			meta[MetaProtectedReason] = p.Reason
			return hold(ReasonOverrideRequired, meta, model.ActionRequestHumanReview)
		}
	}

	if policy.IsPrivilegedOnly(req.Action) && !privileged {
		return hold(ReasonPrivilegedOnly, meta, model.ActionRequestPrivilegedAgent)
	}

	if policy.RequiresGate(req.Action) {
		var res gate.Result
		var err error
		if req.pinned != nil {
			res, err = req.pinned.res, req.pinned.err
		} else {
			res, err = a.gateResult(ctx, req.ForceGateRerun)
		}
		if err != nil {
			meta[MetaGatePassed] = "false"
			meta[MetaGateError] = GateErrWaitCancelled
			return hold(ReasonGateFailed, meta, model.ActionRerunGate)
		}
		meta[MetaGateRunID] = res.RunID
		meta[MetaGatePassRate] = fmt.Sprintf("%.2f", res.PassRate)
		if !res.Passed {
			meta[MetaGatePassed] = "false"
			meta[MetaGateError] = res.Error
			return hold(ReasonGateFailed, meta, model.ActionRerunGate)
		}
		if res.Degraded {
			meta[MetaGateDegraded] = "true"
		}
	}

	meta[MetaGatePassed] = "true"
	d := model.NewDecision(model.Allow, ReasonGatePassed)
	d.Metadata = meta
	return d
}

func hold(reason string, meta map[string]string, required ...string) model.Decision {
	d := model.NewDecision(model.Hold, reason, required...)
	d.Metadata = meta
	return d
}

func withMeta(d model.Decision) model.Decision {
	d.Metadata = map[string]string{}
	return d
}

// record appends the event to the ring, hands it to every sink, and files a
// review ticket for holds. Sink failures are logged and never change d.
func (a *Authorizer) record(ctx context.Context, d model.Decision) {
	e := d.AuditEvent
	a.log.Append(e)

	// Sinks must record the decision even if the caller has gone away.
	sinkCtx := context.WithoutCancel(ctx)
	for _, s := range a.sinks {
		if err := s.Write(sinkCtx, e); err != nil {
			a.logger.Warn("audit sink write failed",
				zap.String("event_id", e.ID),
				zap.String("sink", fmt.Sprintf("%T", s)),
				zap.Error(err))
		}
	}

	if d.Mode == model.Hold && a.holds != nil {
		err := a.holds.Request(approval.Ticket{
			Key:             e.ID,
			Reason:          d.Reason,
			Actor:           e.ActorName,
			Action:          string(e.Action),
			Resource:        e.TargetPath,
			RequiredActions: d.RequiredActions,
		})
		if err != nil {
			a.logger.Warn("hold ticket not filed", zap.String("event_id", e.ID), zap.Error(err))
		}
	}

	a.logger.Debug("authorization decided",
		zap.String("event_id", e.ID),
		zap.String("actor", e.ActorName),
		zap.String("actor_type", string(e.ActorType)),
		zap.String("action", string(e.Action)),
		zap.String("target", e.TargetPath),
		zap.String("mode", string(d.Mode)),
		zap.String("reason", d.Reason),
		zap.Strings("risk_flags", e.RiskFlags))
}
