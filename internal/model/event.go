package model

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// TimestampFormat is the UTC millisecond layout used for every recorded timestamp.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// AuditEvent is the immutable record of one authorization decision.
// Construct it with NewAuditEvent; the constructor copies every map and slice
// so later changes to the request cannot leak into the record.
type AuditEvent struct {
	ID               string            `json:"id"`
	ActorType        ActorType         `json:"actor_type"`
	ActorName        string            `json:"actor_name"`
	Action           ActionKind        `json:"action"`
	TargetKind       ResourceKind      `json:"target_kind"`
	TargetPath       string            `json:"target_path"`
	Mode             Mode              `json:"mode"`
	Reason           string            `json:"reason"`
	RiskFlags        []string          `json:"risk_flags"`
	Context          map[string]string `json:"context,omitempty"`
	TimestampUTC     string            `json:"ts"`
	ConstitutionHash string            `json:"constitution_hash"`
}

// EventInput carries the parts of a request recorded in an AuditEvent.
type EventInput struct {
	Actor            Actor
	Action           ActionKind
	Target           Resource
	Mode             Mode
	Reason           string
	RiskFlags        []RiskFlag
	Context          map[string]string
	ConstitutionHash string
	At               time.Time
}

// NewAuditEvent builds an AuditEvent with a fresh ID.
// A zero At is replaced by the current time.
func NewAuditEvent(in EventInput) AuditEvent {
	at := in.At
	if at.IsZero() {
		at = time.Now()
	}

	flags := make([]string, 0, len(in.RiskFlags))
	for _, f := range in.RiskFlags {
		flags = append(flags, string(f))
	}
	slices.Sort(flags)
	flags = slices.Compact(flags)

	var ctx map[string]string
	if len(in.Context) > 0 {
		ctx = maps.Clone(in.Context)
	}

	return AuditEvent{
		ID:               uuid.NewString(),
		ActorType:        in.Actor.Type,
		ActorName:        in.Actor.Name,
		Action:           in.Action,
		TargetKind:       in.Target.Kind,
		TargetPath:       in.Target.Path,
		Mode:             in.Mode,
		Reason:           in.Reason,
		RiskFlags:        flags,
		Context:          ctx,
		TimestampUTC:     at.UTC().Format(TimestampFormat),
		ConstitutionHash: in.ConstitutionHash,
	}
}

// HasRisk reports whether the event carries flag f.
func (e AuditEvent) HasRisk(f RiskFlag) bool {
	return slices.Contains(e.RiskFlags, string(f))
}
