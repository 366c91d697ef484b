package audit

import (
	"context"

	"github.com/ppiankov/actiongate/internal/model"
)

// Sink consumes audit events after a decision is made. A Write error is
// reported to the caller, who logs it; it never changes the decision.
type Sink interface {
	Write(ctx context.Context, e model.AuditEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e model.AuditEvent) error

// Write calls f.
func (f SinkFunc) Write(ctx context.Context, e model.AuditEvent) error { return f(ctx, e) }
