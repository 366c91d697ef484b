package alert

import (
	"context"
	"errors"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/ppiankov/actiongate/internal/model"
)

// Dispatcher fans out alert events to matching webhook configurations.
// It satisfies audit.Sink.
type Dispatcher struct {
	configs []AlertConfig
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("alert: dispatcher closed")

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty (callers should nil-check).
func NewDispatcher(configs []AlertConfig, logger *zap.Logger) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{configs: configs, logger: logger}
}

// Write dispatches e without blocking the caller.
func (d *Dispatcher) Write(ctx context.Context, e model.AuditEvent) error {
	if !d.Dispatch(context.WithoutCancel(ctx), FromAudit(e)) {
		return ErrClosed
	}
	return nil
}

// Dispatch sends the event to all webhooks whose Events list matches the
// event's mode or one of its risk flags. Sends run in the background; failures
// are logged. It reports false, sending nothing, once Close has been called.
func (d *Dispatcher) Dispatch(ctx context.Context, event AlertEvent) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	for _, cfg := range d.configs {
		if !matches(cfg.Events, event) {
			continue
		}
		d.wg.Add(1)
		go func(cfg AlertConfig) {
			defer d.wg.Done()
			if err := Send(ctx, cfg, event); err != nil {
				d.logger.Warn("alert webhook failed",
					zap.String("url", cfg.URL),
					zap.String("event_id", event.EventID),
					zap.Error(err))
			}
		}(cfg)
	}
	return true
}

// Close stops accepting events and waits for in-flight sends.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
	return nil
}

func matches(events []string, event AlertEvent) bool {
	for _, e := range events {
		if e == event.Mode || slices.Contains(event.RiskFlags, e) {
			return true
		}
	}
	return false
}
