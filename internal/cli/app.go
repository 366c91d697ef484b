package cli

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/actiongate/internal/alert"
	"github.com/ppiankov/actiongate/internal/approval"
	"github.com/ppiankov/actiongate/internal/audit"
	"github.com/ppiankov/actiongate/internal/authorizer"
	"github.com/ppiankov/actiongate/internal/config"
	"github.com/ppiankov/actiongate/internal/constitution"
	"github.com/ppiankov/actiongate/internal/gate"
)

// app is one process's wiring of the authorizer and its sinks.
type app struct {
	cfg          *config.Config
	constitution *constitution.Store
	runner       *gate.Runner
	holds        *approval.Store
	authz        *authorizer.Authorizer

	closers []func() error
}

// openApp builds the authorizer from c. A missing or invalid constitution is
// not an error: the store stays usable and every decision is denied.
func openApp(c *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: c}

	store, err := constitution.OpenStore(c.Constitution, logger)
	if err != nil {
		logger.Warn("constitution not loaded, denying every request",
			zap.String("path", c.Constitution), zap.Error(err))
	}
	a.constitution = store

	var history *gate.History
	if c.Gate.HistoryPath != "" {
		history, err = gate.OpenHistory(c.Gate.HistoryPath)
		if err != nil {
			return nil, err
		}
	}
	a.runner = gate.NewRunner(c.Gate, history, logger)

	var sinks []audit.Sink
	if c.Audit.ChainLog != "" {
		chain, err := audit.OpenChain(c.Audit.ChainLog)
		if err != nil {
			a.Close()
			return nil, err
		}
		sinks = append(sinks, chain)
		a.closers = append(a.closers, chain.Close)
	}
	if c.Audit.SQLite != "" {
		db, err := audit.OpenSQLite(c.Audit.SQLite)
		if err != nil {
			a.Close()
			return nil, err
		}
		sinks = append(sinks, db)
		a.closers = append(a.closers, db.Close)
	}
	if d := alert.NewDispatcher(c.Alerts, logger); d != nil {
		sinks = append(sinks, d)
		a.closers = append(a.closers, d.Close)
	}

	if c.HoldsDir != "" {
		a.holds, err = approval.NewStore(c.HoldsDir)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.authz, err = authorizer.New(authorizer.Options{
		Constitution: store,
		Gate:         a.runner,
		Log:          audit.NewLog(c.Audit.Capacity),
		Sinks:        sinks,
		Holds:        a.holds,
		Logger:       logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close flushes the in-memory log to audit.flush_path and closes every sink.
func (a *app) Close() error {
	var errs []error
	if a.authz != nil && a.cfg.Audit.FlushPath != "" && a.authz.Log().Len() > 0 {
		if err := a.authz.SaveAuditLog(a.cfg.Audit.FlushPath); err != nil {
			errs = append(errs, fmt.Errorf("flush audit log: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// holdsStore opens the configured hold ticket store, or the default one.
func holdsStore() (*approval.Store, error) {
	dir := approval.DefaultDir()
	if cfg != nil && cfg.HoldsDir != "" {
		dir = cfg.HoldsDir
	}
	store, err := approval.NewStore(dir)
	if err != nil {
		return nil, fmt.Errorf("open hold store: %w", err)
	}
	return store, nil
}

// watchConstitution reloads the manifest on change until ctx is done.
// Without a watcher the loaded manifest stays in force.
func (a *app) watchConstitution(ctx context.Context, logger *zap.Logger) {
	w, err := constitution.NewWatcher(a.constitution, logger)
	if err != nil {
		logger.Warn("constitution hot-reload disabled", zap.Error(err))
		return
	}
	go w.Run(ctx)
}
