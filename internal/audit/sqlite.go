package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/ppiankov/actiongate/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteSink stores audit events in table audit_events.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLite database at path and migrates it.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s, err := NewSQLiteSink(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteSink wraps an open database and migrates it.
func NewSQLiteSink(db *sql.DB) (*SQLiteSink, error) {
	s := &SQLiteSink{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("audit: migrate sqlite: %w", err)
	}
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS audit_events (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT NOT NULL UNIQUE,
        ts TEXT NOT NULL,
        actor_type TEXT,
        actor_name TEXT,
        action TEXT,
        target_kind TEXT,
        target_path TEXT,
        mode TEXT,
        reason TEXT,
        risk_flags JSON,
        context JSON,
        constitution_hash TEXT
    );`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Write inserts e. Re-writing an event with a known ID is a no-op.
func (s *SQLiteSink) Write(ctx context.Context, e model.AuditEvent) error {
	query := `INSERT OR IGNORE INTO audit_events (
		id, ts, actor_type, actor_name, action, target_kind, target_path, mode, reason, risk_flags, context, constitution_hash
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	flags, err := json.Marshal(e.RiskFlags)
	if err != nil {
		return fmt.Errorf("audit: marshal risk flags: %w", err)
	}
	ctxJSON, err := json.Marshal(e.Context)
	if err != nil {
		return fmt.Errorf("audit: marshal context: %w", err)
	}

	_, err = s.db.ExecContext(ctx, query,
		e.ID, e.TimestampUTC, string(e.ActorType), e.ActorName, string(e.Action), string(e.TargetKind),
		e.TargetPath, string(e.Mode), e.Reason, string(flags), string(ctxJSON), e.ConstitutionHash,
	)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

// Recent returns the last n events, oldest first.
func (s *SQLiteSink) Recent(ctx context.Context, n int) ([]model.AuditEvent, error) {
	query := `
        SELECT id, ts, actor_type, actor_name, action, target_kind, target_path, mode, reason, risk_flags, context, constitution_hash
        FROM audit_events
        ORDER BY seq DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.AuditEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.Reverse(events)
	return events, nil
}

// Count returns the number of stored events.
func (s *SQLiteSink) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("audit: count events: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteSink) Close() error { return s.db.Close() }

func scanEvent(rows *sql.Rows) (model.AuditEvent, error) {
	var (
		e                       model.AuditEvent
		actorType, action, kind string
		mode                    string
		flagsJSON, ctxJSON      sql.NullString
	)
	if err := rows.Scan(&e.ID, &e.TimestampUTC, &actorType, &e.ActorName, &action, &kind,
		&e.TargetPath, &mode, &e.Reason, &flagsJSON, &ctxJSON, &e.ConstitutionHash); err != nil {
		return e, fmt.Errorf("audit: scan event: %w", err)
	}
	e.ActorType = model.ActorType(actorType)
	e.Action = model.ActionKind(action)
	e.TargetKind = model.ResourceKind(kind)
	e.Mode = model.Mode(mode)

	if flagsJSON.Valid && flagsJSON.String != "" {
		if err := json.Unmarshal([]byte(flagsJSON.String), &e.RiskFlags); err != nil {
			return e, fmt.Errorf("audit: decode risk flags: %w", err)
		}
	}
	if ctxJSON.Valid && ctxJSON.String != "" && ctxJSON.String != "null" {
		if err := json.Unmarshal([]byte(ctxJSON.String), &e.Context); err != nil {
			return e, fmt.Errorf("audit: decode context: %w", err)
		}
	}
	return e, nil
}
