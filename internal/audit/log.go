// Package audit records authorization decisions: a bounded in-memory Log,
// durable flushes of it, and pluggable sinks that consume each event.
package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ppiankov/actiongate/internal/model"
)

// DefaultCapacity is the ring size used when none is configured.
const DefaultCapacity = 1000

type slot struct {
	seq   uint64
	event model.AuditEvent
}

// Log is an in-memory ring buffer of audit events. Once full, the oldest
// event is dropped on every Append.
//
// Flush writes the events appended since the last successful flush to the
// same path, so repeated flushes never duplicate an event on disk.
type Log struct {
	mu    sync.Mutex
	ring  []slot
	start int
	size  int
	seq   uint64

	flushMu sync.Mutex
	flushed map[string]uint64
}

// NewLog returns a Log holding at most capacity events.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		ring:    make([]slot, capacity),
		flushed: map[string]uint64{},
	}
}

// Append adds e, evicting the oldest event when the ring is full.
func (l *Log) Append(e model.AuditEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	s := slot{seq: l.seq, event: e}
	if l.size < len(l.ring) {
		l.ring[(l.start+l.size)%len(l.ring)] = s
		l.size++
		return
	}
	l.ring[l.start] = s
	l.start = (l.start + 1) % len(l.ring)
}

// Entries returns the buffered events, oldest first.
func (l *Log) Entries() []model.AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.AuditEvent, 0, l.size)
	for i := 0; i < l.size; i++ {
		out = append(out, l.ring[(l.start+i)%len(l.ring)].event)
	}
	return out
}

// Len returns the number of buffered events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Cap returns the ring capacity.
func (l *Log) Cap() int { return len(l.ring) }

// since returns buffered events with a sequence number above after, plus the
// highest sequence number seen.
func (l *Log) since(after uint64) ([]model.AuditEvent, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []model.AuditEvent
	high := after
	for i := 0; i < l.size; i++ {
		s := l.ring[(l.start+i)%len(l.ring)]
		if s.seq > after {
			out = append(out, s.event)
			high = s.seq
		}
	}
	return out, high
}

// Flush appends to path, as JSON lines, every buffered event not yet flushed
// there. The existing file content and the new lines are written to a temp
// file which is synced and renamed over path. Events appended while a flush is
// in progress are picked up by the next one. Failures are returned and not
// retried; the next Flush retries the same events.
func (l *Log) Flush(path string) error {
	if path == "" {
		return errors.New("audit: flush: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("audit: flush: %w", err)
	}

	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	events, high := l.since(l.flushed[abs])
	if len(events) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("audit: flush: marshal event %s: %w", e.ID, err)
		}
	}

	if err := appendAtomic(abs, buf.Bytes()); err != nil {
		return err
	}
	l.flushed[abs] = high
	return nil
}

func appendAtomic(path string, tail []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("audit: flush: create directory: %w", err)
	}

	// The rewritten file keeps the mode of the one it replaces.
	mode := os.FileMode(0644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("audit: flush: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := copyExisting(tmp, path); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(tail); err != nil {
		tmp.Close()
		return fmt.Errorf("audit: flush: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("audit: flush: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("audit: flush: close: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("audit: flush: chmod: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("audit: flush: rename: %w", err)
	}
	return nil
}

// copyExisting copies path into w. A missing file copies nothing. A file that
// does not end in a newline, such as one cut short by a crash, is terminated
// so the next line starts cleanly.
func copyExisting(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("audit: flush: open existing: %w", err)
	}
	defer f.Close()

	var last [1]byte
	n, err := io.Copy(io.MultiWriter(w, lastByte(last[:])), f)
	if err != nil {
		return fmt.Errorf("audit: flush: copy existing: %w", err)
	}
	if n > 0 && last[0] != '\n' {
		if _, err := w.Write([]byte{'\n'}); err != nil {
			return fmt.Errorf("audit: flush: write: %w", err)
		}
	}
	return nil
}

// lastByte is a writer that remembers the final byte written to it.
type lastByte []byte

func (b lastByte) Write(p []byte) (int, error) {
	if len(p) > 0 {
		b[0] = p[len(p)-1]
	}
	return len(p), nil
}
