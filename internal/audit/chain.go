package audit

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ppiankov/actiongate/internal/model"
)

// GenesisHash is the prev_hash for the first record in a new chain log.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// ChainRecord is one line of a chain log: the event plus the hash of the
// previous line.
type ChainRecord struct {
	model.AuditEvent
	PrevHash string `json:"prev_hash"`
}

// ChainSink is an append-only JSONL log with SHA-256 hash chaining.
// Each record's prev_hash is the hash of the previous JSON line, so any edit,
// deletion or insertion breaks the chain.
type ChainSink struct {
	path     string
	file     *os.File
	prevHash string
	mu       sync.Mutex
}

// OpenChain opens (or creates) a chain log for appending.
// If the file already exists, its last line is read to recover the chain tail.
func OpenChain(path string) (*ChainSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	prevHash := GenesisHash
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		last, err := lastLine(path)
		if err != nil {
			return nil, err
		}
		if len(last) > 0 {
			prevHash = HashLine(last)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}

	return &ChainSink{
		path:     path,
		file:     file,
		prevHash: prevHash,
	}, nil
}

func lastLine(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: read existing log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	var last []byte
	for scanner.Scan() {
		last = append(last[:0], scanner.Bytes()...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan existing log: %w", err)
	}
	return last, nil
}

// Path returns the log file path.
func (s *ChainSink) Path() string { return s.path }

// Write appends e with hash chaining and syncs to disk.
func (s *ChainSink) Write(_ context.Context, e model.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(ChainRecord{AuditEvent: e, PrevHash: s.prevHash})
	if err != nil {
		return fmt.Errorf("audit: marshal record: %w", err)
	}

	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: write record: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}

	s.prevHash = HashLine(line)
	return nil
}

// Close closes the underlying file.
func (s *ChainSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// HashLine returns "sha256:<hex>" of the given bytes.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}
