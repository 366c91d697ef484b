package constitution

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Store holds the current Constitution behind an atomic pointer. Readers
// always see a complete snapshot; Reload swaps the whole value.
type Store struct {
	path    string
	current atomic.Pointer[Constitution]
	logger  *zap.Logger
}

// NewStore wraps an already-loaded constitution. Reload re-reads c.Path().
func NewStore(c *Constitution, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{path: c.Path(), logger: logger}
	s.current.Store(c)
	return s
}

// OpenStore loads the manifest at path. The returned Store is always usable;
// a non-nil error means the current constitution is unloaded and every
// authorization will deny until a reload succeeds.
func OpenStore(path string, logger *zap.Logger) (*Store, error) {
	c, err := Load(path)
	s := NewStore(c, logger)
	s.path = path
	return s, err
}

// Current returns the active constitution.
func (s *Store) Current() *Constitution {
	return s.current.Load()
}

// Path returns the manifest path the store reloads from.
func (s *Store) Path() string { return s.path }

// Reload re-reads the manifest and swaps it in. A manifest that fails to load
// is swapped in as well, so a corrupted file fails closed.
func (s *Store) Reload() error {
	c, err := Load(s.path)
	prev := s.current.Swap(c)

	if err != nil {
		s.logger.Error("constitution reload failed, denying until fixed",
			zap.String("path", s.path), zap.Error(err))
		return err
	}

	v := c.Validate()
	s.logger.Info("constitution reloaded",
		zap.String("path", s.path),
		zap.String("hash", c.Hash()),
		zap.String("previous_hash", prev.Hash()),
		zap.Bool("valid", v.Valid),
		zap.Strings("missing", v.Missing))
	return nil
}
