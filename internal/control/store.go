package control

import "sync"

// Store owns the single live control configuration. All mutation goes
// through Merge; handlers get the store injected rather than reaching for a
// package global.
type Store struct {
	mu       sync.RWMutex
	cfg      Config
	onChange func(Config)
}

func NewStore(initial Config) *Store {
	return &Store{cfg: initial}
}

// OnChange registers a callback invoked after every merge with the new
// value. Used to persist the configuration; must be set before the store is
// shared across goroutines.
func (s *Store) OnChange(fn func(Config)) {
	s.onChange = fn
}

// Current returns the live configuration value.
func (s *Store) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Merge applies a field-level override: each non-nil field of the update
// replaces the stored value, absent fields are kept. ManualOrientation is
// replaced as a whole, never merged per axis. Returns the new value.
func (s *Store) Merge(update ConfigUpdate) Config {
	s.mu.Lock()
	if update.ControlMode != nil {
		s.cfg.ControlMode = *update.ControlMode
	}
	if update.ManualOrientation != nil {
		s.cfg.ManualOrientation = *update.ManualOrientation
	}
	cfg := s.cfg
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(cfg)
	}
	return cfg
}
