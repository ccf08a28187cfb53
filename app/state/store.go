// Package state implements a crash-safe load/save pattern for small
// JSON records persisted as single files. A store memoizes its value
// after the first load and recovers from corrupt files by moving them
// aside and resetting to a default value.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// Store holds one serializable record of type T backed by one file.
// All reads and mutations serialize through a single lock, and every
// mutation is persisted synchronously before it returns, so a
// subsequent Load always observes the previous Update. Concurrent
// multi-process access to the same file is not guarded.
type Store[T any] struct {
	path       string
	defaultVal func() T

	mu      sync.Mutex
	loaded  bool
	current T
}

func NewStore[T any](path string, defaultVal func() T) *Store[T] {
	return &Store[T]{path: path, defaultVal: defaultVal}
}

// Load returns the current value, reading the backing file at most
// once per process lifetime. An unreadable or undecodable file never
// fails the call: the corrupt file is renamed to a .bak suffix, the
// value resets to the default and the default is written back.
func (s *Store[T]) Load() (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Update applies mutate to the current value and persists the result
// before returning. The read-modify-write is atomic with respect to
// concurrent callers.
func (s *Store[T]) Update(mutate func(T) T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.loadLocked()
	if err != nil {
		return err
	}

	s.current = mutate(current)
	return s.persistLocked()
}

// Replace unconditionally swaps in value and persists it, for callers
// that already computed the full next state.
func (s *Store[T]) Replace(value T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = value
	s.loaded = true
	return s.persistLocked()
}

func (s *Store[T]) loadLocked() (T, error) {
	if s.loaded {
		return s.current, nil
	}

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Debug("State file does not exist yet, starting fresh", "path", s.path)
		s.current = s.defaultVal()
	case err != nil:
		var zero T
		return zero, fmt.Errorf("failed to read state file %s: %w", s.path, err)
	default:
		var decoded T
		if unmarshalErr := json.Unmarshal(data, &decoded); unmarshalErr == nil {
			s.current = decoded
			s.loaded = true
			return s.current, nil
		} else {
			slog.Warn("State file is corrupt, resetting to default", "path", s.path, "error", unmarshalErr)
			if renameErr := os.Rename(s.path, s.path+".bak"); renameErr != nil {
				slog.Warn("Failed to back up corrupt state file", "path", s.path, "error", renameErr)
			}
			s.current = s.defaultVal()
		}
	}

	s.loaded = true
	if err := s.persistLocked(); err != nil {
		return s.current, err
	}
	return s.current, nil
}

func (s *Store[T]) persistLocked() error {
	data, err := json.Marshal(s.current)
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", s.path, err)
	}
	return nil
}
