// Package prefs holds user-tunable preferences that only the foreground agent
// can reach.
package prefs

import (
	"context"
	"fmt"
	"sync"
)

// MaxAdvanceMinutes caps the reminder lead time at one week.
const MaxAdvanceMinutes = 7 * 24 * 60

var ErrInvalidAdvance = fmt.Errorf("advance minutes must be between 0 and %d", MaxAdvanceMinutes)

func validAdvance(minutes int) bool {
	return minutes >= 0 && minutes <= MaxAdvanceMinutes
}

type Store interface {
	// AdvanceMinutes returns ok=false when the user never set a value.
	AdvanceMinutes(ctx context.Context) (minutes int, ok bool, err error)
	SetAdvanceMinutes(ctx context.Context, minutes int) error
}

// MemoryStore keeps preferences in process; used when Redis is not configured.
type MemoryStore struct {
	mu      sync.RWMutex
	advance *int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) AdvanceMinutes(ctx context.Context) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.advance == nil {
		return 0, false, nil
	}
	return *s.advance, true, nil
}

func (s *MemoryStore) SetAdvanceMinutes(ctx context.Context, minutes int) error {
	if !validAdvance(minutes) {
		return ErrInvalidAdvance
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance = &minutes
	return nil
}
