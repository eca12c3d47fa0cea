package permission

import (
	"context"
	"sync"
)

// Static is an in-memory Authority. Prompts stay open until Resolve.
type Static struct {
	mu      sync.Mutex
	granted map[string]bool
	waiters map[string][]func(bool)
	prompts int
}

func NewStatic(granted ...string) *Static {
	s := &Static{granted: map[string]bool{}, waiters: map[string][]func(bool){}}
	for _, p := range granted {
		s.granted[p] = true
	}
	return s
}

func (s *Static) Granted(_ context.Context, perm string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.granted[perm], nil
}

func (s *Static) Prompt(_ context.Context, perm string, _ int, done func(bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts++
	s.waiters[perm] = append(s.waiters[perm], done)
	return nil
}

// Prompts reports how many prompts were raised.
func (s *Static) Prompts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompts
}

// Resolve answers every open prompt for perm and records the new state.
func (s *Static) Resolve(perm string, granted bool) {
	s.mu.Lock()
	s.granted[perm] = granted
	waiters := s.waiters[perm]
	delete(s.waiters, perm)
	s.mu.Unlock()

	for _, done := range waiters {
		done(granted)
	}
}
