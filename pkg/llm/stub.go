package llm

import (
	"context"
	"sync"
)

// StubGenerator replays canned responses in order. It stands in for a real
// model in tests and dry runs.
type StubGenerator struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	// Prompts records every prompt received, for assertions.
	Prompts []string
	next    int
}

// Generate returns the next canned response, or Err when set.
func (s *StubGenerator) Generate(_ context.Context, _, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Prompts = append(s.Prompts, prompt)
	if s.Err != nil {
		return "", s.Err
	}
	if s.next >= len(s.Responses) {
		return "", ErrEmptyResponse
	}
	resp := s.Responses[s.next]
	s.next++
	return resp, nil
}
