package conversation

import (
	"context"
	"sync"
)

// stubLLM is a scripted LLMClient for tests. Responses are returned in
// order; the last one repeats once the script runs out.
type stubLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
	requests  []LLMRequest
}

func (s *stubLLM) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.requests = append(s.requests, req)
	if s.err != nil {
		return LLMResponse{}, s.err
	}
	if len(s.responses) == 0 {
		return LLMResponse{Text: "How did that go?"}, nil
	}
	idx := s.calls - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return LLMResponse{Text: s.responses[idx]}, nil
}

func (s *stubLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubLLM) lastRequest() LLMRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return LLMRequest{}
	}
	return s.requests[len(s.requests)-1]
}
