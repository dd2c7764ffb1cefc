// Package mock provides a scriptable llm.Handler used by loop tests,
// grounded on the teacher's mock_provider_test.go.
package mock

import (
	"context"
	"sync"

	"github.com/agentvault/runtime/internal/llm"
)

// Handler replays a fixed sequence of responses, one per Chat call. It
// also records every request it was asked to answer, so tests can assert
// on exactly what EXECUTE sent.
type Handler struct {
	mu        sync.Mutex
	responses []llm.ChatResponse
	errs      []error
	calls     []llm.ChatRequest
	next      int
}

// New creates a Handler that returns responses in order, one per call.
// Calling Chat more times than len(responses) repeats the last response.
func New(responses ...llm.ChatResponse) *Handler {
	return &Handler{responses: responses}
}

// NewErroring creates a Handler whose first Chat call returns err.
func NewErroring(err error) *Handler {
	return &Handler{errs: []error{err}}
}

// Chat implements llm.Handler.
func (h *Handler) Chat(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.calls = append(h.calls, req)
	idx := h.next
	h.next++

	if idx < len(h.errs) && h.errs[idx] != nil {
		return llm.ChatResponse{}, h.errs[idx]
	}

	if len(h.responses) == 0 {
		return llm.ChatResponse{}, nil
	}
	if idx >= len(h.responses) {
		idx = len(h.responses) - 1
	}
	return h.responses[idx], nil
}

// Calls returns every request the handler has received so far.
func (h *Handler) Calls() []llm.ChatRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]llm.ChatRequest, len(h.calls))
	copy(out, h.calls)
	return out
}

// CallCount reports how many times Chat has been invoked.
func (h *Handler) CallCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}
