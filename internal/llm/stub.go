package llm

import (
	"context"
	"errors"
	"sync"
)

// Stub is a scripted Client for tests and dry runs. Replies are consumed in order; once the
// script is exhausted the last reply repeats.
type Stub struct {
	mu       sync.Mutex
	replies  []StubReply
	requests []Request
}

// StubReply is one scripted answer.
type StubReply struct {
	Text string
	Err  error
}

// NewStub builds a Stub answering with the given texts in order.
func NewStub(texts ...string) *Stub {
	s := &Stub{}
	for _, t := range texts {
		s.replies = append(s.replies, StubReply{Text: t})
	}
	return s
}

// Push appends a scripted reply.
func (s *Stub) Push(r StubReply) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, r)
	return s
}

func (s *Stub) Invoke(_ context.Context, req Request) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return Response{}, errors.New("llm stub: no scripted reply")
	}
	idx := len(s.requests) - 1
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	r := s.replies[idx]
	if r.Err != nil {
		return Response{}, r.Err
	}
	return Response{Model: req.Model, Parts: []Part{TextPart(r.Text)}}, nil
}

// Requests returns a copy of every request seen so far.
func (s *Stub) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}
