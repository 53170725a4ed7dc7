package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Reply produces a scripted response for a request.
type Reply func(req Request) (string, error)

// Text returns a Reply that always answers text.
func Text(text string) Reply {
	return func(Request) (string, error) { return text, nil }
}

// Fail returns a Reply that always fails with err.
func Fail(err error) Reply {
	return func(Request) (string, error) { return "", err }
}

// Scripted is a deterministic Generator keyed by Request.Tag. It records
// every request it receives.
type Scripted struct {
	mu       sync.Mutex
	replies  map[string]Reply
	fallback Reply
	requests []Request
}

// NewScripted returns a generator with the given per-tag replies. Unknown
// tags fail unless a fallback is set.
func NewScripted(replies map[string]Reply) *Scripted {
	s := &Scripted{replies: make(map[string]Reply, len(replies))}
	for tag, reply := range replies {
		s.replies[tag] = reply
	}
	return s
}

// WithFallback sets the reply used for unknown tags.
func (s *Scripted) WithFallback(reply Reply) *Scripted {
	s.mu.Lock()
	s.fallback = reply
	s.mu.Unlock()
	return s
}

// Model implements Generator.
func (s *Scripted) Model() string {
	return "scripted"
}

// Generate implements Generator.
func (s *Scripted) Generate(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	reply, ok := s.replies[req.Tag]
	if !ok {
		reply = s.fallback
	}
	s.mu.Unlock()

	if reply == nil {
		return Response{}, fmt.Errorf("no scripted reply for %q", req.Tag)
	}
	started := time.Now()
	text, err := reply(req)
	if err != nil {
		return Response{}, err
	}
	return Response{Text: text, Model: s.Model(), Latency: time.Since(started)}, nil
}

// Requests returns a copy of the requests seen so far.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Tags returns the tags of the requests seen so far, in order.
func (s *Scripted) Tags() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := make([]string, len(s.requests))
	for i, r := range s.requests {
		tags[i] = r.Tag
	}
	return tags
}
