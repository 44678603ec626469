package chat

import (
	"context"
	"sync"
)

// scriptedProvider returns queued answers in order and records requests.
type scriptedProvider struct {
	mu       sync.Mutex
	answers  []string
	err      error
	requests []Request
}

func (p *scriptedProvider) Chat(_ context.Context, req Request) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return Result{}, p.err
	}
	if len(p.answers) == 0 {
		return Result{Message: Message{Role: RoleAssistant}}, nil
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	return Result{Message: Message{Role: RoleAssistant, Content: answer}}, nil
}
