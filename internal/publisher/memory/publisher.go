// Package memory records import outcome events in memory. It backs tests
// and deployments that leave Pub/Sub disabled.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Publisher retains every published outcome event for inspection.
type Publisher struct {
	mu       sync.RWMutex
	outcomes []OutcomeRecord
}

// OutcomeRecord captures one outcome event published by a worker.
type OutcomeRecord struct {
	Topic   string
	Payload any
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish retains the outcome event and returns a sequence-based pseudo ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes = append(p.outcomes, OutcomeRecord{Topic: topic, Payload: payload})
	return fmt.Sprintf("outcome-%d", len(p.outcomes)), nil
}

// Outcomes returns a copy of the recorded outcome events in publish order.
func (p *Publisher) Outcomes() []OutcomeRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]OutcomeRecord, len(p.outcomes))
	copy(out, p.outcomes)
	return out
}
