package testutil

import (
	"context"
	"sync"

	"github.com/kestrel-es/kestrel"
)

// RecordingPublisher is a kestrel.EventPublisher that keeps every batch it receives.
// When Err is set, batches are still recorded and Err is returned.
type RecordingPublisher struct {
	Err error

	mu      sync.Mutex
	batches [][]kestrel.PublishedEvent
}

var _ kestrel.EventPublisher = (*RecordingPublisher)(nil)

// Publish implements kestrel.EventPublisher.
func (p *RecordingPublisher) Publish(ctx context.Context, events []kestrel.PublishedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	batch := make([]kestrel.PublishedEvent, len(events))
	copy(batch, events)
	p.batches = append(p.batches, batch)
	return p.Err
}

// Batches returns the received batches, oldest first.
func (p *RecordingPublisher) Batches() [][]kestrel.PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]kestrel.PublishedEvent, len(p.batches))
	copy(out, p.batches)
	return out
}

// Events returns every received event, flattened in arrival order.
func (p *RecordingPublisher) Events() []kestrel.PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []kestrel.PublishedEvent
	for _, b := range p.batches {
		out = append(out, b...)
	}
	return out
}
