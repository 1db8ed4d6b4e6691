// Package memory records published events in memory for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/hnmirror/internal/notify"
)

// Publisher stores published events for inspection.
type Publisher struct {
	mu     sync.RWMutex
	events []notify.CycleCompleted
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the event and returns a pseudo id.
func (p *Publisher) Publish(_ context.Context, event notify.CycleCompleted) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return fmt.Sprintf("memory-%d", len(p.events)), nil
}

// Events returns a copy of the recorded events.
func (p *Publisher) Events() []notify.CycleCompleted {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]notify.CycleCompleted, len(p.events))
	copy(out, p.events)
	return out
}
