// Package gate provides bounded, FIFO admission control for outbound work.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/hnmirror/internal/metrics"
)

// ErrQueueFull is returned when a gate with a bounded queue cannot accept another waiter.
var ErrQueueFull = errors.New("gate queue full")

// Gate admits up to a fixed number of concurrent operations. Excess callers wait in arrival order.
type Gate struct {
	name     string
	maxQueue int64
	sem      *semaphore.Weighted
	inFlight atomic.Int64
	waiting  atomic.Int64
}

// New builds a gate. queueDepth <= 0 means the wait queue is unbounded.
func New(name string, capacity, queueDepth int) (*Gate, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("gate %s: capacity must be > 0", name)
	}
	return &Gate{
		name:     name,
		maxQueue: int64(max(queueDepth, 0)),
		sem:      semaphore.NewWeighted(int64(capacity)),
	}, nil
}

// Name returns the gate label.
func (g *Gate) Name() string { return g.name }

// InFlight returns the number of operations currently admitted.
func (g *Gate) InFlight() int64 { return g.inFlight.Load() }

// Waiting returns the number of callers queued for admission.
func (g *Gate) Waiting() int64 { return g.waiting.Load() }

// Do runs fn once admitted and releases the slot when fn returns.
func (g *Gate) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := g.acquire(ctx); err != nil {
		return err
	}
	defer g.release()
	return fn(ctx)
}

func (g *Gate) acquire(ctx context.Context) error {
	if g.sem.TryAcquire(1) {
		g.admitted()
		return nil
	}
	if n := g.waiting.Add(1); g.maxQueue > 0 && n > g.maxQueue {
		g.waiting.Add(-1)
		return fmt.Errorf("gate %s: %w", g.name, ErrQueueFull)
	}
	metrics.SetGateWaiting(g.name, g.waiting.Load())
	err := g.sem.Acquire(ctx, 1)
	metrics.SetGateWaiting(g.name, g.waiting.Add(-1))
	if err != nil {
		return fmt.Errorf("gate %s: %w", g.name, err)
	}
	g.admitted()
	return nil
}

func (g *Gate) admitted() {
	metrics.SetGateInFlight(g.name, g.inFlight.Add(1))
}

func (g *Gate) release() {
	metrics.SetGateInFlight(g.name, g.inFlight.Add(-1))
	g.sem.Release(1)
}

// Run is Do for operations that produce a value.
func Run[T any](ctx context.Context, g *Gate, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := g.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
