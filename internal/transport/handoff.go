// Package transport moves records from the frame pipeline to the network.
// Producers and the sender meet in single-slot handoffs that keep only the
// newest item, so a slow network never stalls capture.
package transport

import (
	"context"
	"sync"
	"sync/atomic"
)

// Handoff is a single-slot mailbox. Offer never blocks and replaces any item
// the consumer has not taken yet; Take blocks until an item arrives.
type Handoff[T any] struct {
	mu   sync.Mutex // serialises Offer's drain-then-put
	slot chan T

	offered atomic.Uint64
	dropped atomic.Uint64
}

// NewHandoff returns an empty handoff.
func NewHandoff[T any]() *Handoff[T] {
	return &Handoff[T]{slot: make(chan T, 1)}
}

// Offer stores v, discarding a pending item if there is one. It reports
// whether an item was discarded.
func (h *Handoff[T]) Offer(v T) (dropped bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.offered.Add(1)
	select {
	case <-h.slot:
		dropped = true
		h.dropped.Add(1)
	default:
	}
	// Only Offer sends and it holds mu, so the slot is empty here.
	h.slot <- v
	return dropped
}

// Take waits for the next item or for ctx to end.
func (h *Handoff[T]) Take(ctx context.Context) (T, error) {
	select {
	case v := <-h.slot:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Ready exposes the slot for consumers that select over several handoffs.
// A receive from it is equivalent to Take.
func (h *Handoff[T]) Ready() <-chan T {
	return h.slot
}

// Offered returns the number of Offer calls.
func (h *Handoff[T]) Offered() uint64 { return h.offered.Load() }

// Dropped returns how many items were replaced before being taken.
func (h *Handoff[T]) Dropped() uint64 { return h.dropped.Load() }
