// Package notify provides the coalescing change-notification primitive
// shared by all client connections.
package notify

import (
	"context"
	"sync"
)

// Signal is a single-slot, level-triggered change flag. Set never blocks;
// a change raised while nobody waits is delivered on the next Wait, and
// rapid successive changes coalesce into one delivery.
type Signal struct {
	ch chan struct{}
}

func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Set raises the flag. Idempotent while the flag is already raised.
func (s *Signal) Set() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until the flag is raised, then clears it.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Hub fans one change event out to every subscriber's Signal.
type Hub struct {
	mu   sync.Mutex
	subs map[*Signal]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Signal]struct{})}
}

// Subscribe registers a fresh Signal. Callers must Unsubscribe it when the
// connection ends.
func (h *Hub) Subscribe() *Signal {
	s := NewSignal()
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) Unsubscribe(s *Signal) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// Broadcast raises every subscriber's flag.
func (h *Hub) Broadcast() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		s.Set()
	}
}
