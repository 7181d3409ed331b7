// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package translator

import (
	"sync"

	"github.com/babelarr/babelarr/internal/metrics"
)

// availabilityLatch is a broadcast primitive: Clear() forces every blocked
// waiter onto a fresh channel, Set() releases them all at once. Modeled on
// the teacher's sliding-window state machine in
// internal/resilience/circuit_breaker.go, but reduced to the two states the
// spec actually needs (spec.md §5 "Global translator-available latch").
type availabilityLatch struct {
	mu        sync.Mutex
	available bool
	ch        chan struct{}
}

func newAvailabilityLatch() *availabilityLatch {
	metrics.TranslatorAvailable.Set(1)
	return &availabilityLatch{available: true, ch: make(chan struct{})}
}

// Clear marks the latch unavailable; every current and future Wait() call
// blocks until the next Set().
func (l *availabilityLatch) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.available {
		l.available = false
		l.ch = make(chan struct{})
		metrics.TranslatorAvailable.Set(0)
	}
}

// Set marks the latch available and releases every waiter.
func (l *availabilityLatch) Set() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.available {
		l.available = true
		close(l.ch)
		metrics.TranslatorAvailable.Set(1)
	}
}

// IsAvailable reports the latch's current state without blocking.
func (l *availabilityLatch) IsAvailable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.available
}

// waitChan returns the channel to select on to be woken by the next Set(),
// plus whether the latch is already available (in which case there's
// nothing to wait for).
func (l *availabilityLatch) waitChan() (ch chan struct{}, available bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ch, l.available
}
