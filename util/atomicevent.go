package util

import (
	"sync"
	"sync/atomic"
)

// AtomicEvent holds a single, latest value and provides non-blocking
// updates. Readers are woken through Channel(); intermediate values
// may be skipped.
type AtomicEvent[T any] struct {
	mu     sync.Mutex
	value  T
	notify chan struct{}
}

// NewAtomicEvent creates a new AtomicEvent instance.
func NewAtomicEvent[T any]() *AtomicEvent[T] {
	return &AtomicEvent[T]{
		notify: make(chan struct{}, 1),
	}
}

// Send replaces the held value. It never blocks.
func (ae *AtomicEvent[T]) Send(event T) {
	ae.mu.Lock()
	defer ae.mu.Unlock()

	ae.value = event

	select {
	case ae.notify <- struct{}{}:
	default:
		// a wakeup is already pending
	}
}

// Channel returns the notification channel for use in select statements.
func (ae *AtomicEvent[T]) Channel() <-chan struct{} {
	return ae.notify
}

// Value returns the latest value.
func (ae *AtomicEvent[T]) Value() T {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	return ae.value
}

// HasPending reports whether a wakeup is waiting to be consumed.
func (ae *AtomicEvent[T]) HasPending() bool {
	return len(ae.notify) > 0
}

// AtomicMapEvent is the keyed variant of AtomicEvent: every key keeps its
// own latest value, one shared wakeup covers all of them.
type AtomicMapEvent[T any] struct {
	mu     sync.Mutex
	value  map[string]T
	notify chan struct{}
}

// NewAtomicMapEvent creates a new AtomicMapEvent instance.
func NewAtomicMapEvent[T any]() *AtomicMapEvent[T] {
	return &AtomicMapEvent[T]{
		notify: make(chan struct{}, 1),
		value:  make(map[string]T),
	}
}

// Send stores event under key. It never blocks.
func (ae *AtomicMapEvent[T]) Send(key string, event T) {
	ae.mu.Lock()
	defer ae.mu.Unlock()

	ae.value[key] = event

	select {
	case ae.notify <- struct{}{}:
	default:
	}
}

// Channel returns the notification channel for use in select statements.
func (ae *AtomicMapEvent[T]) Channel() <-chan struct{} {
	return ae.notify
}

// Value returns a copy of all latest values.
func (ae *AtomicMapEvent[T]) Value() map[string]T {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	ret := make(map[string]T, len(ae.value))
	for key, value := range ae.value {
		ret[key] = value
	}
	return ret
}

// HasPending reports whether a wakeup is waiting to be consumed.
func (ae *AtomicMapEvent[T]) HasPending() bool {
	return len(ae.notify) > 0
}

// Latch is a boolean set from an asynchronous context and read and
// cleared by its single consumer. It never resets on its own.
type Latch struct {
	v atomic.Bool
}

func (l *Latch) Set() {
	l.v.Store(true)
}

func (l *Latch) Clear() {
	l.v.Store(false)
}

func (l *Latch) IsSet() bool {
	return l.v.Load()
}

// Consume clears the latch and reports whether it was set.
func (l *Latch) Consume() bool {
	return l.v.Swap(false)
}
