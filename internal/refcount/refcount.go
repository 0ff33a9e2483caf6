// Package refcount provides the atomic reference counter used by shared
// objects (contexts and programs).
package refcount

import (
	"errors"
	"sync/atomic"
)

// ErrReleased is returned when retaining or releasing an object whose count
// already reached zero.
var ErrReleased = errors.New("object already released")

// Counter is an atomic reference count.
//
// A Counter starts at 1 (the creator's reference). Retain and Release are
// linearizable; exactly one Release call observes the transition to zero.
//
// Thread-safety: Counter is safe for concurrent use (atomic operations).
type Counter struct {
	n atomic.Int64
}

// New creates a counter holding one reference.
func New() *Counter {
	c := &Counter{}
	c.n.Store(1)
	return c
}

// Retain adds a reference. Fails with ErrReleased if the count is zero.
func (c *Counter) Retain() error {
	for {
		cur := c.n.Load()
		if cur <= 0 {
			return ErrReleased
		}
		if c.n.CompareAndSwap(cur, cur+1) {
			return nil
		}
	}
}

// Release drops a reference. last is true for the call that dropped the count
// to zero; that caller owns destruction of the object.
func (c *Counter) Release() (last bool, err error) {
	for {
		cur := c.n.Load()
		if cur <= 0 {
			return false, ErrReleased
		}
		if c.n.CompareAndSwap(cur, cur-1) {
			return cur == 1, nil
		}
	}
}

// Load returns the current count.
func (c *Counter) Load() int64 {
	return c.n.Load()
}

// Alive reports whether at least one reference remains.
func (c *Counter) Alive() bool {
	return c.n.Load() > 0
}
