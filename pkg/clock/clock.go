// Package clock implements a Lamport logical clock.
//
// From Lamport (1978), two implementation rules govern the clock:
//
//	IR1 (internal event): before any internal event, increment the clock.
//	IR2 (message receipt): on receiving a message with timestamp t,
//	     set the clock to max(own, t) + 1.
//
// Every locally originated atom (insert or delete) calls Tick; every
// received atom's id clock is folded in via Merge, so that any id the
// peer generates afterward dominates every id it has seen.
//
// Unlike most state in the sequence engine, the clock is read from
// outside the engine's exclusive section — a caller on another goroutine
// may Peek it at any time. Tick and Merge are therefore implemented as a
// compare-and-swap loop over a shared atomic scalar, even though the
// engine that owns a Clock is otherwise single-threaded.
package clock

import "sync/atomic"

// Clock is a Lamport logical clock. Safe for concurrent use.
type Clock struct {
	value atomic.Uint64
}

// New returns a Clock starting at 0.
func New() *Clock { return &Clock{} }

// Peek returns the current value without advancing it.
func (c *Clock) Peek() uint64 { return c.value.Load() }

// Tick implements IR1: atomically increments the clock and returns the
// new value.
func (c *Clock) Tick() uint64 {
	return c.value.Add(1)
}

// Merge implements IR2: atomically advances the clock to max(current, t)+1
// and returns the new value.
func (c *Clock) Merge(t uint64) uint64 {
	for {
		cur := c.value.Load()
		next := cur
		if t > next {
			next = t
		}
		next++
		if c.value.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// Set forcibly sets the clock to v. Used to seed a clock from persisted
// state (document load); not part of the IR1/IR2 protocol and must not be
// used concurrently with Tick/Merge on the same Clock.
func (c *Clock) Set(v uint64) { c.value.Store(v) }
