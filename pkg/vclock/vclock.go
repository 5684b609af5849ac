// Package vclock implements a vector clock: a per-peer summary of the
// highest operation clock each peer is known to have produced. It is the
// bookkeeping structure that lets a sequence engine answer "what has this
// peer not seen yet" (delta export) and "is it safe to prune this
// tombstone" (garbage collection frontier).
//
// A VClock is a plain map and is not internally synchronized; callers
// that share one across goroutines must guard it themselves, the same
// contract the GC coordinator relies on.
package vclock

import "maps"

// Relation is the result of comparing two vector clocks.
type Relation int

const (
	Equal Relation = iota
	Before
	After
	Concurrent
)

func (r Relation) String() string {
	switch r {
	case Equal:
		return "EQUAL"
	case Before:
		return "BEFORE"
	case After:
		return "AFTER"
	default:
		return "CONCURRENT"
	}
}

// VClock maps peer id to the highest clock value observed from that peer.
// A peer with no entry is implicitly at clock 0.
type VClock map[uint64]uint64

// New returns an empty vector clock.
func New() VClock { return make(VClock) }

// Get returns the entry for peer, or 0 if peer has never been observed.
func (v VClock) Get(peer uint64) uint64 { return v[peer] }

// Tick increments the owner's own entry and returns the new value.
func (v VClock) Tick(owner uint64) uint64 {
	v[owner]++
	return v[owner]
}

// Update sets peer's entry to max(current, t).
func (v VClock) Update(peer, t uint64) {
	if t > v[peer] {
		v[peer] = t
	}
}

// Merge folds other into v pointwise (max over the union of keys). v is
// mutated in place.
func (v VClock) Merge(other VClock) {
	for peer, t := range other {
		v.Update(peer, t)
	}
}

// Copy returns an independent copy of v.
func (v VClock) Copy() VClock {
	out := make(VClock, len(v))
	maps.Copy(out, v)
	return out
}

// Compare returns how v relates to other over the union of both clocks'
// keys, with missing entries treated as 0.
//   - Before: every entry of v is <= the corresponding entry of other,
//     with at least one strictly less.
//   - After: the symmetric case.
//   - Equal: every entry is equal.
//   - Concurrent: neither dominates — otherwise.
func (v VClock) Compare(other VClock) Relation {
	lessFound, greaterFound := false, false
	for _, peer := range unionKeys(v, other) {
		a, b := v[peer], other[peer]
		switch {
		case a < b:
			lessFound = true
		case a > b:
			greaterFound = true
		}
	}
	switch {
	case !lessFound && !greaterFound:
		return Equal
	case lessFound && !greaterFound:
		return Before
	case greaterFound && !lessFound:
		return After
	default:
		return Concurrent
	}
}

// Min returns the pointwise minimum over the union of keys of clocks.
// Missing entries are treated as 0, so any peer absent from one of the
// inputs pulls that key's minimum down to 0. An empty input slice yields
// an empty clock. This is the "stable frontier" used by garbage
// collection: below it, every summarized peer has observed the operation.
func Min(clocks []VClock) VClock {
	out := New()
	if len(clocks) == 0 {
		return out
	}
	keys := make(map[uint64]struct{})
	for _, c := range clocks {
		for peer := range c {
			keys[peer] = struct{}{}
		}
	}
	for peer := range keys {
		min := clocks[0][peer]
		for _, c := range clocks[1:] {
			if c[peer] < min {
				min = c[peer]
			}
		}
		if min > 0 {
			out[peer] = min
		}
	}
	return out
}

func unionKeys(a, b VClock) []uint64 {
	seen := make(map[uint64]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	keys := make([]uint64, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	return keys
}
