// Package gc implements the cross-peer garbage collection coordinator: it
// tracks each known peer's last-reported vector clock and liveness, derives
// the stable frontier (the minimum vector clock across every active peer)
// and decides when it is safe to trigger a sequence.Sequence.GarbageCollect
// run against that frontier.
package gc

import (
	"time"

	"github.com/mkovacs/omnisync/pkg/sequence"
	"github.com/mkovacs/omnisync/pkg/vclock"
)

// PeerState tracks one remote peer's last-known vector clock and liveness.
type PeerState struct {
	PeerID      uint64
	VectorClock vclock.VClock
	LastSeen    time.Time
	Active      bool // false until the first UpdatePeerState call
}

// Config controls heartbeat cadence, peer liveness, and GC scheduling.
type Config struct {
	HeartbeatIntervalMS uint64
	PeerTimeoutMS       uint64
	GCIntervalMS        uint64
	AutoGCEnabled       bool
	MinPeersForGC       int
}

// DefaultConfig matches the defaults enumerated in spec.md's configuration
// section.
func DefaultConfig() Config {
	return Config{
		HeartbeatIntervalMS: 5000,
		PeerTimeoutMS:       30000,
		GCIntervalMS:        60000,
		AutoGCEnabled:       true,
		MinPeersForGC:       1,
	}
}

// Coordinator coordinates garbage collection across multiple peers. It is
// not safe for concurrent use; callers serialize access the same way they
// serialize access to the sequence.Sequence it collects.
type Coordinator struct {
	myPeerID uint64
	cfg      Config
	peers    map[uint64]*PeerState
	lastGC   time.Time
	myVC     vclock.VClock
}

// New creates a Coordinator for myPeerID using cfg.
func New(myPeerID uint64, cfg Config) *Coordinator {
	return &Coordinator{
		myPeerID: myPeerID,
		cfg:      cfg,
		peers:    make(map[uint64]*PeerState),
		lastGC:   time.Now(),
		myVC:     vclock.New(),
	}
}

// RegisterPeer adds peerID to the tracked set if it isn't already known.
// Registering one's own id or an already-known id is a no-op.
func (c *Coordinator) RegisterPeer(peerID uint64) {
	if peerID == c.myPeerID {
		return
	}
	if _, ok := c.peers[peerID]; ok {
		return
	}
	c.peers[peerID] = &PeerState{PeerID: peerID, LastSeen: time.Now()}
}

// RemovePeer forgets a disconnected peer entirely.
func (c *Coordinator) RemovePeer(peerID uint64) {
	delete(c.peers, peerID)
}

// UpdatePeerState records peerID's current vector clock, auto-registering
// it first if unknown, and marks it active as of now.
func (c *Coordinator) UpdatePeerState(peerID uint64, vc vclock.VClock) {
	p, ok := c.peers[peerID]
	if !ok {
		c.RegisterPeer(peerID)
		p = c.peers[peerID]
	}
	p.VectorClock = vc.Copy()
	p.LastSeen = time.Now()
	p.Active = true
}

// ProcessHeartbeat applies a received heartbeat from peerID exactly like
// UpdatePeerState; it exists as a distinctly named entry point for
// transport code that only knows about heartbeats, not general state
// updates.
func (c *Coordinator) ProcessHeartbeat(peerID uint64, vc vclock.VClock) {
	c.UpdatePeerState(peerID, vc)
}

// ActivePeers returns every peer that has reported at least once and is
// within the configured timeout window.
func (c *Coordinator) ActivePeers() []PeerState {
	var active []PeerState
	now := time.Now()
	timeout := time.Duration(c.cfg.PeerTimeoutMS) * time.Millisecond
	for _, p := range c.peers {
		if p.Active && now.Sub(p.LastSeen) < timeout {
			active = append(active, *p)
		}
	}
	return active
}

// StableFrontier returns the minimum vector clock across this peer's own
// clock and every active peer's last-reported clock: the point every
// participant has witnessed, and therefore the safe GC boundary.
func (c *Coordinator) StableFrontier() vclock.VClock {
	active := c.ActivePeers()
	clocks := make([]vclock.VClock, 0, len(active)+1)
	for _, p := range active {
		clocks = append(clocks, p.VectorClock)
	}
	clocks = append(clocks, c.myVC)
	return vclock.Min(clocks)
}

// ShouldTriggerGC reports whether enough time has passed since the last GC
// run and enough peers are active, per Config.
func (c *Coordinator) ShouldTriggerGC() bool {
	if !c.cfg.AutoGCEnabled {
		return false
	}
	elapsed := time.Since(c.lastGC)
	if elapsed < time.Duration(c.cfg.GCIntervalMS)*time.Millisecond {
		return false
	}
	if len(c.ActivePeers()) < c.cfg.MinPeersForGC {
		return false
	}
	return true
}

// Perform computes the current stable frontier and runs GarbageCollect
// against seq, recording the run time regardless of how many tombstones
// were actually removed.
func (c *Coordinator) Perform(seq *sequence.Sequence) int {
	frontier := c.StableFrontier()
	removed := seq.GarbageCollect(frontier)
	c.lastGC = time.Now()
	return removed
}

// UpdateMyVectorClock records this peer's own current vector clock, to be
// folded into the next StableFrontier computation.
func (c *Coordinator) UpdateMyVectorClock(vc vclock.VClock) {
	c.myVC = vc.Copy()
}

// Config returns the coordinator's current configuration.
func (c *Coordinator) Config() Config { return c.cfg }

// SetConfig replaces the coordinator's configuration.
func (c *Coordinator) SetConfig(cfg Config) { c.cfg = cfg }

// PeerCount returns the number of registered peers, active or not.
func (c *Coordinator) PeerCount() int { return len(c.peers) }

// ActivePeerCount returns the number of currently active peers.
func (c *Coordinator) ActivePeerCount() int { return len(c.ActivePeers()) }

// HeartbeatFunc sends this peer's current vector clock to peerID. Transport
// code supplies the implementation; SendHeartbeat only decides who to call
// it for.
type HeartbeatFunc func(peerID uint64, vc vclock.VClock)

// SendHeartbeat invokes send for every registered peer with this peer's
// own current vector clock.
func (c *Coordinator) SendHeartbeat(send HeartbeatFunc) {
	for peerID := range c.peers {
		send(peerID, c.myVC)
	}
}
