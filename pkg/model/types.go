// Package model defines the row types persisted by pkg/store: the
// bookkeeping the replication session needs that the in-memory
// sequence.Sequence and gc.Coordinator don't themselves keep durable.
//
// None of these types participate in CRDT placement or ordering — that
// logic lives entirely in pkg/atom, pkg/clock, pkg/vclock, and
// pkg/sequence. This package only describes what gets written to disk
// about peers, documents, and GC history.
package model

import "time"

// Peer is a known participant in a replication session, keyed by the
// numeric id used in every atom.OpID.
type Peer struct {
	PeerID       uint64    `json:"peer_id"`
	Name         string    `json:"name"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

// Document is one on-disk sequence file the CLI manages.
type Document struct {
	DocID        string    `json:"doc_id"`
	OwnerPeer    uint64    `json:"owner_peer"`
	LamportValue uint64    `json:"lamport_value"`
	CreatedAt    time.Time `json:"created_at"`
	Path         string    `json:"path"`
}

// GCRun is one garbage_collect/garbage_collect_local invocation, mirroring
// sequence.GCStats but persisted per run instead of only aggregated.
type GCRun struct {
	ID           int64     `json:"id"`
	DocID        string    `json:"doc_id"`
	RanAt        time.Time `json:"ran_at"`
	DurationUS   int64     `json:"duration_us"`
	RemovedCount int       `json:"removed_count"`
	FrontierJSON string    `json:"frontier_json"`
}

// PeerSnapshot is the on-disk materialization of one entry in a GC
// coordinator's peer table: the last vector clock a peer reported for a
// given document, and when. Restoring these lets a restarted CLI process
// resume GC coordination without waiting for every peer to heartbeat
// again.
type PeerSnapshot struct {
	DocID           string    `json:"doc_id"`
	PeerID          uint64    `json:"peer_id"`
	VectorClockJSON string    `json:"vector_clock_json"`
	UpdatedAt       time.Time `json:"updated_at"`
}
