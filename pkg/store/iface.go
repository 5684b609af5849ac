// iface.go defines the Interface for dependency injection and testing.
//
// The concrete *Store type satisfies this interface. Code that depends on
// the store (e.g. the cmd layer) can accept Interface instead of *Store,
// enabling mock injection in tests.
package store

import "github.com/mkovacs/omnisync/pkg/model"

// Interface defines the full set of store operations.
// The concrete *Store type implements this interface.
type Interface interface {
	// Close closes the database connection.
	Close() error

	// --- Peers ---

	// RegisterPeer creates or updates a peer. Idempotent.
	RegisterPeer(peerID uint64, name string) (*model.Peer, error)

	// GetPeer retrieves a peer by id.
	GetPeer(peerID uint64) (*model.Peer, error)

	// TouchPeer refreshes a peer's last_seen_at timestamp.
	TouchPeer(peerID uint64) error

	// ListPeers returns all registered peers ordered by peer id.
	ListPeers() ([]model.Peer, error)

	// --- Documents ---

	// CreateDocument registers a new on-disk document file.
	CreateDocument(docID string, ownerPeer uint64, path string) (*model.Document, error)

	// GetDocument retrieves a document by id.
	GetDocument(docID string) (*model.Document, error)

	// GetDocumentByPath retrieves a document by its on-disk path.
	GetDocumentByPath(path string) (*model.Document, error)

	// UpdateDocumentLamport persists the current Lamport value for a document.
	UpdateDocumentLamport(docID string, lamportValue uint64) error

	// ListDocuments returns all managed documents ordered by doc id.
	ListDocuments() ([]model.Document, error)

	// --- GC run log ---

	// RecordGCRun appends one garbage-collection invocation to the log.
	RecordGCRun(docID string, durationUS int64, removedCount int, frontierJSON string) (int64, error)

	// ListGCRuns returns the GC run log for a document, most recent first.
	ListGCRuns(docID string, limit int) ([]model.GCRun, error)

	// --- Peer vector-clock snapshots ---

	// PutPeerSnapshot upserts the last-known vector clock a peer reported.
	PutPeerSnapshot(docID string, peerID uint64, vectorClockJSON string) error

	// ListPeerSnapshots returns every peer vector-clock snapshot for a document.
	ListPeerSnapshots(docID string) ([]model.PeerSnapshot, error)
}

// Compile-time check that *Store implements Interface.
var _ Interface = (*Store)(nil)
