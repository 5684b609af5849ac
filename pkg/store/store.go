// Package store manages all SQLite persistence for omnisync's bookkeeping:
// the information about a replication session that the in-memory
// sequence.Sequence and gc.Coordinator don't themselves keep durable
// (registered peers, managed document files, GC run history, and the
// peer vector-clock snapshots a restarted process needs to resume GC
// coordination). The replicated character data itself is persisted
// separately, through Sequence.Save/Load and the OMNI document codec.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mkovacs/omnisync/pkg/model"

	_ "modernc.org/sqlite"
)

// Store manages all SQLite operations with WAL mode for concurrent access.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database and initializes the schema.
func New(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// retryOnContention wraps retryOp from retry.go with the default config.
// All store write operations should use this to handle transient SQLite
// errors (BUSY, LOCKED, IOERR_SHORT_READ) under concurrent access.
func retryOnContention(fn func() error) error {
	return retryOp(defaultRetryConfig, fn)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS peers (
		peer_id       INTEGER PRIMARY KEY,
		name          TEXT NOT NULL,
		registered_at TEXT NOT NULL,
		last_seen_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS documents (
		doc_id        TEXT PRIMARY KEY,
		owner_peer    INTEGER NOT NULL REFERENCES peers(peer_id),
		lamport_value INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL,
		path          TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_peer);

	CREATE TABLE IF NOT EXISTS gc_runs (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		doc_id        TEXT NOT NULL REFERENCES documents(doc_id),
		ran_at        TEXT NOT NULL,
		duration_us   INTEGER NOT NULL,
		removed_count INTEGER NOT NULL,
		frontier_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_gc_runs_doc ON gc_runs(doc_id, ran_at);

	CREATE TABLE IF NOT EXISTS peer_vector_clock_snapshots (
		doc_id            TEXT NOT NULL REFERENCES documents(doc_id),
		peer_id           INTEGER NOT NULL,
		vector_clock_json TEXT NOT NULL,
		updated_at        TEXT NOT NULL,
		PRIMARY KEY (doc_id, peer_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ---------------------------------------------------------------------------
// Peers
// ---------------------------------------------------------------------------

// RegisterPeer creates or updates a peer. Idempotent via ON CONFLICT: a
// re-registration refreshes name and last_seen_at but keeps registered_at.
func (s *Store) RegisterPeer(peerID uint64, name string) (*model.Peer, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := retryOnContention(func() error {
		_, err := s.db.Exec(
			`INSERT INTO peers (peer_id, name, registered_at, last_seen_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(peer_id) DO UPDATE SET name = excluded.name, last_seen_at = excluded.last_seen_at`,
			peerID, name, now, now,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetPeer(peerID)
}

// GetPeer retrieves a peer by id.
func (s *Store) GetPeer(peerID uint64) (*model.Peer, error) {
	row := s.db.QueryRow(
		`SELECT peer_id, name, registered_at, last_seen_at FROM peers WHERE peer_id = ?`, peerID,
	)
	return scanPeer(row)
}

// TouchPeer updates a peer's last_seen_at to now, e.g. on receipt of a
// heartbeat.
func (s *Store) TouchPeer(peerID uint64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return retryOnContention(func() error {
		_, err := s.db.Exec(`UPDATE peers SET last_seen_at = ? WHERE peer_id = ?`, now, peerID)
		return err
	})
}

// ListPeers returns all registered peers ordered by peer id.
func (s *Store) ListPeers() ([]model.Peer, error) {
	rows, err := s.db.Query(
		`SELECT peer_id, name, registered_at, last_seen_at FROM peers ORDER BY peer_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var peers []model.Peer
	for rows.Next() {
		p, err := scanPeerRow(rows)
		if err != nil {
			return nil, err
		}
		peers = append(peers, *p)
	}
	return peers, rows.Err()
}

func scanPeer(row *sql.Row) (*model.Peer, error) {
	var p model.Peer
	var regStr, lsStr string
	if err := row.Scan(&p.PeerID, &p.Name, &regStr, &lsStr); err != nil {
		return nil, err
	}
	return parsePeerTimes(&p, regStr, lsStr)
}

func scanPeerRow(rows *sql.Rows) (*model.Peer, error) {
	var p model.Peer
	var regStr, lsStr string
	if err := rows.Scan(&p.PeerID, &p.Name, &regStr, &lsStr); err != nil {
		return nil, err
	}
	return parsePeerTimes(&p, regStr, lsStr)
}

func parsePeerTimes(p *model.Peer, regStr, lsStr string) (*model.Peer, error) {
	var parseErr error
	p.RegisteredAt, parseErr = time.Parse(time.RFC3339Nano, regStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parse registered_at for peer %d: %w", p.PeerID, parseErr)
	}
	p.LastSeenAt, parseErr = time.Parse(time.RFC3339Nano, lsStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parse last_seen_at for peer %d: %w", p.PeerID, parseErr)
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// Documents
// ---------------------------------------------------------------------------

// CreateDocument registers a new on-disk document file.
func (s *Store) CreateDocument(docID string, ownerPeer uint64, path string) (*model.Document, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := retryOnContention(func() error {
		_, err := s.db.Exec(
			`INSERT INTO documents (doc_id, owner_peer, lamport_value, created_at, path)
			 VALUES (?, ?, 0, ?, ?)`,
			docID, ownerPeer, now, path,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetDocument(docID)
}

// GetDocument retrieves a document by id.
func (s *Store) GetDocument(docID string) (*model.Document, error) {
	row := s.db.QueryRow(
		`SELECT doc_id, owner_peer, lamport_value, created_at, path FROM documents WHERE doc_id = ?`,
		docID,
	)
	var d model.Document
	var createdStr string
	if err := row.Scan(&d.DocID, &d.OwnerPeer, &d.LamportValue, &createdStr, &d.Path); err != nil {
		return nil, err
	}
	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339Nano, createdStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parse created_at for document %s: %w", d.DocID, parseErr)
	}
	return &d, nil
}

// GetDocumentByPath looks up a document by its on-disk path, letting CLI
// commands that only know a file path resolve the doc_id needed for GC-log
// and peer-snapshot lookups.
func (s *Store) GetDocumentByPath(path string) (*model.Document, error) {
	row := s.db.QueryRow(
		`SELECT doc_id, owner_peer, lamport_value, created_at, path FROM documents WHERE path = ?`,
		path,
	)
	var d model.Document
	var createdStr string
	if err := row.Scan(&d.DocID, &d.OwnerPeer, &d.LamportValue, &createdStr, &d.Path); err != nil {
		return nil, err
	}
	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339Nano, createdStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parse created_at for document %s: %w", d.DocID, parseErr)
	}
	return &d, nil
}

// UpdateDocumentLamport persists the current Lamport value observed for a
// document, typically called after every Sequence.Save.
func (s *Store) UpdateDocumentLamport(docID string, lamportValue uint64) error {
	return retryOnContention(func() error {
		_, err := s.db.Exec(
			`UPDATE documents SET lamport_value = ? WHERE doc_id = ?`, lamportValue, docID,
		)
		return err
	})
}

// ListDocuments returns all managed documents ordered by doc id.
func (s *Store) ListDocuments() ([]model.Document, error) {
	rows, err := s.db.Query(
		`SELECT doc_id, owner_peer, lamport_value, created_at, path FROM documents ORDER BY doc_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var d model.Document
		var createdStr string
		if err := rows.Scan(&d.DocID, &d.OwnerPeer, &d.LamportValue, &createdStr, &d.Path); err != nil {
			return nil, err
		}
		var parseErr error
		d.CreatedAt, parseErr = time.Parse(time.RFC3339Nano, createdStr)
		if parseErr != nil {
			return nil, fmt.Errorf("parse created_at for document %s: %w", d.DocID, parseErr)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// ---------------------------------------------------------------------------
// GC run log
// ---------------------------------------------------------------------------

// RecordGCRun appends one garbage-collection invocation to the log. Returns
// the auto-generated row id.
func (s *Store) RecordGCRun(docID string, durationUS int64, removedCount int, frontierJSON string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var lastID int64
	err := retryOnContention(func() error {
		res, err := s.db.Exec(
			`INSERT INTO gc_runs (doc_id, ran_at, duration_us, removed_count, frontier_json)
			 VALUES (?, ?, ?, ?, ?)`,
			docID, now, durationUS, removedCount, frontierJSON,
		)
		if err != nil {
			return err
		}
		lastID, err = res.LastInsertId()
		return err
	})
	return lastID, err
}

// ListGCRuns returns the GC run log for a document, most recent first.
func (s *Store) ListGCRuns(docID string, limit int) ([]model.GCRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, doc_id, ran_at, duration_us, removed_count, frontier_json
		 FROM gc_runs WHERE doc_id = ? ORDER BY id DESC LIMIT ?`,
		docID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.GCRun
	for rows.Next() {
		var r model.GCRun
		var ranStr string
		if err := rows.Scan(&r.ID, &r.DocID, &ranStr, &r.DurationUS, &r.RemovedCount, &r.FrontierJSON); err != nil {
			return nil, err
		}
		var parseErr error
		r.RanAt, parseErr = time.Parse(time.RFC3339Nano, ranStr)
		if parseErr != nil {
			return nil, fmt.Errorf("parse ran_at for gc_run %d: %w", r.ID, parseErr)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ---------------------------------------------------------------------------
// Peer vector-clock snapshots
// ---------------------------------------------------------------------------

// PutPeerSnapshot upserts the last-known vector clock reported by peerID
// for docID, so a restarted process can seed its gc.Coordinator without
// waiting for a fresh heartbeat.
func (s *Store) PutPeerSnapshot(docID string, peerID uint64, vectorClockJSON string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return retryOnContention(func() error {
		_, err := s.db.Exec(
			`INSERT INTO peer_vector_clock_snapshots (doc_id, peer_id, vector_clock_json, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(doc_id, peer_id) DO UPDATE SET
			   vector_clock_json = excluded.vector_clock_json,
			   updated_at = excluded.updated_at`,
			docID, peerID, vectorClockJSON, now,
		)
		return err
	})
}

// ListPeerSnapshots returns every peer vector-clock snapshot recorded for
// docID.
func (s *Store) ListPeerSnapshots(docID string) ([]model.PeerSnapshot, error) {
	rows, err := s.db.Query(
		`SELECT doc_id, peer_id, vector_clock_json, updated_at
		 FROM peer_vector_clock_snapshots WHERE doc_id = ? ORDER BY peer_id`,
		docID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []model.PeerSnapshot
	for rows.Next() {
		var p model.PeerSnapshot
		var updatedStr string
		if err := rows.Scan(&p.DocID, &p.PeerID, &p.VectorClockJSON, &updatedStr); err != nil {
			return nil, err
		}
		var parseErr error
		p.UpdatedAt, parseErr = time.Parse(time.RFC3339Nano, updatedStr)
		if parseErr != nil {
			return nil, fmt.Errorf("parse updated_at for peer snapshot %s/%d: %w", p.DocID, p.PeerID, parseErr)
		}
		snaps = append(snaps, p)
	}
	return snaps, rows.Err()
}
