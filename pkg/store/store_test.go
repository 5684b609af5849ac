package store

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// --- Peer tests ---

func TestRegisterPeer(t *testing.T) {
	s := newTestStore(t)
	p, err := s.RegisterPeer(1, "alice")
	if err != nil {
		t.Fatalf("RegisterPeer: %v", err)
	}
	if p.PeerID != 1 || p.Name != "alice" {
		t.Fatalf("got %+v, want peer_id=1 name=alice", p)
	}
}

func TestRegisterPeerIdempotent(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.RegisterPeer(1, "alice"); err != nil {
		t.Fatalf("first RegisterPeer: %v", err)
	}
	p, err := s.RegisterPeer(1, "alice-renamed")
	if err != nil {
		t.Fatalf("second RegisterPeer: %v", err)
	}
	if p.Name != "alice-renamed" {
		t.Fatalf("re-register should refresh name, got %q", p.Name)
	}

	peers, err := s.ListPeers()
	if err != nil {
		t.Fatalf("ListPeers: %v", err)
	}
	if len(peers) != 1 {
		t.Fatalf("expected exactly one peer row after idempotent re-register, got %d", len(peers))
	}
}

func TestGetPeerNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetPeer(999); err == nil {
		t.Fatal("expected error for unknown peer")
	}
}

func TestTouchPeerUpdatesLastSeen(t *testing.T) {
	s := newTestStore(t)
	p, err := s.RegisterPeer(1, "alice")
	if err != nil {
		t.Fatalf("RegisterPeer: %v", err)
	}
	firstSeen := p.LastSeenAt

	if err := s.TouchPeer(1); err != nil {
		t.Fatalf("TouchPeer: %v", err)
	}
	p2, err := s.GetPeer(1)
	if err != nil {
		t.Fatalf("GetPeer: %v", err)
	}
	if p2.LastSeenAt.Before(firstSeen) {
		t.Fatal("TouchPeer should not move last_seen_at backward")
	}
}

func TestListPeersOrderedByID(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []uint64{3, 1, 2} {
		if _, err := s.RegisterPeer(id, "p"); err != nil {
			t.Fatalf("RegisterPeer(%d): %v", id, err)
		}
	}
	peers, err := s.ListPeers()
	if err != nil {
		t.Fatalf("ListPeers: %v", err)
	}
	if len(peers) != 3 {
		t.Fatalf("got %d peers, want 3", len(peers))
	}
	for i, want := range []uint64{1, 2, 3} {
		if peers[i].PeerID != want {
			t.Fatalf("ListPeers[%d].PeerID: got %d, want %d", i, peers[i].PeerID, want)
		}
	}
}

// --- Document tests ---

func TestCreateAndGetDocument(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.RegisterPeer(1, "alice"); err != nil {
		t.Fatalf("RegisterPeer: %v", err)
	}
	doc, err := s.CreateDocument("doc-1", 1, "/tmp/doc-1.omni")
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if doc.DocID != "doc-1" || doc.OwnerPeer != 1 || doc.LamportValue != 0 {
		t.Fatalf("got %+v", doc)
	}

	got, err := s.GetDocument("doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Path != "/tmp/doc-1.omni" {
		t.Fatalf("Path: got %q", got.Path)
	}
}

func TestUpdateDocumentLamport(t *testing.T) {
	s := newTestStore(t)
	s.RegisterPeer(1, "alice")
	s.CreateDocument("doc-1", 1, "/tmp/doc-1.omni")

	if err := s.UpdateDocumentLamport("doc-1", 42); err != nil {
		t.Fatalf("UpdateDocumentLamport: %v", err)
	}
	got, err := s.GetDocument("doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.LamportValue != 42 {
		t.Fatalf("LamportValue: got %d, want 42", got.LamportValue)
	}
}

func TestGetDocumentByPath(t *testing.T) {
	s := newTestStore(t)
	s.RegisterPeer(1, "alice")
	s.CreateDocument("doc-1", 1, "/tmp/doc-1.omni")

	got, err := s.GetDocumentByPath("/tmp/doc-1.omni")
	if err != nil {
		t.Fatalf("GetDocumentByPath: %v", err)
	}
	if got.DocID != "doc-1" {
		t.Fatalf("DocID: got %q, want doc-1", got.DocID)
	}
}

func TestListDocumentsOrderedByID(t *testing.T) {
	s := newTestStore(t)
	s.RegisterPeer(1, "alice")
	s.CreateDocument("doc-b", 1, "/b")
	s.CreateDocument("doc-a", 1, "/a")

	docs, err := s.ListDocuments()
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 2 || docs[0].DocID != "doc-a" || docs[1].DocID != "doc-b" {
		t.Fatalf("got %+v", docs)
	}
}

// --- GC run log tests ---

func TestRecordAndListGCRuns(t *testing.T) {
	s := newTestStore(t)
	s.RegisterPeer(1, "alice")
	s.CreateDocument("doc-1", 1, "/tmp/doc-1.omni")

	id, err := s.RecordGCRun("doc-1", 1500, 7, `{"1":10,"2":8}`)
	if err != nil {
		t.Fatalf("RecordGCRun: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero row id")
	}

	runs, err := s.ListGCRuns("doc-1", 10)
	if err != nil {
		t.Fatalf("ListGCRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].RemovedCount != 7 || runs[0].DurationUS != 1500 {
		t.Fatalf("got %+v", runs)
	}
}

func TestListGCRunsMostRecentFirst(t *testing.T) {
	s := newTestStore(t)
	s.RegisterPeer(1, "alice")
	s.CreateDocument("doc-1", 1, "/tmp/doc-1.omni")

	s.RecordGCRun("doc-1", 100, 1, "{}")
	s.RecordGCRun("doc-1", 200, 2, "{}")

	runs, err := s.ListGCRuns("doc-1", 10)
	if err != nil {
		t.Fatalf("ListGCRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].DurationUS != 200 || runs[1].DurationUS != 100 {
		t.Fatalf("order: got durations %d, %d; want 200, 100 (most recent first)", runs[0].DurationUS, runs[1].DurationUS)
	}
}

func TestListGCRunsRespectsLimit(t *testing.T) {
	s := newTestStore(t)
	s.RegisterPeer(1, "alice")
	s.CreateDocument("doc-1", 1, "/tmp/doc-1.omni")
	for i := 0; i < 5; i++ {
		s.RecordGCRun("doc-1", 100, 1, "{}")
	}
	runs, err := s.ListGCRuns("doc-1", 3)
	if err != nil {
		t.Fatalf("ListGCRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("got %d runs, want 3", len(runs))
	}
}

// --- Peer vector-clock snapshot tests ---

func TestPutAndListPeerSnapshots(t *testing.T) {
	s := newTestStore(t)
	s.RegisterPeer(1, "alice")
	s.CreateDocument("doc-1", 1, "/tmp/doc-1.omni")

	if err := s.PutPeerSnapshot("doc-1", 2, `{"2":5}`); err != nil {
		t.Fatalf("PutPeerSnapshot: %v", err)
	}
	if err := s.PutPeerSnapshot("doc-1", 3, `{"3":9}`); err != nil {
		t.Fatalf("PutPeerSnapshot: %v", err)
	}

	snaps, err := s.ListPeerSnapshots("doc-1")
	if err != nil {
		t.Fatalf("ListPeerSnapshots: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(snaps))
	}
}

func TestPutPeerSnapshotUpsertsExisting(t *testing.T) {
	s := newTestStore(t)
	s.RegisterPeer(1, "alice")
	s.CreateDocument("doc-1", 1, "/tmp/doc-1.omni")

	s.PutPeerSnapshot("doc-1", 2, `{"2":1}`)
	s.PutPeerSnapshot("doc-1", 2, `{"2":99}`)

	snaps, err := s.ListPeerSnapshots("doc-1")
	if err != nil {
		t.Fatalf("ListPeerSnapshots: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected single upserted row, got %d", len(snaps))
	}
	if snaps[0].VectorClockJSON != `{"2":99}` {
		t.Fatalf("got %q, want the most recent value", snaps[0].VectorClockJSON)
	}
}
