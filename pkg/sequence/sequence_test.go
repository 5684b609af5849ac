package sequence

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/mkovacs/omnisync/pkg/atom"
	"github.com/mkovacs/omnisync/pkg/vclock"
)

func insertString(s *Sequence, start int, str string) []atom.Atom {
	var out []atom.Atom
	for i, b := range []byte(str) {
		out = append(out, s.LocalInsert(start+i, b))
	}
	return out
}

// --- Boundary behaviors ---

func TestOwnerPeerReflectsConstruction(t *testing.T) {
	s := New(7)
	if s.OwnerPeer() != 7 {
		t.Fatalf("OwnerPeer: got %d, want 7", s.OwnerPeer())
	}
}

func TestLocalInsertAtStart(t *testing.T) {
	s := New(1)
	insertString(s, 0, "bc")
	s.LocalInsert(0, 'a')
	if got := s.String(); got != "abc" {
		t.Fatalf("got %q, want %q", got, "abc")
	}
}

func TestLocalInsertAtEnd(t *testing.T) {
	s := New(1)
	insertString(s, 0, "ab")
	s.LocalInsert(2, 'c')
	if got := s.String(); got != "abc" {
		t.Fatalf("got %q, want %q", got, "abc")
	}
}

func TestLocalInsertBeyondEndClamps(t *testing.T) {
	s := New(1)
	insertString(s, 0, "ab")
	s.LocalInsert(999, 'c')
	if got := s.String(); got != "abc" {
		t.Fatalf("got %q, want %q", got, "abc")
	}
}

func TestLocalDeleteAtZero(t *testing.T) {
	s := New(1)
	insertString(s, 0, "abc")
	s.LocalDelete(0)
	if got := s.String(); got != "bc" {
		t.Fatalf("got %q, want %q", got, "bc")
	}
}

func TestLocalDeleteWhenEmptyReturnsSentinel(t *testing.T) {
	s := New(1)
	id := s.LocalDelete(0)
	if id != atom.Sentinel {
		t.Fatalf("got %v, want sentinel", id)
	}
	if s.TombstoneCount() != 0 {
		t.Fatal("empty delete must not mutate tombstone count")
	}
}

func TestRemoteMergeOrphanRemainsUntilOriginArrives(t *testing.T) {
	s := New(1)
	child := atom.Atom{ID: atom.OpID{Peer: 2, Clock: 5}, Origin: atom.OpID{Peer: 2, Clock: 4}, Content: 'z'}
	s.RemoteMerge(child)
	if s.String() != "" {
		t.Fatalf("orphaned child should not be visible yet, got %q", s.String())
	}
	stats := s.MemoryStats()
	if stats.OrphanCount != 1 {
		t.Fatalf("orphan count: got %d, want 1", stats.OrphanCount)
	}

	parent := atom.Atom{ID: atom.OpID{Peer: 2, Clock: 4}, Origin: atom.Sentinel, Content: 'y'}
	s.RemoteMerge(parent)
	if s.String() != "yz" {
		t.Fatalf("after parent arrives, got %q, want %q", s.String(), "yz")
	}
	if s.MemoryStats().OrphanCount != 0 {
		t.Fatal("orphan should have drained once its origin arrived")
	}
}

func TestMergeDeleteBeforeInsertAppliesOnArrival(t *testing.T) {
	s := New(2)
	target := atom.OpID{Peer: 1, Clock: 1}
	s.RemoteDelete(target)

	inserted := atom.Atom{ID: target, Origin: atom.Sentinel, Content: 'x'}
	s.RemoteMerge(inserted)

	if s.String() != "" {
		t.Fatalf("atom deleted before arrival should be invisible, got %q", s.String())
	}
	if s.TombstoneCount() != 1 {
		t.Fatalf("tombstone count: got %d, want 1", s.TombstoneCount())
	}
}

func TestFrontierGCNoRemovalWhenPeerHasLagged(t *testing.T) {
	s := New(1)
	s.LocalInsert(0, 'x')
	s.LocalDelete(0)

	// Peer 2 has seen nothing: frontier entry for peer 1 is 0.
	frontier := vclock.VClock{2: 0}
	if removed := s.GarbageCollect(frontier); removed != 0 {
		t.Fatalf("removed %d atoms despite lagging peer, want 0", removed)
	}

	frontier = vclock.VClock{1: s.Lamport().Peek()}
	if removed := s.GarbageCollect(frontier); removed != 1 {
		t.Fatalf("removed %d atoms once frontier caught up, want 1", removed)
	}
}

func TestOrphanBufferOverflowEvicts(t *testing.T) {
	s := New(1)
	s.SetOrphanConfig(OrphanConfig{MaxOrphanBufferSize: 10, MaxOrphanAge: 1000})
	for i := 0; i < 15; i++ {
		orphan := atom.Atom{
			ID:     atom.OpID{Peer: 9, Clock: uint64(i + 1)},
			Origin: atom.OpID{Peer: 9, Clock: 9999}, // origin that never arrives
		}
		s.RemoteMerge(orphan)
	}
	stats := s.MemoryStats()
	if stats.OrphanCount >= 15 {
		t.Fatalf("orphan count %d should have shrunk from eviction", stats.OrphanCount)
	}
}

// --- Universal invariants ---

func TestConvergence(t *testing.T) {
	a := New(1)
	b := New(2)

	aAtoms := insertString(a, 0, "Hi")
	for _, at := range aAtoms {
		b.RemoteMerge(at)
	}

	more := insertString(a, 2, " there")
	for _, at := range more {
		b.RemoteMerge(at)
	}

	if a.String() != b.String() {
		t.Fatalf("convergence violated: a=%q b=%q", a.String(), b.String())
	}
}

func TestIdempotence(t *testing.T) {
	s := New(1)
	insertString(s, 0, "abc")
	atomCopy := atom.Atom{ID: atom.OpID{Peer: 5, Clock: 1}, Origin: atom.Sentinel, Content: 'Z'}

	s.RemoteMerge(atomCopy)
	once := s.String()
	s.RemoteMerge(atomCopy)
	twice := s.String()

	if once != twice {
		t.Fatalf("idempotence violated: once=%q twice=%q", once, twice)
	}
}

func TestCommutativity(t *testing.T) {
	base := func() *Sequence {
		s := New(1)
		insertString(s, 0, "ab")
		return s
	}
	a := atom.Atom{ID: atom.OpID{Peer: 2, Clock: 1}, Origin: atom.Sentinel, Content: 'X'}
	b := atom.Atom{ID: atom.OpID{Peer: 3, Clock: 1}, Origin: atom.Sentinel, Content: 'Y'}

	s1 := base()
	s1.RemoteMerge(a)
	s1.RemoteMerge(b)

	s2 := base()
	s2.RemoteMerge(b)
	s2.RemoteMerge(a)

	if s1.String() != s2.String() {
		t.Fatalf("commutativity violated: AB=%q BA=%q", s1.String(), s2.String())
	}
}

func TestDeltaCorrectness(t *testing.T) {
	a := New(1)
	b := New(2)

	for _, at := range insertString(a, 0, "Hello") {
		b.RemoteMerge(at)
	}
	vB := b.VectorClock()

	for _, at := range insertString(a, 5, " World") {
		_ = at
	}

	delta := a.GetDelta(vB)
	if len(delta) != 6 {
		t.Fatalf("delta size: got %d, want 6", len(delta))
	}
	b.ApplyDelta(delta)

	if a.String() != b.String() || a.String() != "Hello World" {
		t.Fatalf("after delta apply: a=%q b=%q", a.String(), b.String())
	}
	if a.VectorClock().Compare(b.VectorClock()) != vclock.Equal {
		t.Fatalf("vector clocks not equal after delta sync: a=%v b=%v", a.VectorClock(), b.VectorClock())
	}
}

func TestCodecRoundTripViaSaveLoad(t *testing.T) {
	// Both codecs are exercised thoroughly in pkg/codec; here we confirm
	// the sequence's atoms survive a Save/Load round trip (fixed codec)
	// with the same visible text and tombstone count.
	s := New(1)
	insertString(s, 0, "round trip")
	s.LocalDelete(0)

	var buf bytes.Buffer
	if err := s.Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := New(0)
	if err := loaded.Load(&buf); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.String() != s.String() {
		t.Fatalf("after save/load: got %q, want %q", loaded.String(), s.String())
	}
	if loaded.TombstoneCount() != s.TombstoneCount() {
		t.Fatalf("tombstone count after save/load: got %d, want %d", loaded.TombstoneCount(), s.TombstoneCount())
	}
}

func TestLamportMonotonicity(t *testing.T) {
	s := New(1)
	prev := s.Lamport().Peek()
	for i := 0; i < 20; i++ {
		s.LocalInsert(0, byte('a'+i))
		cur := s.Lamport().Peek()
		if cur <= prev {
			t.Fatalf("Lamport clock did not strictly advance: prev=%d cur=%d", prev, cur)
		}
		prev = cur
	}
}

func TestTombstoneCounterAccuracy(t *testing.T) {
	s := New(1)
	insertString(s, 0, "abcdef")
	s.LocalDelete(0)
	s.LocalDelete(0)
	s.LocalDelete(3)

	want := 0
	for n := s.head.next; n != nil; n = n.next {
		if n.atom.Deleted {
			want++
		}
	}
	if s.TombstoneCount() != want {
		t.Fatalf("TombstoneCount: got %d, want %d", s.TombstoneCount(), want)
	}
}

// --- Concrete scenarios from spec.md §8 ---

func TestScenario_ConcurrentTailEdits(t *testing.T) {
	a := New(1)
	b := New(2)
	for _, at := range insertString(a, 0, "Hi") {
		b.RemoteMerge(at)
	}

	aOps := insertString(a, 2, " World")
	bOps := insertString(b, 2, " Bob")

	for _, at := range bOps {
		a.RemoteMerge(at)
	}
	for _, at := range aOps {
		b.RemoteMerge(at)
	}

	if a.String() != b.String() {
		t.Fatalf("peers diverged: a=%q b=%q", a.String(), b.String())
	}
}

func TestScenario_OutOfOrderDelete(t *testing.T) {
	a := New(1)
	x := a.LocalInsert(0, 'X')
	delID := a.LocalDelete(0)
	if delID != x.ID {
		t.Fatalf("LocalDelete returned %v, want %v", delID, x.ID)
	}

	b := New(2)
	// Delete arrives first, then the insert.
	deleteMsg := x
	deleteMsg.Deleted = true
	b.RemoteDelete(deleteMsg.ID)
	b.RemoteMerge(x)

	if b.String() != "" {
		t.Fatalf("got %q, want empty", b.String())
	}
	if b.TombstoneCount() != 1 {
		t.Fatalf("tombstone count: got %d, want 1", b.TombstoneCount())
	}
}

func TestScenario_GCSafety(t *testing.T) {
	a := New(1)
	a.LocalInsert(0, 'x')
	a.LocalDelete(0)

	removed := a.GarbageCollect(vclock.VClock{2: 0})
	if removed != 0 {
		t.Fatalf("removed before peer 2 connects: got %d, want 0", removed)
	}

	b := New(2)
	// Deliver a's ops the way ApplyDelta would: the insert via RemoteMerge,
	// then the delete via RemoteDelete (mirroring how a real delta batch
	// dispatches on the Deleted flag).
	var wire atom.Atom
	for n := a.head.next; n != nil; n = n.next {
		wire = n.atom
	}
	b.RemoteMerge(atom.Atom{ID: wire.ID, Origin: wire.Origin, Content: wire.Content})
	b.RemoteDelete(wire.ID)

	frontier := vclock.Min([]vclock.VClock{a.VectorClock(), b.VectorClock()})
	removed = a.GarbageCollect(frontier)
	if removed != 1 {
		t.Fatalf("removed after frontier advanced: got %d, want 1", removed)
	}
}

func TestScenario_FuzzConvergence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const nPeers = 5
	const opsPerPeer = 200

	peers := make([]*Sequence, nPeers)
	for i := range peers {
		peers[i] = New(uint64(i + 1))
	}

	var wire []atom.Atom
	for i, p := range peers {
		text := ""
		for j := 0; j < opsPerPeer; j++ {
			if len(text) > 0 && rng.Intn(3) == 0 {
				idx := rng.Intn(len(text))
				p.LocalDelete(idx)
				text = text[:idx] + text[idx+1:]
			} else {
				idx := rng.Intn(len(text) + 1)
				b := byte('a' + (i+j)%26)
				p.LocalInsert(idx, b)
				text = text[:idx] + string(b) + text[idx:]
			}
		}
	}
	for _, p := range peers {
		for n := p.head.next; n != nil; n = n.next {
			wire = append(wire, n.atom)
		}
	}
	rng.Shuffle(len(wire), func(i, j int) { wire[i], wire[j] = wire[j], wire[i] })

	for _, p := range peers {
		for _, a := range wire {
			// A tombstoned atom carries both its insert and its delete:
			// deliver the insert first, then the delete.
			insert := a
			insert.Deleted = false
			p.RemoteMerge(insert)
			if a.Deleted {
				p.RemoteDelete(a.ID)
			}
		}
	}

	want := peers[0].String()
	for _, p := range peers[1:] {
		if p.String() != want {
			t.Fatalf("fuzz convergence violated: got %q, want %q", p.String(), want)
		}
	}
}
