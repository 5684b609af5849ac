package protocol

import (
	"testing"

	"github.com/mkovacs/omnisync/pkg/atom"
	"github.com/mkovacs/omnisync/pkg/vclock"
)

func TestGetDeltaRoundTrip(t *testing.T) {
	vc := vclock.New()
	vc.Update(1, 5)
	vc.Update(2, 9)

	buf := Encode(Message{Kind: KindGetDelta, VectorClock: vc})
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Kind != KindGetDelta {
		t.Fatalf("Kind: got %v, want KindGetDelta", got.Kind)
	}
	if got.VectorClock.Compare(vc) != vclock.Equal {
		t.Fatalf("VectorClock: got %v, want %v", got.VectorClock, vc)
	}
	if len(got.Atoms) != 0 {
		t.Fatalf("expected no atoms on a GetDelta message, got %d", len(got.Atoms))
	}
}

func TestDeltaRoundTrip(t *testing.T) {
	vc := vclock.New()
	vc.Update(1, 3)

	atoms := []atom.Atom{
		{ID: atom.OpID{Peer: 1, Clock: 1}, Origin: atom.Sentinel, Content: 'a'},
		{ID: atom.OpID{Peer: 1, Clock: 2}, Origin: atom.OpID{Peer: 1, Clock: 1}, Content: 'b', Deleted: true},
	}

	buf := Encode(Message{Kind: KindDelta, VectorClock: vc, Atoms: atoms})
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Kind != KindDelta {
		t.Fatalf("Kind: got %v, want KindDelta", got.Kind)
	}
	if len(got.Atoms) != len(atoms) {
		t.Fatalf("Atoms: got %d, want %d", len(got.Atoms), len(atoms))
	}
	for i, want := range atoms {
		if got.Atoms[i] != want {
			t.Fatalf("Atoms[%d]: got %+v, want %+v", i, got.Atoms[i], want)
		}
	}
}

func TestDecodeEmptyBufferFails(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Fatal("expected error decoding an empty buffer")
	}
}

func TestDecodeTruncatedDeltaFails(t *testing.T) {
	vc := vclock.New()
	vc.Update(1, 1)
	buf := Encode(Message{Kind: KindDelta, VectorClock: vc, Atoms: []atom.Atom{
		{ID: atom.OpID{Peer: 1, Clock: 1}, Origin: atom.Sentinel, Content: 'x'},
	}})
	if _, err := Decode(buf[:len(buf)-1]); err == nil {
		t.Fatal("expected error decoding a truncated delta message")
	}
}

func TestChunkAtomsRespectsMax(t *testing.T) {
	atoms := make([]atom.Atom, MaxAtomsPerMessage*2+1)
	for i := range atoms {
		atoms[i] = atom.Atom{ID: atom.OpID{Peer: 1, Clock: uint64(i + 1)}}
	}
	chunks := ChunkAtoms(atoms)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if len(chunks[0]) != MaxAtomsPerMessage || len(chunks[1]) != MaxAtomsPerMessage || len(chunks[2]) != 1 {
		t.Fatalf("unexpected chunk sizes: %d, %d, %d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
}

func TestChunkAtomsEmptyIsNil(t *testing.T) {
	if got := ChunkAtoms(nil); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}

func TestGetDeltaMessageCarriesNoAtomsEvenIfSet(t *testing.T) {
	m := Message{Kind: KindGetDelta, VectorClock: vclock.New(), Atoms: []atom.Atom{
		{ID: atom.OpID{Peer: 1, Clock: 1}},
	}}
	buf := Encode(m)
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Atoms) != 0 {
		t.Fatalf("expected Atoms field to be ignored for KindGetDelta, got %d", len(got.Atoms))
	}
}
