// Package protocol implements the small message envelope `sync` and
// `serve` exchange over internal/transport: a GetDelta request carrying
// the sender's vector clock, and a Delta reply carrying the sender's
// vector clock plus the atoms the other side hasn't seen yet. Both
// message kinds reuse pkg/codec's VLE primitives for the wire
// representation rather than inventing a second encoding.
package protocol

import (
	"fmt"

	"github.com/mkovacs/omnisync/pkg/atom"
	"github.com/mkovacs/omnisync/pkg/codec"
	"github.com/mkovacs/omnisync/pkg/vclock"
)

// Kind identifies which of the two message shapes a packet carries.
type Kind byte

const (
	// KindGetDelta carries only a vector clock: "send me what I haven't
	// seen yet, relative to this".
	KindGetDelta Kind = 1
	// KindDelta carries a vector clock plus a batch of atoms: the
	// sender's current clock and the atoms it believes the recipient is
	// missing.
	KindDelta Kind = 2
)

// Message is one packet of the sync wire protocol.
type Message struct {
	Kind        Kind
	VectorClock vclock.VClock
	Atoms       []atom.Atom // only meaningful for KindDelta
}

// MaxAtomsPerMessage bounds how many atoms a single KindDelta message
// packs, keeping the encoded payload comfortably inside a UDP datagram
// even for the largest VLE atom encoding (42 bytes).
const MaxAtomsPerMessage = 64

// ChunkAtoms splits atoms into batches of at most MaxAtomsPerMessage, for
// callers that need to send a delta as multiple KindDelta messages.
func ChunkAtoms(atoms []atom.Atom) [][]atom.Atom {
	if len(atoms) == 0 {
		return nil
	}
	var chunks [][]atom.Atom
	for len(atoms) > 0 {
		n := MaxAtomsPerMessage
		if n > len(atoms) {
			n = len(atoms)
		}
		chunks = append(chunks, atoms[:n])
		atoms = atoms[n:]
	}
	return chunks
}

// Encode serializes m into a single UDP-sized datagram payload.
func Encode(m Message) []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, byte(m.Kind))
	buf = encodeVClock(m.VectorClock, buf)
	if m.Kind == KindDelta {
		buf = codec.EncodeUint64(uint64(len(m.Atoms)), buf)
		for _, a := range m.Atoms {
			buf = append(buf, codec.PackVLE(a)...)
		}
	}
	return buf
}

// Decode parses a datagram payload produced by Encode.
func Decode(buf []byte) (Message, error) {
	if len(buf) < 1 {
		return Message{}, fmt.Errorf("protocol: empty message")
	}
	kind := Kind(buf[0])
	vc, offset, ok := decodeVClock(buf, 1)
	if !ok {
		return Message{}, codec.ErrTruncated
	}
	m := Message{Kind: kind, VectorClock: vc}
	if kind != KindDelta {
		return m, nil
	}
	count, offset, ok := codec.DecodeUint64(buf, offset)
	if !ok {
		return Message{}, codec.ErrTruncated
	}
	m.Atoms = make([]atom.Atom, 0, count)
	for i := uint64(0); i < count; i++ {
		var a atom.Atom
		a, offset, ok = codec.UnpackVLE(buf, offset)
		if !ok {
			return Message{}, codec.ErrTruncated
		}
		m.Atoms = append(m.Atoms, a)
	}
	return m, nil
}

// encodeVClock appends a peer-count-prefixed list of (peer, clock) pairs.
func encodeVClock(vc vclock.VClock, out []byte) []byte {
	out = codec.EncodeUint64(uint64(len(vc)), out)
	for peer, t := range vc {
		out = codec.EncodeUint64(peer, out)
		out = codec.EncodeUint64(t, out)
	}
	return out
}

func decodeVClock(buf []byte, offset int) (vclock.VClock, int, bool) {
	count, offset, ok := codec.DecodeUint64(buf, offset)
	if !ok {
		return nil, offset, false
	}
	vc := make(vclock.VClock, count)
	for i := uint64(0); i < count; i++ {
		peer, next, ok := codec.DecodeUint64(buf, offset)
		if !ok {
			return nil, offset, false
		}
		t, next2, ok := codec.DecodeUint64(buf, next)
		if !ok {
			return nil, offset, false
		}
		vc[peer] = t
		offset = next2
	}
	return vc, offset, true
}
