// Package codec implements the wire and on-disk serialization formats for
// atoms: a fixed 34-byte binary layout, a variable-length (LEB128) layout,
// and the "OMNI" whole-document persistence format built on top of the
// fixed layout.
package codec

import (
	"encoding/binary"

	"github.com/mkovacs/omnisync/pkg/atom"
)

// FixedSize is the exact byte length of a fixed-codec atom.
const FixedSize = 34

// PackFixed serializes a into the fixed 34-byte little-endian layout:
//
//	[0:8]   id.peer
//	[8:16]  id.clock
//	[16:24] origin.peer
//	[24:32] origin.clock
//	[32]    content
//	[33]    deleted (0/1)
func PackFixed(a atom.Atom) []byte {
	buf := make([]byte, FixedSize)
	binary.LittleEndian.PutUint64(buf[0:8], a.ID.Peer)
	binary.LittleEndian.PutUint64(buf[8:16], a.ID.Clock)
	binary.LittleEndian.PutUint64(buf[16:24], a.Origin.Peer)
	binary.LittleEndian.PutUint64(buf[24:32], a.Origin.Clock)
	buf[32] = a.Content
	if a.Deleted {
		buf[33] = 1
	}
	return buf
}

// UnpackFixed deserializes a fixed-codec atom from buf. It reports false
// if buf is shorter than FixedSize.
func UnpackFixed(buf []byte) (atom.Atom, bool) {
	if len(buf) < FixedSize {
		return atom.Atom{}, false
	}
	return atom.Atom{
		ID: atom.OpID{
			Peer:  binary.LittleEndian.Uint64(buf[0:8]),
			Clock: binary.LittleEndian.Uint64(buf[8:16]),
		},
		Origin: atom.OpID{
			Peer:  binary.LittleEndian.Uint64(buf[16:24]),
			Clock: binary.LittleEndian.Uint64(buf[24:32]),
		},
		Content: buf[32],
		Deleted: buf[33] != 0,
	}, true
}
