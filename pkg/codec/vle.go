package codec

import (
	"fmt"

	"github.com/mkovacs/omnisync/pkg/atom"
)

// maxVarintBytes is the most bytes a 64-bit value can take under LEB128:
// ceil(64/7) = 10.
const maxVarintBytes = 10

// EncodeUint64 appends the LEB128 (little-endian base-128) encoding of v to
// out and returns the extended slice. Each byte carries 7 data bits; the
// high bit is a continuation flag set on every byte but the last.
func EncodeUint64(v uint64, out []byte) []byte {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

// DecodeUint64 decodes a LEB128-encoded value starting at buf[offset] and
// returns the value, the offset immediately after the decoded bytes, and
// true on success. It fails (returns false) if the buffer ends mid-number
// or if decoding would require more than 10 bytes (64-bit overflow).
func DecodeUint64(buf []byte, offset int) (value uint64, next int, ok bool) {
	shift := uint(0)
	for next = offset; next < len(buf); next++ {
		b := buf[next]
		value |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return value, next + 1, true
		}
		shift += 7
		if shift >= 64 {
			return 0, offset, false
		}
	}
	return 0, offset, false
}

// EncodedSizeUint64 returns the number of bytes EncodeUint64 would produce
// for v, without allocating.
func EncodedSizeUint64(v uint64) int {
	n := 1
	for v >>= 7; v != 0; v >>= 7 {
		n++
	}
	return n
}

// EncodeInt64 ZigZag-encodes a signed value and appends its LEB128 form to
// out. ZigZag maps small-magnitude negatives to small unsigned values
// (0->0, -1->1, 1->2, -2->3, ...), which this package does not otherwise
// need for CRDT ids or clocks but carries for wire-format completeness.
func EncodeInt64(v int64, out []byte) []byte {
	zigzag := uint64(v<<1) ^ uint64(v>>63)
	return EncodeUint64(zigzag, out)
}

// DecodeInt64 decodes a ZigZag/LEB128-encoded signed value.
func DecodeInt64(buf []byte, offset int) (value int64, next int, ok bool) {
	zigzag, next, ok := DecodeUint64(buf, offset)
	if !ok {
		return 0, offset, false
	}
	value = int64(zigzag>>1) ^ -int64(zigzag&1)
	return value, next, true
}

// PackVLE serializes a into a variable-length encoding: the four OpID
// fields as LEB128 varints, followed by the content and deleted bytes.
// Total size ranges 6-42 bytes; 6-8 is typical for small peer counts and
// recent clocks.
func PackVLE(a atom.Atom) []byte {
	buf := make([]byte, 0, 2*maxVarintBytes+2)
	buf = EncodeUint64(a.ID.Peer, buf)
	buf = EncodeUint64(a.ID.Clock, buf)
	buf = EncodeUint64(a.Origin.Peer, buf)
	buf = EncodeUint64(a.Origin.Clock, buf)
	buf = append(buf, a.Content)
	if a.Deleted {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

// UnpackVLE deserializes a VLE-encoded atom starting at buf[offset] and
// returns the atom, the offset immediately after it, and true on success.
// This lets callers pack several atoms contiguously and decode them one
// after another.
func UnpackVLE(buf []byte, offset int) (atom.Atom, int, bool) {
	idPeer, offset, ok := DecodeUint64(buf, offset)
	if !ok {
		return atom.Atom{}, offset, false
	}
	idClock, offset, ok := DecodeUint64(buf, offset)
	if !ok {
		return atom.Atom{}, offset, false
	}
	originPeer, offset, ok := DecodeUint64(buf, offset)
	if !ok {
		return atom.Atom{}, offset, false
	}
	originClock, offset, ok := DecodeUint64(buf, offset)
	if !ok {
		return atom.Atom{}, offset, false
	}
	if offset+2 > len(buf) {
		return atom.Atom{}, offset, false
	}
	content := buf[offset]
	deleted := buf[offset+1] != 0
	offset += 2
	return atom.Atom{
		ID:      atom.OpID{Peer: idPeer, Clock: idClock},
		Origin:  atom.OpID{Peer: originPeer, Clock: originClock},
		Content: content,
		Deleted: deleted,
	}, offset, true
}

// ErrTruncated is returned by decode helpers when a buffer ends before a
// complete value could be read.
var ErrTruncated = fmt.Errorf("codec: truncated or malformed input")
