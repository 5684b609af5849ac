package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mkovacs/omnisync/pkg/atom"
	"github.com/mkovacs/omnisync/pkg/vclock"
)

// magic identifies an OMNI document file.
var magic = [4]byte{'O', 'M', 'N', 'I'}

// Version1 omits the vector clock; Version2 includes it.
const (
	Version1 byte = 1
	Version2 byte = 2
)

// Document is the whole-document persistence snapshot: owner peer,
// Lamport value, optionally a vector clock, and the full atom list in
// sequence order (sentinel excluded). The codec is whole-document, not
// incremental — there is no block-wise or delta-on-disk format.
type Document struct {
	OwnerPeer   uint64
	Lamport     uint64
	VectorClock vclock.VClock // nil under Version1
	Atoms       []atom.Atom
}

// WriteTo writes d to w using the given format version (Version1 or
// Version2). Version1 omits the vector clock entirely.
func (d Document) WriteTo(w io.Writer, version byte) error {
	if version != Version1 && version != Version2 {
		return fmt.Errorf("codec: unsupported document version %d", version)
	}
	if _, err := w.Write(magic[:]); err != nil {
		return fmt.Errorf("codec: write magic: %w", err)
	}
	if _, err := w.Write([]byte{version}); err != nil {
		return fmt.Errorf("codec: write version: %w", err)
	}
	if err := writeUint64(w, d.OwnerPeer); err != nil {
		return fmt.Errorf("codec: write owner peer: %w", err)
	}
	if err := writeUint64(w, d.Lamport); err != nil {
		return fmt.Errorf("codec: write lamport: %w", err)
	}
	if version == Version2 {
		if err := writeUint32(w, uint32(len(d.VectorClock))); err != nil {
			return fmt.Errorf("codec: write vector clock count: %w", err)
		}
		for peer, t := range d.VectorClock {
			if err := writeUint64(w, peer); err != nil {
				return fmt.Errorf("codec: write vector clock peer: %w", err)
			}
			if err := writeUint64(w, t); err != nil {
				return fmt.Errorf("codec: write vector clock value: %w", err)
			}
		}
	}
	if err := writeUint64(w, uint64(len(d.Atoms))); err != nil {
		return fmt.Errorf("codec: write atom count: %w", err)
	}
	for _, a := range d.Atoms {
		if _, err := w.Write(PackFixed(a)); err != nil {
			return fmt.Errorf("codec: write atom: %w", err)
		}
	}
	return nil
}

// ReadDocument reads and validates an OMNI document from r. It returns an
// error for invalid magic, an unsupported version, or any truncation —
// matching the "invalid magic or version on load returns failure" error
// policy; callers must treat a non-nil error as "leave prior state
// cleared", not attempt partial recovery.
func ReadDocument(r io.Reader) (Document, error) {
	var got [4]byte
	if _, err := io.ReadFull(r, got[:]); err != nil {
		return Document{}, fmt.Errorf("codec: read magic: %w", err)
	}
	if got != magic {
		return Document{}, fmt.Errorf("codec: bad magic %q, want %q", got, magic)
	}
	var versionBuf [1]byte
	if _, err := io.ReadFull(r, versionBuf[:]); err != nil {
		return Document{}, fmt.Errorf("codec: read version: %w", err)
	}
	version := versionBuf[0]
	if version != Version1 && version != Version2 {
		return Document{}, fmt.Errorf("codec: unsupported document version %d", version)
	}

	d := Document{}
	var err error
	if d.OwnerPeer, err = readUint64(r); err != nil {
		return Document{}, fmt.Errorf("codec: read owner peer: %w", err)
	}
	if d.Lamport, err = readUint64(r); err != nil {
		return Document{}, fmt.Errorf("codec: read lamport: %w", err)
	}
	if version == Version2 {
		count, err := readUint32(r)
		if err != nil {
			return Document{}, fmt.Errorf("codec: read vector clock count: %w", err)
		}
		d.VectorClock = make(vclock.VClock, count)
		for i := uint32(0); i < count; i++ {
			peer, err := readUint64(r)
			if err != nil {
				return Document{}, fmt.Errorf("codec: read vector clock peer: %w", err)
			}
			val, err := readUint64(r)
			if err != nil {
				return Document{}, fmt.Errorf("codec: read vector clock value: %w", err)
			}
			d.VectorClock[peer] = val
		}
	}
	atomCount, err := readUint64(r)
	if err != nil {
		return Document{}, fmt.Errorf("codec: read atom count: %w", err)
	}
	d.Atoms = make([]atom.Atom, 0, atomCount)
	buf := make([]byte, FixedSize)
	for i := uint64(0); i < atomCount; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return Document{}, fmt.Errorf("codec: read atom %d: %w", i, err)
		}
		a, ok := UnpackFixed(buf)
		if !ok {
			return Document{}, fmt.Errorf("codec: read atom %d: %w", i, ErrTruncated)
		}
		d.Atoms = append(d.Atoms, a)
	}
	return d, nil
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
