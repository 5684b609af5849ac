package main

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"

	"github.com/mkovacs/omnisync/pkg/model"
	"github.com/mkovacs/omnisync/pkg/sequence"
	"github.com/mkovacs/omnisync/pkg/store"
)

const defaultDB = "omnisync.db"

// app holds shared state for all CLI subcommands.
type app struct {
	store *store.Store
}

// newApp opens the bookkeeping database.
func newApp() (*app, error) {
	dbPath := envOr("OMNISYNC_DB", defaultDB)
	s, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("cannot open database %q: %w", dbPath, err)
	}
	return &app{store: s}, nil
}

// Close releases the database connection.
func (a *app) Close() { a.store.Close() }

// peerIDForName deterministically maps a human-chosen peer name to the
// uint64 identifier OpID needs, via FNV-1a. There is no central authority
// handing out small sequential ids across independent processes, and a
// 64-bit hash makes an accidental collision between two peer names
// negligible at the scale this tool is meant for.
func peerIDForName(name string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return h.Sum64()
}

// resolveDocPath returns the flag value if set, falling back to the
// OMNISYNC_DOC environment variable.
func resolveDocPath(flagVal string) (string, error) {
	if flagVal != "" {
		return flagVal, nil
	}
	if v := os.Getenv("OMNISYNC_DOC"); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("no document path: pass --doc or set OMNISYNC_DOC")
}

// loadSequence opens the document file at path and the store's metadata
// row for it, and returns a Sequence loaded from the file.
func (a *app) loadSequence(path string) (*sequence.Sequence, *model.Document, error) {
	doc, err := a.store.GetDocumentByPath(path)
	if err != nil {
		return nil, nil, fmt.Errorf("no document registered at %q (run 'omnisync init' first): %w", path, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	seq := sequence.New(doc.OwnerPeer)
	if err := seq.Load(f); err != nil {
		return nil, nil, fmt.Errorf("load %q: %w", path, err)
	}
	return seq, doc, nil
}

// saveSequence writes seq back to its document file and persists its
// current Lamport value to the store.
func (a *app) saveSequence(seq *sequence.Sequence, doc *model.Document) error {
	f, err := os.Create(doc.Path)
	if err != nil {
		return fmt.Errorf("create %q: %w", doc.Path, err)
	}
	defer f.Close()
	if err := seq.Save(f); err != nil {
		return fmt.Errorf("save %q: %w", doc.Path, err)
	}
	return a.store.UpdateDocumentLamport(doc.DocID, seq.Lamport().Peek())
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
