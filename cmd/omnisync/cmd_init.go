package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/mkovacs/omnisync/pkg/sequence"
)

func (a *app) cmdInit(args []string) int {
	flags := flag.NewFlagSet("init", flag.ContinueOnError)
	peerName := flags.String("peer", "", "this peer's name (required)")
	docPath := flags.String("doc", "document.omni", "path for the new document file")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if *peerName == "" {
		fmt.Fprintln(os.Stderr, "usage: omnisync init --peer NAME [--doc PATH]")
		return 1
	}
	if _, err := os.Stat(*docPath); err == nil {
		fmt.Fprintf(os.Stderr, "omnisync: init: %q already exists\n", *docPath)
		return 1
	}

	peerID := peerIDForName(*peerName)
	peer, err := a.store.RegisterPeer(peerID, *peerName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: init: register peer: %v\n", err)
		return 1
	}

	seq := sequence.New(peerID)
	f, err := os.Create(*docPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: init: %v\n", err)
		return 1
	}
	if err := seq.Save(f); err != nil {
		f.Close()
		fmt.Fprintf(os.Stderr, "omnisync: init: save: %v\n", err)
		return 1
	}
	f.Close()

	docID := uuid.New().String()
	doc, err := a.store.CreateDocument(docID, peerID, *docPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: init: register document: %v\n", err)
		return 1
	}

	if *jsonOut {
		printJSON(map[string]interface{}{"peer": peer, "document": doc})
	} else {
		fmt.Printf("initialized %q (doc_id=%s) owned by peer %q (peer_id=%d)\n",
			doc.Path, doc.DocID, peer.Name, peer.PeerID)
		fmt.Fprintf(os.Stderr, "hint: export OMNISYNC_DOC=%s\n", doc.Path)
	}
	return 0
}
