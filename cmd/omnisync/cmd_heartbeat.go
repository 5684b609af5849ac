package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
)

func (a *app) cmdHeartbeat(args []string) int {
	flags := flag.NewFlagSet("heartbeat", flag.ContinueOnError)
	docFlag := flags.String("doc", "", "document path (or OMNISYNC_DOC)")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	docPath, err := resolveDocPath(*docFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: %v\n", err)
		return 1
	}
	seq, doc, err := a.loadSequence(docPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: heartbeat: %v\n", err)
		return 1
	}

	ts := seq.Heartbeat()

	vc := seq.VectorClock()
	vcJSON, err := json.Marshal(vc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: heartbeat: marshal vector clock: %v\n", err)
		return 1
	}
	if err := a.store.PutPeerSnapshot(doc.DocID, doc.OwnerPeer, string(vcJSON)); err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: heartbeat: %v\n", err)
		return 1
	}
	if err := a.store.TouchPeer(doc.OwnerPeer); err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: heartbeat: touch peer: %v\n", err)
	}
	if err := a.saveSequence(seq, doc); err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: heartbeat: %v\n", err)
		return 1
	}

	if *jsonOut {
		printJSON(map[string]interface{}{"doc_id": doc.DocID, "lamport_ts": ts, "vector_clock": vc})
	} else {
		fmt.Printf("heartbeat doc=%s ts=%d vc=%s\n", doc.DocID, ts, vcJSON)
	}
	return 0
}
