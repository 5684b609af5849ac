package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/mkovacs/omnisync/pkg/gc"
	"github.com/mkovacs/omnisync/pkg/vclock"
)

// cmdGC runs garbage collection against a document: the cross-peer
// stable-frontier coordinator by default, seeded from every peer
// snapshot the store has on file, or a local-age sweep when --local-age
// is given (unsafe across peers, useful for a single-replica document).
func (a *app) cmdGC(args []string) int {
	flags := flag.NewFlagSet("gc", flag.ContinueOnError)
	docFlag := flags.String("doc", "", "document path (or OMNISYNC_DOC)")
	localAge := flags.Uint64("local-age", 0, "run a local-age sweep this many ticks behind the Lamport clock, instead of frontier GC")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	localAgeGiven := false
	flags.Visit(func(f *flag.Flag) {
		if f.Name == "local-age" {
			localAgeGiven = true
		}
	})

	docPath, err := resolveDocPath(*docFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: %v\n", err)
		return 1
	}
	seq, doc, err := a.loadSequence(docPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: gc: %v\n", err)
		return 1
	}

	var removed int
	var frontier vclock.VClock
	mode := "frontier"

	if localAgeGiven {
		mode = "local-age"
		removed = seq.GarbageCollectLocal(*localAge)
		frontier = vclock.New()
	} else {
		coord := gc.New(doc.OwnerPeer, gc.DefaultConfig())
		coord.UpdateMyVectorClock(seq.VectorClock())

		snaps, err := a.store.ListPeerSnapshots(doc.DocID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "omnisync: gc: %v\n", err)
			return 1
		}
		for _, snap := range snaps {
			if snap.PeerID == doc.OwnerPeer {
				continue
			}
			var vc vclock.VClock
			if err := json.Unmarshal([]byte(snap.VectorClockJSON), &vc); err != nil {
				continue
			}
			coord.UpdatePeerState(snap.PeerID, vc)
		}

		frontier = coord.StableFrontier()
		removed = coord.Perform(seq)
	}

	stats := seq.MemoryStats()
	frontierJSON, _ := json.Marshal(frontier)
	if _, err := a.store.RecordGCRun(doc.DocID, stats.GC.LastDurationUS, removed, string(frontierJSON)); err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: gc: record run: %v\n", err)
	}

	if err := a.saveSequence(seq, doc); err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: gc: %v\n", err)
		return 1
	}

	if *jsonOut {
		printJSON(map[string]interface{}{
			"doc_id": doc.DocID, "mode": mode, "removed": removed,
			"frontier": frontier, "duration_us": stats.GC.LastDurationUS,
		})
	} else {
		fmt.Printf("gc %s (%s): removed %d tombstone(s) in %dus\n", doc.DocID, mode, removed, stats.GC.LastDurationUS)
	}
	return 0
}
