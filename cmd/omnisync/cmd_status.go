package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mkovacs/omnisync/pkg/model"
)

func (a *app) cmdStatus(args []string) int {
	flags := flag.NewFlagSet("status", flag.ContinueOnError)
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
		fmt.Fprintf(os.Stderr, "omnisync: status: %v\n", err)
		return 1
	}

	peers, err := a.store.ListPeers()
	if err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: status: %v\n", err)
		return 1
	}
	snaps, _ := a.store.ListPeerSnapshots(doc.DocID)
	runs, _ := a.store.ListGCRuns(doc.DocID, 5)
	stats := seq.MemoryStats()
	vc := seq.VectorClock()

	if *jsonOut {
		printJSON(map[string]interface{}{
			"doc_id": doc.DocID, "owner_peer": doc.OwnerPeer, "lamport": seq.Lamport().Peek(),
			"vector_clock": vc, "peers": peers, "snapshots": snaps,
			"recent_gc_runs": runs, "memory": stats,
		})
		return 0
	}

	fmt.Printf("document %s (owner peer %d, lamport=%d)\n", doc.DocID, doc.OwnerPeer, seq.Lamport().Peek())
	fmt.Printf("vector clock: %v\n", vc)

	fmt.Println("peers:")
	for _, p := range peers {
		marker := ""
		if p.PeerID == doc.OwnerPeer {
			marker = " <-- you"
		}
		fmt.Printf("  %s %-20s peer_id=%-20d last_seen=%s%s\n",
			presenceIndicator(p), p.Name, p.PeerID, p.LastSeenAt.Format("15:04:05"), marker)
	}

	fmt.Printf("atoms: %d total, %d tombstoned, %d orphaned, %d pending-delete\n",
		stats.AtomCount, stats.TombstoneCount, stats.OrphanCount, stats.PendingDeleteCount)
	fmt.Printf("memory: %d bytes (atoms=%d index=%d orphans=%d vclock=%d)\n",
		stats.TotalBytes(), stats.AtomBytes, stats.IndexBytes, stats.OrphanBytes, stats.VectorClockBytes)

	if stats.GC.Runs > 0 {
		fmt.Printf("gc: %d run(s), %d tombstone(s) freed, avg=%dus max=%dus\n",
			stats.GC.Runs, stats.GC.TombstonesFreed, stats.GC.AvgDurationUS(), stats.GC.MaxDurationUS)
	} else {
		fmt.Println("gc: no runs yet this process")
	}
	if len(runs) > 0 {
		fmt.Println("recent gc runs (persisted):")
		for _, r := range runs {
			fmt.Printf("  [%s] removed=%-4d duration=%dus\n", r.RanAt.Format("15:04:05"), r.RemovedCount, r.DurationUS)
		}
	}
	return 0
}

// presenceIndicator returns a short text indicator based on last_seen
// time, mirroring the teacher's online/idle/offline convention.
func presenceIndicator(p model.Peer) string {
	switch since := time.Since(p.LastSeenAt); {
	case since < 2*time.Minute:
		return "[+]"
	case since < 10*time.Minute:
		return "[~]"
	default:
		return "[-]"
	}
}
