// Command omnisync-bench is a convergence and stability harness: it
// spins up N in-process Sequence peers, feeds each a configurable
// number of randomly interleaved local inserts/deletes, shuffles the
// resulting atom stream, replays it into every other peer, runs local-
// age garbage collection along the way, and finally asserts that every
// peer converged to the same visible text. It prints codec-size and
// GC-duration statistics gathered from MemoryStats along the way.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/mkovacs/omnisync/pkg/atom"
	"github.com/mkovacs/omnisync/pkg/codec"
	"github.com/mkovacs/omnisync/pkg/sequence"
)

type opRecord struct {
	origin int // index of the peer that performed the op
	insert atom.Atom
	isDel  bool
	delTgt atom.OpID
}

func main() {
	numPeers := flag.Int("peers", 5, "number of simulated peers")
	opsPerPeer := flag.Int("ops", 2000, "operations per peer")
	seed := flag.Int64("seed", 1, "PRNG seed")
	gcEvery := flag.Int("gc-every", 500, "run local-age GC on every peer every N total ops (0 disables)")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	peers := make([]*sequence.Sequence, *numPeers)
	for i := range peers {
		peers[i] = sequence.New(uint64(i + 1))
	}

	var log []opRecord
	totalOps := *numPeers * *opsPerPeer
	fmt.Printf("=== omnisync-bench ===\npeers=%d ops/peer=%d total=%d seed=%d\n\n",
		*numPeers, *opsPerPeer, totalOps, *seed)

	opCount := 0
	for round := 0; round < *opsPerPeer; round++ {
		for i, p := range peers {
			text := p.String()
			if len(text) == 0 || rng.Intn(2) == 0 {
				pos := len(text)
				if len(text) > 0 {
					pos = rng.Intn(len(text) + 1)
				}
				ch := byte('A' + rng.Intn(26))
				a := p.LocalInsert(pos, ch)
				log = append(log, opRecord{origin: i, insert: a})
			} else {
				pos := rng.Intn(len(text))
				target := p.LocalDelete(pos)
				if target != atom.Sentinel {
					log = append(log, opRecord{origin: i, isDel: true, delTgt: target})
				}
			}
			opCount++

			if *gcEvery > 0 && opCount%*gcEvery == 0 {
				for _, q := range peers {
					q.GarbageCollectLocal(100)
				}
			}
		}
	}

	// Shuffle delivery order, then replay every logged op into every
	// peer other than the one that originated it.
	rng.Shuffle(len(log), func(a, b int) { log[a], log[b] = log[b], log[a] })

	var wireBytes int
	for _, rec := range log {
		var encoded []byte
		if rec.isDel {
			encoded = codec.PackVLE(atom.Atom{ID: rec.delTgt, Deleted: true})
		} else {
			encoded = codec.PackVLE(rec.insert)
		}
		wireBytes += len(encoded)

		for i, p := range peers {
			if i == rec.origin {
				continue
			}
			if rec.isDel {
				p.RemoteDelete(rec.delTgt)
			} else {
				p.RemoteMerge(rec.insert)
			}
		}
	}

	fmt.Printf("replayed %d ops, %d wire bytes (%.1f bytes/op average)\n\n",
		len(log), wireBytes, float64(wireBytes)/float64(len(log)))

	reference := peers[0].String()
	converged := true
	for i := 1; i < len(peers); i++ {
		if peers[i].String() != reference {
			fmt.Printf("CONVERGENCE FAILURE: peer %d differs from peer 0\n", i)
			converged = false
		}
	}

	fmt.Println("peer memory stats:")
	for i, p := range peers {
		stats := p.MemoryStats()
		fmt.Printf("  peer %d: atoms=%-6d tombstones=%-6d orphans=%-4d bytes=%-8d gc_runs=%-4d gc_avg_us=%d\n",
			i+1, stats.AtomCount, stats.TombstoneCount, stats.OrphanCount, stats.TotalBytes(),
			stats.GC.Runs, stats.GC.AvgDurationUS())
	}

	if converged {
		fmt.Printf("\nSUCCESS: all %d peers converged to %d visible characters\n", len(peers), len(reference))
		os.Exit(0)
	}
	fmt.Println("\nFAILURE: peers did not converge")
	os.Exit(1)
}
