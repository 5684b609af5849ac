package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/mkovacs/omnisync/internal/protocol"
	"github.com/mkovacs/omnisync/internal/transport"
	"github.com/mkovacs/omnisync/pkg/vclock"
)

// cmdSync exchanges deltas with a remote peer: it announces its own
// vector clock, applies whatever the remote sends back, then pushes back
// the atoms the remote's reported clock shows it hasn't seen yet.
// Mirrors the teacher's `cm sync`'s heartbeat+recv+frontier combination,
// adapted to vector clocks and a UDP round trip instead of shared SQLite.
func (a *app) cmdSync(args []string) int {
	flags := flag.NewFlagSet("sync", flag.ContinueOnError)
	docFlag := flags.String("doc", "", "document path (or OMNISYNC_DOC)")
	peerAddr := flags.String("peer", "", "remote peer address, host:port (required)")
	timeout := flags.Duration("timeout", 3*time.Second, "time to wait for replies before pushing back")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if *peerAddr == "" {
		fmt.Fprintln(os.Stderr, "usage: omnisync sync --doc PATH --peer ADDR")
		return 1
	}

	docPath, err := resolveDocPath(*docFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: %v\n", err)
		return 1
	}
	seq, doc, err := a.loadSequence(docPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: sync: %v\n", err)
		return 1
	}

	remote, err := net.ResolveUDPAddr("udp", *peerAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: sync: resolve %q: %v\n", *peerAddr, err)
		return 1
	}

	sock, err := transport.Bind(0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: sync: %v\n", err)
		return 1
	}
	defer sock.Close()

	req := protocol.Encode(protocol.Message{Kind: protocol.KindGetDelta, VectorClock: seq.VectorClock()})
	if err := sock.Send(remote, req); err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: sync: %v\n", err)
		return 1
	}

	var remoteVC vclock.VClock
	applied := 0
	for {
		buf, _, err := sock.RecvTimeout(*timeout)
		if err != nil {
			break
		}
		msg, err := protocol.Decode(buf)
		if err != nil || msg.Kind != protocol.KindDelta {
			continue
		}
		seq.ApplyDelta(msg.Atoms)
		seq.MergeVectorClock(msg.VectorClock)
		remoteVC = msg.VectorClock
		applied += len(msg.Atoms)
	}

	sent := 0
	if remoteVC != nil {
		for _, chunk := range protocol.ChunkAtoms(seq.GetDelta(remoteVC)) {
			payload := protocol.Encode(protocol.Message{Kind: protocol.KindDelta, VectorClock: seq.VectorClock(), Atoms: chunk})
			if err := sock.Send(remote, payload); err != nil {
				fmt.Fprintf(os.Stderr, "omnisync: sync: send: %v\n", err)
				break
			}
			sent += len(chunk)
		}
	}

	if err := a.saveSequence(seq, doc); err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: sync: %v\n", err)
		return 1
	}

	if *jsonOut {
		printJSON(map[string]interface{}{
			"doc_id": doc.DocID, "peer": *peerAddr, "applied": applied, "sent": sent,
			"heard_back": remoteVC != nil,
		})
	} else if remoteVC == nil {
		fmt.Printf("sync %s: no reply from %s within %s\n", doc.DocID, *peerAddr, *timeout)
	} else {
		fmt.Printf("sync %s <-> %s: applied %d atom(s), sent %d atom(s)\n", doc.DocID, *peerAddr, applied, sent)
	}
	if remoteVC == nil {
		return 2
	}
	return 0
}
