package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/mkovacs/omnisync/internal/protocol"
	"github.com/mkovacs/omnisync/internal/transport"
)

// inboundDatagram is one received UDP payload, handed from the receive
// goroutine to the select loop below.
type inboundDatagram struct {
	data []byte
	addr *net.UDPAddr
}

// cmdServe blocks accepting inbound GetDelta requests and Delta pushes
// over UDP, answering requests and merging pushes, until interrupted.
func (a *app) cmdServe(args []string) int {
	flags := flag.NewFlagSet("serve", flag.ContinueOnError)
	docFlag := flags.String("doc", "", "document path (or OMNISYNC_DOC)")
	listen := flags.String("listen", ":9999", "address to listen on, host:port")
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
		fmt.Fprintf(os.Stderr, "omnisync: serve: %v\n", err)
		return 1
	}

	_, portStr, err := net.SplitHostPort(*listen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: serve: parse %q: %v\n", *listen, err)
		return 1
	}
	port := 0
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: serve: parse port %q: %v\n", portStr, err)
		return 1
	}

	sock, err := transport.Bind(port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: serve: %v\n", err)
		return 1
	}
	defer sock.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	incoming := make(chan inboundDatagram, 16)
	done := make(chan struct{})
	go func() {
		for {
			buf, addr, err := sock.Recv()
			if err != nil {
				close(done)
				return
			}
			incoming <- inboundDatagram{data: append([]byte(nil), buf...), addr: addr}
		}
	}()

	fmt.Fprintf(os.Stderr, "serving %s on %s (doc_id=%s, ctrl-c to stop)\n", doc.Path, sock.LocalAddr(), doc.DocID)

	requests, pushes := 0, 0
	for {
		select {
		case <-sig:
			fmt.Fprintln(os.Stderr, "\nstopped")
			if err := a.saveSequence(seq, doc); err != nil {
				fmt.Fprintf(os.Stderr, "omnisync: serve: %v\n", err)
				return 1
			}
			fmt.Fprintf(os.Stderr, "served %d request(s), %d push(es)\n", requests, pushes)
			return 0
		case <-done:
			fmt.Fprintln(os.Stderr, "socket closed")
			return 1
		case dg := <-incoming:
			msg, err := protocol.Decode(dg.data)
			if err != nil {
				continue
			}
			switch msg.Kind {
			case protocol.KindGetDelta:
				requests++
				outbound := seq.GetDelta(msg.VectorClock)
				for _, chunk := range protocol.ChunkAtoms(outbound) {
					reply := protocol.Encode(protocol.Message{Kind: protocol.KindDelta, VectorClock: seq.VectorClock(), Atoms: chunk})
					if err := sock.Send(dg.addr, reply); err != nil {
						fmt.Fprintf(os.Stderr, "omnisync: serve: reply to %s: %v\n", dg.addr, err)
						break
					}
				}
				if len(outbound) == 0 {
					empty := protocol.Encode(protocol.Message{Kind: protocol.KindDelta, VectorClock: seq.VectorClock()})
					_ = sock.Send(dg.addr, empty)
				}
			case protocol.KindDelta:
				pushes++
				seq.ApplyDelta(msg.Atoms)
				seq.MergeVectorClock(msg.VectorClock)
				if err := a.saveSequence(seq, doc); err != nil {
					fmt.Fprintf(os.Stderr, "omnisync: serve: %v\n", err)
				}
			}
		}
	}
}
