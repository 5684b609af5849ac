// Command omnisync-chat is a two-peer interactive demo of the sequence
// engine: it reads stdin line by line, applies each character as a
// local insert (or the last character as a local delete on a bare
// "/del" line), ships the resulting atom to the peer as a single VLE-
// encoded datagram, and renders the live-merged document to stdout as
// atoms arrive from either side. It owns no CRDT logic of its own --
// every mutation goes through Sequence.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/mkovacs/omnisync/internal/transport"
	"github.com/mkovacs/omnisync/pkg/atom"
	"github.com/mkovacs/omnisync/pkg/codec"
	"github.com/mkovacs/omnisync/pkg/sequence"
)

func main() {
	id := flag.Uint64("id", 0, "this peer's numeric id (required)")
	myPort := flag.Int("port", 0, "local UDP port to bind (required)")
	peerAddr := flag.String("peer", "", "peer address, host:port (required)")
	flag.Parse()

	if *id == 0 || *myPort == 0 || *peerAddr == "" {
		fmt.Fprintln(os.Stderr, "usage: omnisync-chat --id N --port N --peer HOST:PORT")
		os.Exit(1)
	}

	addr, err := net.ResolveUDPAddr("udp", *peerAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "omnisync-chat: resolve peer: %v\n", err)
		os.Exit(1)
	}
	sock, err := transport.Bind(*myPort)
	if err != nil {
		fmt.Fprintf(os.Stderr, "omnisync-chat: bind: %v\n", err)
		os.Exit(1)
	}
	defer sock.Close()

	doc := sequence.New(*id)

	fmt.Printf("--- omnisync chat --- id=%d port=%d -> peer %s\n", *id, *myPort, addr)
	fmt.Println("type to append; a line of just /del deletes the last character; /quit exits")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	packets := make(chan []byte)
	go func() {
		for {
			data, _, err := sock.Recv()
			if err != nil {
				close(packets)
				return
			}
			packets <- data
		}
	}()

	render := func() { fmt.Printf("\r%s_\n", doc.String()) }
	render()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch line {
			case "/quit":
				return
			case "/del":
				current := doc.String()
				if len(current) == 0 {
					continue
				}
				target := doc.LocalDelete(len(current) - 1)
				if target == atom.Sentinel {
					continue
				}
				tombstone := atom.Atom{ID: target, Deleted: true}
				if err := sock.Send(addr, codec.PackVLE(tombstone)); err != nil {
					fmt.Fprintf(os.Stderr, "omnisync-chat: send: %v\n", err)
				}
			default:
				current := len([]rune(doc.String()))
				for i := 0; i < len(line); i++ {
					a := doc.LocalInsert(current, line[i])
					current++
					if err := sock.Send(addr, codec.PackVLE(a)); err != nil {
						fmt.Fprintf(os.Stderr, "omnisync-chat: send: %v\n", err)
					}
				}
				newline := doc.LocalInsert(current, '\n')
				sock.Send(addr, codec.PackVLE(newline))
			}
			render()

		case data, ok := <-packets:
			if !ok {
				fmt.Fprintln(os.Stderr, "omnisync-chat: socket closed")
				return
			}
			a, _, ok := codec.UnpackVLE(data, 0)
			if !ok {
				continue
			}
			if a.Deleted {
				doc.RemoteDelete(a.ID)
			} else {
				doc.RemoteMerge(a)
			}
			render()
		}
	}
}
