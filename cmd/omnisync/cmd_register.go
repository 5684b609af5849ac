package main

import (
	"flag"
	"fmt"
	"os"
)

func (a *app) cmdRegister(args []string) int {
	flags := flag.NewFlagSet("register", flag.ContinueOnError)
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if flags.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: omnisync register <name> [--json]")
		return 1
	}
	name := flags.Arg(0)

	peer, err := a.store.RegisterPeer(peerIDForName(name), name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: register: %v\n", err)
		return 1
	}

	if *jsonOut {
		printJSON(peer)
	} else {
		fmt.Printf("registered peer %q as peer_id=%d\n", peer.Name, peer.PeerID)
	}
	return 0
}
