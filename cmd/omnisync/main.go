// Command omnisync is the CLI front end for the RGA replicated-sequence
// engine: create and inspect document files, apply local edits, and
// exchange deltas with other peers over UDP.
package main

import (
	"fmt"
	"os"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "--help", "-h", "help":
		printUsage()
		return
	case "--version", "-v", "version":
		fmt.Println("omnisync", version)
		return
	}

	a, err := newApp()
	if err != nil {
		fatal("%v", err)
	}
	defer a.Close()

	switch os.Args[1] {
	case "init":
		os.Exit(a.cmdInit(os.Args[2:]))
	case "register":
		os.Exit(a.cmdRegister(os.Args[2:]))
	case "insert":
		os.Exit(a.cmdInsert(os.Args[2:]))
	case "delete":
		os.Exit(a.cmdDelete(os.Args[2:]))
	case "heartbeat", "hb":
		os.Exit(a.cmdHeartbeat(os.Args[2:]))
	case "sync":
		os.Exit(a.cmdSync(os.Args[2:]))
	case "serve":
		os.Exit(a.cmdServe(os.Args[2:]))
	case "gc":
		os.Exit(a.cmdGC(os.Args[2:]))
	case "status":
		os.Exit(a.cmdStatus(os.Args[2:]))
	case "log":
		os.Exit(a.cmdLog(os.Args[2:]))

	default:
		fmt.Fprintf(os.Stderr, "omnisync: unknown command %q\n", os.Args[1])
		fmt.Fprintln(os.Stderr, "Run 'omnisync --help' for usage.")
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`omnisync — a replicated growable array (RGA) sequence engine

Lamport and vector clocks for causal ordering. A doubly-linked atom list
with a bounded orphan buffer for out-of-order delivery. Shared SQLite for
peer/document bookkeeping; UDP for exchanging deltas between peers.

Usage:
  omnisync <command> [flags]

Setup:
  init --peer NAME --doc PATH     Create a new document, register the peer
  register <name>                 Register a peer, print its assigned id

Editing:
  insert --doc PATH --at N TEXT   Insert TEXT at visible index N
  delete --doc PATH --at N        Delete the atom at visible index N

Replication:
  heartbeat --doc PATH            Tick the clock, snapshot vector clock
  sync --doc PATH --peer ADDR     Exchange deltas with a remote peer
  serve --doc PATH --listen ADDR  Accept inbound deltas over UDP

Maintenance:
  gc --doc PATH [--local-age N]   Run frontier GC, or local-age GC if given
  status --doc PATH               Show peers, vector clock, GC stats
  log --doc PATH [--since N]      Show the GC run log

Aliases:
  hb = heartbeat

Environment:
  OMNISYNC_DB    SQLite bookkeeping database path (default: omnisync.db)

All commands except serve support --json for machine-readable output.

Exit codes:
  0  success
  1  error
  2  sync heard no reply from the remote peer
`)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "omnisync: "+format+"\n", args...)
	os.Exit(1)
}
