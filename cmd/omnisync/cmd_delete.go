package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mkovacs/omnisync/pkg/atom"
)

func (a *app) cmdDelete(args []string) int {
	flags := flag.NewFlagSet("delete", flag.ContinueOnError)
	docFlag := flags.String("doc", "", "document path (or OMNISYNC_DOC)")
	at := flags.Int("at", 0, "visible index to delete from")
	count := flags.Int("count", 1, "number of atoms to delete")
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
		fmt.Fprintf(os.Stderr, "omnisync: delete: %v\n", err)
		return 1
	}

	deleted := 0
	for j := 0; j < *count; j++ {
		if id := seq.LocalDelete(*at); id == atom.Sentinel {
			break
		}
		deleted++
	}

	if err := a.saveSequence(seq, doc); err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: delete: %v\n", err)
		return 1
	}

	if *jsonOut {
		printJSON(map[string]interface{}{"doc_id": doc.DocID, "deleted": deleted, "at": *at})
	} else {
		fmt.Printf("deleted %d atom(s) at %d from %q\n", deleted, *at, docPath)
	}
	return 0
}
