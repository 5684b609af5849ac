package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

func (a *app) cmdInsert(args []string) int {
	flags := flag.NewFlagSet("insert", flag.ContinueOnError)
	docFlag := flags.String("doc", "", "document path (or OMNISYNC_DOC)")
	at := flags.Int("at", 0, "visible index to insert at")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	text := strings.Join(flags.Args(), " ")
	if text == "" {
		fmt.Fprintln(os.Stderr, "usage: omnisync insert --doc PATH --at N <text>")
		return 1
	}

	docPath, err := resolveDocPath(*docFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: %v\n", err)
		return 1
	}
	seq, doc, err := a.loadSequence(docPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: insert: %v\n", err)
		return 1
	}

	i := *at
	for j := 0; j < len(text); j++ {
		seq.LocalInsert(i, text[j])
		i++
	}

	if err := a.saveSequence(seq, doc); err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: insert: %v\n", err)
		return 1
	}

	if *jsonOut {
		printJSON(map[string]interface{}{
			"doc_id": doc.DocID, "inserted": len(text), "at": *at, "length": len([]rune(seq.String())),
		})
	} else {
		fmt.Printf("inserted %d byte(s) at %d into %q\n", len(text), *at, docPath)
	}
	return 0
}
