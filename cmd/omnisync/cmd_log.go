package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

func (a *app) cmdLog(args []string) int {
	flags := flag.NewFlagSet("log", flag.ContinueOnError)
	docFlag := flags.String("doc", "", "document path (or OMNISYNC_DOC)")
	since := flags.Int64("since", 0, "only show runs at or after this Unix timestamp")
	limit := flags.Int("limit", 50, "max runs to return")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	docPath, err := resolveDocPath(*docFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: %v\n", err)
		return 1
	}
	doc, err := a.store.GetDocumentByPath(docPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: log: %v\n", err)
		return 1
	}

	runs, err := a.store.ListGCRuns(doc.DocID, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "omnisync: log: %v\n", err)
		return 1
	}

	if *since > 0 {
		sinceTime := time.Unix(*since, 0)
		filtered := runs[:0]
		for _, r := range runs {
			if !r.RanAt.Before(sinceTime) {
				filtered = append(filtered, r)
			}
		}
		runs = filtered
	}

	if *jsonOut {
		printJSON(map[string]interface{}{"doc_id": doc.DocID, "runs": runs, "count": len(runs)})
		return 0
	}

	if len(runs) == 0 {
		fmt.Println("no gc runs")
		return 0
	}
	for _, r := range runs {
		fmt.Printf("[%s] removed=%-4d duration=%6dus frontier=%s\n",
			r.RanAt.Format(time.RFC3339), r.RemovedCount, r.DurationUS, r.FrontierJSON)
	}
	return 0
}
