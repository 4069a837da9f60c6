package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"DigestRanker/internal/digest"
	"DigestRanker/internal/usecase"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	titleColor  = color.New(color.Bold)
	linkColor   = color.New(color.FgBlue)
	mutedColor  = color.New(color.FgHiBlack)
	okColor     = color.New(color.FgGreen)
	errorColor  = color.New(color.FgRed, color.Bold)
)

// printReport renders one run for the terminal.
func printReport(w io.Writer, f *digest.Formatter, r usecase.RunReport, dryRun bool) {
	mode := "published"
	switch {
	case dryRun:
		mode = "dry run"
	case !r.Marked:
		mode = "not marked"
	}
	headerColor.Fprintf(w, "%s", r.Topic)
	mutedColor.Fprintf(w, "  run %s · %s · fetched %d · selected %d · llm ok %d rejected %d failed %d\n",
		r.RunID, mode, r.Fetched, len(r.Selection.Candidates), r.LLM.Scored, r.LLM.Rejected, r.LLM.Failed)

	if r.Empty {
		mutedColor.Fprintln(w, "  no output this cycle")
		return
	}
	for _, it := range f.Items(r.Digest) {
		titleColor.Fprintf(w, "%2d. %s", it.Rank, it.Title)
		if it.Topic != "" {
			mutedColor.Fprintf(w, " [%s]", it.Topic)
		}
		fmt.Fprintf(w, " (%.0f)\n", it.Score)
		if it.Description != "" {
			fmt.Fprintf(w, "    %s\n", it.Description)
		}
		linkColor.Fprintf(w, "    %s\n", it.URL)
	}
}
