package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"

	"consolidate/internal/datasource/file"
)

// Orchestrator runs datasets strictly in order. A failed dataset is reported
// in its Result and never stops the remaining ones.
type Orchestrator struct {
	proc      *Processor
	log       *log.Logger
	outputDir string
}

// NewOrchestrator returns an Orchestrator driving proc.
func NewOrchestrator(proc *Processor, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = proc.log
	}
	return &Orchestrator{proc: proc, log: logger, outputDir: proc.opt.OutputDir}
}

// Run processes datasets in the given order and returns one Result each.
func (o *Orchestrator) Run(ctx context.Context, datasets []string) []Result {
	start := time.Now()
	o.log.Printf("job: start datasets=%s input=%s output=%s",
		strings.Join(datasets, ","), o.proc.opt.InputRoot, o.outputDir)
	o.log.Printf("job: %s", file.DescribeFreeSpace(o.outputDir))

	results := make([]Result, 0, len(datasets))
	failed := 0
	for _, name := range datasets {
		res := o.proc.Process(ctx, name)
		if !res.OK() {
			failed++
		}
		results = append(results, res)
	}

	o.log.Printf("job: end datasets=%d failed=%d in %s", len(datasets), failed, time.Since(start).Round(time.Millisecond))
	return results
}

// Failed returns the number of unsuccessful results.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.OK() {
			n++
		}
	}
	return n
}

// WriteSummary renders one table row per dataset to w, followed by an error
// line for every failed dataset and the given log file paths.
func WriteSummary(w io.Writer, results []Result, logPaths ...string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.Style().Format.Header = text.FormatDefault

	t.AppendHeader(table.Row{"Dataset", "Status", "Rows", "Malformed", "Dup seen", "Columns", "Duration"})
	for _, r := range results {
		status := "ok"
		switch {
		case r.Skipped:
			status = "skipped"
		case !r.OK():
			status = "FAILED (" + string(r.Phase) + ")"
		}
		s := r.Stats
		t.AppendRow(table.Row{
			r.Dataset,
			status,
			humanize.Comma(s.Rows),
			humanize.Comma(s.Malformed),
			s.DupSeen,
			len(s.Columns),
			r.Duration.Round(time.Millisecond),
		})
	}
	t.Render()

	for _, r := range results {
		if !r.OK() {
			fmt.Fprintf(w, "error: %v\n", r.Err)
		}
	}
	for _, p := range logPaths {
		fmt.Fprintf(w, "log: %s\n", p)
	}
}
