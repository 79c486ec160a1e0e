package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/aluiziolira/marketplace-capture/cleaning"
	"github.com/aluiziolira/marketplace-capture/models"
	"github.com/aluiziolira/marketplace-capture/pipeline"
	"github.com/aluiziolira/marketplace-capture/scraper"
	"github.com/aluiziolira/marketplace-capture/store"
)

func printSummary(out io.Writer, result *scraper.Result, run *models.RunMetrics, saved savedFiles, journal *pipeline.Pipeline) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle("Capture complete")
	t.AppendHeader(table.Row{"Metric", "Value"})

	t.AppendRows([]table.Row{
		{"Target date", run.TargetDate.Format("02/01/2006")},
		{"Stop reason", result.Reason},
		{"Recorded", run.SuccessCount},
		{"Attempted", run.AttemptedCount},
		{"Errors", run.ErrorCount},
		{"Capture misses", result.Misses},
		{"Scrolls", result.Scrolls},
		{"Boundary row dropped", result.DroppedBoundary},
		{"Duration", run.Elapsed.Round(time.Second)},
		{"Listings/min", fmt.Sprintf("%.2f", run.PerMinute)},
		{"Listings/min (attempted)", fmt.Sprintf("%.2f", run.PerMinuteReal)},
	})
	if journal != nil {
		if n, ok := journal.GetMetrics()["journaled_records"].(int64); ok {
			t.AppendRow(table.Row{"Journaled", n})
		}
	}

	t.AppendSeparator()
	t.AppendRow(table.Row{"Listings file", orNone(saved.Data)})
	t.AppendRow(table.Row{"Error file", orNone(saved.Errors)})
	t.AppendRow(table.Row{"Metrics workbook", orNone(saved.Metrics)})
	if saved.RunID > 0 {
		t.AppendRow(table.Row{"Archive run id", saved.RunID})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}

func printCleanReport(out io.Writer, rep *cleaning.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle("Cleaning complete")
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Profile", rep.Profile},
		{"Input", rep.Input},
		{"Output", rep.Output},
		{"Rows in", rep.RowsIn},
		{"Rows out", rep.RowsOut},
	})

	reasons := make([]string, 0, len(rep.Dropped))
	for r := range rep.Dropped {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		t.AppendRow(table.Row{"Dropped: " + r, rep.Dropped[r]})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}

func printRuns(out io.Writer, runs []store.Run) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"ID", "Target date", "Reason", "Recorded", "Attempted", "Errors", "Duration"})
	for _, r := range runs {
		t.AppendRow(table.Row{r.ID, r.TargetDate, r.StopReason, r.SuccessCount, r.AttemptedCount, r.ErrorCount, r.Elapsed.Round(time.Second)})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
