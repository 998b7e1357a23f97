package ui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/bamsammich/snretrieve/internal/stats"
)

// CompletionLine builds the final summary line from a snapshot.
// Format: done ✓  files 3  copied 1  retrieved 1  skipped 1  size 10 B  time 0s  errors 0
func CompletionLine(snap stats.Snapshot) string {
	icon := "✓"
	if snap.FilesFailed > 0 {
		icon = "✗"
	}
	line := fmt.Sprintf("done %s  files %s  copied %s  retrieved %s  skipped %s",
		icon,
		FormatCount(snap.FilesTotal),
		FormatCount(snap.FilesCopied),
		FormatCount(snap.FilesRetrieved),
		FormatCount(snap.FilesSkipped),
	)
	if snap.FilesDryRun > 0 {
		line += "  dry-run " + FormatCount(snap.FilesDryRun)
	}
	return line + fmt.Sprintf("  size %s  time %s  errors %d",
		FormatBytes(snap.BytesCopied),
		FormatDuration(snap.Elapsed),
		snap.FilesFailed,
	)
}

// RenderSummary writes the category totals table followed by one row per
// failed file.
func RenderSummary(w io.Writer, s stats.Summary) {
	totals := newTable(w)
	totals.SetHeader([]string{"Outcome", "Files"})
	totals.Append([]string{"Total", strconv.FormatInt(s.Total, 10)})
	totals.Append([]string{"Succeeded", strconv.FormatInt(s.Succeeded, 10)})
	totals.Append([]string{"  copied", strconv.FormatInt(s.Copied, 10)})
	totals.Append([]string{"  retrieved", strconv.FormatInt(s.Retrieved, 10)})
	totals.Append([]string{"Skipped", strconv.FormatInt(s.Skipped, 10)})
	if s.DryRun > 0 {
		totals.Append([]string{"Dry-run", strconv.FormatInt(s.DryRun, 10)})
	}
	totals.Append([]string{"Failed", strconv.FormatInt(s.Failed, 10)})
	totals.Render()

	if len(s.Failures) == 0 {
		return
	}
	fmt.Fprintln(w)
	failures := newTable(w)
	failures.SetHeader([]string{"Failed file", "Detail"})
	for _, f := range s.Failures {
		failures.Append([]string{f.Path, f.Detail})
	}
	failures.Render()
}

// LogSummary writes the category totals and the final verdict through
// the logger so they also land in the log file. Individual failures are
// logged by the presenter as they happen.
func LogSummary(log *slog.Logger, s stats.Summary) {
	log.Info("summary",
		"total", s.Total,
		"succeeded", s.Succeeded,
		"skipped", s.Skipped,
		"failed", s.Failed,
		"dry_run", s.DryRun,
		"copied", s.Copied,
		"retrieved", s.Retrieved,
		"bytes", FormatBytes(s.Bytes),
		"elapsed", s.Elapsed.Round(time.Millisecond),
	)
	if s.OK() {
		log.Log(context.Background(), LevelSuccess, "retrieval complete")
		return
	}
	log.Error(fmt.Sprintf("retrieval finished with %d failed file(s)", s.Failed))
}

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}
