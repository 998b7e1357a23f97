package dminfo

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Render writes the report as titled tables.
func (r MediaReport) Render(w io.Writer) {
	renderCounts(w, "Top missing media IDs", "Medium", r.Media)
	renderCounts(w, "Top missing seg_uuid", "Seg UUID", r.SegUUIDs)
	renderCounts(w, "Top missing add_date", "Add date", withDates(r.AddDates))

	fmt.Fprintln(w, "Missing share by medium:")
	t := newTable(w)
	t.SetHeader([]string{"Medium", "Missing", "Total", "Share"})
	for _, s := range r.Share {
		t.Append([]string{
			s.Medium,
			strconv.Itoa(s.Missing),
			strconv.Itoa(s.Total),
			fmt.Sprintf("%.2f%%", s.Ratio*100),
		})
	}
	t.Render()
}

// Render writes the report as titled tables.
func (r FieldReport) Render(w io.Writer) {
	fmt.Fprintf(w, "Missing paths: %d\n", r.MissingPaths)
	fmt.Fprintf(w, "Missing paths with dm_info block: %d\n\n", r.WithBlock)

	fmt.Fprintln(w, "ALL_COPIES_MADE presence:")
	t := newTable(w)
	t.SetHeader([]string{"Flag", "Files"})
	t.Append([]string{"ALL_COPIES_MADE", strconv.Itoa(r.AllCopiesMade)})
	t.Append([]string{"NO_ALL_COPIES_MADE", strconv.Itoa(r.NotAllCopies)})
	t.Render()
	fmt.Fprintln(w)

	renderCounts(w, "Top flags values", "Flags", r.Flags)
	renderCounts(w, "Top cpymap values", "Cpymap", r.CpyMap)
	renderCounts(w, "Top class values", "Class", r.Class)
	renderCounts(w, "Top vsn values", "VSN", r.VSN)
	renderCounts(w, "Top totvers values", "Totvers", r.TotVers)
	renderCounts(w, "Top stub size,len values", "Stub", r.Stub)

	if len(r.Unmatched) == 0 {
		return
	}
	fmt.Fprintln(w, "Missing paths not found in dm_info:")
	for _, p := range r.Unmatched {
		fmt.Fprintf(w, "  %s\n", p)
	}
	if r.UnmatchedMore > 0 {
		fmt.Fprintf(w, "  ... %d more\n", r.UnmatchedMore)
	}
}

// Render writes the report as titled tables.
func (r *WindowReport) Render(w io.Writer) {
	fmt.Fprintln(w, "Window:")
	fmt.Fprintf(w, "  start: %d -> %s\n", r.Start, FormatEpoch(r.Start))
	fmt.Fprintf(w, "  end:   %d -> %s\n\n", r.End, FormatEpoch(r.End))

	t := newTable(w)
	t.SetHeader([]string{"File", "Add dates", "In window", "Before", "After"})
	for _, f := range r.Files {
		t.Append([]string{
			f.Label,
			strconv.Itoa(f.Total),
			strconv.Itoa(f.In),
			strconv.Itoa(f.Before),
			strconv.Itoa(f.After),
		})
	}
	t.Render()

	fmt.Fprintln(w, "\nOutside window:")
	if !r.HasOutside {
		fmt.Fprintln(w, "  no add_date entries outside window")
		return
	}
	fmt.Fprintf(w, "  min: %d -> %s\n", r.OutsideMin, FormatEpoch(r.OutsideMin))
	fmt.Fprintf(w, "  max: %d -> %s\n", r.OutsideMax, FormatEpoch(r.OutsideMax))
}

// FormatEpoch renders a Unix timestamp as RFC 3339 UTC.
func FormatEpoch(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

// withDates annotates epoch values with their UTC date.
func withDates(counts []Count) []Count {
	out := make([]Count, len(counts))
	for i, c := range counts {
		out[i] = c
		if ts, err := strconv.ParseInt(c.Value, 10, 64); err == nil {
			out[i].Value = fmt.Sprintf("%s (%s)", c.Value, FormatEpoch(ts))
		}
	}
	return out
}

func renderCounts(w io.Writer, title, column string, counts []Count) {
	fmt.Fprintln(w, title+":")
	t := newTable(w)
	t.SetHeader([]string{column, "Files"})
	for _, c := range counts {
		t.Append([]string{c.Value, strconv.Itoa(c.N)})
	}
	t.Render()
	fmt.Fprintln(w)
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
