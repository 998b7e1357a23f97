package dminfo

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
)

// Count is one value and how many times it was seen.
type Count struct {
	Value string
	N     int
}

// counter tallies string values.
type counter map[string]int

func (c counter) add(v string) {
	if v != "" {
		c[v]++
	}
}

// top returns the n most common values, ties broken by value so output
// is stable. n <= 0 returns all.
func (c counter) top(n int) []Count {
	out := make([]Count, 0, len(c))
	for v, k := range c {
		out = append(out, Count{Value: v, N: k})
	}
	slices.SortFunc(out, func(a, b Count) int {
		if a.N != b.N {
			return cmp.Compare(b.N, a.N)
		}
		return cmp.Compare(a.Value, b.Value)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Default rows per table when no explicit limit is given.
const (
	DefaultTopMedia  = 10 // media IDs and per-medium share
	DefaultTopDetail = 5  // segments, add dates and field histograms
)

// rows resolves a caller limit: 0 picks def, negative means unlimited.
func rows(top, def int) int {
	if top == 0 {
		return def
	}
	return top
}

// MediumShare is the fraction of a medium's files that are missing.
type MediumShare struct {
	Medium  string
	Missing int
	Total   int
	Ratio   float64
}

// MediaReport shows which media, segments and archive dates the missing
// files have in common.
type MediaReport struct {
	Media    []Count
	SegUUIDs []Count
	AddDates []Count
	Share    []MediumShare
}

// NewMediaReport builds a MediaReport listing at most top rows per table.
// A zero top uses DefaultTopMedia and DefaultTopDetail; a negative top
// lists everything.
func NewMediaReport(d *Dump, missing PathSet, top int) MediaReport {
	all := counter{}
	media, segs, dates := counter{}, counter{}, counter{}

	for _, path := range d.Order {
		b := d.Blocks[path]
		all.add(b.Medium)
		if !missing.Has(path) {
			continue
		}
		media.add(b.Medium)
		segs.add(b.SegUUID)
		dates.add(b.AddDate)
	}

	share := make([]MediumShare, 0, len(media))
	for med, n := range media {
		total := all[med]
		share = append(share, MediumShare{
			Medium:  med,
			Missing: n,
			Total:   total,
			Ratio:   float64(n) / float64(max(total, 1)),
		})
	}
	sort.Slice(share, func(i, j int) bool {
		if share[i].Ratio != share[j].Ratio {
			return share[i].Ratio > share[j].Ratio
		}
		return share[i].Medium > share[j].Medium
	})
	if n := rows(top, DefaultTopMedia); n > 0 && len(share) > n {
		share = share[:n]
	}

	return MediaReport{
		Media:    media.top(rows(top, DefaultTopMedia)),
		SegUUIDs: segs.top(rows(top, DefaultTopDetail)),
		AddDates: dates.top(rows(top, DefaultTopDetail)),
		Share:    share,
	}
}

// unmatchedListed is how many missing paths without a block are listed
// by name.
const unmatchedListed = 10

// FieldReport summarizes dm_info fields of the missing files.
type FieldReport struct {
	MissingPaths  int
	WithBlock     int
	AllCopiesMade int
	NotAllCopies  int
	Flags         []Count
	CpyMap        []Count
	Class         []Count
	VSN           []Count
	TotVers       []Count
	Stub          []Count
	// Unmatched lists missing paths with no block, sorted, at most ten;
	// UnmatchedMore counts the rest.
	Unmatched     []string
	UnmatchedMore int
}

// NewFieldReport builds a FieldReport listing at most top rows per field.
// A zero top uses DefaultTopDetail; a negative top lists everything.
func NewFieldReport(d *Dump, missing PathSet, top int) FieldReport {
	flags, cpymap, class, vsn, totvers, stub := counter{}, counter{}, counter{}, counter{}, counter{}, counter{}
	r := FieldReport{MissingPaths: len(missing)}

	for _, path := range d.Order {
		if !missing.Has(path) {
			continue
		}
		b := d.Blocks[path]
		r.WithBlock++
		flags.add(b.Flags)
		cpymap.add(b.CpyMap)
		class.add(b.Class)
		vsn.add(b.VSN)
		totvers.add(b.TotVers)
		stub.add(b.Stub)
		if b.AllCopiesMade {
			r.AllCopiesMade++
		} else {
			r.NotAllCopies++
		}
	}

	var unmatched []string
	for p := range missing {
		if _, ok := d.Blocks[p]; !ok {
			unmatched = append(unmatched, p)
		}
	}
	slices.Sort(unmatched)
	if len(unmatched) > unmatchedListed {
		r.UnmatchedMore = len(unmatched) - unmatchedListed
		unmatched = unmatched[:unmatchedListed]
	}
	r.Unmatched = unmatched

	top = rows(top, DefaultTopDetail)
	r.Flags = flags.top(top)
	r.CpyMap = cpymap.top(top)
	r.Class = class.top(top)
	r.VSN = vsn.top(top)
	r.TotVers = totvers.top(top)
	r.Stub = stub.top(top)
	return r
}

// WindowCounts is how one dump's add_date entries fall relative to a window.
type WindowCounts struct {
	Label  string
	Total  int
	In     int
	Before int
	After  int
}

// WindowReport compares add_date entries across dumps against a closed
// [Start, End] window of Unix timestamps.
type WindowReport struct {
	Start int64
	End   int64
	Files []WindowCounts
	// OutsideMin and OutsideMax are only meaningful when HasOutside is set.
	OutsideMin int64
	OutsideMax int64
	HasOutside bool
}

// NewWindowReport creates an empty report for the window.
func NewWindowReport(start, end int64) (*WindowReport, error) {
	if end < start {
		return nil, fmt.Errorf("window end %d is before start %d", end, start)
	}
	return &WindowReport{Start: start, End: end}, nil
}

// Add scans one dump. Every add_date line counts, whether or not it sits
// inside a Filename block.
func (w *WindowReport) Add(label string, r io.Reader) error {
	wc := WindowCounts{Label: label}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		m := addDateRe.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		ts, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		wc.Total++
		switch {
		case ts >= w.Start && ts <= w.End:
			wc.In++
			continue
		case ts < w.Start:
			wc.Before++
		default:
			wc.After++
		}
		w.observeOutside(ts)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", label, err)
	}
	w.Files = append(w.Files, wc)
	return nil
}

func (w *WindowReport) observeOutside(ts int64) {
	if !w.HasOutside {
		w.OutsideMin, w.OutsideMax, w.HasOutside = ts, ts, true
		return
	}
	w.OutsideMin = min(w.OutsideMin, ts)
	w.OutsideMax = max(w.OutsideMax, ts)
}
