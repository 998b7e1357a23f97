// Package dminfo parses StorNext dm_info dumps and summarizes them for
// recovery work: which media, segments and archive dates the missing
// files share.
package dminfo

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const blockPrefix = "Filename:"

// maxLineSize bounds a single dump line; flag lines on heavily versioned
// files can be long.
const maxLineSize = 1 << 20

// Block is the dm_info record of one managed file. Each field holds the
// first value found in the block, or "" if the block has none.
type Block struct {
	Path          string
	Lines         []string
	Medium        string
	SegUUID       string
	AddDate       string
	Flags         string
	CpyMap        string
	Class         string
	VSN           string
	TotVers       string
	Stub          string // "size,len"
	AllCopiesMade bool
}

// Dump is a parsed dm_info file. A path listed twice keeps its last block.
type Dump struct {
	Blocks map[string]*Block
	Order  []string
}

var (
	mediumRe  = regexp.MustCompile(`^\s*medium:\s*(\S+)`)
	segUUIDRe = regexp.MustCompile(`^\s*seg_uuid:\s*(\S+)`)
	addDateRe = regexp.MustCompile(`^\s*add_date:\s*(\d+)`)
	flagsRe   = regexp.MustCompile(`^\s*flags:\s*(.*)$`)
	cpyMapRe  = regexp.MustCompile(`cpymap:\s*(\S+)`)
	classRe   = regexp.MustCompile(`\bclass:\s*(\S+)`)
	vsnRe     = regexp.MustCompile(`\bvsn:\s*(\S+)`)
	totVersRe = regexp.MustCompile(`\btotvers:\s*(\S+)`)
	stubRe    = regexp.MustCompile(`stub size,len:\s*([^,]+),(\S+)`)
)

// Parse reads a dm_info dump. Lines before the first Filename: line are
// ignored.
func Parse(r io.Reader) (*Dump, error) {
	d := &Dump{Blocks: make(map[string]*Block)}
	var cur *Block

	flush := func() {
		if cur == nil {
			return
		}
		if _, seen := d.Blocks[cur.Path]; !seen {
			d.Order = append(d.Order, cur.Path)
		}
		d.Blocks[cur.Path] = cur
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, blockPrefix) {
			flush()
			cur = &Block{Path: strings.TrimSpace(strings.TrimPrefix(line, blockPrefix))}
			cur.Lines = append(cur.Lines, line)
			continue
		}
		if cur == nil {
			continue
		}
		cur.Lines = append(cur.Lines, line)
		cur.parseLine(line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read dm_info: %w", err)
	}
	flush()
	return d, nil
}

func (b *Block) parseLine(line string) {
	firstMatch(&b.Medium, mediumRe, line)
	firstMatch(&b.SegUUID, segUUIDRe, line)
	firstMatch(&b.AddDate, addDateRe, line)
	firstMatch(&b.Flags, flagsRe, line)
	firstMatch(&b.CpyMap, cpyMapRe, line)
	firstMatch(&b.Class, classRe, line)
	firstMatch(&b.VSN, vsnRe, line)
	firstMatch(&b.TotVers, totVersRe, line)
	if b.Stub == "" {
		if m := stubRe.FindStringSubmatch(line); m != nil {
			b.Stub = strings.TrimSpace(m[1]) + "," + strings.TrimSpace(m[2])
		}
	}
	if strings.Contains(line, "ALL_COPIES_MADE") {
		b.AllCopiesMade = true
	}
}

func firstMatch(dst *string, re *regexp.Regexp, line string) {
	if *dst != "" {
		return
	}
	if m := re.FindStringSubmatch(line); m != nil {
		*dst = strings.TrimSpace(m[1])
	}
}

// PathSet is a set of file paths.
type PathSet map[string]struct{}

// Has reports whether p is in the set.
func (s PathSet) Has(p string) bool {
	_, ok := s[p]
	return ok
}

// ReadPathList reads one path per line, ignoring blank lines.
func ReadPathList(r io.Reader) (PathSet, error) {
	set := make(PathSet)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		if p := strings.TrimSpace(sc.Text()); p != "" {
			set[p] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read path list: %w", err)
	}
	return set, nil
}
