package filter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LoadRules reads rules from a file, one per line:
//
//	+ pattern   include
//	- pattern   exclude
//	pattern     exclude
//	# comment
func (s *Selector) LoadRules(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open filter file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var addErr error
		switch {
		case strings.HasPrefix(line, "+ "):
			addErr = s.Include(strings.TrimSpace(line[2:]))
		case strings.HasPrefix(line, "- "):
			addErr = s.Exclude(strings.TrimSpace(line[2:]))
		default:
			addErr = s.Exclude(line)
		}
		if addErr != nil {
			return fmt.Errorf("filter file %s line %d: %w", path, n, addErr)
		}
	}
	return sc.Err()
}

// LoadFileList reads one path per line and restricts the selector to
// them. Absolute paths must lie under srcRoot; relative paths are taken
// as relative to it. It returns the listed paths outside srcRoot, which
// are not selected.
func (s *Selector) LoadFileList(r io.Reader, srcRoot string) ([]string, error) {
	var rels, outside []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		p := strings.TrimSpace(sc.Text())
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		if !filepath.IsAbs(p) {
			rels = append(rels, filepath.ToSlash(filepath.Clean(p)))
			continue
		}
		rel, err := filepath.Rel(srcRoot, p)
		if err != nil || rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
			outside = append(outside, p)
			continue
		}
		rels = append(rels, filepath.ToSlash(rel))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read file list: %w", err)
	}
	s.Only(rels)
	return outside, nil
}
