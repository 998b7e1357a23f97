// Package filter decides which parts of a managed tree a run covers:
// ordered include/exclude globs and an optional explicit file list.
package filter

import (
	"path"
	"strings"
)

type rule struct {
	glob    *glob
	include bool
}

// Selector answers whether a source entry, given by its slash-separated
// path relative to the source root, belongs to the run. The zero value
// selects everything.
type Selector struct {
	rules []rule

	// only restricts files to an explicit list when non-nil; onlyDirs
	// holds every ancestor directory of a listed file.
	only     map[string]struct{}
	onlyDirs map[string]struct{}
}

// New returns a Selector that selects everything.
func New() *Selector {
	return &Selector{}
}

// Exclude appends an exclude rule.
func (s *Selector) Exclude(pattern string) error {
	return s.add(pattern, false)
}

// Include appends an include rule.
func (s *Selector) Include(pattern string) error {
	return s.add(pattern, true)
}

func (s *Selector) add(pattern string, include bool) error {
	g, err := compileGlob(pattern)
	if err != nil {
		return err
	}
	s.rules = append(s.rules, rule{glob: g, include: include})
	return nil
}

// Only restricts the run to the given files. Paths are relative to the
// source root; an empty list selects nothing.
func (s *Selector) Only(rels []string) {
	if s.only == nil {
		s.only = make(map[string]struct{}, len(rels))
		s.onlyDirs = make(map[string]struct{})
	}
	for _, rel := range rels {
		rel = path.Clean(strings.TrimPrefix(rel, "/"))
		s.only[rel] = struct{}{}
		for dir := path.Dir(rel); dir != "."; dir = path.Dir(dir) {
			s.onlyDirs[dir] = struct{}{}
		}
	}
}

// Empty reports whether the selector selects everything.
func (s *Selector) Empty() bool {
	return s == nil || (len(s.rules) == 0 && s.only == nil)
}

// Dir reports whether the walk should descend into directory rel.
func (s *Selector) Dir(rel string) bool {
	if s.Empty() {
		return true
	}
	if !s.byRules(rel, true) {
		return false
	}
	if s.only != nil {
		_, ok := s.onlyDirs[rel]
		return ok
	}
	return true
}

// File reports whether regular file rel is part of the run.
func (s *Selector) File(rel string) bool {
	if s.Empty() {
		return true
	}
	if !s.byRules(rel, false) {
		return false
	}
	if s.only != nil {
		_, ok := s.only[rel]
		return ok
	}
	return true
}

// byRules applies the rules in order; the first match wins and an
// unmatched path is selected.
func (s *Selector) byRules(rel string, isDir bool) bool {
	for _, r := range s.rules {
		if r.glob.match(rel, isDir) {
			return r.include
		}
	}
	return true
}
