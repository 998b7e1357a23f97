package filter

import (
	"regexp"
	"strings"
)

// glob is an rsync-style pattern compiled to a regexp over slash-separated
// paths relative to the source root.
type glob struct {
	re      *regexp.Regexp
	text    string
	dirOnly bool // trailing "/": matches directories only
}

// compileGlob compiles pattern. A leading "/" or any inner "/" anchors the
// pattern at the source root; otherwise it matches the final path
// elements. "*" and "?" stop at "/", "**" does not.
func compileGlob(pattern string) (*glob, error) {
	g := &glob{text: pattern}

	p := pattern
	if strings.HasSuffix(p, "/") {
		g.dirOnly = true
		p = strings.TrimSuffix(p, "/")
	}
	anchored := strings.Contains(p, "/")
	p = strings.TrimPrefix(p, "/")

	prefix := "(^|/)"
	if anchored {
		prefix = "^"
	}
	re, err := regexp.Compile(prefix + translate(p) + "$")
	if err != nil {
		return nil, err
	}
	g.re = re
	return g, nil
}

func (g *glob) match(rel string, isDir bool) bool {
	if g.dirOnly && !isDir {
		return false
	}
	return g.re.MatchString(rel)
}

// translate rewrites glob syntax as regexp syntax.
func translate(p string) string {
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		switch p[i] {
		case '*':
			if !strings.HasPrefix(p[i:], "**") {
				b.WriteString("[^/]*")
				continue
			}
			i++
			if strings.HasPrefix(p[i+1:], "/") {
				b.WriteString("(.*/)?")
				i++
			} else {
				b.WriteString(".*")
			}
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := classEnd(p, i)
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := p[i+1 : end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i = end
		default:
			b.WriteString(regexp.QuoteMeta(p[i : i+1]))
		}
	}
	return b.String()
}

// classEnd returns the index of the "]" closing the class opened at i,
// or -1. A "]" right after "[" or "[!" is a literal member.
func classEnd(p string, i int) int {
	j := i + 1
	if j < len(p) && p[j] == '!' {
		j++
	}
	if j < len(p) && p[j] == ']' {
		j++
	}
	if k := strings.IndexByte(p[j:], ']'); k >= 0 {
		return j + k
	}
	return -1
}
