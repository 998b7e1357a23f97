package main

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bamsammich/snretrieve/internal/filter"
)

// sizeFlag is a pflag.Value accepting human sizes such as 100MB or 1GiB.
type sizeFlag uint64

var _ pflag.Value = (*sizeFlag)(nil)

func (s *sizeFlag) String() string {
	if *s == 0 {
		return ""
	}
	return humanize.IBytes(uint64(*s))
}

func (*sizeFlag) Type() string { return "size" }

func (s *sizeFlag) Set(val string) error {
	if val == "" {
		*s = 0
		return nil
	}
	n, err := humanize.ParseBytes(val)
	if err != nil {
		return err
	}
	if n > math.MaxInt64 {
		return fmt.Errorf("size %s is too large", val)
	}
	*s = sizeFlag(n)
	return nil
}

// selectFlag keeps --exclude and --include rules in command-line order by
// appending to one shared selector.
type selectFlag struct {
	sel     *filter.Selector
	include bool
}

func (*selectFlag) String() string { return "" }
func (*selectFlag) Type() string   { return "pattern" }

func (f *selectFlag) Set(val string) error {
	if f.include {
		return f.sel.Include(val)
	}
	return f.sel.Exclude(val)
}
