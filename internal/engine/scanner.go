package engine

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/bamsammich/snretrieve/internal/filter"
)

// ScannerConfig controls scanner behavior.
type ScannerConfig struct {
	SrcRoot string
	DstRoot string
	Select  *filter.Selector // nil selects everything
}

// Inventory is the full enumeration of a source tree, in discovery order.
type Inventory struct {
	Dirs  []DirTask
	Files []FileTask
	Errs  []error
	Root  DirTask

	// Filtered counts regular files left out by the selector.
	Filtered int
}

// Scanner enumerates a managed source tree. The whole tree is listed
// before any transfer begins so that the destination hierarchy can be
// created up front and the total is known for progress reporting.
type Scanner struct {
	cfg ScannerConfig
}

// NewScanner creates a scanner with the given config.
func NewScanner(cfg ScannerConfig) *Scanner {
	return &Scanner{cfg: cfg}
}

// Scan walks the source tree in lexical order. Unreadable entries are
// collected in Inventory.Errs and do not stop the walk. Symlinks and
// special files are not managed content and are skipped.
func (s *Scanner) Scan(ctx context.Context) (Inventory, error) {
	var inv Inventory

	rootInfo, err := os.Stat(s.cfg.SrcRoot)
	if err != nil {
		return inv, fmt.Errorf("source: %w", err)
	}
	if !rootInfo.IsDir() {
		return inv, fmt.Errorf("source %s is not a directory", s.cfg.SrcRoot)
	}
	inv.Root = dirTask(s.cfg.SrcRoot, s.cfg.DstRoot, rootInfo)

	err = filepath.WalkDir(s.cfg.SrcRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if walkErr != nil {
			inv.Errs = append(inv.Errs, walkErr)
			if d != nil && d.IsDir() && path != s.cfg.SrcRoot {
				return fs.SkipDir
			}
			return nil
		}
		if path == s.cfg.SrcRoot {
			return nil
		}
		return s.processEntry(path, d, &inv)
	})
	if err != nil {
		return inv, err
	}
	return inv, nil
}

func (s *Scanner) processEntry(path string, d fs.DirEntry, inv *Inventory) error {
	dstPath, err := Relocate(s.cfg.SrcRoot, s.cfg.DstRoot, path)
	if err != nil {
		inv.Errs = append(inv.Errs, err)
		return nil
	}

	info, err := d.Info()
	if err != nil {
		inv.Errs = append(inv.Errs, fmt.Errorf("lstat %s: %w", path, err))
		return nil
	}

	rel := filepath.ToSlash(strings.TrimPrefix(path, s.cfg.SrcRoot+string(filepath.Separator)))
	mode := info.Mode()
	switch {
	case mode.IsDir():
		if !s.cfg.Select.Dir(rel) {
			return fs.SkipDir
		}
		inv.Dirs = append(inv.Dirs, dirTask(path, dstPath, info))
	case mode.IsRegular():
		if !s.cfg.Select.File(rel) {
			inv.Filtered++
			return nil
		}
		inv.Files = append(inv.Files, s.fileTask(path, dstPath, info))
	default:
		slog.Debug("skipping non-regular entry", "path", path, "mode", mode.Type().String())
	}
	return nil
}

func (s *Scanner) fileTask(srcPath, dstPath string, info os.FileInfo) FileTask {
	rel, _ := filepath.Rel(s.cfg.SrcRoot, srcPath) //nolint:errcheck // Relocate already validated
	task := FileTask{
		SrcPath: srcPath,
		DstPath: dstPath,
		RelPath: rel,
		Size:    info.Size(),
		Mode:    unixPerm(info.Mode()),
		ModTime: info.ModTime(),
		AccTime: info.ModTime(),
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		task.UID = stat.Uid
		task.GID = stat.Gid
		task.AccTime = atimeFromStat(stat)
	}
	return task
}

func dirTask(srcPath, dstPath string, info os.FileInfo) DirTask {
	task := DirTask{
		SrcPath: srcPath,
		DstPath: dstPath,
		Mode:    unixPerm(info.Mode()),
		ModTime: info.ModTime(),
		AccTime: info.ModTime(),
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		task.AccTime = atimeFromStat(stat)
	}
	return task
}

// unixPerm converts the permission part of an os.FileMode to chmod(2) bits.
func unixPerm(m os.FileMode) uint32 {
	p := uint32(m.Perm())
	if m&os.ModeSetuid != 0 {
		p |= unix.S_ISUID
	}
	if m&os.ModeSetgid != 0 {
		p |= unix.S_ISGID
	}
	if m&os.ModeSticky != 0 {
		p |= unix.S_ISVTX
	}
	return p
}
