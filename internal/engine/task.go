package engine

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bamsammich/snretrieve/internal/stornext"
)

// FileTask describes the retrieval of a single regular file.
type FileTask struct {
	SrcPath   string
	DstPath   string
	RelPath   string
	ModTime   time.Time
	AccTime   time.Time
	Size      int64
	Mode      uint32
	UID       uint32
	GID       uint32
	Residency stornext.Residency
}

// DirTask describes a destination directory to recreate.
type DirTask struct {
	SrcPath string
	DstPath string
	ModTime time.Time
	AccTime time.Time
	Mode    uint32
}

// Outcome is the terminal state of a FileTask.
type Outcome int

const (
	Success Outcome = iota + 1
	Skipped
	Failed
	DryRun
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	case DryRun:
		return "dry-run"
	default:
		return "unknown"
	}
}

// Transfer methods.
const (
	MethodCopy     = "copy"
	MethodRetrieve = "retrieve"
)

// Result is the terminal outcome of one FileTask.
type Result struct {
	Task     FileTask
	Outcome  Outcome
	Detail   string
	Method   string
	Bytes    int64
	Duration time.Duration
	WorkerID int
}

// Relocate maps path, which must live under srcRoot, to the same relative
// location under dstRoot.
func Relocate(srcRoot, dstRoot, path string) (string, error) {
	rel, err := filepath.Rel(srcRoot, path)
	if err != nil {
		return "", fmt.Errorf("rel path for %s: %w", path, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", path, srcRoot)
	}
	return filepath.Join(dstRoot, rel), nil
}
