package stornext

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Default vendor binary names, resolved against PATH or BinDir.
const (
	DefaultFileInfo = "fsfileinfo"
	DefaultRetrieve = "fsretrieve"
)

// ErrNotFound is returned by CheckPrerequisites when a vendor tool is missing.
var ErrNotFound = errors.New("required tool not found")

// Manager is the storage manager capability used by the retrieval engine.
type Manager interface {
	// Classify reports the residency of path. It never fails: query errors
	// and unrecognized output both yield Unknown.
	Classify(ctx context.Context, path string) Residency
	// Retrieve fetches the content of req.Src from secondary media into req.Dst.
	Retrieve(ctx context.Context, req RetrieveRequest) error
}

// RetrieveRequest describes one retrieve invocation.
type RetrieveRequest struct {
	Src  string
	Dst  string
	Copy int    // copy number selector; 0 leaves it to the storage manager
	Tier string // restore tier hint, e.g. "expedited" for Glacier-backed copies
}

// Args returns the fsretrieve argument list for the request.
func (r RetrieveRequest) Args() []string {
	var args []string
	if r.Copy > 0 {
		args = append(args, "-c", strconv.Itoa(r.Copy))
	}
	if r.Tier != "" {
		args = append(args, "-G", r.Tier)
	}
	return append(args, "-n", r.Dst, r.Src)
}

// CommandError reports a vendor command that exited unsuccessfully.
type CommandError struct {
	Cmd    string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s: %s", e.Cmd, e.Output)
	}
	return fmt.Sprintf("%s: %v", e.Cmd, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// RunFunc executes a command and returns its combined output.
type RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// waitDelay bounds how long a cancelled command may keep its output
// pipes open after the kill.
const waitDelay = 2 * time.Second

// execRun runs the command in its own process group so that cancellation
// also kills helpers it spawned, which would otherwise hold the output
// pipe open and block Wait.
func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = waitDelay
	return cmd.CombinedOutput()
}

// CLIConfig locates the vendor binaries.
type CLIConfig struct {
	BinDir   string // optional directory holding both tools
	FileInfo string // fsfileinfo path or name
	Retrieve string // fsretrieve path or name
	Run      RunFunc
}

// CLI implements Manager by shelling out to fsfileinfo and fsretrieve.
type CLI struct {
	fileInfo string
	retrieve string
	run      RunFunc
}

// NewCLI creates a CLI-backed Manager.
func NewCLI(cfg CLIConfig) *CLI {
	c := &CLI{
		fileInfo: toolPath(cfg.BinDir, cfg.FileInfo, DefaultFileInfo),
		retrieve: toolPath(cfg.BinDir, cfg.Retrieve, DefaultRetrieve),
		run:      cfg.Run,
	}
	if c.run == nil {
		c.run = execRun
	}
	return c
}

func toolPath(binDir, name, def string) string {
	if name == "" {
		name = def
	}
	if binDir != "" && !strings.ContainsRune(name, filepath.Separator) {
		return filepath.Join(binDir, name)
	}
	return name
}

// Tools returns the resolved fsfileinfo and fsretrieve commands.
func (c *CLI) Tools() []string {
	return []string{c.fileInfo, c.retrieve}
}

// Classify implements Manager.
func (c *CLI) Classify(ctx context.Context, path string) Residency {
	out, err := c.run(ctx, c.fileInfo, path)
	if err != nil {
		return Unknown
	}
	return ParseFileInfo(string(out))
}

// Retrieve implements Manager.
func (c *CLI) Retrieve(ctx context.Context, req RetrieveRequest) error {
	out, err := c.run(ctx, c.retrieve, req.Args()...)
	if err != nil {
		return &CommandError{
			Cmd:    filepath.Base(c.retrieve),
			Output: strings.TrimSpace(string(out)),
			Err:    err,
		}
	}
	return nil
}

// CheckPrerequisites verifies that every tool resolves to an executable.
func CheckPrerequisites(tools ...string) error {
	var missing []string
	for _, t := range tools {
		if _, err := exec.LookPath(t); err != nil {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, strings.Join(missing, ", "))
	}
	return nil
}
