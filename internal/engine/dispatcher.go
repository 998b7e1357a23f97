package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/bamsammich/snretrieve/internal/platform"
	"github.com/bamsammich/snretrieve/internal/stornext"
)

// Dispatcher decides how each file reaches the destination: a local byte
// copy for resident content, a storage-manager retrieve for offline stubs.
type Dispatcher struct {
	policy     Policy
	manager    stornext.Manager
	limiter    *rate.Limiter
	privileged bool
}

// NewDispatcher creates a Dispatcher. Ownership is only reconciled on
// retrieved files when the process runs as root.
func NewDispatcher(policy Policy, manager stornext.Manager) *Dispatcher {
	d := &Dispatcher{
		policy:     policy,
		manager:    manager,
		privileged: os.Geteuid() == 0,
	}
	if policy.BWLimit > 0 {
		d.limiter = NewBWLimiter(policy.BWLimit)
	}
	return d
}

// Transfer moves one file and returns its terminal Result. It never
// modifies the source.
func (d *Dispatcher) Transfer(ctx context.Context, task FileTask) Result {
	start := time.Now()
	res := d.transfer(ctx, task)
	res.Duration = time.Since(start)
	return res
}

func (d *Dispatcher) transfer(ctx context.Context, task FileTask) Result {
	if !d.policy.Force && isRegularFile(task.DstPath) {
		return Result{Task: task, Outcome: Skipped, Detail: "destination exists"}
	}

	if d.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.policy.Timeout)
		defer cancel()
	}

	task.Residency = d.manager.Classify(ctx, task.SrcPath)
	method := chooseMethod(task)

	if d.policy.DryRun {
		return Result{Task: task, Outcome: DryRun, Method: method, Detail: "would " + method}
	}

	var (
		n   int64
		err error
	)
	switch method {
	case MethodCopy:
		n, err = d.copyFile(ctx, task)
	default:
		err = d.retrieveFile(ctx, task)
	}
	if err != nil {
		return Result{Task: task, Outcome: Failed, Method: method, Detail: d.failureDetail(ctx, err)}
	}

	detail := "copied"
	if method == MethodRetrieve {
		detail = "retrieved"
	}
	return Result{Task: task, Outcome: Success, Method: method, Bytes: n, Detail: detail}
}

// chooseMethod maps residency to a transfer method. Unknown residency
// falls back to a copy when the source has content and a retrieve
// otherwise, so a zero-byte resident file is retrieved rather than copied.
func chooseMethod(task FileTask) string {
	switch {
	case task.Residency.NeedsRetrieve():
		return MethodRetrieve
	case task.Residency == stornext.OnDisk, task.Residency == stornext.Unstored:
		return MethodCopy
	case task.Size > 0:
		return MethodCopy
	default:
		return MethodRetrieve
	}
}

func (d *Dispatcher) failureDetail(ctx context.Context, err error) string {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Sprintf("timed out after %s", d.policy.Timeout)
	case errors.Is(ctx.Err(), context.Canceled):
		return "cancelled"
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "unknown error"
}

func (d *Dispatcher) copyFile(ctx context.Context, task FileTask) (int64, error) {
	// Parent normally exists from the directory pass; MkdirAll tolerates races.
	dir := filepath.Dir(task.DstPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create parent dir %s: %w", dir, err)
	}

	src, err := os.Open(task.SrcPath)
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	tmpPath := tmpPathFor(task.DstPath)
	globalTmpRegistry.add(tmpPath)
	defer func() {
		globalTmpRegistry.remove(tmpPath)
		_ = os.Remove(tmpPath) // no-op if rename succeeded
	}()

	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create tmp %s: %w", tmpPath, err)
	}

	n, err := d.copyData(ctx, src, tmp, task.Size)
	if err == nil && n != task.Size {
		err = fmt.Errorf("short copy: wrote %d of %d bytes", n, task.Size)
	}
	if err != nil {
		tmp.Close()
		return n, fmt.Errorf("copy data: %w", err)
	}

	if err := setFdMetadata(task, tmp); err != nil {
		tmp.Close()
		return n, fmt.Errorf("set metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("close tmp %s: %w", tmpPath, err)
	}

	if d.policy.Verify {
		if err := verifyCopy(task.SrcPath, tmpPath); err != nil {
			return n, err
		}
	}

	if err := os.Rename(tmpPath, task.DstPath); err != nil {
		return n, fmt.Errorf("rename %s -> %s: %w", tmpPath, task.DstPath, err)
	}
	return n, nil
}

func (d *Dispatcher) copyData(ctx context.Context, src, dst *os.File, size int64) (int64, error) {
	if d.limiter != nil {
		result, err := platform.CopyStream(dst, newRateLimitedReader(ctx, src, d.limiter))
		return result.BytesWritten, err
	}
	result, err := platform.CopyFile(ctx, platform.CopyFileParams{Src: src, Dst: dst, Size: size})
	return result.BytesWritten, err
}

func (d *Dispatcher) retrieveFile(ctx context.Context, task FileTask) error {
	dir := filepath.Dir(task.DstPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent dir %s: %w", dir, err)
	}

	// fsretrieve -n refuses to replace an existing file.
	if d.policy.Force {
		if err := os.Remove(task.DstPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove existing %s: %w", task.DstPath, err)
		}
	}

	err := d.manager.Retrieve(ctx, stornext.RetrieveRequest{
		Src:  task.SrcPath,
		Dst:  task.DstPath,
		Copy: d.policy.Copy,
		Tier: d.policy.Tier,
	})
	if err != nil {
		return err
	}
	return reconcileMetadata(task, d.privileged)
}

func isRegularFile(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode().IsRegular()
}
