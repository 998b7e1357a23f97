//go:build linux

package platform

import (
	"context"

	"golang.org/x/sys/unix"
)

// CopyFile tries the most efficient copy method available on Linux,
// falling through on unsupported/cross-device errors. Managed filesystems
// frequently reject copy_file_range across volumes, so the fallbacks are
// the common path there. ctx is checked between chunks.
func CopyFile(ctx context.Context, params CopyFileParams) (CopyResult, error) {
	preallocate(params)

	result, err := copyFileRange(ctx, params)
	if err == nil || !isFallbackErr(err) {
		return result, err
	}

	result, err = copySendfile(ctx, params)
	if err == nil || !isFallbackErr(err) {
		return result, err
	}

	return copyReadWrite(ctx, params)
}

func copyFileRange(ctx context.Context, params CopyFileParams) (CopyResult, error) {
	var roff, woff int64
	remaining := params.Size

	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return CopyResult{BytesWritten: roff, Method: CopyFileRange}, err
		}
		chunk := int(min(remaining, chunkSize))
		n, err := unix.CopyFileRange(int(params.Src.Fd()), &roff, int(params.Dst.Fd()), &woff, chunk, 0)
		if err != nil {
			if roff == 0 {
				return CopyResult{}, err
			}
			// Partial progress: a fallback would duplicate bytes.
			return CopyResult{BytesWritten: roff, Method: CopyFileRange}, unwrapFallback(err)
		}
		if n == 0 {
			break
		}
		remaining -= int64(n)
	}

	return CopyResult{BytesWritten: roff, Method: CopyFileRange}, nil
}

func copySendfile(ctx context.Context, params CopyFileParams) (CopyResult, error) {
	var offset int64
	remaining := params.Size

	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return CopyResult{BytesWritten: offset, Method: Sendfile}, err
		}
		chunk := int(min(remaining, chunkSize))
		n, err := unix.Sendfile(int(params.Dst.Fd()), int(params.Src.Fd()), &offset, chunk)
		if err != nil {
			if offset == 0 {
				return CopyResult{}, err
			}
			return CopyResult{BytesWritten: offset, Method: Sendfile}, unwrapFallback(err)
		}
		if n == 0 {
			break
		}
		remaining -= int64(n)
	}

	return CopyResult{BytesWritten: offset, Method: Sendfile}, nil
}

// preallocate is advisory; fallocate is not supported on all filesystems.
func preallocate(params CopyFileParams) {
	if params.Size > 0 {
		_ = unix.Fallocate(int(params.Dst.Fd()), 0, 0, params.Size) //nolint:errcheck // advisory
	}
}

// unwrapFallback turns a fallback-class errno into a hard error so a copy
// with partial progress is reported instead of restarted by another method.
func unwrapFallback(err error) error {
	if isFallbackErr(err) {
		return &partialCopyError{err: err}
	}
	return err
}

type partialCopyError struct{ err error }

func (e *partialCopyError) Error() string { return "partial copy: " + e.err.Error() }
