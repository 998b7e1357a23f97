package platform

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

const bufferSize = 1 << 20 // 1 MiB

// chunkSize bounds a single copy_file_range/sendfile call so cancellation
// is observed between chunks.
const chunkSize = 16 << 20

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, bufferSize)
		return &b
	},
}

// copyReadWrite copies data using pread/pwrite with a pooled buffer.
func copyReadWrite(ctx context.Context, params CopyFileParams) (CopyResult, error) {
	bufp := bufPool.Get().(*[]byte) //nolint:errcheck // pool only holds *[]byte
	defer bufPool.Put(bufp)
	buf := *bufp

	var offset int64
	srcFd := int(params.Src.Fd())
	dstFd := int(params.Dst.Fd())

	for offset < params.Size {
		if err := ctx.Err(); err != nil {
			return CopyResult{BytesWritten: offset, Method: ReadWrite}, err
		}
		toRead := min(params.Size-offset, bufferSize)
		n, err := unix.Pread(srcFd, buf[:toRead], offset)
		if err != nil {
			return CopyResult{BytesWritten: offset, Method: ReadWrite}, err
		}
		if n == 0 {
			break
		}

		written := 0
		for written < n {
			w, err := unix.Pwrite(dstFd, buf[written:n], offset+int64(written))
			if err != nil {
				return CopyResult{BytesWritten: offset + int64(written), Method: ReadWrite}, err
			}
			written += w
		}
		offset += int64(n)
	}

	return CopyResult{BytesWritten: offset, Method: ReadWrite}, nil
}

// CopyStream copies everything from r into dst. It is used when the caller
// needs to interpose on the byte stream, e.g. for bandwidth limiting.
func CopyStream(dst *os.File, r io.Reader) (CopyResult, error) {
	bufp := bufPool.Get().(*[]byte) //nolint:errcheck // pool only holds *[]byte
	defer bufPool.Put(bufp)

	n, err := io.CopyBuffer(dst, r, *bufp)
	return CopyResult{BytesWritten: n, Method: Stream}, err
}

// isFallbackErr returns true if err should trigger a fallback to the next copy strategy.
func isFallbackErr(err error) bool {
	return errors.Is(err, unix.ENOSYS) ||
		errors.Is(err, unix.EXDEV) ||
		errors.Is(err, unix.EINVAL) ||
		errors.Is(err, unix.ENOTSUP) ||
		errors.Is(err, unix.EOPNOTSUPP)
}
