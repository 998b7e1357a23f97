//go:build !linux

package platform

import "context"

// CopyFile falls back to read/write on platforms without copy offload.
func CopyFile(ctx context.Context, params CopyFileParams) (CopyResult, error) {
	return copyReadWrite(ctx, params)
}
