package engine

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// HashFile computes the BLAKE3 hash of the file at path, returning the hex-encoded digest.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// verifyCopy compares the BLAKE3 digests of a resident source and its copy.
// Only used for local copies: hashing an offline stub would trigger a recall.
func verifyCopy(src, dst string) error {
	srcHash, err := HashFile(src)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	dstHash, err := HashFile(dst)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if srcHash != dstHash {
		return fmt.Errorf("verify: checksum mismatch (src %s, dst %s)", srcHash[:16], dstHash[:16])
	}
	return nil
}
