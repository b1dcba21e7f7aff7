// Package fingerprint computes content hashes used as cache keys.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"paperqa/internal/domain"
)

// Compute returns the SHA-256 fingerprint of the given bytes. The hash covers
// the full content, not metadata, so a rename keeps the fingerprint and any
// byte edit changes it.
func Compute(data []byte) domain.Fingerprint {
	sum := sha256.Sum256(data)
	return domain.Fingerprint(hex.EncodeToString(sum[:]))
}

// File returns the fingerprint of a file's content, streaming so large
// documents are not held in memory twice.
func File(path string) (domain.Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", path, err)
	}
	return domain.Fingerprint(hex.EncodeToString(h.Sum(nil))), nil
}
