// Package checksum computes the content digests used as command fingerprints.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// String returns the hex-encoded SHA-256 digest of the UTF-8 bytes of s.
func String(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
