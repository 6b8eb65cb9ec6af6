// Package sha256 digests exported index snapshots so consumers can verify
// the blob a notification refers to.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher produces hex SHA-256 digests.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (*Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Prefixed returns the digest in "sha256:<hex>" form.
func (h *Hasher) Prefixed(data []byte) string {
	return "sha256:" + h.Hash(data)
}
