// Package sha256 provides SHA-256 digests of pages and snapshots.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/garden-stock/internal/stock"
)

// Hasher digests with SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Snapshot digests the canonical JSON encoding of snapshot. Two snapshots with
// the same items and countdowns hash equal regardless of when they were fetched.
func (h *Hasher) Snapshot(snapshot stock.Snapshot) (string, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return h.Hash(data)
}
