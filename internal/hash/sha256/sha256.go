// Package sha256 digests generated index mappings.
package sha256

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Hasher implements crawler.Hasher. JSON input is compacted before hashing so
// that two mappings differing only in whitespace share an archive name.
type Hasher struct{}

// New returns a Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the lowercase hex SHA-256 of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	var compact bytes.Buffer
	if json.Valid(data) && json.Compact(&compact, data) == nil {
		data = compact.Bytes()
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
