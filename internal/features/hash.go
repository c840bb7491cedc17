package features

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Hasher produces the short content digests that key features inside
// the archive.
type Hasher struct {
	size int
}

// NewHasher returns a hasher producing size-byte BLAKE2b digests,
// hex-encoded. The archive format defaults to 3 bytes; collisions at
// that size are accepted, last writer wins in the lookup table.
func NewHasher(size int) (*Hasher, error) {
	if size < 1 || size > blake2b.Size {
		return nil, fmt.Errorf("invalid digest size %d", size)
	}
	return &Hasher{size: size}, nil
}

// Hash digests a feature's name and descriptions.
func (h *Hasher) Hash(f Feature) (string, error) {
	d, err := blake2b.New(h.size, nil)
	if err != nil {
		return "", fmt.Errorf("init blake2b: %w", err)
	}
	fmt.Fprintf(d, "%s_%s_%s", f.Name, f.Description, f.SetDescription)
	return hex.EncodeToString(d.Sum(nil)), nil
}
