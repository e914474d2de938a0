package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm names a digest function.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"
)

// ParseAlgorithm accepts "sha256" or "blake3" (case-insensitive). The empty
// string selects SHA256.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(s)) {
	case "", SHA256:
		return SHA256, nil
	case BLAKE3:
		return BLAKE3, nil
	default:
		return "", fmt.Errorf("unsupported digest algorithm %q", s)
	}
}

// Digest returns the prefixed hex digest of data, e.g. "sha256:ab12...".
// Both algorithms produce 32-byte digests, so the result has a fixed length
// for a given algorithm.
func Digest(alg Algorithm, data []byte) (string, error) {
	var sum [32]byte
	switch alg {
	case SHA256, "":
		alg = SHA256
		sum = sha256.Sum256(data)
	case BLAKE3:
		sum = blake3.Sum256(data)
	default:
		return "", fmt.Errorf("unsupported digest algorithm %q", alg)
	}
	return string(alg) + ":" + hex.EncodeToString(sum[:]), nil
}
