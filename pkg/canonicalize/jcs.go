// Package canonicalize produces deterministic byte representations of
// structured data for hashing architecture state.
//
// Canonicalization is two steps. Normalize rewrites a value so that every
// order-dependent construct (map iteration, array construction order, Unicode
// composition) collapses to one form. JCS then serializes the normalized value
// per RFC 8785 (JSON Canonicalization Scheme).
package canonicalize

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// JCS returns the RFC 8785 canonical JSON representation of v.
//
// Map keys are sorted, HTML escaping is disabled and numbers use the ES6
// formatting required by the RFC. JCS does not reorder arrays; callers that
// need set semantics run Normalize first (see Canonical).
func JCS(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("jcs: pre-marshal failed: %w", err)
	}

	out, err := jcs.Transform(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}))
	if err != nil {
		return nil, fmt.Errorf("jcs: transform failed: %w", err)
	}
	return out, nil
}

// Canonical normalizes v with opts and returns its JCS bytes.
func Canonical(v any, opts Options) ([]byte, error) {
	n, err := Normalize(v, opts)
	if err != nil {
		return nil, err
	}
	return JCS(n)
}

// CanonicalHash returns the digest of the canonical form of v using the
// default options and algorithm.
func CanonicalHash(v any) (string, error) {
	b, err := Canonical(v, DefaultOptions())
	if err != nil {
		return "", err
	}
	return Digest(SHA256, b)
}
