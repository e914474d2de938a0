package signature

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Mindburn-Labs/archgate/pkg/artifacts"
)

var (
	// ErrSignatureNotFound is returned by Load when nothing is stored under
	// the locator.
	ErrSignatureNotFound = errors.New("signature not found")
	// ErrSignatureCorrupt is returned when a stored hash does not match its
	// canonical form.
	ErrSignatureCorrupt = errors.New("signature corrupt")
)

const keyPrefix = "signatures/"

// Store persists signatures in a blob store keyed by locator (typically a
// branch name or commit). Storage failures are returned to the caller; the
// store does not retry.
type Store struct {
	blobs artifacts.Store
}

// NewStore wraps a blob store.
func NewStore(blobs artifacts.Store) *Store {
	return &Store{blobs: blobs}
}

// Key returns the blob key a locator maps to. Path separators in the locator
// are kept; within a segment every byte outside the key alphabet, and any
// '%', is percent-encoded, as are "." and ".." segments. Distinct locators
// therefore never share a key. Empty segments are rejected.
func Key(locator string) (string, error) {
	if locator == "" {
		return "", fmt.Errorf("signature: invalid locator %q", locator)
	}
	segs := strings.Split(locator, "/")
	for i, seg := range segs {
		switch seg {
		case "":
			return "", fmt.Errorf("signature: invalid locator %q: empty path segment", locator)
		case ".", "..":
			segs[i] = strings.Repeat("%2E", len(seg))
		default:
			segs[i] = escapeSegment(seg)
		}
	}
	key := keyPrefix + strings.Join(segs, "/") + ".json"
	if err := artifacts.ValidateKey(key); err != nil {
		return "", fmt.Errorf("signature: %w", err)
	}
	return key, nil
}

func escapeSegment(seg string) string {
	var b strings.Builder
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			strings.IndexByte("._@+=-", c) >= 0:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// Save stores sig under locator, replacing any previous signature.
func (s *Store) Save(ctx context.Context, sig *Signature, locator string) error {
	if sig == nil {
		return errors.New("signature: nil signature")
	}
	key, err := Key(locator)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(sig, "", "  ")
	if err != nil {
		return fmt.Errorf("signature: encode: %w", err)
	}
	if err := s.blobs.Put(ctx, key, data); err != nil {
		return fmt.Errorf("signature: save %s: %w", locator, err)
	}
	return nil
}

// Load returns the signature stored under locator. The stored hash is
// verified against the canonical form.
func (s *Store) Load(ctx context.Context, locator string) (*Signature, error) {
	key, err := Key(locator)
	if err != nil {
		return nil, err
	}
	data, err := s.blobs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, artifacts.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSignatureNotFound, locator)
		}
		return nil, fmt.Errorf("signature: load %s: %w", locator, err)
	}

	var sig Signature
	if err := json.Unmarshal(data, &sig); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSignatureCorrupt, locator, err)
	}
	if err := Verify(&sig); err != nil {
		return nil, err
	}
	return &sig, nil
}
