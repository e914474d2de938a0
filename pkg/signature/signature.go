// Package signature fingerprints the tracked architecture of a workspace.
//
// A Signature is the digest of the canonical form of a TrackedState, a map
// from element identifier (a workspace path or "component:<name>") to a
// structural description of that element. Canonicalization makes the digest a
// function of the state's meaning, not of map or slice construction order, so
// two runs over the same architecture produce byte-identical signatures.
package signature

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Mindburn-Labs/archgate/pkg/canonicalize"
)

// TrackedState describes tracked architecture elements keyed by identifier.
type TrackedState map[string]any

// Signature is an immutable fingerprint of a TrackedState.
type Signature struct {
	Hash string `json:"hash"`
	// CanonicalForm is the exact JCS text that was hashed. It is kept as a
	// string so persistence never re-escapes it.
	CanonicalForm   string                 `json:"canonicalForm"`
	GeneratedAt     time.Time              `json:"generatedAt"`
	TrackedElements []string               `json:"trackedElements"`
	Algorithm       canonicalize.Algorithm `json:"algorithm"`
}

// Engine generates signatures.
type Engine struct {
	alg   canonicalize.Algorithm
	opts  canonicalize.Options
	clock func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithAlgorithm selects the digest algorithm (sha256 by default).
func WithAlgorithm(alg canonicalize.Algorithm) Option {
	return func(e *Engine) { e.alg = alg }
}

// WithSortKeys overrides the stable record keys used when ordering arrays.
func WithSortKeys(keys ...string) Option {
	return func(e *Engine) { e.opts.SortKeys = keys }
}

// WithClock overrides the clock used for GeneratedAt.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// NewEngine creates a signature engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		alg:   canonicalize.SHA256,
		opts:  canonicalize.DefaultOptions(),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Algorithm returns the digest algorithm in use.
func (e *Engine) Algorithm() canonicalize.Algorithm { return e.alg }

// Generate canonicalizes state and returns its signature.
func (e *Engine) Generate(ctx context.Context, state TrackedState) (*Signature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if state == nil {
		state = TrackedState{}
	}

	normalized, err := canonicalize.Normalize(map[string]any(state), e.opts)
	if err != nil {
		return nil, fmt.Errorf("signature: canonicalize: %w", err)
	}
	canonical, err := canonicalize.JCS(normalized)
	if err != nil {
		return nil, fmt.Errorf("signature: canonicalize: %w", err)
	}
	hash, err := e.Hash(canonical)
	if err != nil {
		return nil, err
	}

	root, _ := normalized.(map[string]any)
	elements := make([]string, 0, len(root))
	for id := range root {
		elements = append(elements, id)
	}
	sort.Strings(elements)

	return &Signature{
		Hash:            hash,
		CanonicalForm:   string(canonical),
		GeneratedAt:     e.clock().UTC(),
		TrackedElements: elements,
		Algorithm:       e.alg,
	}, nil
}

// Hash digests a canonical form. It depends only on its input.
func (e *Engine) Hash(canonical []byte) (string, error) {
	h, err := canonicalize.Digest(e.alg, canonical)
	if err != nil {
		return "", fmt.Errorf("signature: %w", err)
	}
	return h, nil
}

// Verify recomputes the digest of s.CanonicalForm and checks it against
// s.Hash.
func Verify(s *Signature) error {
	alg := s.Algorithm
	if alg == "" {
		alg = canonicalize.SHA256
	}
	h, err := canonicalize.Digest(alg, []byte(s.CanonicalForm))
	if err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	if h != s.Hash {
		return fmt.Errorf("%w: recorded %s, computed %s", ErrSignatureCorrupt, s.Hash, h)
	}
	return nil
}
