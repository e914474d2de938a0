package constraints

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Mindburn-Labs/archgate/pkg/canonicalize"
)

// ErrConstraintNotFound is returned by GetByID for unknown ids.
var ErrConstraintNotFound = errors.New("constraint not found")

// Snapshot is a deterministic, hashable view of the catalog.
type Snapshot struct {
	Constraints []Constraint `json:"constraints"` // Sorted by ID
	Hash        string       `json:"hash"`
	Count       int          `json:"count"`
}

// Registry is a lazily loaded, cached constraint catalog. The catalog is read
// from its Source on first use and kept until InvalidateCache. Loads happen
// under the write lock so readers never observe a partial catalog.
//
// An absent, unreadable or malformed catalog degrades to an empty one; the
// cause is logged rather than returned. Read failures are retried on the next
// call.
type Registry struct {
	source Source
	logger *slog.Logger

	mu       sync.RWMutex
	loaded   bool
	items    []parsed
	rejected []Rejected
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger overrides the registry's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates a registry backed by source.
func NewRegistry(source Source, opts ...Option) *Registry {
	r := &Registry{
		source: source,
		logger: slog.Default().With("component", "constraints"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewFileRegistry creates a registry reading the catalog at path.
func NewFileRegistry(path string, opts ...Option) *Registry {
	return NewRegistry(FileSource{Path: path}, opts...)
}

// InvalidateCache forces the next read to reload from the source.
func (r *Registry) InvalidateCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = false
	r.items = nil
	r.rejected = nil
}

// view returns the current catalog, loading it if needed. The returned slice
// is never mutated after publication, so callers may read it without the lock.
func (r *Registry) view(ctx context.Context) []parsed {
	r.mu.RLock()
	if r.loaded {
		items := r.items
		r.mu.RUnlock()
		return items
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		r.load(ctx)
	}
	return r.items
}

// load must be called with the write lock held. An absent or malformed
// catalog is cached as empty; a failed read is not cached, so the next call
// retries it.
func (r *Registry) load(ctx context.Context) {
	r.items = nil
	r.rejected = nil

	if r.source == nil {
		r.loaded = true
		return
	}

	data, err := r.source.Read(ctx)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Debug("constraint catalog absent, using empty catalog")
			r.loaded = true
		} else {
			r.logger.Warn("constraint catalog unreadable, using empty catalog for this read", "error", err)
		}
		return
	}
	r.loaded = true

	outcomes, accepted, err := parse(data)
	if err != nil {
		r.logger.Warn("constraint catalog malformed, using empty catalog", "error", err)
		return
	}

	for _, o := range outcomes {
		if o.Rejected != nil {
			r.rejected = append(r.rejected, *o.Rejected)
			r.logger.Warn("constraint record rejected",
				"index", o.Rejected.Index, "id", o.Rejected.ID, "reason", o.Rejected.Reason)
		}
	}
	r.items = accepted
	r.logger.Debug("constraint catalog loaded", "accepted", len(accepted), "rejected", len(r.rejected))
}

// GetAll returns the full catalog in file order.
func (r *Registry) GetAll(ctx context.Context) []Constraint {
	items := r.view(ctx)
	out := make([]Constraint, len(items))
	for i, p := range items {
		out[i] = p.constraint
	}
	return out
}

// GetByID looks up a single constraint.
func (r *Registry) GetByID(ctx context.Context, id string) (Constraint, error) {
	for _, p := range r.view(ctx) {
		if p.constraint.ID == id {
			return p.constraint, nil
		}
	}
	return Constraint{}, fmt.Errorf("%w: %s", ErrConstraintNotFound, id)
}

// Query returns the constraints matching every non-empty filter field, in
// catalog order.
func (r *Registry) Query(ctx context.Context, f Filter) QueryResult {
	items := r.view(ctx)
	res := QueryResult{Constraints: []Constraint{}, Total: len(items)}
	for _, p := range items {
		if f.matches(p.constraint) {
			res.Constraints = append(res.Constraints, p.constraint)
		}
	}
	res.Filtered = len(res.Constraints)
	return res
}

// Rejected returns the records rejected during the last load.
func (r *Registry) Rejected(ctx context.Context) []Rejected {
	r.view(ctx)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Rejected(nil), r.rejected...)
}

// ForPath returns the constraints whose scope matches p.
func (r *Registry) ForPath(ctx context.Context, p string) []Constraint {
	p = CleanPath(p)
	var out []Constraint
	for _, item := range r.view(ctx) {
		if ScopeMatches(item.constraint.Scope, p) {
			out = append(out, item.constraint)
		}
	}
	return out
}

// Applicable returns the constraints that apply to an evaluation: the scope
// matches at least one changed file (or no changed files were supplied) and
// the `when` expression, if any, is true. An expression that fails to evaluate
// makes the constraint applicable.
func (r *Registry) Applicable(ctx context.Context, ev Evaluation) []Constraint {
	var out []Constraint
	for _, item := range r.view(ctx) {
		c := item.constraint
		if len(ev.ChangedFiles) > 0 && !scopeMatchesAny(c.Scope, ev.ChangedFiles) {
			continue
		}
		if item.when != nil {
			ok, err := evalWhen(item.when, ev)
			if err != nil {
				r.logger.Warn("when expression failed, treating constraint as applicable",
					"id", c.ID, "error", err)
			} else if !ok {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// Snapshot returns the catalog sorted by id with its canonical hash.
func (r *Registry) Snapshot(ctx context.Context) (*Snapshot, error) {
	all := r.GetAll(ctx)
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	hash, err := canonicalize.CanonicalHash(all)
	if err != nil {
		return nil, fmt.Errorf("constraint snapshot: %w", err)
	}
	return &Snapshot{Constraints: all, Hash: hash, Count: len(all)}, nil
}

// CleanPath converts p to the slash-separated, relative form scopes match
// against.
func CleanPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean(p)
	return strings.TrimPrefix(p, "./")
}

// ScopeMatches reports whether the doublestar scope matches the path.
// Invalid patterns never match.
func ScopeMatches(scope, p string) bool {
	ok, err := doublestar.Match(scope, CleanPath(p))
	return err == nil && ok
}

func scopeMatchesAny(scope string, paths []string) bool {
	for _, p := range paths {
		if ScopeMatches(scope, p) {
			return true
		}
	}
	return false
}
