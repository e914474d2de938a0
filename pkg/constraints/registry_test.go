package constraints

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fiveConstraints = `[
  {"id": "C-1", "type": "structural", "severity": "CRITICAL", "scope": "lib/**", "owner": "platform"},
  {"id": "C-2", "type": "dependency", "severity": "HIGH", "scope": "lib/core/**", "owner": "platform"},
  {"id": "C-3", "type": "naming", "severity": "LOW", "scope": "cmd/**", "owner": "tooling"},
  {"id": "C-4", "type": "protected", "severity": "CRITICAL", "scope": ".github/**", "owner": "security"},
  {"id": "C-5", "type": "structural", "severity": "MEDIUM", "scope": "docs/**", "owner": "docs"}
]`

func ids(cs []Constraint) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}

func TestRegistry_GetAllPreservesOrder(t *testing.T) {
	r := NewRegistry(BytesSource(fiveConstraints))
	assert.Equal(t, []string{"C-1", "C-2", "C-3", "C-4", "C-5"}, ids(r.GetAll(context.Background())))
}

func TestRegistry_GetByID(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(BytesSource(fiveConstraints))

	c, err := r.GetByID(ctx, "C-3")
	require.NoError(t, err)
	assert.Equal(t, TypeNaming, c.Type)
	assert.Equal(t, "tooling", c.Owner)

	_, err = r.GetByID(ctx, "C-99")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConstraintNotFound))
}

func TestRegistry_QueryBySeverity(t *testing.T) {
	r := NewRegistry(BytesSource(fiveConstraints))

	res := r.Query(context.Background(), Filter{Severity: SeverityCritical})
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 2, res.Filtered)
	assert.Equal(t, []string{"C-1", "C-4"}, ids(res.Constraints))
}

func TestRegistry_QueryFiltersAreConjunctive(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(BytesSource(fiveConstraints))

	res := r.Query(ctx, Filter{Type: TypeStructural, Owner: "platform"})
	assert.Equal(t, []string{"C-1"}, ids(res.Constraints))
	assert.Equal(t, 1, res.Filtered)
	assert.Equal(t, 5, res.Total)

	res = r.Query(ctx, Filter{Severity: SeverityCritical, Scope: "docs/**"})
	assert.Empty(t, res.Constraints)
	assert.NotNil(t, res.Constraints)
	assert.Equal(t, 0, res.Filtered)

	res = r.Query(ctx, Filter{})
	assert.Equal(t, 5, res.Filtered)
}

func TestRegistry_MissingCatalogIsEmpty(t *testing.T) {
	r := NewFileRegistry(filepath.Join(t.TempDir(), "absent.json"))

	res := r.Query(context.Background(), Filter{})
	assert.Equal(t, 0, res.Total)
	assert.Empty(t, r.GetAll(context.Background()))
}

func TestRegistry_MalformedCatalogIsEmpty(t *testing.T) {
	for name, data := range map[string]string{
		"object":  `{"id": "C-1"}`,
		"garbage": `not json at all`,
		"empty":   ``,
	} {
		t.Run(name, func(t *testing.T) {
			r := NewRegistry(BytesSource(data))
			assert.Empty(t, r.GetAll(context.Background()))
		})
	}
}

func TestRegistry_JSONCComments(t *testing.T) {
	r := NewRegistry(BytesSource(`[
  // core layering
  {"id": "C-1", "type": "structural", "severity": "HIGH", "scope": "lib/**"}, /* trailing */
]`))
	assert.Equal(t, []string{"C-1"}, ids(r.GetAll(context.Background())))
}

func TestRegistry_RejectsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(BytesSource(`[
  {"id": "ok", "type": "structural", "severity": "HIGH", "scope": "lib/**"},
  {"id": "bad-sev", "type": "structural", "severity": "URGENT", "scope": "lib/**"},
  {"type": "structural", "severity": "LOW", "scope": "lib/**"},
  "just a string",
  {"id": "ok", "type": "naming", "severity": "LOW", "scope": "cmd/**"},
  {"id": "bad-glob", "type": "naming", "severity": "LOW", "scope": "lib/[abc"},
  {"id": "bad-when", "type": "naming", "severity": "LOW", "scope": "lib/**", "when": "branch +"}
]`))

	assert.Equal(t, []string{"ok"}, ids(r.GetAll(ctx)))

	rejected := r.Rejected(ctx)
	require.Len(t, rejected, 6)
	assert.Equal(t, 1, rejected[0].Index)
	assert.Equal(t, "bad-sev", rejected[0].ID)
	assert.Equal(t, 2, rejected[1].Index)
	assert.Equal(t, 3, rejected[2].Index)
	assert.Equal(t, "duplicate constraint id", rejected[3].Reason)
	assert.Contains(t, rejected[4].Reason, "invalid scope pattern")
	assert.Equal(t, "bad-when", rejected[5].ID)
}

func TestParse_TaggedOutcomes(t *testing.T) {
	outcomes, err := Parse([]byte(`[
  {"id": "a", "type": "structural", "severity": "LOW", "scope": "x/**"},
  {"id": "b"}
]`))
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Accepted())
	assert.Nil(t, outcomes[0].Rejected)
	assert.False(t, outcomes[1].Accepted())
	assert.Equal(t, "b", outcomes[1].Rejected.ID)

	_, err = Parse([]byte(`{}`))
	assert.ErrorIs(t, err, ErrCatalogNotList)
}

func TestRegistry_InvalidateCacheReloads(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "constraints.json")
	require.NoError(t, os.WriteFile(path, []byte(fiveConstraints), 0o644))

	r := NewFileRegistry(path)
	require.Len(t, r.GetAll(ctx), 5)

	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"N-1","type":"naming","severity":"LOW","scope":"**"}]`), 0o644))
	assert.Len(t, r.GetAll(ctx), 5, "catalog is cached until invalidated")

	r.InvalidateCache()
	assert.Equal(t, []string{"N-1"}, ids(r.GetAll(ctx)))
}

// flakySource fails its first read and serves data afterwards.
type flakySource struct {
	data  []byte
	reads atomic.Int32
}

func (f *flakySource) Read(context.Context) ([]byte, error) {
	if f.reads.Add(1) == 1 {
		return nil, errors.New("input/output error")
	}
	return f.data, nil
}

func TestRegistry_FailedReadIsNotCached(t *testing.T) {
	path := filepath.Join(t.TempDir(), "constraints.json")
	require.NoError(t, os.WriteFile(path, []byte(fiveConstraints), 0o644))
	r := NewFileRegistry(path)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, r.GetAll(cancelled))
	assert.Len(t, r.GetAll(context.Background()), 5)

	src := &flakySource{data: []byte(fiveConstraints)}
	r = NewRegistry(src)
	assert.Empty(t, r.GetAll(context.Background()))
	assert.Equal(t, 2, r.Query(context.Background(), Filter{Severity: SeverityCritical}).Filtered)
	assert.Len(t, r.GetAll(context.Background()), 5)
	assert.Equal(t, int32(2), src.reads.Load(), "a successful read is cached")
}

func TestRegistry_ConcurrentInvalidate(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(BytesSource(fiveConstraints))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				r.InvalidateCache()
			}
		}
	}()

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if got := len(r.GetAll(ctx)); got != 5 {
					t.Errorf("GetAll saw %d constraints", got)
					return
				}
				res := r.Query(ctx, Filter{Severity: SeverityCritical})
				if res.Total != 5 || res.Filtered != 2 {
					t.Errorf("Query saw total=%d filtered=%d", res.Total, res.Filtered)
					return
				}
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(stop)
	wg.Wait()
}

func TestRegistry_ForPath(t *testing.T) {
	r := NewRegistry(BytesSource(fiveConstraints))
	assert.Equal(t, []string{"C-1", "C-2"}, ids(r.ForPath(context.Background(), "./lib/core/x.go")))
	assert.Equal(t, []string{"C-1"}, ids(r.ForPath(context.Background(), "lib/core.x")))
	assert.Empty(t, r.ForPath(context.Background(), "README.md"))
}

func TestRegistry_Applicable(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(BytesSource(`[
  {"id": "lib", "type": "structural", "severity": "CRITICAL", "scope": "lib/**"},
  {"id": "main-only", "type": "structural", "severity": "HIGH", "scope": "lib/**", "when": "baseBranch == 'main'"},
  {"id": "big-pr", "type": "custom", "severity": "LOW", "scope": "**", "when": "size(changedFiles) > 2"},
  {"id": "broken", "type": "custom", "severity": "LOW", "scope": "**", "when": "changedFiles[5] == 'x'"},
  {"id": "docs", "type": "naming", "severity": "LOW", "scope": "docs/**"}
]`))

	got := r.Applicable(ctx, Evaluation{
		BaseBranch:   "develop",
		ChangedFiles: []string{"lib/core.x"},
	})
	assert.Equal(t, []string{"lib", "broken"}, ids(got), "evaluation errors fail closed")

	got = r.Applicable(ctx, Evaluation{
		BaseBranch:   "main",
		ChangedFiles: []string{"lib/core.x", "a", "b"},
	})
	assert.Equal(t, []string{"lib", "main-only", "big-pr", "broken"}, ids(got))

	got = r.Applicable(ctx, Evaluation{BaseBranch: "develop"})
	assert.Equal(t, []string{"lib", "broken", "docs"}, ids(got))
}

func TestRegistry_SnapshotDeterministic(t *testing.T) {
	ctx := context.Background()
	a := NewRegistry(BytesSource(fiveConstraints))
	b := NewRegistry(BytesSource(`[
  {"id": "C-5", "type": "structural", "severity": "MEDIUM", "scope": "docs/**", "owner": "docs"},
  {"id": "C-4", "type": "protected", "severity": "CRITICAL", "scope": ".github/**", "owner": "security"},
  {"id": "C-3", "type": "naming", "severity": "LOW", "scope": "cmd/**", "owner": "tooling"},
  {"id": "C-2", "type": "dependency", "severity": "HIGH", "scope": "lib/core/**", "owner": "platform"},
  {"id": "C-1", "type": "structural", "severity": "CRITICAL", "scope": "lib/**", "owner": "platform"}
]`))

	sa, err := a.Snapshot(ctx)
	require.NoError(t, err)
	sb, err := b.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, sa.Hash, sb.Hash)
	assert.Equal(t, 5, sa.Count)
	assert.Equal(t, "C-1", sa.Constraints[0].ID)
}

func TestSeverity(t *testing.T) {
	sev, ok := ParseSeverity(" critical ")
	assert.True(t, ok)
	assert.Equal(t, SeverityCritical, sev)

	_, ok = ParseSeverity("urgent")
	assert.False(t, ok)

	assert.Greater(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Equal(t, 0, Severity("").Rank())
}

func TestWatch_InvalidatesOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "constraints.json")
	require.NoError(t, os.WriteFile(path, []byte(fiveConstraints), 0o644))

	r := NewFileRegistry(path)
	require.Len(t, r.GetAll(context.Background()), 5)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, r, path, 10*time.Millisecond) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o644))

	assert.Eventually(t, func() bool {
		return len(r.GetAll(context.Background())) == 0
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
