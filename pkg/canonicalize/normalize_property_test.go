//go:build property
// +build property

package canonicalize

import (
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: the canonical hash of a tracked-element set does not depend on the
// order in which elements or their fields were produced.
func TestCanonicalHashShuffleInvariance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("shuffled records hash identically", prop.ForAll(
		func(names []string, seed int64) bool {
			records := make([]any, 0, len(names))
			for i, n := range names {
				records = append(records, map[string]any{
					"name":      n,
					"layer":     i % 3,
					"dependsOn": []any{"core", n, "api"},
				})
			}

			shuffled := make([]any, len(records))
			copy(shuffled, records)
			r := rand.New(rand.NewSource(seed))
			r.Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})

			h1, err1 := CanonicalHash(map[string]any{"components": records})
			h2, err2 := CanonicalHash(map[string]any{"components": shuffled})
			if err1 != nil || err2 != nil {
				return err1 != nil && err2 != nil
			}
			return h1 == h2
		},
		gen.SliceOf(gen.AlphaString()),
		gen.Int64(),
	))

	properties.Property("distinct digests produce distinct hashes", prop.ForAll(
		func(a, b string) bool {
			if a == b {
				return true
			}
			h1, err1 := CanonicalHash(map[string]any{"lib/core.x": map[string]any{"digest": a}})
			h2, err2 := CanonicalHash(map[string]any{"lib/core.x": map[string]any{"digest": b}})
			if err1 != nil || err2 != nil {
				return false
			}
			return h1 != h2
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
