package canonicalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_KeyInsertionOrderIrrelevant(t *testing.T) {
	a := map[string]any{}
	a["lib/core.x"] = map[string]any{"kind": "file", "digest": "sha256:01"}
	a["lib/util.x"] = map[string]any{"digest": "sha256:02", "kind": "file"}

	b := map[string]any{}
	b["lib/util.x"] = map[string]any{"kind": "file", "digest": "sha256:02"}
	b["lib/core.x"] = map[string]any{"digest": "sha256:01", "kind": "file"}

	ca, err := Canonical(a, DefaultOptions())
	require.NoError(t, err)
	cb, err := Canonical(b, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, string(ca), string(cb))
}

func TestNormalize_SortsPrimitiveArrays(t *testing.T) {
	got, err := Canonical(map[string]any{
		"tags":    []any{"b", "c", "a"},
		"weights": []any{10, 2, 1.5},
		"mixed":   []any{"x", 1, true, nil},
	}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, `{"mixed":[null,true,1,"x"],"tags":["a","b","c"],"weights":[1.5,2,10]}`, string(got))
}

func TestNormalize_SortsRecordsByStableKey(t *testing.T) {
	in := []any{
		map[string]any{"name": "storage", "layer": 2},
		map[string]any{"name": "api", "layer": 1},
		map[string]any{"name": "core", "layer": 0},
	}
	got, err := Canonical(in, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t,
		`[{"layer":1,"name":"api"},{"layer":0,"name":"core"},{"layer":2,"name":"storage"}]`,
		string(got))
}

func TestNormalize_IDTakesPrecedenceOverName(t *testing.T) {
	in := []any{
		map[string]any{"id": "2", "name": "a"},
		map[string]any{"id": "1", "name": "b"},
	}
	got, err := Canonical(in, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"1","name":"b"},{"id":"2","name":"a"}]`, string(got))
}

func TestNormalize_RecordsWithoutKeyFallBackToCanonicalBytes(t *testing.T) {
	x := []any{
		map[string]any{"b": 1},
		map[string]any{"a": 2},
	}
	y := []any{
		map[string]any{"a": 2},
		map[string]any{"b": 1},
	}
	cx, err := Canonical(x, DefaultOptions())
	require.NoError(t, err)
	cy, err := Canonical(y, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, string(cx), string(cy))
	assert.Equal(t, `[{"a":2},{"b":1}]`, string(cx))
}

func TestNormalize_NestedArraysSortedRecursively(t *testing.T) {
	x := map[string]any{
		"components": []any{
			map[string]any{"name": "b", "dependsOn": []any{"z", "y"}},
			map[string]any{"name": "a", "dependsOn": []any{"q", "p"}},
		},
	}
	y := map[string]any{
		"components": []any{
			map[string]any{"dependsOn": []any{"p", "q"}, "name": "a"},
			map[string]any{"dependsOn": []any{"y", "z"}, "name": "b"},
		},
	}
	cx, err := Canonical(x, DefaultOptions())
	require.NoError(t, err)
	cy, err := Canonical(y, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, string(cx), string(cy))
}

func TestNormalize_UnicodeNFC(t *testing.T) {
	composed := "caf\u00e9"
	decomposed := "cafe\u0301"

	ca, err := Canonical(map[string]any{composed: decomposed}, DefaultOptions())
	require.NoError(t, err)
	cb, err := Canonical(map[string]any{decomposed: composed}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, string(ca), string(cb))
}

func TestNormalize_NFCKeyCollision(t *testing.T) {
	_, err := Normalize(map[string]any{
		"caf\u00e9":  1,
		"cafe\u0301": 2,
	}, DefaultOptions())
	require.Error(t, err)
}

func TestDigest_Algorithms(t *testing.T) {
	data := []byte(`{"a":1}`)

	s, err := Digest(SHA256, data)
	require.NoError(t, err)
	assert.Len(t, s, len("sha256:")+64)

	b, err := Digest(BLAKE3, data)
	require.NoError(t, err)
	assert.Len(t, b, len("blake3:")+64)
	assert.NotEqual(t, s[len("sha256:"):], b[len("blake3:"):])

	_, err = Digest("md5", data)
	require.Error(t, err)
}

func TestDigest_Sensitivity(t *testing.T) {
	h1, err := CanonicalHash(map[string]any{"lib/core.x": map[string]any{"digest": "sha256:01"}})
	require.NoError(t, err)
	h2, err := CanonicalHash(map[string]any{"lib/core.x": map[string]any{"digest": "sha256:02"}})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestParseAlgorithm(t *testing.T) {
	alg, err := ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, SHA256, alg)

	alg, err = ParseAlgorithm("BLAKE3")
	require.NoError(t, err)
	assert.Equal(t, BLAKE3, alg)

	_, err = ParseAlgorithm("crc32")
	require.Error(t, err)
}
