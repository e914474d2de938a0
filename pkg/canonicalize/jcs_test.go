package canonicalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJCS_Serialization(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   any
		want string
	}{
		{
			name: "tracked element keys sorted",
			in: map[string]any{
				"lib/util.x":    map[string]any{"kind": "file", "digest": "sha256:02"},
				"component:api": map[string]any{"layer": "edge", "kind": "component"},
			},
			want: `{"component:api":{"kind":"component","layer":"edge"},"lib/util.x":{"digest":"sha256:02","kind":"file"}}`,
		},
		{
			// U+1F600 is a surrogate pair and sorts before U+FB33 in UTF-16.
			name: "keys sorted by UTF-16 code units",
			in:   map[string]int{"\uFB33": 1, "\U0001F600": 2, "\u00f6": 3, "1": 4},
			want: "{\"1\":4,\"\u00f6\":3,\"\U0001F600\":2,\"\uFB33\":1}",
		},
		{
			name: "glob scopes not HTML escaped",
			in:   map[string]string{"scope": "lib/**/<gen>&*.x"},
			want: `{"scope":"lib/**/<gen>&*.x"}`,
		},
		{
			name: "numbers in ES6 form",
			in:   map[string]any{"big": 1e21, "small": 1e-7, "whole": 2.0, "dec": json.Number("0.50")},
			want: `{"big":1e+21,"dec":0.5,"small":1e-7,"whole":2}`,
		},
		{
			name: "struct tags honoured",
			in: struct {
				Severity string `json:"severity"`
				ID       string `json:"id"`
			}{Severity: "CRITICAL", ID: "C-1"},
			want: `{"id":"C-1","severity":"CRITICAL"}`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := JCS(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestJCS_KeepsArrayOrderCanonicalDoesNot(t *testing.T) {
	in := map[string]any{"dependsOn": []any{"storage", "auth", "core"}}

	raw, err := JCS(in)
	require.NoError(t, err)
	assert.Equal(t, `{"dependsOn":["storage","auth","core"]}`, string(raw))

	canon, err := Canonical(in, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, `{"dependsOn":["auth","core","storage"]}`, string(canon))
}

func TestJCS_RejectsUnencodable(t *testing.T) {
	_, err := JCS(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestCanonicalHash_StructAndMapAgree(t *testing.T) {
	type element struct {
		Kind        string   `json:"kind"`
		Constraints []string `json:"constraints"`
	}
	fromStruct, err := CanonicalHash(map[string]element{
		"lib/core.x": {Kind: "file", Constraints: []string{"C-2", "C-1"}},
	})
	require.NoError(t, err)

	fromMap, err := CanonicalHash(map[string]any{
		"lib/core.x": map[string]any{"constraints": []any{"C-1", "C-2"}, "kind": "file"},
	})
	require.NoError(t, err)

	assert.Equal(t, fromMap, fromStruct)
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, fromStruct)
}
