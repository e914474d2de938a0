package canonicalize

import (
	"encoding/json"
	"testing"
)

func FuzzJCS(f *testing.F) {
	f.Add([]byte(`{"a":1,"b":2}`))
	f.Add([]byte(`{"z":{"y":"foo","x":"bar"},"a":1}`))
	f.Add([]byte(`{"html":"<script>alert('xss')</script> &"}`))
	f.Add([]byte(`{"num":123.456,"bool":true,"null":null}`))
	f.Add([]byte(`{"arr":[3,1,2],"nested":{"deep":{"key":"val"}}}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`{"unicode":"こんにちは","emoji":"🚀"}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			t.Skip("invalid JSON input")
			return
		}

		b1, err := JCS(v)
		if err != nil {
			return
		}
		b2, err := JCS(v)
		if err != nil {
			t.Fatal("JCS returned error on second call but not first")
		}
		if string(b1) != string(b2) {
			t.Errorf("JCS non-deterministic:\n  first:  %s\n  second: %s", b1, b2)
		}

		var check any
		if err := json.Unmarshal(b1, &check); err != nil {
			t.Errorf("JCS output is not valid JSON: %s", string(b1))
		}
	})
}

// Canonical output fed back through Canonical must not change.
func FuzzCanonicalIdempotent(f *testing.F) {
	f.Add([]byte(`{"b":[3,1,2],"a":{"y":"foo","x":"bar"}}`))
	f.Add([]byte(`[{"name":"b"},{"name":"a"},{"id":"1"}]`))
	f.Add([]byte(`{"k":"café"}`))
	f.Add([]byte(`[null,true,"x",1,[2,1],{"z":0}]`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			t.Skip("invalid JSON input")
			return
		}

		first, err := Canonical(v, DefaultOptions())
		if err != nil {
			return
		}

		var again any
		if err := json.Unmarshal(first, &again); err != nil {
			t.Fatalf("canonical output is not valid JSON: %s", first)
		}
		second, err := Canonical(again, DefaultOptions())
		if err != nil {
			t.Fatalf("canonical output failed to re-canonicalize: %v", err)
		}
		if string(first) != string(second) {
			t.Errorf("Canonical not idempotent:\n  first:  %s\n  second: %s", first, second)
		}
	})
}
