package canonicalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// DefaultSortKeys are the record fields consulted, in order, when sorting an
// array of objects.
var DefaultSortKeys = []string{"id", "name", "path", "key"}

// Options controls normalization.
type Options struct {
	// SortKeys lists the fields used as the stable sort key for arrays of
	// records. Each record sorts by the first key it carries;
	// ties and records without any key fall back to canonical byte order.
	SortKeys []string
}

// DefaultOptions returns the options used for architecture signatures.
func DefaultOptions() Options {
	return Options{SortKeys: DefaultSortKeys}
}

// Normalize returns a copy of v in which:
//   - every value is reduced to the JSON data model (structs honour json tags),
//   - strings and object keys are NFC-normalized,
//   - arrays are sorted: primitives by natural order, records by sort key,
//     anything else by canonical byte order.
//
// Two values that are equal up to ordering normalize to identical results.
func Normalize(v any, opts Options) (any, error) {
	generic, err := toGeneric(v)
	if err != nil {
		return nil, err
	}
	return normalizeValue(generic, opts)
}

// toGeneric round-trips v through encoding/json so that structs, typed maps
// and typed slices become map[string]any / []any with json.Number leaves.
func toGeneric(v any) (any, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("normalize: marshal failed: %w", err)
	}

	var generic any
	dec := json.NewDecoder(&buf)
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("normalize: decode failed: %w", err)
	}
	return generic, nil
}

func normalizeValue(v any, opts Options) (any, error) {
	switch t := v.(type) {
	case string:
		return norm.NFC.String(t), nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			nk := norm.NFC.String(k)
			if _, dup := out[nk]; dup {
				return nil, fmt.Errorf("normalize: keys collide after NFC normalization: %q", nk)
			}
			nv, err := normalizeValue(val, opts)
			if err != nil {
				return nil, err
			}
			out[nk] = nv
		}
		return out, nil
	case []any:
		return normalizeArray(t, opts)
	default:
		// nil, bool, json.Number
		return t, nil
	}
}

type sortable struct {
	value   any
	encoded []byte
}

func normalizeArray(arr []any, opts Options) ([]any, error) {
	items := make([]sortable, len(arr))
	for i, elem := range arr {
		nv, err := normalizeValue(elem, opts)
		if err != nil {
			return nil, err
		}
		enc, err := JCS(nv)
		if err != nil {
			return nil, err
		}
		items[i] = sortable{value: nv, encoded: enc}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return compare(items[i], items[j], opts.SortKeys) < 0
	})

	out := make([]any, len(items))
	for i, it := range items {
		out[i] = it.value
	}
	return out, nil
}

// rank orders values of different JSON kinds.
func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case json.Number:
		return 2
	case string:
		return 3
	case []any:
		return 4
	case map[string]any:
		return 5
	default:
		return 6
	}
}

func compare(a, b sortable, sortKeys []string) int {
	ra, rb := rank(a.value), rank(b.value)
	if ra != rb {
		return ra - rb
	}

	switch av := a.value.(type) {
	case bool, json.Number, string:
		if c := comparePrimitive(av, b.value); c != 0 {
			return c
		}
	case map[string]any:
		bv := b.value.(map[string]any)
		ia, ka := recordKey(av, sortKeys)
		ib, kb := recordKey(bv, sortKeys)
		if ia != ib {
			return ia - ib
		}
		if ia < len(sortKeys) {
			if c := comparePrimitive(ka, kb); c != 0 {
				return c
			}
		}
	}
	return bytes.Compare(a.encoded, b.encoded)
}

// recordKey returns the index of the first sort key present in rec and its
// value. Records keyed by an earlier sort key order before later ones, and
// records with no sort key come last.
func recordKey(rec map[string]any, sortKeys []string) (int, any) {
	for i, key := range sortKeys {
		if v, ok := rec[key]; ok {
			return i, v
		}
	}
	return len(sortKeys), nil
}

// comparePrimitive compares two scalar values. Mixed or non-scalar inputs
// compare by kind only.
func comparePrimitive(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case json.Number:
		bv := b.(json.Number)
		fa, errA := strconv.ParseFloat(av.String(), 64)
		fb, errB := strconv.ParseFloat(bv.String(), 64)
		if errA == nil && errB == nil {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
		}
		return compareStrings(av.String(), bv.String())
	case string:
		return compareStrings(av, b.(string))
	}
	return 0
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
