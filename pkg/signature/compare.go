package signature

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Mindburn-Labs/archgate/pkg/canonicalize"
)

// ChangeKind classifies an element difference.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeRemoved ChangeKind = "removed"
	ChangeChanged ChangeKind = "changed"
)

// ElementChange describes one drifted element. Digest is the digest of the
// element's canonical form in the current signature (the baseline one for
// removed elements).
type ElementChange struct {
	Element string     `json:"element"`
	Kind    ChangeKind `json:"kind"`
	Digest  string     `json:"digest"`
}

// Diff is the structural difference between a baseline and a current
// signature.
type Diff struct {
	Identical       bool            `json:"identical"`
	AddedElements   []string        `json:"addedElements"`
	RemovedElements []string        `json:"removedElements"`
	ChangedElements []string        `json:"changedElements"`
	Changes         []ElementChange `json:"changes"`
}

// Drifted reports whether any element differs.
func (d Diff) Drifted() bool { return len(d.Changes) > 0 }

// Compare diffs current against baseline. Added and removed elements are the
// set difference over TrackedElements; changed elements are present in both
// with different canonical sub-forms. Identical is true iff the hashes match.
func Compare(baseline, current *Signature) (Diff, error) {
	if baseline == nil || current == nil {
		return Diff{}, fmt.Errorf("signature: compare requires two signatures")
	}

	before, err := elementForms(baseline)
	if err != nil {
		return Diff{}, fmt.Errorf("signature: baseline: %w", err)
	}
	after, err := elementForms(current)
	if err != nil {
		return Diff{}, fmt.Errorf("signature: current: %w", err)
	}

	d := Diff{
		Identical:       baseline.Hash == current.Hash,
		AddedElements:   []string{},
		RemovedElements: []string{},
		ChangedElements: []string{},
		Changes:         []ElementChange{},
	}

	alg := current.Algorithm
	if alg == "" {
		alg = canonicalize.SHA256
	}
	digest := func(raw json.RawMessage) string {
		h, _ := canonicalize.Digest(alg, raw)
		return h
	}

	for _, id := range current.TrackedElements {
		old, ok := before[id]
		switch {
		case !ok:
			d.AddedElements = append(d.AddedElements, id)
			d.Changes = append(d.Changes, ElementChange{Element: id, Kind: ChangeAdded, Digest: digest(after[id])})
		case string(old) != string(after[id]):
			d.ChangedElements = append(d.ChangedElements, id)
			d.Changes = append(d.Changes, ElementChange{Element: id, Kind: ChangeChanged, Digest: digest(after[id])})
		}
	}
	for _, id := range baseline.TrackedElements {
		if _, ok := after[id]; !ok {
			d.RemovedElements = append(d.RemovedElements, id)
			d.Changes = append(d.Changes, ElementChange{Element: id, Kind: ChangeRemoved, Digest: digest(before[id])})
		}
	}

	sort.Strings(d.AddedElements)
	sort.Strings(d.RemovedElements)
	sort.Strings(d.ChangedElements)
	sort.SliceStable(d.Changes, func(i, j int) bool { return d.Changes[i].Element < d.Changes[j].Element })
	return d, nil
}

// elementForms splits a canonical form into per-element canonical JSON. The
// form is JCS output, so equal elements have equal bytes.
func elementForms(s *Signature) (map[string]json.RawMessage, error) {
	forms := map[string]json.RawMessage{}
	if s.CanonicalForm == "" {
		return forms, nil
	}
	if err := json.Unmarshal([]byte(s.CanonicalForm), &forms); err != nil {
		return nil, fmt.Errorf("canonical form is not an object: %w", err)
	}
	return forms, nil
}
