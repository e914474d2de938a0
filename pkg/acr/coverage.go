package acr

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Mindburn-Labs/archgate/pkg/constraints"
)

// componentPrefix marks architecture elements that name a component rather
// than a path.
const componentPrefix = "component:"

// MatchesProvenance reports whether the ACR was raised for the change under
// evaluation. An ACR that records a commit must name the same commit; one
// that records only a branch must name the same branch. An ACR with neither
// matches nothing.
func (a *ACR) MatchesProvenance(p Provenance) bool {
	switch {
	case a.CommitSHA != "":
		return p.CommitSHA != "" && strings.EqualFold(a.CommitSHA, p.CommitSHA)
	case a.Branch != "":
		return a.Branch == p.Branch
	default:
		return false
	}
}

// Covers reports whether the ACR declares element as affected. Path elements
// match an affected file exactly or through a doublestar pattern;
// "component:<name>" elements match an affected component by name.
func (a *ACR) Covers(element string) bool {
	if name, ok := strings.CutPrefix(element, componentPrefix); ok {
		for _, c := range a.AffectedComponents {
			if c == name {
				return true
			}
		}
		return false
	}

	p := constraints.CleanPath(element)
	for _, f := range a.AffectedFiles {
		pattern := constraints.CleanPath(f)
		if pattern == p {
			return true
		}
		if ok, err := doublestar.Match(pattern, p); err == nil && ok {
			return true
		}
	}
	return false
}

// Covering returns the ids of the ACRs that cover element, in input order.
func Covering(acrs []*ACR, element string) []string {
	var ids []string
	for _, a := range acrs {
		if a.Covers(element) {
			ids = append(ids, a.ID)
		}
	}
	return ids
}
