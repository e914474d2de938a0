// Package constraints holds the catalog of architecture constraints that a
// governance gate evaluates against.
package constraints

import "strings"

// Type categorizes a constraint.
type Type string

const (
	TypeStructural Type = "structural"
	TypeDependency Type = "dependency"
	TypeNaming     Type = "naming"
	TypeProtected  Type = "protected"
	TypeCustom     Type = "custom"
)

// Severity is a triage priority attached to constraints and violations.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// AllSeverities lists severities from most to least urgent.
func AllSeverities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}
}

// Rank orders severities; CRITICAL is highest. Unknown values rank zero.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is one of the defined severities.
func (s Severity) Valid() bool { return s.Rank() > 0 }

// ParseSeverity accepts a severity name in any case.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	return sev, sev.Valid()
}

// Constraint is a declarative architecture rule.
type Constraint struct {
	ID          string   `json:"id"`
	Type        Type     `json:"type"`
	Severity    Severity `json:"severity"`
	Scope       string   `json:"scope"`
	Owner       string   `json:"owner,omitempty"`
	Description string   `json:"description,omitempty"`
	// When is an optional CEL expression over the evaluation context. The
	// constraint only applies when it evaluates to true.
	When string `json:"when,omitempty"`
}

// Filter selects constraints in Query. Empty fields match everything.
type Filter struct {
	Type     Type
	Severity Severity
	Scope    string
	Owner    string
}

func (f Filter) matches(c Constraint) bool {
	if f.Type != "" && c.Type != f.Type {
		return false
	}
	if f.Severity != "" && c.Severity != f.Severity {
		return false
	}
	if f.Scope != "" && c.Scope != f.Scope {
		return false
	}
	if f.Owner != "" && c.Owner != f.Owner {
		return false
	}
	return true
}

// QueryResult carries the matching constraints alongside the catalog size.
// Total is the unfiltered count; Filtered is len(Constraints).
type QueryResult struct {
	Constraints []Constraint `json:"constraints"`
	Total       int          `json:"total"`
	Filtered    int          `json:"filtered"`
}

// Rejected describes a catalog record that failed validation at load time.
type Rejected struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// LoadOutcome is the result of validating one catalog record: exactly one of
// Constraint or Rejected is set.
type LoadOutcome struct {
	Constraint *Constraint
	Rejected   *Rejected
}

// Accepted reports whether the record was admitted into the catalog.
func (o LoadOutcome) Accepted() bool { return o.Constraint != nil }

// Evaluation is the subset of a gate evaluation that decides which
// constraints apply.
type Evaluation struct {
	PRNumber     int
	Branch       string
	BaseBranch   string
	ChangedFiles []string
}
