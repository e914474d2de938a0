package controls

import (
	"context"
	"fmt"

	"github.com/Mindburn-Labs/archgate/pkg/acr"
	"github.com/Mindburn-Labs/archgate/pkg/constraints"
	"github.com/Mindburn-Labs/archgate/pkg/gate"
)

// ProtectedPaths fails for each changed file under a protected constraint's
// scope unless an APPROVED ACR for the change covers it.
type ProtectedPaths struct {
	base
	Approvals Approvals
}

func NewProtectedPaths(severity constraints.Severity, approvals Approvals) *ProtectedPaths {
	return &ProtectedPaths{base: base{name: "protected-paths", severity: severity}, Approvals: approvals}
}

func (p *ProtectedPaths) Validate(ctx context.Context, in gate.Input) (*gate.ControlResult, error) {
	var protected []constraints.Constraint
	for _, c := range in.Constraints {
		if c.Type == constraints.TypeProtected {
			protected = append(protected, c)
		}
	}
	if len(protected) == 0 {
		return gate.Pass("no protected constraints apply to this change"), nil
	}

	var approved []*acr.ACR
	if p.Approvals != nil {
		var err error
		if approved, err = p.Approvals.FindApproved(ctx, provenance(in.Context)); err != nil {
			return nil, err
		}
	}

	var violations []gate.Violation
	touched := 0
	for _, f := range in.Context.ChangedFiles {
		file := constraints.CleanPath(f)
		var hit []constraints.Constraint
		for _, c := range protected {
			if constraints.ScopeMatches(c.Scope, file) {
				hit = append(hit, c)
			}
		}
		if len(hit) == 0 {
			continue
		}
		touched++
		if len(acr.Covering(approved, file)) > 0 {
			continue
		}
		for _, c := range hit {
			violations = append(violations, gate.Violation{
				Code:     CodeProtectedPathModified,
				Message:  fmt.Sprintf("%s is protected by %s (scope %s, owner %s); an approved ACR is required", file, c.ID, c.Scope, ownerOf(c)),
				Severity: c.Severity,
				Evidence: []gate.EvidenceReference{{Type: "changed-file", Path: file}},
			})
		}
	}

	if len(violations) > 0 {
		return gate.Fail(fmt.Sprintf("%d protected path violations", len(violations)), violations...), nil
	}
	if touched > 0 {
		return gate.Pass(fmt.Sprintf("%d protected files changed, all covered by approved ACRs", touched)), nil
	}
	return gate.Pass("no protected paths modified"), nil
}

func ownerOf(c constraints.Constraint) string {
	if c.Owner == "" {
		return "unassigned"
	}
	return c.Owner
}
