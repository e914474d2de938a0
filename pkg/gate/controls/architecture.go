package controls

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Mindburn-Labs/archgate/pkg/acr"
	"github.com/Mindburn-Labs/archgate/pkg/constraints"
	"github.com/Mindburn-Labs/archgate/pkg/gate"
	"github.com/Mindburn-Labs/archgate/pkg/signature"
)

// ArchitectureCompliance fails when the workspace's architecture signature
// drifts from the approved baseline and an element's change is not covered
// by an APPROVED ACR raised for the same commit or branch.
type ArchitectureCompliance struct {
	base
	Catalog    signature.Catalog
	Engine     *signature.Engine
	Signatures *signature.Store
	Approvals  Approvals
	// Locator keys the baseline; empty means the base branch, then the
	// branch.
	Locator      string
	ManifestPath string
}

func NewArchitectureCompliance(severity constraints.Severity, catalog signature.Catalog, engine *signature.Engine, store *signature.Store, approvals Approvals) *ArchitectureCompliance {
	return &ArchitectureCompliance{
		base:       base{name: "architecture-compliance", severity: severity},
		Catalog:    catalog,
		Engine:     engine,
		Signatures: store,
		Approvals:  approvals,
	}
}

func (a *ArchitectureCompliance) locator(gc gate.GateContext) string {
	switch {
	case a.Locator != "":
		return a.Locator
	case gc.BaseBranch != "":
		return gc.BaseBranch
	default:
		return gc.Branch
	}
}

func (a *ArchitectureCompliance) Validate(ctx context.Context, in gate.Input) (*gate.ControlResult, error) {
	collector := &signature.Collector{
		Root:         in.Context.WorkspaceRoot,
		Catalog:      a.Catalog,
		ManifestPath: a.ManifestPath,
		Algorithm:    a.Engine.Algorithm(),
	}
	state, err := collector.Collect(ctx)
	if err != nil {
		return nil, err
	}
	current, err := a.Engine.Generate(ctx, state)
	if err != nil {
		return nil, err
	}

	locator := a.locator(in.Context)
	if locator == "" {
		return nil, errors.New("no signature locator: set one or supply a branch")
	}
	baseline, err := a.Signatures.Load(ctx, locator)
	if errors.Is(err, signature.ErrSignatureNotFound) {
		msg := fmt.Sprintf("no approved architecture signature for %q; run `archgate signature approve --locator %s` to establish one", locator, locator)
		return gate.Fail(msg, gate.Violation{
			Code:     CodeBaselineMissing,
			Message:  msg,
			Evidence: []gate.EvidenceReference{{Type: "architecture-signature", Path: locator, Hash: current.Hash}},
		}), nil
	}
	if err != nil {
		return nil, err
	}

	diff, err := signature.Compare(baseline, current)
	if err != nil {
		return nil, err
	}
	sigRef := gate.EvidenceReference{Type: "architecture-signature", Path: locator, Hash: current.Hash}
	if !diff.Drifted() {
		return gate.Pass(fmt.Sprintf("architecture matches approved signature %s", baseline.Hash), sigRef), nil
	}

	var approved []*acr.ACR
	if a.Approvals != nil {
		approved, err = a.Approvals.FindApproved(ctx, provenance(in.Context))
		if err != nil {
			return nil, err
		}
	}

	var catalog []constraints.Constraint
	if a.Catalog != nil {
		catalog = a.Catalog.GetAll(ctx)
	}

	var violations []gate.Violation
	covering := map[string]bool{}
	var coveringIDs []string
	for _, change := range diff.Changes {
		ids := acr.Covering(approved, change.Element)
		if len(ids) == 0 {
			violations = append(violations, gate.Violation{
				Code: CodeChangeUnapproved,
				Message: fmt.Sprintf("%s %s without an approved ACR; submit an ACR listing %s for %s",
					change.Element, change.Kind, change.Element, commitOrBranch(in.Context)),
				Severity: elementSeverity(catalog, change.Element),
				Evidence: []gate.EvidenceReference{{Type: "architecture-element", Path: change.Element, Hash: change.Digest}},
			})
			continue
		}
		for _, id := range ids {
			if !covering[id] {
				covering[id] = true
				coveringIDs = append(coveringIDs, id)
			}
		}
	}

	if len(violations) > 0 {
		res := gate.Fail(fmt.Sprintf("%d of %d architecture changes lack an approved ACR", len(violations), len(diff.Changes)), violations...)
		res.Evidence = []gate.EvidenceReference{sigRef}
		return res, nil
	}
	return gate.Pass(fmt.Sprintf("%d architecture changes covered by approved ACRs: %s",
		len(diff.Changes), strings.Join(coveringIDs, ", ")), sigRef), nil
}

// elementSeverity is the highest severity among constraints scoping element.
// Components and unscoped paths inherit the control severity.
func elementSeverity(catalog []constraints.Constraint, element string) constraints.Severity {
	if strings.HasPrefix(element, signature.ComponentPrefix) {
		return ""
	}
	var best constraints.Severity
	for _, c := range catalog {
		if c.Severity.Rank() > best.Rank() && constraints.ScopeMatches(c.Scope, element) {
			best = c.Severity
		}
	}
	return best
}

func commitOrBranch(gc gate.GateContext) string {
	if gc.CommitSHA != "" {
		return "commit " + gc.CommitSHA
	}
	return "branch " + gc.Branch
}
