// Package controls provides the concrete validators run by the governance
// gate.
package controls

import (
	"context"
	"fmt"

	"github.com/Mindburn-Labs/archgate/pkg/acr"
	"github.com/Mindburn-Labs/archgate/pkg/config"
	"github.com/Mindburn-Labs/archgate/pkg/constraints"
	"github.com/Mindburn-Labs/archgate/pkg/gate"
	"github.com/Mindburn-Labs/archgate/pkg/signature"
)

// Violation codes.
const (
	CodeBaselineMissing       = "ARCH_BASELINE_MISSING"
	CodeChangeUnapproved      = "ARCH_CHANGE_UNAPPROVED"
	CodeEvidenceMissing       = "EVIDENCE_MISSING"
	CodeProtectedPathModified = "PROTECTED_PATH_MODIFIED"
	CodeCommandFailed         = "COMMAND_FAILED"
)

// Approvals finds APPROVED ACRs for an evaluation. *acr.Workflow implements
// it.
type Approvals interface {
	FindApproved(ctx context.Context, p acr.Provenance) ([]*acr.ACR, error)
}

func provenance(gc gate.GateContext) acr.Provenance {
	return acr.Provenance{CommitSHA: gc.CommitSHA, Branch: gc.Branch}
}

// Deps are the collaborators controls may need.
type Deps struct {
	Catalog    signature.Catalog
	Engine     *signature.Engine
	Signatures *signature.Store
	Approvals  Approvals
	// Locator and ManifestPath configure architecture-compliance.
	Locator      string
	ManifestPath string
}

// Build creates the validator declared by cfg.
func Build(cfg config.ControlConfig, deps Deps) (gate.Validator, error) {
	sev, ok := constraints.ParseSeverity(cfg.Severity)
	if !ok {
		return nil, fmt.Errorf("control %q: invalid severity %q", cfg.Name, cfg.Severity)
	}
	base := base{name: cfg.Name, severity: sev}

	switch cfg.Kind {
	case config.KindArchitectureCompliance:
		if deps.Engine == nil || deps.Signatures == nil {
			return nil, fmt.Errorf("control %q: signature engine and store are required", cfg.Name)
		}
		return &ArchitectureCompliance{
			base:         base,
			Catalog:      deps.Catalog,
			Engine:       deps.Engine,
			Signatures:   deps.Signatures,
			Approvals:    deps.Approvals,
			Locator:      deps.Locator,
			ManifestPath: deps.ManifestPath,
		}, nil
	case config.KindEvidencePresence:
		if len(cfg.Required) == 0 {
			return nil, fmt.Errorf("control %q: required evidence list is empty", cfg.Name)
		}
		return &EvidencePresence{base: base, Required: cfg.Required}, nil
	case config.KindProtectedPaths:
		return &ProtectedPaths{base: base, Approvals: deps.Approvals}, nil
	case config.KindCommand:
		if len(cfg.Command) == 0 {
			return nil, fmt.Errorf("control %q: command is empty", cfg.Name)
		}
		return &Command{base: base, Argv: cfg.Command, Timeout: cfg.Timeout}, nil
	case config.KindStub:
		return NewStub(cfg.Name, sev), nil
	default:
		return nil, fmt.Errorf("control %q: unknown kind %q", cfg.Name, cfg.Kind)
	}
}

// BuildAll builds every control in gf, in declaration order.
func BuildAll(gf *config.GateFile, deps Deps) ([]gate.Validator, error) {
	out := make([]gate.Validator, 0, len(gf.Controls))
	for _, c := range gf.Controls {
		v, err := Build(c, deps)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

type base struct {
	name     string
	severity constraints.Severity
}

func (b base) Name() string                   { return b.name }
func (b base) Severity() constraints.Severity { return b.severity }
