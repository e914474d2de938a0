package controls

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Mindburn-Labs/archgate/pkg/canonicalize"
	"github.com/Mindburn-Labs/archgate/pkg/constraints"
	"github.com/Mindburn-Labs/archgate/pkg/gate"
)

// WorkspacePrefix marks a required entry that lives in the workspace rather
// than the evidence directory.
const WorkspacePrefix = "workspace:"

// EvidencePresence fails for every required artifact that does not exist.
type EvidencePresence struct {
	base
	Required []string
}

func NewEvidencePresence(name string, severity constraints.Severity, required ...string) *EvidencePresence {
	return &EvidencePresence{base: base{name: name, severity: severity}, Required: required}
}

func (e *EvidencePresence) Validate(ctx context.Context, in gate.Input) (*gate.ControlResult, error) {
	var present []gate.EvidenceReference
	var violations []gate.Violation

	for _, req := range e.Required {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		root, rel, where := in.Context.EvidenceDir, req, "evidence directory"
		if r, ok := strings.CutPrefix(req, WorkspacePrefix); ok {
			root, rel, where = in.Context.WorkspaceRoot, r, "workspace"
		}
		if !filepath.IsLocal(filepath.FromSlash(rel)) {
			return nil, fmt.Errorf("required evidence %q must be a relative path inside the %s", req, where)
		}

		missing := func(reason string) {
			violations = append(violations, gate.Violation{
				Code:     CodeEvidenceMissing,
				Message:  fmt.Sprintf("%s %s in the %s", rel, reason, where),
				Evidence: []gate.EvidenceReference{{Type: "required-evidence", Path: req}},
			})
		}
		if root == "" {
			missing("cannot be checked: no " + where + " configured")
			continue
		}

		full := filepath.Join(root, filepath.FromSlash(rel))
		info, err := os.Stat(full)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			missing("is missing")
			continue
		case err != nil:
			return nil, fmt.Errorf("stat %s: %w", full, err)
		}

		ref := gate.EvidenceReference{Type: "file", Path: req}
		if !info.IsDir() {
			data, err := os.ReadFile(full) //nolint:gosec // path confined to root above
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", full, err)
			}
			ref.Hash, _ = canonicalize.Digest(canonicalize.SHA256, data)
		} else {
			ref.Type = "directory"
		}
		present = append(present, ref)
	}

	if len(violations) > 0 {
		res := gate.Fail(fmt.Sprintf("%d of %d required evidence artifacts missing", len(violations), len(e.Required)), violations...)
		res.Evidence = present
		return res, nil
	}
	return gate.Pass(fmt.Sprintf("all %d required evidence artifacts present", len(e.Required)), present...), nil
}
