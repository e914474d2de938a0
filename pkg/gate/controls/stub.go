package controls

import (
	"context"
	"fmt"

	"github.com/Mindburn-Labs/archgate/pkg/constraints"
	"github.com/Mindburn-Labs/archgate/pkg/gate"
)

// Stub is a placeholder for a control whose check is not built yet. It
// always passes and says so.
type Stub struct {
	base
}

func NewStub(name string, severity constraints.Severity) *Stub {
	return &Stub{base: base{name: name, severity: severity}}
}

func (s *Stub) Validate(context.Context, gate.Input) (*gate.ControlResult, error) {
	return gate.Pass(fmt.Sprintf("%s: not yet implemented (stub control)", s.name)), nil
}
