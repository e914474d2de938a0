package gate

import (
	"context"

	"github.com/Mindburn-Labs/archgate/pkg/constraints"
)

// Validator is one independent compliance check.
//
// Validate must not mutate in. A returned error is reported as a FAIL with
// CONTROL_INTERNAL_ERROR; it never aborts the evaluation.
type Validator interface {
	Name() string
	Severity() constraints.Severity
	Validate(ctx context.Context, in Input) (*ControlResult, error)
}

// ValidatorFunc adapts a function to the Validator contract via Register.
type ValidatorFunc func(ctx context.Context, in Input) (*ControlResult, error)

type funcValidator struct {
	name     string
	severity constraints.Severity
	fn       ValidatorFunc
}

func (f *funcValidator) Name() string                   { return f.name }
func (f *funcValidator) Severity() constraints.Severity { return f.severity }
func (f *funcValidator) Validate(ctx context.Context, in Input) (*ControlResult, error) {
	return f.fn(ctx, in)
}

// NewValidator wraps fn as a Validator.
func NewValidator(name string, severity constraints.Severity, fn ValidatorFunc) Validator {
	return &funcValidator{name: name, severity: severity, fn: fn}
}
