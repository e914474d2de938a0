// Package gate runs governance controls against a proposed change and
// reduces their results to a single verdict.
//
// Every registered validator runs on every evaluation. A control that
// fails, errors, panics or times out contributes a FAIL result for itself
// only; the gate passes iff every control passes.
package gate

import (
	"time"

	"github.com/Mindburn-Labs/archgate/pkg/constraints"
)

// Status is the outcome of one control.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
)

// Violation codes emitted by the executor itself.
const (
	CodeInternalError = "CONTROL_INTERNAL_ERROR"
	CodeTimeout       = "CONTROL_TIMEOUT"
)

// EvidenceReference points at an artifact supporting a result.
type EvidenceReference struct {
	Type string `json:"type"`
	Path string `json:"path"`
	Hash string `json:"hash,omitempty"`
}

// Violation is one actionable finding of a failing control.
type Violation struct {
	Code     string               `json:"code"`
	Message  string               `json:"message"`
	Severity constraints.Severity `json:"severity"`
	Evidence []EvidenceReference  `json:"evidence"`
}

// ControlResult is the output of one validator.
type ControlResult struct {
	ControlName string               `json:"controlName"`
	Status      Status               `json:"status"`
	Severity    constraints.Severity `json:"severity"`
	Evidence    []EvidenceReference  `json:"evidence"`
	Violations  []Violation          `json:"violations"`
	Message     string               `json:"message"`
	Timestamp   time.Time            `json:"timestamp"`
	DurationMs  int64                `json:"durationMs"`
}

// Passed reports whether the control passed.
func (r *ControlResult) Passed() bool { return r.Status == StatusPass }

// Pass builds a passing result.
func Pass(message string, evidence ...EvidenceReference) *ControlResult {
	return &ControlResult{Status: StatusPass, Message: message, Evidence: evidence}
}

// Fail builds a failing result.
func Fail(message string, violations ...Violation) *ControlResult {
	return &ControlResult{Status: StatusFail, Message: message, Violations: violations}
}

// GateContext describes the change under evaluation.
type GateContext struct {
	PRNumber      int      `json:"prNumber"`
	CommitSHA     string   `json:"commitSha"`
	Branch        string   `json:"branch"`
	BaseBranch    string   `json:"baseBranch"`
	ChangedFiles  []string `json:"changedFiles"`
	EvidenceDir   string   `json:"evidenceDir"`
	LogsDir       string   `json:"logsDir"`
	WorkspaceRoot string   `json:"workspaceRoot"`
}

// Evaluation returns the constraint applicability input for c.
func (c GateContext) Evaluation() constraints.Evaluation {
	return constraints.Evaluation{
		PRNumber:     c.PRNumber,
		Branch:       c.Branch,
		BaseBranch:   c.BaseBranch,
		ChangedFiles: c.ChangedFiles,
	}
}

// Input is what every validator receives. Validators must treat it as
// read-only.
type Input struct {
	RunID   string
	Context GateContext
	// Constraints are the constraints applicable to this evaluation, in
	// catalog order.
	Constraints []constraints.Constraint
}

// State is the lifecycle state of one evaluation.
type State string

const (
	StateNotStarted State = "NOT_STARTED"
	StateRunning    State = "RUNNING"
	StatePassed     State = "PASSED"
	StateFailed     State = "FAILED"
)

// GateResult is the aggregate verdict of one evaluation.
type GateResult struct {
	RunID          string           `json:"runId"`
	Passed         bool             `json:"passed"`
	State          State            `json:"state"`
	ControlResults []*ControlResult `json:"controlResults"`
	// Escalation is the highest severity among failing controls. Empty when
	// the gate passed.
	Escalation            constraints.Severity `json:"escalation,omitempty"`
	ConstraintsTotal      int                  `json:"constraintsTotal"`
	ConstraintsApplicable int                  `json:"constraintsApplicable"`
	ReportMarkdown        string               `json:"reportMarkdown"`
	Timestamp             time.Time            `json:"timestamp"`
}

// Failed returns the failing control results in registration order.
func (g *GateResult) Failed() []*ControlResult {
	var out []*ControlResult
	for _, r := range g.ControlResults {
		if !r.Passed() {
			out = append(out, r)
		}
	}
	return out
}

// Result returns the result for the named control, or nil.
func (g *GateResult) Result(name string) *ControlResult {
	for _, r := range g.ControlResults {
		if r.ControlName == name {
			return r
		}
	}
	return nil
}
