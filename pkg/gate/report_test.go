package gate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Mindburn-Labs/archgate/pkg/constraints"
)

func sampleResult() *GateResult {
	return &GateResult{
		RunID:      "run-1",
		Passed:     false,
		State:      StateFailed,
		Escalation: constraints.SeverityCritical,
		ControlResults: []*ControlResult{
			{ControlName: "stub", Status: StatusPass, Severity: constraints.SeverityLow, Message: "stub: not yet implemented (stub control)"},
			{
				ControlName: "architecture-compliance",
				Status:      StatusFail,
				Severity:    constraints.SeverityCritical,
				Message:     "2 unapproved | changes",
				Violations: []Violation{
					{Code: "LOW_ONE", Message: "first low", Severity: constraints.SeverityLow},
					{Code: "ARCH_CHANGE_UNAPPROVED", Message: "lib/core.x changed", Severity: constraints.SeverityCritical,
						Evidence: []EvidenceReference{{Type: "architecture-element", Path: "lib/core.x", Hash: "sha256:ab"}}},
					{Code: "LOW_TWO", Message: "second low", Severity: constraints.SeverityLow},
				},
			},
		},
		ConstraintsTotal:      5,
		ConstraintsApplicable: 1,
		Timestamp:             fixedTime,
	}
}

func TestRenderReport_Deterministic(t *testing.T) {
	res := sampleResult()
	assert.Equal(t, RenderReport(res), RenderReport(res))
}

func TestRenderReport_Content(t *testing.T) {
	md := RenderReport(sampleResult())

	assert.Contains(t, md, "**Result:** FAILED")
	assert.Contains(t, md, "**Escalation:** CRITICAL")
	assert.Contains(t, md, "1 applicable of 5")
	assert.Contains(t, md, "| stub | PASS | LOW | stub: not yet implemented (stub control) |")
	assert.Contains(t, md, `2 unapproved \| changes`)
	assert.Contains(t, md, "architecture-element `lib/core.x` (`sha256:ab`)")

	// Registration order.
	assert.Less(t, strings.Index(md, "## stub"), strings.Index(md, "## architecture-compliance"))

	// Most severe first, ties in reported order.
	crit := strings.Index(md, "ARCH_CHANGE_UNAPPROVED")
	low1 := strings.Index(md, "LOW_ONE")
	low2 := strings.Index(md, "LOW_TWO")
	assert.Less(t, crit, low1)
	assert.Less(t, low1, low2)
}

func TestRenderReport_DoesNotReorderInput(t *testing.T) {
	res := sampleResult()
	RenderReport(res)
	assert.Equal(t, "LOW_ONE", res.ControlResults[1].Violations[0].Code)
}
