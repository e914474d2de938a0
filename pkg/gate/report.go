package gate

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// RenderReport renders res as markdown. The output depends only on res:
// controls appear in registration order and each control's violations are
// listed most severe first, ties kept in reported order.
func RenderReport(res *GateResult) string {
	var b strings.Builder

	verdict := "PASSED"
	if !res.Passed {
		verdict = "FAILED"
	}
	b.WriteString("# Governance Gate Report\n\n")
	fmt.Fprintf(&b, "- **Result:** %s\n", verdict)
	if res.RunID != "" {
		fmt.Fprintf(&b, "- **Run:** `%s`\n", res.RunID)
	}
	if !res.Timestamp.IsZero() {
		fmt.Fprintf(&b, "- **Timestamp:** %s\n", res.Timestamp.UTC().Format(time.RFC3339))
	}
	if res.Escalation != "" {
		fmt.Fprintf(&b, "- **Escalation:** %s\n", res.Escalation)
	}
	fmt.Fprintf(&b, "- **Constraints:** %d applicable of %d\n", res.ConstraintsApplicable, res.ConstraintsTotal)
	fmt.Fprintf(&b, "- **Controls:** %d passed, %d failed\n\n",
		len(res.ControlResults)-len(res.Failed()), len(res.Failed()))

	b.WriteString("| Control | Status | Severity | Message |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, r := range res.ControlResults {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
			cell(r.ControlName), r.Status, r.Severity, cell(r.Message))
	}

	for _, r := range res.ControlResults {
		fmt.Fprintf(&b, "\n## %s: %s (%s)\n\n", r.ControlName, r.Status, r.Severity)
		if r.Message != "" {
			b.WriteString(r.Message)
			b.WriteString("\n")
		}
		if len(r.Evidence) > 0 {
			b.WriteString("\nEvidence:\n\n")
			for _, ev := range r.Evidence {
				fmt.Fprintf(&b, "- %s\n", evidence(ev))
			}
		}
		if len(r.Violations) == 0 {
			continue
		}
		b.WriteString("\nViolations:\n\n")
		for _, v := range sortedViolations(r.Violations) {
			fmt.Fprintf(&b, "- **[%s] %s**: %s\n", v.Severity, v.Code, v.Message)
			for _, ev := range v.Evidence {
				fmt.Fprintf(&b, "  - %s\n", evidence(ev))
			}
		}
	}
	return b.String()
}

func sortedViolations(vs []Violation) []Violation {
	out := append([]Violation(nil), vs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() > out[j].Severity.Rank()
	})
	return out
}

func evidence(ev EvidenceReference) string {
	s := fmt.Sprintf("%s `%s`", ev.Type, ev.Path)
	if ev.Hash != "" {
		s += fmt.Sprintf(" (`%s`)", ev.Hash)
	}
	return s
}

// cell makes s safe inside a markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}
