package controls

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/Mindburn-Labs/archgate/pkg/canonicalize"
	"github.com/Mindburn-Labs/archgate/pkg/constraints"
	"github.com/Mindburn-Labs/archgate/pkg/gate"
)

// tailLines is how much command output is quoted in a violation.
const tailLines = 20

// Command runs an external tool in the workspace. A non-zero exit fails the
// control; the full output is written to the logs directory.
type Command struct {
	base
	Argv    []string
	Timeout time.Duration
}

func NewCommand(name string, severity constraints.Severity, argv ...string) *Command {
	return &Command{base: base{name: name, severity: severity}, Argv: argv}
}

func (c *Command) Validate(ctx context.Context, in gate.Input) (*gate.ControlResult, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...) //nolint:gosec // argv comes from gate config
	cmd.Dir = in.Context.WorkspaceRoot
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	runErr := cmd.Run()

	var evidence []gate.EvidenceReference
	if in.Context.LogsDir != "" {
		ref, err := c.writeLog(in.Context.LogsDir, out.Bytes())
		if err != nil {
			return nil, err
		}
		evidence = append(evidence, ref)
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		return gate.Pass(fmt.Sprintf("%s succeeded", strings.Join(c.Argv, " ")), evidence...), nil
	case errors.As(runErr, &exitErr), ctx.Err() != nil:
	default:
		return nil, fmt.Errorf("run %s: %w", c.Argv[0], runErr)
	}

	reason := fmt.Sprintf("exited with code %d", cmd.ProcessState.ExitCode())
	if err := ctx.Err(); err != nil {
		reason = fmt.Sprintf("did not finish: %v", err)
	}
	msg := fmt.Sprintf("%s %s", strings.Join(c.Argv, " "), reason)
	if tail := tail(out.String(), tailLines); tail != "" {
		msg += ":\n" + tail
	}
	res := gate.Fail(fmt.Sprintf("%s %s", c.Argv[0], reason), gate.Violation{
		Code:     CodeCommandFailed,
		Message:  msg,
		Evidence: evidence,
	})
	res.Evidence = evidence
	return res, nil
}

func (c *Command) writeLog(dir string, output []byte) (gate.EvidenceReference, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return gate.EvidenceReference{}, fmt.Errorf("create logs dir: %w", err)
	}
	path := filepath.Join(dir, c.name+".log")
	if err := os.WriteFile(path, output, 0600); err != nil {
		return gate.EvidenceReference{}, fmt.Errorf("write command log: %w", err)
	}
	hash, _ := canonicalize.Digest(canonicalize.SHA256, output)
	return gate.EvidenceReference{Type: "log", Path: path, Hash: hash}, nil
}

// tail returns the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
