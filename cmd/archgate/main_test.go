package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/archgate/pkg/acr"
	"github.com/Mindburn-Labs/archgate/pkg/gate"
)

const testCatalog = `// architecture constraints
[
  {"id": "LIB-CORE", "type": "structural", "severity": "CRITICAL", "scope": "lib/**", "owner": "platform"},
  {"id": "CI", "type": "protected", "severity": "HIGH", "scope": ".github/**", "owner": "security"},
  {"id": "DOCS", "type": "naming", "severity": "LOW", "scope": "docs/**", "owner": "docs"}
]`

const testGateConfig = `
concurrency: 2
timeout: 30s
signature:
  locator: main
controls:
  - name: architecture-compliance
    kind: architecture-compliance
    severity: CRITICAL
  - name: protected-paths
    kind: protected-paths
    severity: HIGH
`

type workspace struct {
	t    *testing.T
	root string
	args []string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	root := t.TempDir()
	state := filepath.Join(root, ".archgate")
	for path, content := range map[string]string{
		"lib/core.x":                 "core v1\n",
		"lib/util.x":                 "util v1\n",
		"README.md":                  "readme\n",
		".archgate/constraints.json": testCatalog,
		".archgate/gate.yaml":        testGateConfig,
		".github/workflows/ci.yml":   "on: push\n",
		"evidence/.keep":             "",
	} {
		full := filepath.Join(root, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return &workspace{
		t:    t,
		root: root,
		args: []string{
			"--log-level", "warn",
			"--constraints", filepath.Join(state, "constraints.json"),
			"--artifact-store", "fs",
			"--artifact-dir", state,
			"--acr-store", "sqlite",
			"--sqlite-path", filepath.Join(state, "acr.db"),
		},
	}
}

func (w *workspace) write(path, content string) {
	w.t.Helper()
	require.NoError(w.t, os.WriteFile(filepath.Join(w.root, filepath.FromSlash(path)), []byte(content), 0o644))
}

// run invokes the CLI with the workspace's global flags appended.
func (w *workspace) run(args ...string) (int, string, string) {
	w.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"archgate"}, args...)
	full = append(full, w.args...)
	code := Run(full, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (w *workspace) evaluate(extra ...string) (int, string, string) {
	args := append([]string{"evaluate",
		"--workspace", w.root,
		"--gate-config", filepath.Join(w.root, ".archgate", "gate.yaml"),
	}, extra...)
	return w.run(args...)
}

func (w *workspace) signature(sub string, extra ...string) (int, string, string) {
	args := append([]string{"signature", sub,
		"--workspace", w.root,
		"--gate-config", filepath.Join(w.root, ".archgate", "gate.yaml"),
	}, extra...)
	return w.run(args...)
}

func TestRun_UsageErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitError, Run([]string{"archgate", "frobnicate"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "unknown command")

	stderr.Reset()
	assert.Equal(t, exitError, Run([]string{"archgate", "constraints", "list", "--log-level", "loud"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "invalid log level")

	assert.Equal(t, exitPass, Run([]string{"archgate"}, &stdout, &stderr))
}

func TestEvaluate_EndToEnd(t *testing.T) {
	w := newWorkspace(t)

	code, _, stderr := w.evaluate("--branch", "feature/split", "--base", "main", "--no-pack")
	require.Equal(t, exitFail, code, "no baseline yet")
	assert.Contains(t, stderr, "architecture-compliance")

	code, out, stderr := w.signature("approve")
	require.Equal(t, exitPass, code, stderr)
	assert.Contains(t, out, "for main")

	code, out, _ = w.evaluate("--branch", "main", "--base", "main", "--no-pack")
	require.Equal(t, exitPass, code, out)
	assert.Contains(t, out, "# Governance Gate Report")

	w.write("lib/core.x", "core v2\n")
	code, out, stderr = w.evaluate("--commit", "abc123", "--branch", "feature/split", "--base", "main",
		"--changed", "lib/core.x", "--no-pack")
	require.Equal(t, exitFail, code, stderr)
	assert.Contains(t, out, "ARCH_CHANGE_UNAPPROVED")
	assert.Contains(t, out, "lib/core.x")
	assert.Contains(t, stderr, "escalation CRITICAL")

	code, _, _ = w.signature("diff")
	assert.Equal(t, exitFail, code)

	code, out, stderr = w.run("acr", "create", "--json",
		"--summary", "Rework core", "--description", "Rewrite core.x",
		"--justification", "Needed for split", "--file", "lib/core.x",
		"--branch", "feature/split")
	require.Equal(t, exitPass, code, stderr)
	var created acr.ACR
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, acr.StatusPending, created.Status)

	code, out, _ = w.run("acr", "list")
	require.Equal(t, exitPass, code)
	assert.Contains(t, out, created.ID)

	code, _, stderr = w.run("acr", "review", created.ID, "--decision", "maybe", "--reviewer", "alice")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "invalid decision")

	code, out, stderr = w.run("acr", "review", created.ID, "--decision", "approve", "--reviewer", "alice")
	require.Equal(t, exitPass, code, stderr)
	assert.Contains(t, out, "APPROVED")

	evidence := filepath.Join(w.root, "evidence")
	code, out, stderr = w.evaluate("--commit", "abc123", "--branch", "feature/split", "--base", "main",
		"--changed", "lib/core.x", "--evidence-dir", evidence, "--json")
	require.Equal(t, exitPass, code, stderr)

	var res gate.GateResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Passed)
	require.Len(t, res.ControlResults, 2)
	assert.Contains(t, res.ControlResults[0].Message, created.ID)

	pack := gate.PackDir(evidence, &res)
	code, out, _ = w.run("pack", "verify", pack)
	assert.Equal(t, exitPass, code)
	assert.Contains(t, out, "verified")
}

func TestEvaluate_ProtectedPathNeedsACR(t *testing.T) {
	w := newWorkspace(t)
	code, _, stderr := w.signature("approve")
	require.Equal(t, exitPass, code, stderr)

	code, out, _ := w.evaluate("--branch", "feature/ci", "--base", "main",
		"--changed", ".github/workflows/ci.yml", "--no-pack")
	require.Equal(t, exitFail, code)
	assert.Contains(t, out, "PROTECTED_PATH_MODIFIED")
}

func TestEvaluate_ChangedFromFile(t *testing.T) {
	w := newWorkspace(t)
	code, _, _ := w.signature("approve")
	require.Equal(t, exitPass, code)

	w.write("changed.txt", "# generated by CI\n\n.github/workflows/ci.yml\n")
	code, out, _ := w.evaluate("--branch", "feature/ci", "--base", "main",
		"--changed-from", filepath.Join(w.root, "changed.txt"), "--no-pack")
	assert.Equal(t, exitFail, code)
	assert.Contains(t, out, ".github/workflows/ci.yml")
}

func TestEvaluate_MissingWorkspace(t *testing.T) {
	w := newWorkspace(t)
	code, _, stderr := w.run("evaluate", "--workspace", filepath.Join(w.root, "nope"),
		"--gate-config", filepath.Join(w.root, ".archgate", "gate.yaml"))
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "workspace")
}

func TestEvaluate_InvalidGateConfig(t *testing.T) {
	w := newWorkspace(t)
	w.write(".archgate/gate.yaml", "controls:\n  - name: x\n    kind: teleport\n    severity: LOW\n")
	code, _, stderr := w.evaluate()
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "unknown kind")
}

func TestConstraintsCommands(t *testing.T) {
	w := newWorkspace(t)

	code, out, _ := w.run("constraints", "list", "--severity", "critical", "--json")
	require.Equal(t, exitPass, code)
	var res struct {
		Total    int `json:"total"`
		Filtered int `json:"filtered"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 1, res.Filtered)

	code, out, _ = w.run("constraints", "for", "lib/core.x")
	require.Equal(t, exitPass, code)
	assert.True(t, strings.HasPrefix(out, "LIB-CORE"))

	code, out, _ = w.run("constraints", "snapshot")
	require.Equal(t, exitPass, code)
	assert.Contains(t, out, "sha256:")

	code, _, stderr := w.run("constraints", "get", "NOPE")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "constraint not found")

	code, _, _ = w.run("constraints", "validate")
	assert.Equal(t, exitPass, code)

	w.write(".archgate/constraints.json", `[{"id": "BAD", "type": "structural", "severity": "URGENT", "scope": "x/**"}]`)
	code, out, _ = w.run("constraints", "validate")
	assert.Equal(t, exitFail, code)
	assert.Contains(t, out, "1 rejected")
}

func TestToken(t *testing.T) {
	t.Setenv("ARCHGATE_JWT_SECRET", "s3cret")
	var stdout, stderr bytes.Buffer
	code := Run([]string{"archgate", "token", "--subject", "alice", "--role", "reviewer"}, &stdout, &stderr)
	require.Equal(t, exitPass, code, stderr.String())
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(stdout.String()), "."))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger(&buf, "debug", "json")
	require.NoError(t, err)
	l.Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	_, err = newLogger(&buf, "info", "xml")
	assert.Error(t, err)
}

func TestServe(t *testing.T) {
	w := newWorkspace(t)
	var stdout, stderr bytes.Buffer
	a := newApp(&stdout, &stderr)
	defer a.close()
	a.cfg.LogLevel = "error"
	a.cfg.ConstraintsPath = filepath.Join(w.root, ".archgate", "constraints.json")
	a.cfg.ACRStore = "memory"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.setup(ctx))

	ready := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() { errCh <- a.serve(ctx, "127.0.0.1:0", true, ready) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-errCh:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/v1/constraints/LIB-CORE")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Contains(t, string(body), "archgate_http_requests_total")

	remote := func(args ...string) (int, string, string) {
		var out, errOut bytes.Buffer
		full := append([]string{"archgate", "acr"}, args...)
		full = append(full, "--server", "http://"+addr+"/", "--log-level", "error")
		return Run(full, &out, &errOut), out.String(), errOut.String()
	}
	code, out, errOut := remote("create", "--json", "--summary", "s", "--description", "d",
		"--justification", "j", "--file", "lib/**", "--branch", "feature/x")
	require.Equal(t, exitPass, code, errOut)
	var created acr.ACR
	require.NoError(t, json.Unmarshal([]byte(out), &created))

	code, out, _ = remote("list")
	require.Equal(t, exitPass, code)
	assert.Contains(t, out, created.ID)

	code, out, errOut = remote("review", created.ID, "--decision", "reject", "--reviewer", "carol")
	require.Equal(t, exitPass, code, errOut)
	assert.Contains(t, out, "REJECTED")

	code, _, errOut = remote("review", created.ID, "--decision", "approve", "--reviewer", "carol")
	assert.Equal(t, exitError, code)
	assert.Contains(t, errOut, created.ID)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}
