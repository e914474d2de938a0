package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/archgate/pkg/config"
	"github.com/Mindburn-Labs/archgate/pkg/gate"
	"github.com/Mindburn-Labs/archgate/pkg/gate/controls"
)

type evaluateFlags struct {
	gc          gate.GateContext
	changedFrom string
	gateConfig  string
	locator     string
	jsonOutput  bool
	noPack      bool
}

func newEvaluateCmd(a *app) *cobra.Command {
	f := &evaluateFlags{}
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run the governance gate against a change",
		Long: `Runs every configured control against the change and prints the gate report.

Exit codes:
  0  every control passed
  1  at least one control failed
  2  usage or infrastructure error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runEvaluate(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.IntVar(&f.gc.PRNumber, "pr", 0, "pull request number")
	fl.StringVar(&f.gc.CommitSHA, "commit", "", "commit under evaluation")
	fl.StringVar(&f.gc.Branch, "branch", "", "branch under evaluation")
	fl.StringVar(&f.gc.BaseBranch, "base", "", "branch the change targets")
	fl.StringSliceVar(&f.gc.ChangedFiles, "changed", nil, "changed file, relative to the workspace (repeatable)")
	fl.StringVar(&f.changedFrom, "changed-from", "", "file listing changed paths one per line ('-' for stdin)")
	fl.StringVar(&f.gc.WorkspaceRoot, "workspace", ".", "workspace root")
	fl.StringVar(&f.gc.EvidenceDir, "evidence-dir", "", "evidence directory; the evidence pack is written beneath it")
	fl.StringVar(&f.gc.LogsDir, "logs-dir", "", "directory for control logs")
	fl.StringVar(&f.gateConfig, "gate-config", a.cfg.GateConfigPath, "gate configuration (YAML)")
	fl.StringVar(&f.locator, "locator", "", "approved signature locator (default: gate config, then --base)")
	fl.BoolVar(&f.jsonOutput, "json", false, "print the gate result as JSON")
	fl.BoolVar(&f.noPack, "no-pack", false, "do not write an evidence pack")
	return cmd
}

func (a *app) runEvaluate(cmd *cobra.Command, f *evaluateFlags) error {
	ctx := cmd.Context()

	gc := f.gc
	if f.changedFrom != "" {
		extra, err := readChangedFiles(f.changedFrom, cmd.InOrStdin())
		if err != nil {
			return err
		}
		gc.ChangedFiles = append(gc.ChangedFiles, extra...)
	}
	root, err := filepath.Abs(gc.WorkspaceRoot)
	if err != nil {
		return fmt.Errorf("resolve workspace: %w", err)
	}
	gc.WorkspaceRoot = root

	gf, err := config.LoadGateFile(f.gateConfig)
	if err != nil {
		return err
	}
	ex, err := a.executor(cmd, gf, f.locator)
	if err != nil {
		return err
	}

	res, err := ex.Evaluate(ctx, gc)
	if err != nil {
		return err
	}

	if gc.EvidenceDir != "" && !f.noPack {
		dir := gate.PackDir(gc.EvidenceDir, res)
		if _, err := gate.WriteEvidencePack(dir, res); err != nil {
			return fmt.Errorf("write evidence pack: %w", err)
		}
		a.logger.Info("evidence pack written", "dir", dir)
	}

	if f.jsonOutput {
		if err := a.printJSON(res); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprint(a.stdout, res.ReportMarkdown)
	}

	if !res.Passed {
		return failf("gate failed: %s", failedControls(res))
	}
	return nil
}

// executor builds a gate executor with the controls declared in gf.
func (a *app) executor(cmd *cobra.Command, gf *config.GateFile, locator string) (*gate.Executor, error) {
	ctx := cmd.Context()
	reg := a.registry()

	eng, err := engine(gf.Signature.Algorithm)
	if err != nil {
		return nil, err
	}
	sigs, err := a.signatures(ctx)
	if err != nil {
		return nil, err
	}
	wf, err := a.workflow(ctx)
	if err != nil {
		return nil, err
	}
	if locator == "" {
		locator = gf.Signature.Locator
	}

	validators, err := controls.BuildAll(gf, controls.Deps{
		Catalog:      reg,
		Engine:       eng,
		Signatures:   sigs,
		Approvals:    wf,
		Locator:      locator,
		ManifestPath: gf.Signature.Manifest,
	})
	if err != nil {
		return nil, err
	}

	ex := gate.NewExecutor(reg,
		gate.WithConcurrency(gf.Concurrency),
		gate.WithTimeout(gf.Timeout),
		gate.WithTracker(a.obs),
		gate.WithRecorder(a.metrics),
	)
	for _, v := range validators {
		ex.RegisterValidator(v)
	}
	return ex, nil
}

func failedControls(res *gate.GateResult) string {
	var names []string
	for _, cr := range res.Failed() {
		names = append(names, cr.ControlName)
	}
	msg := strings.Join(names, ", ")
	if res.Escalation != "" {
		msg += " (escalation " + string(res.Escalation) + ")"
	}
	return msg
}

// readChangedFiles reads one path per line, skipping blanks and # comments.
func readChangedFiles(path string, stdin io.Reader) ([]string, error) {
	r := stdin
	if path != "-" {
		file, err := os.Open(path) //nolint:gosec // operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("read changed files: %w", err)
		}
		defer file.Close()
		r = file
	}

	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read changed files: %w", err)
	}
	return out, nil
}

func newPackCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Inspect evidence packs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "verify <dir>",
		Short: "Check every file of an evidence pack against its index",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			problems, err := gate.VerifyEvidencePack(args[0])
			if err != nil {
				return err
			}
			if len(problems) > 0 {
				for _, p := range problems {
					_, _ = fmt.Fprintln(a.stdout, p)
				}
				return failf("evidence pack %s failed verification", args[0])
			}
			_, _ = fmt.Fprintf(a.stdout, "evidence pack %s verified\n", args[0])
			return nil
		},
	})
	return cmd
}
