package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/archgate/pkg/config"
	"github.com/Mindburn-Labs/archgate/pkg/signature"
)

type signatureFlags struct {
	workspace  string
	gateConfig string
	locator    string
	jsonOutput bool
}

func newSignatureCmd(a *app) *cobra.Command {
	f := &signatureFlags{}
	cmd := &cobra.Command{
		Use:   "signature",
		Short: "Generate, approve and compare architecture signatures",
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&f.workspace, "workspace", ".", "workspace root")
	pf.StringVar(&f.gateConfig, "gate-config", a.cfg.GateConfigPath, "gate configuration (YAML)")
	pf.StringVar(&f.locator, "locator", "", "baseline locator, usually the protected branch (default: gate config)")
	pf.BoolVar(&f.jsonOutput, "json", false, "print JSON")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the current signature of the workspace",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				sig, _, err := a.currentSignature(cmd, f)
				if err != nil {
					return err
				}
				if f.jsonOutput {
					return a.printJSON(sig)
				}
				_, _ = fmt.Fprintf(a.stdout, "%s (%d elements)\n", sig.Hash, len(sig.TrackedElements))
				for _, el := range sig.TrackedElements {
					_, _ = fmt.Fprintf(a.stdout, "  %s\n", el)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "approve",
			Short: "Record the current signature as the approved baseline",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				sig, locator, err := a.currentSignature(cmd, f)
				if err != nil {
					return err
				}
				if locator == "" {
					return errors.New("--locator is required when the gate config names none")
				}
				store, err := a.signatures(cmd.Context())
				if err != nil {
					return err
				}
				if err := store.Save(cmd.Context(), sig, locator); err != nil {
					return err
				}
				a.logger.Info("signature approved", "locator", locator, "hash", sig.Hash, "elements", len(sig.TrackedElements))
				_, _ = fmt.Fprintf(a.stdout, "approved %s for %s\n", sig.Hash, locator)
				return nil
			},
		},
		&cobra.Command{
			Use:   "diff",
			Short: "Compare the current signature with the approved baseline",
			Long:  "Compares the workspace with the approved baseline. Exits 1 when they differ.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.runSignatureDiff(cmd, f)
			},
		},
	)
	return cmd
}

// currentSignature collects and signs the workspace and returns the
// effective locator.
func (a *app) currentSignature(cmd *cobra.Command, f *signatureFlags) (*signature.Signature, string, error) {
	gf, err := config.LoadGateFile(f.gateConfig)
	if err != nil {
		return nil, "", err
	}
	eng, err := engine(gf.Signature.Algorithm)
	if err != nil {
		return nil, "", err
	}
	root, err := filepath.Abs(f.workspace)
	if err != nil {
		return nil, "", fmt.Errorf("resolve workspace: %w", err)
	}

	c := &signature.Collector{
		Root:         root,
		Catalog:      a.registry(),
		ManifestPath: gf.Signature.Manifest,
		Algorithm:    eng.Algorithm(),
	}
	state, err := c.Collect(cmd.Context())
	if err != nil {
		return nil, "", err
	}
	sig, err := eng.Generate(cmd.Context(), state)
	if err != nil {
		return nil, "", err
	}

	locator := f.locator
	if locator == "" {
		locator = gf.Signature.Locator
	}
	return sig, locator, nil
}

func (a *app) runSignatureDiff(cmd *cobra.Command, f *signatureFlags) error {
	current, locator, err := a.currentSignature(cmd, f)
	if err != nil {
		return err
	}
	if locator == "" {
		return errors.New("--locator is required when the gate config names none")
	}
	store, err := a.signatures(cmd.Context())
	if err != nil {
		return err
	}
	baseline, err := store.Load(cmd.Context(), locator)
	if err != nil {
		return err
	}
	diff, err := signature.Compare(baseline, current)
	if err != nil {
		return err
	}

	if f.jsonOutput {
		if err := a.printJSON(diff); err != nil {
			return err
		}
	} else {
		for _, ch := range diff.Changes {
			_, _ = fmt.Fprintf(a.stdout, "%-8s %s\n", ch.Kind, ch.Element)
		}
	}
	if diff.Drifted() {
		return failf("architecture drifted from %s: %d element(s) changed", locator, len(diff.Changes))
	}
	if !f.jsonOutput {
		_, _ = fmt.Fprintf(a.stdout, "no drift from %s (%s)\n", locator, baseline.Hash)
	}
	return nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
