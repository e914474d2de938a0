package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/archgate/pkg/constraints"
)

func newConstraintsCmd(a *app) *cobra.Command {
	var (
		filter     constraints.Filter
		severity   string
		typ        string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:     "constraints",
		Aliases: []string{"constraint"},
		Short:   "Inspect the constraint catalog",
	}
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON")

	list := &cobra.Command{
		Use:   "list",
		Short: "List constraints, optionally filtered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := filter
			f.Type = constraints.Type(typ)
			if severity != "" {
				sev, ok := constraints.ParseSeverity(severity)
				if !ok {
					return fmt.Errorf("unknown severity %q", severity)
				}
				f.Severity = sev
			}
			res := a.registry().Query(cmd.Context(), f)
			if jsonOutput {
				if res.Constraints == nil {
					res.Constraints = []constraints.Constraint{}
				}
				return a.printJSON(res)
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tTYPE\tSEVERITY\tSCOPE\tOWNER")
			for _, c := range res.Constraints {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Type, c.Severity, c.Scope, c.Owner)
			}
			_ = tw.Flush()
			_, _ = fmt.Fprintf(a.stdout, "%d of %d constraints\n", res.Filtered, res.Total)
			return nil
		},
	}
	lf := list.Flags()
	lf.StringVar(&typ, "type", "", "constraint type")
	lf.StringVar(&severity, "severity", "", "severity (CRITICAL, HIGH, MEDIUM, LOW)")
	lf.StringVar(&filter.Scope, "scope", "", "exact scope glob")
	lf.StringVar(&filter.Owner, "owner", "", "owner")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one constraint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.registry().GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printJSON(c)
		},
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load the catalog and report rejected records",
		Long:  "Loads the catalog and reports records rejected by schema or expression checks. Exits 1 when any record is rejected.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := a.registry()
			accepted := len(reg.GetAll(cmd.Context()))
			rejected := reg.Rejected(cmd.Context())
			if jsonOutput {
				if rejected == nil {
					rejected = []constraints.Rejected{}
				}
				if err := a.printJSON(map[string]any{"accepted": accepted, "rejected": rejected}); err != nil {
					return err
				}
			} else {
				for _, r := range rejected {
					_, _ = fmt.Fprintf(a.stdout, "record %d %s: %s\n", r.Index, r.ID, r.Reason)
				}
				_, _ = fmt.Fprintf(a.stdout, "%d accepted, %d rejected\n", accepted, len(rejected))
			}
			if len(rejected) > 0 {
				return failf("%s: %d record(s) rejected", a.cfg.ConstraintsPath, len(rejected))
			}
			return nil
		},
	}

	forPath := &cobra.Command{
		Use:   "for <path>",
		Short: "List constraints whose scope covers a workspace path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			matches := a.registry().ForPath(cmd.Context(), args[0])
			if jsonOutput {
				if matches == nil {
					matches = []constraints.Constraint{}
				}
				return a.printJSON(matches)
			}
			for _, c := range matches {
				_, _ = fmt.Fprintf(a.stdout, "%s\t%s\t%s\n", c.ID, c.Severity, c.Scope)
			}
			return nil
		},
	}

	snapshot := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the catalog sorted by id with its canonical hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := a.registry().Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return a.printJSON(snap)
			}
			_, _ = fmt.Fprintf(a.stdout, "%s (%d constraints)\n", snap.Hash, snap.Count)
			return nil
		},
	}

	cmd.AddCommand(list, get, forPath, validate, snapshot)
	return cmd
}
