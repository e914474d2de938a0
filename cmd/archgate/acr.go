package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/archgate/pkg/acr"
	"github.com/Mindburn-Labs/archgate/pkg/api"
	"github.com/Mindburn-Labs/archgate/pkg/client"
)

func newACRCmd(a *app) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "acr",
		Short: "Manage Architecture Change Requests",
	}
	pf := cmd.PersistentFlags()
	pf.BoolVar(&jsonOutput, "json", false, "print JSON")
	pf.StringVar(&a.cfg.ServerURL, "server", a.cfg.ServerURL, "archgate server URL; ACRs are stored locally when empty")
	pf.StringVar(&a.cfg.APIToken, "token", a.cfg.APIToken, "bearer token for --server")

	list := &cobra.Command{
		Use:   "list",
		Short: "List ACRs awaiting a decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wf, err := a.acrService(cmd.Context())
			if err != nil {
				return err
			}
			acrs, err := wf.ListPending(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				if acrs == nil {
					acrs = []*acr.ACR{}
				}
				return a.printJSON(map[string]any{"acrs": acrs, "count": len(acrs)})
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tSUMMARY")
			for _, x := range acrs {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", x.ID, x.Status, x.CreatedAt.Format("2006-01-02T15:04:05Z"), x.Summary)
			}
			return tw.Flush()
		},
	}

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one ACR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := a.acrService(cmd.Context())
			if err != nil {
				return err
			}
			x, err := wf.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printJSON(x)
		},
	}

	cmd.AddCommand(list, get, newACRCreateCmd(a, &jsonOutput), newACRReviewCmd(a, &jsonOutput))
	return cmd
}

// acrService returns a client for the configured server, or the local
// workflow when no server is set.
func (a *app) acrService(ctx context.Context) (api.ACRService, error) {
	if a.cfg.ServerURL != "" {
		return client.New(strings.TrimRight(a.cfg.ServerURL, "/"), client.WithToken(a.cfg.APIToken)), nil
	}
	return a.workflow(ctx)
}

func newACRCreateCmd(a *app, jsonOutput *bool) *cobra.Command {
	var (
		opts acr.CreateOptions
		from string
		risk string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Propose an architecture change",
		Long:  "Creates a PENDING ACR from flags, or from a JSON document with --from.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := opts
			if from != "" {
				data, err := os.ReadFile(from) //nolint:gosec // operator-supplied path
				if err != nil {
					return fmt.Errorf("read %s: %w", from, err)
				}
				if err := json.Unmarshal(data, &req); err != nil {
					return fmt.Errorf("parse %s: %w", from, err)
				}
			}
			if risk != "" {
				req.RiskLevel = acr.RiskLevel(risk)
			}

			wf, err := a.acrService(cmd.Context())
			if err != nil {
				return err
			}
			created, err := wf.Create(cmd.Context(), req)
			if err != nil {
				var ve *acr.ValidationError
				if errors.As(err, &ve) {
					return fmt.Errorf("invalid ACR: %s %s", ve.Field, ve.Message)
				}
				return err
			}
			if *jsonOutput {
				return a.printJSON(created)
			}
			_, _ = fmt.Fprintf(a.stdout, "created %s (%s)\n", created.ID, created.Status)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&from, "from", "", "JSON file with the ACR fields")
	fl.StringVar(&opts.Summary, "summary", "", "one-line summary")
	fl.StringVar(&opts.Description, "description", "", "what changes")
	fl.StringVar(&opts.Justification, "justification", "", "why the change is needed")
	fl.StringSliceVar(&opts.AffectedFiles, "file", nil, "affected path or glob (repeatable)")
	fl.StringSliceVar(&opts.AffectedComponents, "component", nil, "affected component (repeatable)")
	fl.StringVar(&risk, "risk", "", "risk level (LOW, MEDIUM, HIGH, CRITICAL)")
	fl.StringVar(&opts.Alternatives, "alternatives", "", "alternatives considered")
	fl.StringVar(&opts.BreakingChanges, "breaking-changes", "", "breaking changes")
	fl.BoolVar(&opts.MigrationRequired, "migration-required", false, "a migration is required")
	fl.StringSliceVar(&opts.RelatedIssues, "issue", nil, "related issue (repeatable)")
	fl.StringVar(&opts.BuildID, "build-id", "", "CI build id")
	fl.StringVar(&opts.SequenceID, "sequence-id", "", "CI sequence id")
	fl.StringVar(&opts.CommitSHA, "commit", "", "commit the ACR applies to")
	fl.StringVar(&opts.Branch, "branch", "", "branch the ACR applies to")
	return cmd
}

func newACRReviewCmd(a *app, jsonOutput *bool) *cobra.Command {
	var opts acr.ReviewOptions
	cmd := &cobra.Command{
		Use:   "review <id>",
		Short: "Record a decision on an ACR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := opts
			req.ACRID = args[0]
			if _, ok := acr.ParseDecision(req.Decision); !ok {
				return errors.New(acr.InvalidDecisionMessage(req.Decision))
			}

			wf, err := a.acrService(cmd.Context())
			if err != nil {
				return err
			}
			res, err := wf.Review(cmd.Context(), req)
			if err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("review %s: %s", req.ACRID, res.Error)
			}
			if *jsonOutput {
				return a.printJSON(res.ACR)
			}
			_, _ = fmt.Fprintf(a.stdout, "%s is now %s\n", res.ACR.ID, res.ACR.Status)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&opts.Decision, "decision", "", "approve, reject or discuss")
	fl.StringVar(&opts.ReviewedBy, "reviewer", os.Getenv("USER"), "reviewer identity")
	fl.StringVar(&opts.Comments, "comments", "", "review comments")
	_ = cmd.MarkFlagRequired("decision")
	return cmd
}
