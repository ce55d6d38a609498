package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/finops-gl/internal/accounting/pgstore"
	"github.com/odyssey-erp/finops-gl/internal/accounting/seed"
	"github.com/odyssey-erp/finops-gl/jobs"
)

func newMigrateCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *Runtime) error {
				if rt.Pool == nil {
					return errors.New("migrate needs STORE_DRIVER=postgres")
				}
				applied, err := pgstore.Migrate(ctx, rt.Pool, rt.Logger)
				if err != nil {
					return err
				}
				if len(applied) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", strings.Join(applied, ", "))
				return nil
			})
		},
	}
}

func newSeedCommand(open Opener) *cobra.Command {
	var branch, actor string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Install the demo chart, floats and default mappings for a branch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *Runtime) error {
				res, err := seed.Demo(ctx, rt.Ledger.Store, rt.Ledger.Accounts, rt.Ledger.Mappings, strings.TrimSpace(branch), actor)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "branch %s: %d accounts, %d floats, %d new mappings\n",
					branch, len(res.Accounts), len(res.Floats), res.Mappings)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&branch, "branch", "", "branch to seed")
	cmd.Flags().StringVar(&actor, "actor", "glctl", "actor recorded in the audit trail")
	_ = cmd.MarkFlagRequired("branch")
	return cmd
}

func newIntegrityCommand(open Opener) *cobra.Command {
	var enqueue bool
	cmd := &cobra.Command{
		Use:   "integrity",
		Short: "Check that the ledger balances and cached balances match their lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *Runtime) error {
				if enqueue {
					if rt.Enqueue == nil {
						return errors.New("no job queue configured")
					}
					id, err := rt.Enqueue(ctx, "glctl")
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s\n", id)
					return nil
				}
				job := jobs.NewIntegrityJob(rt.Ledger.Balances, rt.Logger, nil)
				report, err := job.Run(ctx, "glctl")
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if !report.Healthy() {
					return ErrUnhealthy
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "hand the check to the worker instead of running it here")
	return cmd
}

func newStatsCommand(open Opener) *cobra.Command {
	var branch string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print ledger statistics for a branch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *Runtime) error {
				stats, err := rt.Ledger.Balances.Statistics(ctx, strings.TrimSpace(branch))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stats)
			})
		},
	}
	cmd.Flags().StringVar(&branch, "branch", "", "branch to report on, empty for every branch")
	return cmd
}
