// Package cli implements the glctl operator commands.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/finops-gl/internal/app"
)

// Runtime is what a command runs against.
type Runtime struct {
	Config  *app.Config
	Logger  *slog.Logger
	Ledger  *app.Ledger
	Pool    *pgxpool.Pool
	Enqueue func(ctx context.Context, requestedBy string) (string, error)
	Close   func()
}

// Opener builds a Runtime once flags are parsed.
type Opener func(ctx context.Context) (*Runtime, error)

// ErrUnhealthy is returned when the integrity check finds a problem.
var ErrUnhealthy = errors.New("ledger integrity violated")

// NewRootCommand assembles glctl.
func NewRootCommand(open Opener, stdout io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "glctl",
		Short:         "Operate the general ledger",
		Long:          "Migrates the ledger schema, seeds branch configuration and checks ledger integrity.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.AddCommand(
		newMigrateCommand(open),
		newSeedCommand(open),
		newIntegrityCommand(open),
		newStatsCommand(open),
	)
	return root
}

func withRuntime(cmd *cobra.Command, open Opener, fn func(context.Context, *Runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := open(ctx)
	if err != nil {
		return err
	}
	if rt.Close != nil {
		defer rt.Close()
	}
	return fn(ctx, rt)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
