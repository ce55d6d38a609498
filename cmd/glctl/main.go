package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/finops-gl/cmd/glctl/cli"
	"github.com/odyssey-erp/finops-gl/internal/app"
	"github.com/odyssey-erp/finops-gl/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(open, os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "glctl:", err)
		if errors.Is(err, cli.ErrUnhealthy) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func open(ctx context.Context) (*cli.Runtime, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := app.NewLogger(cfg).With(slog.String("cmd", "glctl"))
	backend, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	ledger := app.NewLedger(app.LedgerParams{Config: cfg, Store: backend.Store, Audit: backend.Audit, Logger: logger})
	return &cli.Runtime{
		Config: cfg,
		Logger: logger,
		Ledger: ledger,
		Pool:   backend.Pool,
		Enqueue: func(ctx context.Context, requestedBy string) (string, error) {
			client := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
			defer func() { _ = client.Close() }()
			info, err := client.EnqueueIntegrity(ctx, requestedBy)
			if err != nil {
				return "", err
			}
			return info.ID, nil
		},
		Close: backend.Close,
	}, nil
}
