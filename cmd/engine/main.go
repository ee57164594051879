package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/congo-pay/payments-engine/internal/config"
	"github.com/congo-pay/payments-engine/internal/csvio"
	"github.com/congo-pay/payments-engine/internal/engine"
	"github.com/congo-pay/payments-engine/internal/infra"
	"github.com/congo-pay/payments-engine/internal/ledger"
	"github.com/congo-pay/payments-engine/internal/logging"
	"github.com/congo-pay/payments-engine/internal/notification"
)

const usage = "usage: engine <transactions.csv>"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run processes the input file named by args and writes the account snapshots
// to stdout. Nothing reaches stdout unless the whole run succeeds.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	logger := logging.New(stderr, cfg.LogLevel)

	f, err := os.Open(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "open input: %v\n", err)
		return 1
	}
	defer f.Close()

	store, closeStore, err := openExportStore(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		fmt.Fprintf(stderr, "connect postgres: %v\n", err)
		return 1
	}
	defer closeStore()

	eng := engine.New(cfg.DisputePolicy, notification.NewLoggerNotifier(logger), logger)
	reader := csvio.NewReader(f, cfg.RowErrorPolicy, logger)
	if err := eng.Run(ctx, reader); err != nil {
		fmt.Fprintf(stderr, "process %s: %v\n", args[0], err)
		return 1
	}

	snapshots := eng.Snapshots()
	var out bytes.Buffer
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return csvio.NewWriter(&out, cfg.OutputScale).Write(snapshots)
	})
	if store != nil {
		g.Go(func() error {
			exported, err := ledger.Export(gctx, store, snapshots)
			if err != nil {
				return err
			}
			logger.Info("snapshots exported", slog.String("run_id", exported.ID), slog.Int("accounts", len(exported.Accounts)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(stderr, "write output: %v\n", err)
		return 1
	}

	stats := eng.Stats()
	logger.Info("run complete",
		slog.Int("rows", reader.Rows()),
		slog.Int("skipped", reader.Skipped()),
		slog.Int("applied", stats.Applied),
		slog.Int("ignored", stats.Ignored),
	)

	if _, err := out.WriteTo(stdout); err != nil {
		fmt.Fprintf(stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

// openExportStore returns a nil store when no database is configured; the run
// then only writes CSV.
func openExportStore(ctx context.Context, url string, logger *slog.Logger) (ledger.Store, func(), error) {
	if url == "" {
		return nil, func() {}, nil
	}
	store, _, closeFn, err := infra.NewSnapshotStore(ctx, url, logger)
	if err != nil {
		return nil, func() {}, err
	}
	return store, closeFn, nil
}
