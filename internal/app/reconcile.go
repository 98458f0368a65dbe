package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"tidewatch.in/hazard/internal/cli"
	"tidewatch.in/hazard/internal/config"
	"tidewatch.in/hazard/internal/db"
	"tidewatch.in/hazard/internal/logging"
)

// reconcile removes pending clusters whose verified copy exists. These are
// left behind when a promotion inserts the verified record but crashes
// before deleting the pending row.
func runReconcile(args []string) int {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Operation timeout")
	dryRun := fs.Bool("dry-run", false, "Report what would be removed without deleting")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	if *dryRun {
		count, err := pool.CountPromotedPending(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("reconcile dry run failed")
			fmt.Fprintf(os.Stderr, "Reconcile failed: %v\n", err)
			return 1
		}
		fmt.Printf("%d promoted pending cluster(s) would be removed\n", count)
		return 0
	}

	removed, err := pool.DeletePromotedPending(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("reconcile failed")
		fmt.Fprintf(os.Stderr, "Reconcile failed: %v\n", err)
		return 1
	}

	logger.Info().Int64("removed", removed).Msg("reconcile completed")
	fmt.Printf("Removed %d promoted pending cluster(s)\n", removed)
	return 0
}
