// Command scoring-worker runs the Temporal worker for follow-up scoring.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/go-assess/internal/app"
	"github.com/ahrav/go-assess/internal/config"
	"github.com/ahrav/go-assess/internal/scoring"
	"github.com/ahrav/go-assess/internal/worker"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "scoring-worker: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load("scoring-worker", args)
	if err != nil {
		return err
	}
	if !cfg.Temporal.Enabled() {
		return errors.New("temporal host is required (-temporal-host or ASSESS_TEMPORAL_HOST)")
	}
	logger := config.NewLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core, err := app.NewCore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer core.Close()

	tc, err := worker.Dial(cfg.Temporal, logger)
	if err != nil {
		return err
	}
	defer tc.Close()

	// The worker's gateway schedules nothing: the workflow itself is the follow-up.
	acts := scoring.NewActivities(core.Ledger, core.Gateway(nil))

	w := sdkworker.New(tc, cfg.Temporal.TaskQueue, sdkworker.Options{})
	worker.RegisterAll(w, acts)

	logger.Info("worker starting", "task_queue", cfg.Temporal.TaskQueue, "namespace", cfg.Temporal.Namespace)
	if err := w.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	<-ctx.Done()
	logger.Info("worker stopping")
	w.Stop()
	return nil
}
