// Command assessd serves the evaluation submission API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ahrav/go-assess/internal/app"
	"github.com/ahrav/go-assess/internal/config"
	"github.com/ahrav/go-assess/internal/httpapi"
	"github.com/ahrav/go-assess/internal/scoring"
	"github.com/ahrav/go-assess/internal/status"
	"github.com/ahrav/go-assess/internal/submission"
	"github.com/ahrav/go-assess/internal/worker"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "assessd: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load("assessd", args)
	if err != nil {
		return err
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

	var followUp scoring.FollowUpScheduler
	if cfg.Temporal.Enabled() {
		tc, err := worker.Dial(cfg.Temporal, logger)
		if err != nil {
			return err
		}
		defer tc.Close()
		followUp = worker.NewTemporalScheduler(tc, cfg.Temporal.TaskQueue, cfg.Temporal.GracePeriod, cfg.Temporal.MaxAttempts, logger)
	} else {
		logger.Warn("temporal not configured; pending evaluations rely on engine callbacks only")
	}

	verifier, err := core.Verifier(ctx)
	if err != nil {
		return err
	}

	gateway := core.Gateway(followUp)
	srv := httpapi.New(cfg.Server, httpapi.Deps{
		Submissions: submission.New(cfg.Questionnaire, core.Ledger, core.Store, core.Attachments, gateway,
			submission.WithLogger(logger)),
		Status:   status.New(core.Ledger),
		Verifier: verifier,
		Ingestor: core.Ingestor,
		Logger:   logger,
	})

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Start()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
