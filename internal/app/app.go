// Package app assembles the pipeline from configuration. Both binaries use
// it: the API server adds the HTTP surface, the scoring worker adds the
// Temporal activities.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-assess/internal/attachment"
	"github.com/ahrav/go-assess/internal/blob"
	"github.com/ahrav/go-assess/internal/callback"
	"github.com/ahrav/go-assess/internal/config"
	"github.com/ahrav/go-assess/internal/domain"
	"github.com/ahrav/go-assess/internal/engine"
	"github.com/ahrav/go-assess/internal/ingest"
	"github.com/ahrav/go-assess/internal/ledger"
	"github.com/ahrav/go-assess/internal/notify"
	"github.com/ahrav/go-assess/internal/scoring"
	"github.com/ahrav/go-assess/internal/storage"
	"github.com/ahrav/go-assess/internal/storage/memory"
	"github.com/ahrav/go-assess/internal/storage/sqlite"
	"github.com/ahrav/go-assess/pkg/events"
)

// Core holds the components shared by every process.
type Core struct {
	Config      *config.Config
	Logger      *slog.Logger
	Store       storage.Store
	Blobs       blob.Store
	Redis       *redis.Client
	Notifier    *notify.Notifier
	Ledger      *ledger.Service
	Ingestor    *ingest.Ingestor
	Attachments *attachment.Service
	Engine      *engine.Client

	closers []func() error
}

// NewCore opens storage and builds the domain services. The caller must Close it.
func NewCore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Core, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Core{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	if err := c.openStore(ctx); err != nil {
		return nil, err
	}
	if err := c.openBlobs(); err != nil {
		return nil, err
	}
	if cfg.Redis.Enabled() {
		c.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.closers = append(c.closers, c.Redis.Close)
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
		}
	}

	sink, err := c.eventSink()
	if err != nil {
		return nil, err
	}
	c.Notifier = notify.NewBuilder().
		OnAll(domain.AllEventTags(), "log", notify.NewLogSubscriber(logger)).
		OnAll(domain.AllEventTags(), "event_sink", notify.NewSinkSubscriber(sink, "assess")).
		Build(logger)

	c.Ledger = ledger.New(c.Store, c.Notifier, ledger.WithLogger(logger))
	c.Ingestor = ingest.New(c.Ledger, c.Notifier, logger)
	c.Attachments = attachment.New(cfg.Questionnaire, c.Store, c.Blobs, logger)

	c.Engine, err = engine.New(cfg.Engine, engine.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("engine client: %w", err)
	}
	return c, nil
}

func (c *Core) openStore(ctx context.Context) error {
	if c.Config.Storage.SQLitePath == config.MemoryDSN {
		c.Logger.Warn("using in-memory store; state is lost on restart")
		c.Store = memory.New()
		return nil
	}
	s, err := sqlite.Open(ctx, c.Config.Storage.SQLitePath, c.Logger)
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", c.Config.Storage.SQLitePath, err)
	}
	c.Store = s
	c.closers = append(c.closers, s.Close)
	return nil
}

func (c *Core) openBlobs() error {
	if c.Config.Storage.BlobDir == "" {
		c.Blobs = blob.NewMemoryStore()
		return nil
	}
	fs, err := blob.NewFileStore(c.Config.Storage.BlobDir)
	if err != nil {
		return fmt.Errorf("open blob dir: %w", err)
	}
	c.Blobs = fs
	return nil
}

func (c *Core) eventSink() (events.EventSink, error) {
	if c.Redis == nil {
		return events.NewNoOpEventSink(), nil
	}
	return events.NewRedisStreamSink(c.Redis, events.WithStream(c.Config.Redis.Stream))
}

// Gateway builds a scoring gateway. followUp may be nil.
func (c *Core) Gateway(followUp scoring.FollowUpScheduler) *scoring.Gateway {
	deps := scoring.Deps{
		Ledger:      c.Ledger,
		Answers:     c.Store,
		Attachments: c.Attachments,
		Respondents: c.Store,
		Engine:      c.Engine,
		Ingestor:    c.Ingestor,
		FollowUp:    followUp,
		Logger:      c.Logger,
	}
	return scoring.NewGateway(scoring.Config{
		Timeout:     c.Config.Scoring.DispatchTimeout,
		CallbackURL: c.Config.Scoring.CallbackURL,
	}, deps)
}

// Verifier builds the callback verifier. The secret file watcher stops
// with ctx or Close.
func (c *Core) Verifier(ctx context.Context) (*callback.Verifier, error) {
	cb := c.Config.Callback
	var secret callback.SecretSource = callback.StaticSecret(cb.Secret)
	if cb.SecretFile != "" {
		fs, err := callback.NewFileSecret(ctx, cb.SecretFile, c.Logger)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, fs.Close)
		secret = fs
	}

	var guard callback.ReplayGuard
	if c.Redis != nil {
		guard = callback.NewRedisReplayGuard(c.Redis)
	}
	return callback.NewVerifier(callback.VerifierConfig{
		Issuer:    cb.Issuer,
		Leeway:    cb.Leeway,
		ReplayTTL: cb.ReplayTTL,
	}, secret, guard, c.Logger), nil
}

// Close releases everything NewCore and Verifier opened, newest first.
func (c *Core) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}
