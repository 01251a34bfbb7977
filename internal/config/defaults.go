package config

import (
	"time"

	"github.com/ahrav/go-assess/internal/callback"
	"github.com/ahrav/go-assess/internal/domain"
	"github.com/ahrav/go-assess/internal/engine"
	"github.com/ahrav/go-assess/internal/httpapi"
)

// Server defaults.
const (
	DefaultAddr            = ":8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultBodyLimit       = "64M"
)

// Pipeline defaults.
const (
	DefaultSQLitePath      = "assess.db"
	DefaultBlobDir         = "blobs"
	DefaultDispatchTimeout = 20 * time.Second
	DefaultReplayTTL       = 24 * time.Hour
	DefaultCallbackLeeway  = 30 * time.Second
	DefaultRedisStream     = "assess:events"
)

// Temporal defaults.
const (
	DefaultTemporalNamespace = "default"
	DefaultTaskQueue         = "assess-scoring"
	DefaultGracePeriod       = 10 * time.Minute
	DefaultFollowUpAttempts  = 5
)

// Default returns a configuration that only lacks the engine endpoint and
// the callback secret.
func Default() *Config {
	return &Config{
		Server: httpapi.Config{
			Addr:            DefaultAddr,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			BodyLimit:       DefaultBodyLimit,
		},
		Storage: StorageConfig{SQLitePath: DefaultSQLitePath, BlobDir: DefaultBlobDir},
		Engine:  engine.DefaultConfig(),
		Scoring: ScoringConfig{DispatchTimeout: DefaultDispatchTimeout},
		Callback: CallbackConfig{
			Issuer:    callback.DefaultIssuer,
			Leeway:    DefaultCallbackLeeway,
			ReplayTTL: DefaultReplayTTL,
		},
		Redis: RedisConfig{Stream: DefaultRedisStream},
		Temporal: TemporalConfig{
			Namespace:   DefaultTemporalNamespace,
			TaskQueue:   DefaultTaskQueue,
			GracePeriod: DefaultGracePeriod,
			MaxAttempts: DefaultFollowUpAttempts,
		},
		Log:           LogConfig{Level: "info", Format: "json"},
		Questionnaire: domain.DefaultQuestionnaire(),
	}
}
