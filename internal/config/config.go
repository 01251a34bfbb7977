// Package config loads process configuration from flags, environment
// variables (ASSESS_ prefix), an optional YAML config file, and an optional
// .env file, then validates it.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-assess/internal/domain"
	"github.com/ahrav/go-assess/internal/engine"
	"github.com/ahrav/go-assess/internal/httpapi"
)

// MemoryDSN selects the in-memory store instead of SQLite.
const MemoryDSN = ":memory:"

// StorageConfig locates persistent state.
type StorageConfig struct {
	// SQLitePath is the database file. MemoryDSN selects the in-memory store.
	SQLitePath string `yaml:"sqlite_path" validate:"required"`
	// BlobDir holds attachment content. Empty keeps content in memory, which
	// is only allowed together with the in-memory store.
	BlobDir string `yaml:"blob_dir"`
}

// ScoringConfig tunes the scoring gateway.
type ScoringConfig struct {
	DispatchTimeout time.Duration `yaml:"dispatch_timeout" validate:"gt=0"`
	// CallbackURL is advertised to the engine for out-of-band results.
	CallbackURL string `yaml:"callback_url" validate:"omitempty,url"`
}

// CallbackConfig controls engine callback verification.
type CallbackConfig struct {
	Secret     string        `yaml:"secret" validate:"required_without=SecretFile"`
	SecretFile string        `yaml:"secret_file"`
	Issuer     string        `yaml:"issuer" validate:"required"`
	Leeway     time.Duration `yaml:"leeway" validate:"gte=0"`
	ReplayTTL  time.Duration `yaml:"replay_ttl" validate:"gt=0"`
}

// RedisConfig enables the shared replay guard and the event stream.
// An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Stream   string `yaml:"stream" validate:"required"`
}

// Enabled reports whether a Redis server is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// TemporalConfig configures the follow-up scoring workflow.
type TemporalConfig struct {
	// HostPort empty disables follow-up scheduling from the API server.
	HostPort    string        `yaml:"host_port"`
	Namespace   string        `yaml:"namespace" validate:"required"`
	TaskQueue   string        `yaml:"task_queue" validate:"required"`
	GracePeriod time.Duration `yaml:"grace_period" validate:"gt=0"`
	MaxAttempts int           `yaml:"max_attempts" validate:"min=1"`
}

// Enabled reports whether a Temporal frontend is configured.
func (t TemporalConfig) Enabled() bool { return t.HostPort != "" }

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// Config is the complete process configuration.
type Config struct {
	Server        httpapi.Config       `yaml:"server"`
	Storage       StorageConfig        `yaml:"storage"`
	Engine        engine.Config        `yaml:"engine"`
	Scoring       ScoringConfig        `yaml:"scoring"`
	Callback      CallbackConfig       `yaml:"callback"`
	Redis         RedisConfig          `yaml:"redis"`
	Temporal      TemporalConfig       `yaml:"temporal"`
	Log           LogConfig            `yaml:"log"`
	Questionnaire domain.Questionnaire `yaml:"questionnaire"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every section.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Storage.SQLitePath != MemoryDSN && c.Storage.BlobDir == "" {
		return fmt.Errorf("invalid configuration: blob_dir is required when sqlite_path %q is durable",
			c.Storage.SQLitePath)
	}
	return nil
}

// SlogLevel converts Log.Level to a slog.Level.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
