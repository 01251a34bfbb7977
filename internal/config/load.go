package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffyaml"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-assess/internal/domain"
)

// EnvPrefix prefixes every environment variable, e.g. ASSESS_ENGINE_ENDPOINT.
const EnvPrefix = "ASSESS"

// Load parses args (without the program name) into a validated Config.
//
// Precedence, highest first: flags, environment, config file, defaults. A
// .env file in the working directory is loaded into the environment first
// but never overrides variables that are already set.
func Load(name string, args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	var questionnaireFile string
	flags.String("config", "", "config file (optional, YAML)")
	flags.StringVar(&questionnaireFile, "questionnaire", "", "questionnaire contract file (optional, YAML)")
	register(flags, cfg)

	if err := ff.Parse(flags, args,
		ff.WithEnvVarPrefix(EnvPrefix),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ffyaml.Parser),
		ff.WithAllowMissingConfigFile(true),
	); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}

	if questionnaireFile != "" {
		q, err := LoadQuestionnaire(questionnaireFile)
		if err != nil {
			return nil, err
		}
		cfg.Questionnaire = q
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// register binds every tunable field to a flag. Flag names double as
// config-file keys and, upper-cased, as environment variable suffixes.
func register(flags *flag.FlagSet, c *Config) {
	flags.StringVar(&c.Server.Addr, "addr", c.Server.Addr, "HTTP listen address")
	flags.DurationVar(&c.Server.ReadTimeout, "read-timeout", c.Server.ReadTimeout, "HTTP read timeout")
	flags.DurationVar(&c.Server.WriteTimeout, "write-timeout", c.Server.WriteTimeout, "HTTP write timeout")
	flags.DurationVar(&c.Server.ShutdownTimeout, "shutdown-timeout", c.Server.ShutdownTimeout, "graceful shutdown timeout")
	flags.StringVar(&c.Server.BodyLimit, "body-limit", c.Server.BodyLimit, "maximum request body size")

	flags.StringVar(&c.Storage.SQLitePath, "sqlite-path", c.Storage.SQLitePath, `SQLite database file (":memory:" for the in-memory store)`)
	flags.StringVar(&c.Storage.BlobDir, "blob-dir", c.Storage.BlobDir, "attachment content directory (empty keeps content in memory; requires the in-memory store)")

	flags.StringVar(&c.Engine.Endpoint, "engine-endpoint", c.Engine.Endpoint, "scoring engine base URL")
	flags.StringVar(&c.Engine.APIKey, "engine-api-key", c.Engine.APIKey, "scoring engine API key")
	flags.DurationVar(&c.Engine.Timeout, "engine-timeout", c.Engine.Timeout, "per-request HTTP timeout")
	flags.StringVar(&c.Engine.ScorePath, "engine-score-path", c.Engine.ScorePath, "JSON path of the score in engine responses")
	flags.StringVar(&c.Engine.ArtifactPath, "engine-artifact-path", c.Engine.ArtifactPath, "JSON path of the artifact reference")
	flags.IntVar(&c.Engine.Retry.MaxAttempts, "engine-retry-attempts", c.Engine.Retry.MaxAttempts, "attempts per dispatch")
	flags.DurationVar(&c.Engine.Retry.InitialInterval, "engine-retry-initial", c.Engine.Retry.InitialInterval, "first retry backoff")
	flags.DurationVar(&c.Engine.Retry.MaxInterval, "engine-retry-max", c.Engine.Retry.MaxInterval, "backoff cap")
	flags.IntVar(&c.Engine.Breaker.FailureThreshold, "engine-breaker-failures", c.Engine.Breaker.FailureThreshold, "failures before the circuit opens")
	flags.DurationVar(&c.Engine.Breaker.OpenTimeout, "engine-breaker-open", c.Engine.Breaker.OpenTimeout, "time the circuit stays open")
	flags.Float64Var(&c.Engine.RateLimit.RequestsPerSecond, "engine-rps", c.Engine.RateLimit.RequestsPerSecond, "engine request rate (0 disables)")
	flags.IntVar(&c.Engine.RateLimit.Burst, "engine-burst", c.Engine.RateLimit.Burst, "engine request burst")

	flags.DurationVar(&c.Scoring.DispatchTimeout, "dispatch-timeout", c.Scoring.DispatchTimeout, "upper bound on a synchronous scoring attempt")
	flags.StringVar(&c.Scoring.CallbackURL, "callback-url", c.Scoring.CallbackURL, "public URL of the engine callback endpoint")

	flags.StringVar(&c.Callback.Secret, "callback-secret", c.Callback.Secret, "shared HS256 secret for engine callbacks")
	flags.StringVar(&c.Callback.SecretFile, "callback-secret-file", c.Callback.SecretFile, "file holding the callback secret, reloaded on change")
	flags.StringVar(&c.Callback.Issuer, "callback-issuer", c.Callback.Issuer, "expected callback token issuer")
	flags.DurationVar(&c.Callback.Leeway, "callback-leeway", c.Callback.Leeway, "allowed clock skew for callback tokens")
	flags.DurationVar(&c.Callback.ReplayTTL, "callback-replay-ttl", c.Callback.ReplayTTL, "how long used token ids are remembered")

	flags.StringVar(&c.Redis.Addr, "redis-addr", c.Redis.Addr, "Redis address (empty disables Redis)")
	flags.StringVar(&c.Redis.Password, "redis-password", c.Redis.Password, "Redis password")
	flags.IntVar(&c.Redis.DB, "redis-db", c.Redis.DB, "Redis database")
	flags.StringVar(&c.Redis.Stream, "redis-stream", c.Redis.Stream, "Redis stream for notification events")

	flags.StringVar(&c.Temporal.HostPort, "temporal-host", c.Temporal.HostPort, "Temporal frontend host:port (empty disables follow-up)")
	flags.StringVar(&c.Temporal.Namespace, "temporal-namespace", c.Temporal.Namespace, "Temporal namespace")
	flags.StringVar(&c.Temporal.TaskQueue, "temporal-task-queue", c.Temporal.TaskQueue, "Temporal task queue")
	flags.DurationVar(&c.Temporal.GracePeriod, "followup-grace", c.Temporal.GracePeriod, "wait for a callback before redispatching")
	flags.IntVar(&c.Temporal.MaxAttempts, "followup-attempts", c.Temporal.MaxAttempts, "redispatch attempts before scoring_failed")

	flags.StringVar(&c.Log.Level, "log-level", c.Log.Level, "debug, info, warn or error")
	flags.StringVar(&c.Log.Format, "log-format", c.Log.Format, "json or text")
}

// LoadQuestionnaire reads and validates a questionnaire contract file.
// Fields missing from the file keep their defaults.
func LoadQuestionnaire(path string) (domain.Questionnaire, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Questionnaire{}, fmt.Errorf("read questionnaire %s: %w", path, err)
	}
	q := domain.DefaultQuestionnaire()
	if err := yaml.Unmarshal(data, &q); err != nil {
		return domain.Questionnaire{}, fmt.Errorf("parse questionnaire %s: %w", path, err)
	}
	if err := q.Validate(); err != nil {
		return domain.Questionnaire{}, fmt.Errorf("questionnaire %s: %w", path, err)
	}
	return q, nil
}

// NewLogger builds the process logger from the log section.
func NewLogger(c LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
