package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requiredArgs(extra ...string) []string {
	return append([]string{
		"-engine-endpoint", "http://engine.local",
		"-callback-secret", "s3cret",
	}, extra...)
}

func TestDefaultNeedsEndpointAndSecret(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Validate())

	cfg.Engine.Endpoint = "http://engine.local"
	cfg.Callback.Secret = "s3cret"
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 50, cfg.Questionnaire.QuestionCount)
	assert.Equal(t, 3, cfg.Questionnaire.MaxAttachments)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Temporal.Enabled())
}

func TestValidateStoragePairing(t *testing.T) {
	tests := []struct {
		name    string
		sqlite  string
		blobDir string
		wantErr bool
	}{
		{"durable database with blob dir", "assess.db", "blobs", false},
		{"durable database without blob dir", "assess.db", "", true},
		{"memory database without blob dir", MemoryDSN, "", false},
		{"memory database with blob dir", MemoryDSN, "blobs", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Engine.Endpoint = "http://engine.local"
			cfg.Callback.Secret = "s3cret"
			cfg.Storage.SQLitePath = tt.sqlite
			cfg.Storage.BlobDir = tt.blobDir

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "blob_dir")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestLoadFlags(t *testing.T) {
	cfg, err := Load("assessd", requiredArgs(
		"-addr", ":9090",
		"-dispatch-timeout", "5s",
		"-engine-retry-attempts", "2",
		"-redis-addr", "localhost:6379",
		"-log-format", "text",
	))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Scoring.DispatchTimeout)
	assert.Equal(t, 2, cfg.Engine.Retry.MaxAttempts)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, DefaultSQLitePath, cfg.Storage.SQLitePath)
	assert.Equal(t, DefaultBlobDir, cfg.Storage.BlobDir)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("ASSESS_ENGINE_ENDPOINT", "http://env-engine.local")
	t.Setenv("ASSESS_CALLBACK_SECRET", "from-env")
	t.Setenv("ASSESS_TEMPORAL_HOST", "temporal:7233")

	cfg, err := Load("assessd", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://env-engine.local", cfg.Engine.Endpoint)
	assert.Equal(t, "from-env", cfg.Callback.Secret)
	assert.True(t, cfg.Temporal.Enabled())

	// Flags win over the environment.
	cfg, err = Load("assessd", []string{"-engine-endpoint", "http://flag.local"})
	require.NoError(t, err)
	assert.Equal(t, "http://flag.local", cfg.Engine.Endpoint)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "assess.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"engine-endpoint: http://file-engine.local\n"+
			"callback-secret: file-secret\n"+
			"followup-attempts: 7\n"+
			"log-level: debug\n"), 0o600))

	cfg, err := Load("assessd", []string{"-config", path})
	require.NoError(t, err)
	assert.Equal(t, "http://file-engine.local", cfg.Engine.Endpoint)
	assert.Equal(t, 7, cfg.Temporal.MaxAttempts)
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
}

func TestLoadQuestionnaire(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "questionnaire.yaml")
	require.NoError(t, os.WriteFile(path, []byte("question_count: 10\nmax_attachments: 1\n"), 0o600))

	cfg, err := Load("assessd", requiredArgs("-questionnaire", path))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Questionnaire.QuestionCount)
	assert.Equal(t, 1, cfg.Questionnaire.MaxAttachments)
	// Unspecified fields keep their defaults.
	assert.NotEmpty(t, cfg.Questionnaire.AttachmentKind)
	assert.Positive(t, cfg.Questionnaire.MaxAttachmentBytes)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("question_count: 0\n"), 0o600))
	_, err = LoadQuestionnaire(bad)
	require.Error(t, err)

	_, err = LoadQuestionnaire(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing endpoint", []string{"-callback-secret", "x"}},
		{"endpoint not a url", []string{"-engine-endpoint", "not a url", "-callback-secret", "x"}},
		{"missing secret", []string{"-engine-endpoint", "http://engine.local"}},
		{"bad log level", requiredArgs("-log-level", "verbose")},
		{"bad log format", requiredArgs("-log-format", "xml")},
		{"zero dispatch timeout", requiredArgs("-dispatch-timeout", "0s")},
		{"zero retry attempts", requiredArgs("-engine-retry-attempts", "0")},
		{"zero follow-up attempts", requiredArgs("-followup-attempts", "0")},
		{"unknown flag", requiredArgs("-no-such-flag", "1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("assessd", tt.args)
			require.Error(t, err)
		})
	}
}

func TestSecretFileSatisfiesSecret(t *testing.T) {
	cfg, err := Load("assessd", []string{
		"-engine-endpoint", "http://engine.local",
		"-callback-secret-file", "/run/secrets/callback",
	})
	require.NoError(t, err)
	assert.Empty(t, cfg.Callback.Secret)
	assert.Equal(t, "/run/secrets/callback", cfg.Callback.SecretFile)
}

func TestNewLogger(t *testing.T) {
	assert.NotNil(t, NewLogger(LogConfig{Level: "debug", Format: "text"}))
	assert.NotNil(t, NewLogger(LogConfig{Level: "error", Format: "json"}))
}
