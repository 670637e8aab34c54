package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("JUDGE_API_KEY", "sk-test")
	t.Setenv("WALLET_PASSPHRASE", "hunter2")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load(zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "walrus", cfg.BlobBackend)
	assert.True(t, cfg.JudgeStructured)
	assert.Zero(t, cfg.ChainID)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("JUDGE_BASE_URL", "http://judge.local/v1/")
	t.Setenv("JUDGE_STRUCTURED", "false")
	t.Setenv("ALLOWED_ORIGINS", "http://a.dev, http://b.dev")
	t.Setenv("DEBATE_SWEEP_INTERVAL", "30s")
	t.Setenv("JUDGE_RPS", "not-a-number")

	cfg, err := Load(zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "http://judge.local/v1", cfg.JudgeBaseURL)
	assert.False(t, cfg.JudgeStructured)
	assert.Equal(t, []string{"http://a.dev", "http://b.dev"}, cfg.AllowedOrigins)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 5.0, cfg.JudgeRPS)
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("JUDGE_API_KEY", "")
	t.Setenv("WALLET_PASSPHRASE", "x")
	_, err := Load(zerolog.Nop())
	assert.ErrorContains(t, err, "JUDGE_API_KEY")

	t.Setenv("JUDGE_API_KEY", "k")
	t.Setenv("WALLET_PASSPHRASE", "")
	_, err = Load(zerolog.Nop())
	assert.ErrorContains(t, err, "WALLET_PASSPHRASE")
}

func TestLoadValidatesBlobBackend(t *testing.T) {
	setRequired(t)

	t.Setenv("BLOB_BACKEND", "s3")
	_, err := Load(zerolog.Nop())
	assert.ErrorContains(t, err, "S3_BUCKET")

	t.Setenv("BLOB_BACKEND", "ftp")
	_, err = Load(zerolog.Nop())
	assert.ErrorContains(t, err, "unknown BLOB_BACKEND")
}
