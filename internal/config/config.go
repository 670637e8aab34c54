package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"neural-garden/internal/constants"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	ServerPort     string
	DBPath         string
	LogLevel       string
	AllowedOrigins []string

	JudgeAPIKey     string
	JudgeBaseURL    string
	JudgeModel      string
	JudgeStructured bool
	JudgeRPS        float64

	BlobBackend       string
	PublisherURL      string
	S3Bucket          string
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string

	EthRPCURL        string
	// ChainID, when non-zero, must match the chain reported by EthRPCURL.
	ChainID          int64
	WalletPassphrase string
	VerifyEntries    bool

	NATSURL       string
	SweepInterval time.Duration
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		DBPath:         getEnv("DB_PATH", "neural-garden.db"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),

		JudgeAPIKey:     getEnv("JUDGE_API_KEY", ""),
		JudgeBaseURL:    strings.TrimRight(getEnv("JUDGE_BASE_URL", constants.DefaultJudgeBaseURL), "/"),
		JudgeModel:      getEnv("JUDGE_MODEL", constants.DefaultJudgeModel),
		JudgeStructured: getEnvBool("JUDGE_STRUCTURED", true),
		JudgeRPS:        getEnvFloat("JUDGE_RPS", constants.DefaultJudgeRPS),

		BlobBackend:       getEnv("BLOB_BACKEND", "walrus"),
		PublisherURL:      strings.TrimRight(getEnv("PUBLISHER_URL", constants.DefaultPublisherURL), "/"),
		S3Bucket:          getEnv("S3_BUCKET", ""),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Region:          getEnv("S3_REGION", "auto"),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),

		EthRPCURL:        getEnv("ETH_RPC_URL", ""),
		ChainID:          int64(getEnvInt("CHAIN_ID", 0)),
		WalletPassphrase: getEnv("WALLET_PASSPHRASE", ""),
		VerifyEntries:    getEnvBool("VERIFY_ENTRIES", false),

		NATSURL:       getEnv("NATS_URL", ""),
		SweepInterval: getEnvDuration("DEBATE_SWEEP_INTERVAL", constants.DefaultSweepEvery),
	}

	if cfg.JudgeAPIKey == "" {
		return nil, fmt.Errorf("JUDGE_API_KEY is required")
	}
	if cfg.WalletPassphrase == "" {
		return nil, fmt.Errorf("WALLET_PASSPHRASE is required")
	}
	switch cfg.BlobBackend {
	case "walrus":
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required when BLOB_BACKEND=s3")
		}
	default:
		return nil, fmt.Errorf("unknown BLOB_BACKEND %q", cfg.BlobBackend)
	}
	if cfg.VerifyEntries && cfg.EthRPCURL == "" {
		return nil, fmt.Errorf("ETH_RPC_URL is required when VERIFY_ENTRIES is set")
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Str("judge_base_url", cfg.JudgeBaseURL).
		Str("judge_model", cfg.JudgeModel).
		Bool("judge_structured", cfg.JudgeStructured).
		Str("blob_backend", cfg.BlobBackend).
		Int64("chain_id", cfg.ChainID).
		Bool("chain_enabled", cfg.EthRPCURL != "").
		Bool("events_enabled", cfg.NATSURL != "").
		Dur("sweep_interval", cfg.SweepInterval).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && v > 0 {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var Module = fx.Provide(Load)
