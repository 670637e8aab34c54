package constants

import "time"

const (
	JudgeTimeout     = 45 * time.Second
	TransferTimeout  = 2 * time.Minute
	PublishTimeout   = 20 * time.Second
	ChainReadTimeout = 10 * time.Second
	DatabaseTimeout  = 5 * time.Second
	RequestTimeout   = 3 * time.Minute
)

const (
	DBMaxOpenConns    = 1
	DBMaxIdleConns    = 1
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout   = 5 * time.Second
	ReadHeaderTimeout = 10 * time.Second
)

const (
	// 1% of every pool is withheld to fund transfer gas
	GasReserveDivisor = 100

	TransferGasLimit = 21000

	DebateScoreConcurrency = 4
	DebateTopRanks         = 5

	JudgeMaxBodyPreview = 512
)

const (
	DefaultJudgeModel   = "gpt-4o-mini"
	DefaultJudgeBaseURL = "https://api.openai.com/v1"
	DefaultPublisherURL = "https://publisher.walrus-testnet.walrus.space"
	DefaultJudgeRPS     = 5.0
	DefaultJudgeBurst   = 5
	DefaultSweepEvery   = 1 * time.Minute
)
