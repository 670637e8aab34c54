package fx

import (
	"neural-garden/internal/api"
	"neural-garden/internal/config"
	"neural-garden/internal/database"
	"neural-garden/internal/events"
	"neural-garden/internal/logger"
	"neural-garden/internal/metrics"
	"neural-garden/internal/repository"
	"neural-garden/internal/scheduler"
	"neural-garden/internal/server"
	"neural-garden/internal/service"
	"neural-garden/internal/wallet"

	"go.uber.org/fx"
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	fx.Provide(database.New),
	fx.Provide(metrics.New),
	// repos
	fx.Provide(
		fx.Annotate(repository.NewTournamentRepository, fx.As(new(service.TournamentStore))),
		fx.Annotate(repository.NewBlobRepository, fx.As(new(service.BlobStore))),
	),
	// external clients
	fx.Provide(
		fx.Annotate(api.ProvideJudgeClient, fx.As(new(service.Judge))),
		api.ProvideBlobPublisher,
		fx.Annotate(wallet.Provide, fx.As(new(service.Wallet))),
		events.Provide,
	),
	// svc
	fx.Provide(service.NewTournamentLocks),
	fx.Provide(service.NewPayoutService),
	fx.Provide(service.NewChatService),
	fx.Provide(service.NewDebateService),
	fx.Provide(service.NewChallengeService),
	fx.Provide(service.NewTournamentService),
	// server
	fx.Provide(server.NewArenaServer),
	fx.Provide(scheduler.Provide),
	fx.Invoke(func(*scheduler.ExpirySweeper) {}),
)
