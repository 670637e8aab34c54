package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"neural-garden/internal/config"
	"neural-garden/internal/constants"
	"neural-garden/internal/domain"
	"neural-garden/internal/service"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type expiredLister interface {
	ExpiredIDs(ctx context.Context, mode domain.Mode, now time.Time) ([]string, error)
}

type debateResolver interface {
	Resolve(ctx context.Context, tournamentID string) (*service.DebateResult, error)
}

type tournamentCloser interface {
	Close(ctx context.Context, tournamentID string) (*service.PayoutResult, error)
}

// closedModes end by closing out their payouts; debates end by resolution.
var closedModes = []domain.Mode{domain.ModeTwentyQuestions, domain.ModeRiddle, domain.ModeAgentChallenge}

// ExpirySweeper ends active tournaments whose end time has passed.
type ExpirySweeper struct {
	repo     expiredLister
	debates  debateResolver
	closer   tournamentCloser
	interval time.Duration
	sched    gocron.Scheduler
	logger   zerolog.Logger
	now      func() time.Time
}

func NewExpirySweeper(repo expiredLister, debates debateResolver, closer tournamentCloser, interval time.Duration, logger zerolog.Logger) (*ExpirySweeper, error) {
	if interval <= 0 {
		interval = constants.DefaultSweepEvery
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &ExpirySweeper{
		repo:     repo,
		debates:  debates,
		closer:   closer,
		interval: interval,
		sched:    sched,
		logger:   logger.With().Str("component", "expiry_sweeper").Logger(),
		now:      time.Now,
	}, nil
}

// Sweep ends every expired active tournament once and returns how many it ended.
func (s *ExpirySweeper) Sweep(ctx context.Context) int {
	ended := 0
	for _, id := range s.expired(ctx, domain.ModeDebateArena) {
		if ctx.Err() != nil {
			return ended
		}
		res, err := s.debates.Resolve(ctx, id)
		if err != nil {
			s.logFailure(err, id, "failed to auto-resolve debate")
			continue
		}
		ended++
		s.logger.Info().
			Str("tournament_id", id).
			Str("category", res.Category).
			Str("distribution", string(res.Distribution)).
			Msg("debate auto-resolved")
	}

	for _, mode := range closedModes {
		for _, id := range s.expired(ctx, mode) {
			if ctx.Err() != nil {
				return ended
			}
			res, err := s.closer.Close(ctx, id)
			if err != nil {
				s.logFailure(err, id, "failed to close expired tournament")
				continue
			}
			ended++
			s.logger.Info().
				Str("tournament_id", id).
				Str("mode", string(mode)).
				Str("status", string(res.Tournament.Status)).
				Str("distribution", string(res.Distribution)).
				Msg("expired tournament closed")
		}
	}
	return ended
}

func (s *ExpirySweeper) expired(ctx context.Context, mode domain.Mode) []string {
	listCtx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()
	ids, err := s.repo.ExpiredIDs(listCtx, mode, s.now().UTC())
	if err != nil {
		s.logger.Error().Err(err).Str("mode", string(mode)).Msg("failed to list expired tournaments")
		return nil
	}
	return ids
}

func (s *ExpirySweeper) logFailure(err error, id, msg string) {
	ev := s.logger.Warn()
	if !errors.Is(err, domain.ErrExternalService) && !errors.Is(err, domain.ErrConflict) {
		ev = s.logger.Error()
	}
	ev.Err(err).Str("tournament_id", id).Msg(msg)
}

func (s *ExpirySweeper) Start() error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), constants.RequestTimeout)
			defer cancel()
			s.Sweep(ctx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule expiry sweep: %w", err)
	}
	s.sched.Start()
	s.logger.Info().Dur("interval", s.interval).Msg("expiry sweeper started")
	return nil
}

func (s *ExpirySweeper) Shutdown() error {
	if err := s.sched.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	s.logger.Info().Msg("expiry sweeper stopped")
	return nil
}

// Provide builds the expiry sweeper and ties it to the app lifecycle.
func Provide(lc fx.Lifecycle, cfg *config.Config, repo service.TournamentStore, debates *service.DebateService, payouts *service.PayoutService, logger zerolog.Logger) (*ExpirySweeper, error) {
	s, err := NewExpirySweeper(repo, debates, payouts, cfg.SweepInterval, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return s.Start() },
		OnStop:  func(context.Context) error { return s.Shutdown() },
	})
	return s, nil
}
