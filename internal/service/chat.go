package service

import (
	"context"
	"strings"
	"time"

	"neural-garden/internal/api"
	"neural-garden/internal/constants"
	"neural-garden/internal/domain"
	"neural-garden/internal/events"
	"neural-garden/internal/judge"
	"neural-garden/internal/metrics"

	"github.com/rs/zerolog"
)

type ChatResult struct {
	Message      string
	Success      bool
	AttemptsLeft int
	Distribution Distribution
}

type ChatService struct {
	repo    TournamentStore
	judge   Judge
	payouts *PayoutService
	locks   *TournamentLocks
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewChatService(repo TournamentStore, j Judge, payouts *PayoutService, locks *TournamentLocks, m *metrics.Metrics, logger zerolog.Logger) *ChatService {
	return &ChatService{repo: repo, judge: j, payouts: payouts, locks: locks, metrics: m, logger: logger}
}

// Submit runs one participant message through the judge, records the exchange and
// pays the participant if the message wins.
func (s *ChatService) Submit(ctx context.Context, tournamentID, message, userAddress string) (*ChatResult, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	message = strings.TrimSpace(message)
	if message == "" {
		return nil, domain.Validation("message is required")
	}
	if strings.TrimSpace(userAddress) == "" {
		return nil, domain.Validation("userAddress is required")
	}

	unlock := s.locks.Lock(tournamentID)
	defer unlock()

	t, err := s.repo.Get(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	p := t.Participant(userAddress)
	if p == nil || p.AttemptsLeft <= 0 {
		return nil, domain.Forbidden("No attempts remaining")
	}
	if t.Status != domain.StatusActive {
		return nil, domain.Forbidden("Tournament is not accepting messages")
	}
	if t.Expired(time.Now()) {
		return nil, domain.Forbidden("Tournament has ended")
	}

	log := s.logger.With().Str("tournament_id", t.ID).Str("mode", string(t.Mode)).Str("participant", p.Address).Logger()

	req := api.ChatRequest{
		Messages: []api.ChatMessage{
			{Role: "system", Content: judge.SystemPrompt(t, s.judge.Structured())},
			{Role: "user", Content: message},
		},
	}
	if t.Mode != domain.ModeDebateArena {
		req.SchemaName = "verdict"
		req.Schema = judge.VerdictSchema
	}

	judgeCtx, judgeCancel := context.WithTimeout(ctx, constants.JudgeTimeout)
	start := time.Now()
	raw, err := s.judge.Complete(judgeCtx, req)
	judgeCancel()
	s.metrics.ObserveJudge("chat", start, err)
	if err != nil {
		log.Error().Err(err).Msg("judge call failed")
		return nil, err
	}

	outcome := judge.Evaluate(t.Mode, raw, s.judge.Structured())
	now := time.Now().UTC()
	t.Messages = append(t.Messages,
		domain.Message{
			Seq:              len(t.Messages) + 1,
			Role:             domain.RoleUser,
			Content:          message,
			SenderAddress:    p.Address,
			RecipientAddress: t.TreasuryAddress,
			Timestamp:        now,
		},
		domain.Message{
			Seq:              len(t.Messages) + 2,
			Role:             domain.RoleAssistant,
			Content:          outcome.Reply,
			SenderAddress:    t.TreasuryAddress,
			RecipientAddress: p.Address,
			Timestamp:        now,
		},
	)

	if t.Mode.ConsumesAttemptPerMessage() {
		p.AttemptsLeft--
	}

	result := &ChatResult{
		Message:      outcome.Reply,
		Success:      outcome.Solved,
		Distribution: Distribution{Status: domain.DistributionNone},
	}

	winnerIdx := -1
	if outcome.Solved {
		s.metrics.Wins.WithLabelValues(string(t.Mode)).Inc()
		switch t.Mode {
		case domain.ModeRiddle, domain.ModeTwentyQuestions:
			p.HasGuessedCorrect = true
		case domain.ModeAgentChallenge:
			p.HasCompleted = true
		}
		p.GuessCount++
		if !t.Mode.ConsumesAttemptPerMessage() {
			p.AttemptsLeft--
		}

		switch {
		case t.PrizesDistributed:
			log.Info().Msg("win detected after prizes were distributed")
		case t.Winner(p.Address) != nil:
			log.Info().Msg("participant already holds a prize")
		case len(t.Winners) >= t.Mode.PayoutCutoff():
			log.Info().Msg("payout cutoff already reached")
		default:
			winnerIdx = s.payouts.reserve(t, p.Address)
			log.Info().Int("rank", t.Winners[winnerIdx].Rank).Msg("winner reserved")
		}
	}
	if p.AttemptsLeft < 0 {
		p.AttemptsLeft = 0
	}
	result.AttemptsLeft = p.AttemptsLeft

	// the transcript and any reservation are committed before money moves
	if err := s.payouts.save(ctx, t); err != nil {
		log.Error().Err(err).Msg("failed to save chat exchange")
		return nil, err
	}

	var evs []events.Event
	if winnerIdx >= 0 {
		evs = s.payouts.settle(ctx, t, []int{winnerIdx})
		result.Distribution = distributionOf(&t.Winners[winnerIdx])
	}

	statusBefore := t.Status
	closing := t.Mode != domain.ModeDebateArena && t.AttemptsExhausted()
	if s.payouts.finalize(t, closing) {
		evs = append(evs, completedEvent(t))
	}

	if winnerIdx >= 0 || t.Status != statusBefore {
		if err := s.payouts.save(ctx, t); err != nil {
			ev := log.Error().Err(err)
			if winnerIdx >= 0 {
				ev = ev.Str("tx_hash", t.Winners[winnerIdx].TxHash).
					Str("payout_status", string(t.Winners[winnerIdx].PayoutStatus))
			}
			ev.Msg("failed to record payout result")
			return nil, err
		}
	}
	s.payouts.publish(ctx, evs)

	return result, nil
}
