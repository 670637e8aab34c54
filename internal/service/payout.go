package service

import (
	"context"
	"errors"
	"math/big"
	"time"

	"neural-garden/internal/constants"
	"neural-garden/internal/domain"
	"neural-garden/internal/events"
	"neural-garden/internal/metrics"
	"neural-garden/internal/prize"
	"neural-garden/internal/wallet"

	"github.com/rs/zerolog"
)

type Distribution struct {
	Status    domain.DistributionStatus
	AmountWei *big.Int
	TxHash    string
	Error     string
}

type PayoutResult struct {
	Tournament   *domain.Tournament
	Distribution domain.DistributionStatus
}

// PayoutService reserves winner records and drives their transfers to a settled state.
type PayoutService struct {
	repo    TournamentStore
	wallet  Wallet
	locks   *TournamentLocks
	events  events.Publisher
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewPayoutService(repo TournamentStore, w Wallet, locks *TournamentLocks, pub events.Publisher, m *metrics.Metrics, logger zerolog.Logger) *PayoutService {
	return &PayoutService{repo: repo, wallet: w, locks: locks, events: pub, metrics: m, logger: logger}
}

// Retry re-drives every unsettled payout of a tournament.
func (s *PayoutService) Retry(ctx context.Context, tournamentID string) (*PayoutResult, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	unlock := s.locks.Lock(tournamentID)
	defer unlock()

	t, err := s.repo.Get(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.PrizesDistributed {
		return &PayoutResult{Tournament: t, Distribution: aggregate(t.Winners)}, nil
	}
	if len(t.Winners) == 0 {
		return nil, domain.Validation("Tournament has no winners to pay")
	}

	s.logger.Info().Str("tournament_id", t.ID).Int("winners", len(t.Winners)).Msg("retrying payouts")

	evs := s.settle(ctx, t, nil)
	if s.finalize(t, t.Status == domain.StatusResolving || t.Expired(time.Now())) {
		evs = append(evs, completedEvent(t))
	}
	if err := s.save(ctx, t); err != nil {
		return nil, err
	}
	s.publish(ctx, evs)

	return &PayoutResult{Tournament: t, Distribution: aggregate(t.Winners)}, nil
}

// Close ends an active tournament whose end time has passed. Reserved payouts are
// re-driven and the tournament reaches COMPLETED, or RESOLVING while any payout is
// still unsettled. Debates close through resolution instead.
func (s *PayoutService) Close(ctx context.Context, tournamentID string) (*PayoutResult, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	unlock := s.locks.Lock(tournamentID)
	defer unlock()

	t, err := s.repo.Get(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.Mode == domain.ModeDebateArena {
		return nil, domain.Validation("Debates are closed by resolution")
	}
	if t.Status != domain.StatusActive || !t.Expired(time.Now()) {
		return &PayoutResult{Tournament: t, Distribution: aggregate(t.Winners)}, nil
	}

	s.logger.Info().Str("tournament_id", t.ID).Int("winners", len(t.Winners)).Msg("closing expired tournament")

	evs := s.settle(ctx, t, nil)
	if s.finalize(t, true) {
		evs = append(evs, completedEvent(t))
	}
	if err := s.save(ctx, t); err != nil {
		return nil, err
	}
	s.publish(ctx, evs)

	return &PayoutResult{Tournament: t, Distribution: aggregate(t.Winners)}, nil
}

// reserve appends a PENDING winner for address at the next rank and returns its index.
func (s *PayoutService) reserve(t *domain.Tournament, address string) int {
	rank := len(t.Winners) + 1
	distributable := prize.Distributable(prize.Pool(t.EntryFeeWei, t.CurrentParticipants))

	t.Winners = append(t.Winners, domain.Winner{
		Address:      domain.NormalizeAddress(address),
		Rank:         rank,
		PrizeWei:     prize.Amount(t.Mode, distributable, rank),
		PayoutStatus: domain.PayoutPending,
		UpdatedAt:    time.Now().UTC(),
	})
	return len(t.Winners) - 1
}

// settle pays the winners at indices, or every winner when indices is nil, skipping
// those already paid. A PENDING payout with a broadcast hash is only re-sent once
// the chain reports it failed or unknown.
func (s *PayoutService) settle(ctx context.Context, t *domain.Tournament, indices []int) []events.Event {
	var (
		evs       []events.Event
		handle    *wallet.Handle
		importErr error
		imported  bool
	)

	if indices == nil {
		for i := range t.Winners {
			indices = append(indices, i)
		}
	}

	for _, i := range indices {
		w := &t.Winners[i]
		if w.PayoutStatus == domain.PayoutSucceeded {
			continue
		}

		if w.PayoutStatus == domain.PayoutPending && w.TxHash != "" {
			status, err := s.wallet.ReceiptStatus(ctx, w.TxHash)
			if err != nil {
				s.logger.Warn().Err(err).Str("tournament_id", t.ID).Str("tx_hash", w.TxHash).Msg("failed to check payout receipt")
				w.PayoutError = domain.PublicMessage(err)
				continue
			}
			switch status {
			case domain.PayoutPending:
				continue
			case domain.PayoutSucceeded:
				w.PayoutStatus = domain.PayoutSucceeded
				w.PayoutError = ""
				w.UpdatedAt = time.Now().UTC()
				s.recordPayout(t, w)
				evs = append(evs, winnerEvent(t, w))
				continue
			}
			s.logger.Warn().Str("tournament_id", t.ID).Str("tx_hash", w.TxHash).Msg("previous payout failed, re-sending")
		}

		if w.PrizeWei == nil || w.PrizeWei.Sign() == 0 {
			w.PayoutStatus = domain.PayoutSucceeded
			w.UpdatedAt = time.Now().UTC()
			evs = append(evs, winnerEvent(t, w))
			continue
		}

		if !imported {
			handle, importErr = s.wallet.Import(t.WalletCredential)
			imported = true
			if importErr != nil {
				s.logger.Error().Err(importErr).Str("tournament_id", t.ID).Msg("failed to import tournament wallet")
			}
		}
		if importErr != nil {
			w.PayoutStatus = domain.PayoutFailed
			w.PayoutError = "failed to import tournament wallet"
			w.UpdatedAt = time.Now().UTC()
			s.recordPayout(t, w)
			continue
		}

		s.transfer(ctx, t, w, handle)
		evs = append(evs, winnerEvent(t, w))
	}
	return evs
}

func (s *PayoutService) transfer(ctx context.Context, t *domain.Tournament, w *domain.Winner, h *wallet.Handle) {
	tctx, cancel := context.WithTimeout(ctx, constants.TransferTimeout)
	defer cancel()

	res, err := s.wallet.Transfer(tctx, h, w.PrizeWei, w.Address)
	w.UpdatedAt = time.Now().UTC()
	if res != nil {
		w.TxHash = res.TxHash
		w.PayoutStatus = res.Status
	}

	if err != nil {
		if res == nil {
			w.PayoutStatus = domain.PayoutFailed
		}
		w.PayoutError = domain.PublicMessage(err)
		s.logger.Error().
			Err(err).
			Str("tournament_id", t.ID).
			Str("winner", w.Address).
			Int("rank", w.Rank).
			Str("prize_wei", w.PrizeWei.String()).
			Str("tx_hash", w.TxHash).
			Msg("prize transfer failed")
	} else {
		w.PayoutError = ""
		s.logger.Info().
			Str("tournament_id", t.ID).
			Str("winner", w.Address).
			Int("rank", w.Rank).
			Str("prize", prize.FormatEther(w.PrizeWei)).
			Str("tx_hash", w.TxHash).
			Str("status", string(w.PayoutStatus)).
			Msg("prize transfer sent")
	}
	s.recordPayout(t, w)
}

// finalize closes the tournament once no more winners can be added. Prizes count as
// distributed only when every reserved payout has succeeded.
func (s *PayoutService) finalize(t *domain.Tournament, closing bool) bool {
	if t.PrizesDistributed || t.Status == domain.StatusCompleted {
		return false
	}
	if len(t.Winners) >= t.Mode.PayoutCutoff() {
		closing = true
	}
	if !closing {
		return false
	}
	if !t.AllPayoutsSucceeded() {
		t.Status = domain.StatusResolving
		return false
	}

	t.Status = domain.StatusCompleted
	if len(t.Winners) > 0 {
		t.PrizesDistributed = true
	}
	s.logger.Info().
		Str("tournament_id", t.ID).
		Int("winners", len(t.Winners)).
		Bool("prizes_distributed", t.PrizesDistributed).
		Msg("tournament completed")
	return true
}

func (s *PayoutService) save(ctx context.Context, t *domain.Tournament) error {
	err := s.repo.Save(ctx, t)
	if errors.Is(err, domain.ErrConflict) {
		s.metrics.Conflicts.Inc()
	}
	return err
}

func (s *PayoutService) publish(ctx context.Context, evs []events.Event) {
	for _, ev := range evs {
		if err := s.events.Publish(ctx, ev); err != nil {
			s.logger.Warn().Err(err).Str("subject", ev.Subject()).Msg("failed to publish event")
		}
	}
}

func (s *PayoutService) recordPayout(t *domain.Tournament, w *domain.Winner) {
	s.metrics.Payouts.WithLabelValues(string(t.Mode), string(w.PayoutStatus)).Inc()
	if w.PayoutStatus == domain.PayoutSucceeded && w.PrizeWei != nil {
		v, _ := new(big.Float).SetInt(w.PrizeWei).Float64()
		s.metrics.PayoutWei.WithLabelValues(string(t.Mode)).Add(v)
	}
}

func distributionOf(w *domain.Winner) Distribution {
	d := Distribution{AmountWei: w.PrizeWei, TxHash: w.TxHash, Error: w.PayoutError}
	switch w.PayoutStatus {
	case domain.PayoutSucceeded:
		d.Status = domain.DistributionSucceeded
	case domain.PayoutFailed:
		d.Status = domain.DistributionFailed
	default:
		d.Status = domain.DistributionPending
	}
	return d
}

func aggregate(ws []domain.Winner) domain.DistributionStatus {
	if len(ws) == 0 {
		return domain.DistributionNone
	}
	status := domain.DistributionSucceeded
	for _, w := range ws {
		switch w.PayoutStatus {
		case domain.PayoutFailed:
			return domain.DistributionFailed
		case domain.PayoutPending:
			status = domain.DistributionPending
		}
	}
	return status
}

func winnerEvent(t *domain.Tournament, w *domain.Winner) events.Event {
	return events.Event{
		Type:         events.WinnerRecorded,
		TournamentID: t.ID,
		Mode:         string(t.Mode),
		Address:      w.Address,
		Rank:         w.Rank,
		PrizeWei:     w.PrizeWei.String(),
		TxHash:       w.TxHash,
		Status:       string(w.PayoutStatus),
		At:           time.Now().UTC(),
	}
}

func completedEvent(t *domain.Tournament) events.Event {
	return events.Event{
		Type:         events.TournamentCompleted,
		TournamentID: t.ID,
		Mode:         string(t.Mode),
		Status:       string(t.Status),
		At:           time.Now().UTC(),
	}
}
