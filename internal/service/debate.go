package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"neural-garden/internal/api"
	"neural-garden/internal/constants"
	"neural-garden/internal/domain"
	"neural-garden/internal/judge"
	"neural-garden/internal/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type DebateResult struct {
	Message         string
	Tournament      *domain.Tournament
	Category        string
	BlobID          string
	ArchiveError    string
	Distribution    domain.DistributionStatus
	AlreadyResolved bool
}

type DebateService struct {
	repo      TournamentStore
	blobs     BlobStore
	publisher api.BlobPublisher
	judge     Judge
	payouts   *PayoutService
	locks     *TournamentLocks
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

func NewDebateService(
	repo TournamentStore,
	blobs BlobStore,
	publisher api.BlobPublisher,
	j Judge,
	payouts *PayoutService,
	locks *TournamentLocks,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *DebateService {
	return &DebateService{
		repo:      repo,
		blobs:     blobs,
		publisher: publisher,
		judge:     j,
		payouts:   payouts,
		locks:     locks,
		metrics:   m,
		logger:    logger,
	}
}

type debaterScore struct {
	address string
	score   float64
}

// Resolve scores the debate transcript, archives it and pays the top debaters.
// Calling it again after prizes were distributed transfers nothing.
func (s *DebateService) Resolve(ctx context.Context, tournamentID string) (*DebateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	unlock := s.locks.Lock(tournamentID)
	defer unlock()

	t, err := s.repo.Get(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.Mode != domain.ModeDebateArena {
		return nil, domain.Validation("Invalid tournament mode")
	}

	log := s.logger.With().Str("tournament_id", t.ID).Logger()

	if t.PrizesDistributed || t.Status == domain.StatusCompleted {
		log.Info().Msg("debate already resolved")
		return &DebateResult{
			Message:         "Debate already resolved",
			Tournament:      t,
			Category:        t.Category,
			Distribution:    aggregate(t.Winners),
			AlreadyResolved: true,
		}, nil
	}

	result := &DebateResult{Message: "Debate resolved and prizes distributed", Tournament: t}

	// winners are fixed by the first resolution; later calls only finish their payouts
	if len(t.Winners) == 0 {
		ranking := s.rank(ctx, t)
		log.Info().Int("ranked", len(ranking)).Msg("debate scored")

		t.Category = s.categorize(ctx, t)
		result.Category = t.Category

		for _, d := range ranking {
			s.payouts.reserve(t, d.address)
		}
		t.Status = domain.StatusResolving
		if err := s.payouts.save(ctx, t); err != nil {
			return nil, err
		}
		s.metrics.DebatesSettled.Inc()

		// archived once, by the call that won the reservation
		result.BlobID, result.ArchiveError = s.archive(ctx, t)
	} else {
		result.Category = t.Category
	}

	evs := s.payouts.settle(ctx, t, nil)
	if s.payouts.finalize(t, true) {
		evs = append(evs, completedEvent(t))
	}
	if err := s.payouts.save(ctx, t); err != nil {
		log.Error().Err(err).Msg("failed to record debate payouts")
		return nil, err
	}
	s.payouts.publish(ctx, evs)

	result.Distribution = aggregate(t.Winners)
	if len(t.Winners) == 0 {
		result.Message = "Debate resolved with no participants to reward"
	}
	return result, nil
}

// rank totals per-message judge scores by sender and returns the top debaters.
// Ties keep the order in which debaters first spoke.
func (s *DebateService) rank(ctx context.Context, t *domain.Tournament) []debaterScore {
	var userMsgs []domain.Message
	for _, m := range t.Messages {
		if m.Role == domain.RoleUser {
			userMsgs = append(userMsgs, m)
		}
	}

	scores := make([]float64, len(userMsgs))
	g := new(errgroup.Group)
	g.SetLimit(constants.DebateScoreConcurrency)
	for i, m := range userMsgs {
		i, m := i, m
		g.Go(func() error {
			scores[i] = s.score(ctx, t.ID, m.Content)
			return nil
		})
	}
	_ = g.Wait()

	byAddr := make(map[string]*debaterScore)
	var order []*debaterScore
	for i, m := range userMsgs {
		addr := domain.NormalizeAddress(m.SenderAddress)
		d, ok := byAddr[addr]
		if !ok {
			d = &debaterScore{address: addr}
			byAddr[addr] = d
			order = append(order, d)
		}
		d.score += scores[i]
	}

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].score > order[j].score
	})

	n := min(len(order), constants.DebateTopRanks)
	out := make([]debaterScore, 0, n)
	for _, d := range order[:n] {
		out = append(out, *d)
	}
	return out
}

// score asks the judge to grade one argument; any failure scores zero.
func (s *DebateService) score(ctx context.Context, tournamentID, content string) float64 {
	jctx, cancel := context.WithTimeout(ctx, constants.JudgeTimeout)
	defer cancel()

	start := time.Now()
	raw, err := s.judge.Complete(jctx, api.ChatRequest{
		Messages: []api.ChatMessage{
			{Role: "system", Content: judge.DebateScorerPrompt},
			{Role: "user", Content: content},
		},
	})
	s.metrics.ObserveJudge("score", start, err)
	if err != nil {
		s.logger.Warn().Err(err).Str("tournament_id", tournamentID).Msg("failed to score debate message")
		return 0
	}
	return judge.ParseScore(raw)
}

func (s *DebateService) categorize(ctx context.Context, t *domain.Tournament) string {
	var b strings.Builder
	for _, m := range t.Messages {
		b.WriteString(m.Content)
		b.WriteString(" ")
	}

	jctx, cancel := context.WithTimeout(ctx, constants.JudgeTimeout)
	defer cancel()

	start := time.Now()
	raw, err := s.judge.Complete(jctx, api.ChatRequest{
		Messages: []api.ChatMessage{
			{Role: "system", Content: judge.CategoryPrompt()},
			{Role: "user", Content: strings.TrimSpace(b.String())},
		},
	})
	s.metrics.ObserveJudge("category", start, err)
	if err != nil {
		s.logger.Warn().Err(err).Str("tournament_id", t.ID).Msg("failed to categorize debate")
		return judge.UnknownCategory
	}
	return judge.NormalizeCategory(raw)
}

type archivedMessage struct {
	Role             string    `json:"role"`
	Content          string    `json:"content"`
	SenderAddress    string    `json:"senderAddress"`
	RecipientAddress string    `json:"recipientAddress"`
	Timestamp        time.Time `json:"timestamp"`
}

// archive publishes the transcript. Failures are reported, never fatal.
func (s *DebateService) archive(ctx context.Context, t *domain.Tournament) (string, string) {
	transcript := make([]archivedMessage, 0, len(t.Messages))
	for _, m := range t.Messages {
		transcript = append(transcript, archivedMessage{
			Role:             string(m.Role),
			Content:          m.Content,
			SenderAddress:    m.SenderAddress,
			RecipientAddress: m.RecipientAddress,
			Timestamp:        m.Timestamp,
		})
	}

	pctx, cancel := context.WithTimeout(ctx, constants.PublishTimeout)
	defer cancel()

	blobID, err := s.publisher.Publish(pctx, t.Category, transcript)
	if err != nil {
		s.logger.Warn().Err(err).Str("tournament_id", t.ID).Msg("failed to archive debate transcript")
		return "", domain.PublicMessage(err)
	}

	rec := &domain.StoredBlobRecord{TournamentID: t.ID, Category: t.Category, BlobID: blobID}
	if err := s.blobs.Create(ctx, rec); err != nil {
		s.logger.Warn().Err(err).Str("tournament_id", t.ID).Str("blob_id", blobID).Msg("failed to record archived transcript")
		return blobID, domain.PublicMessage(err)
	}

	s.logger.Info().Str("tournament_id", t.ID).Str("blob_id", blobID).Str("category", t.Category).Msg("debate transcript archived")
	return blobID, ""
}
