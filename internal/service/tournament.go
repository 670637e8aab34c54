package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"neural-garden/internal/config"
	"neural-garden/internal/constants"
	"neural-garden/internal/domain"
	"neural-garden/internal/events"
	"neural-garden/internal/judge"
	"neural-garden/internal/prize"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/rs/zerolog"
)

const (
	defaultMaxParticipants = 100
	defaultDurationMinutes = 60
	defaultEntryFee        = "0.01"
	listLimit              = 100
)

type CreateTournamentInput struct {
	Name               string
	Mode               domain.Mode
	IsAutoGenerated    bool
	EntryFee           string
	MaxParticipants    int
	MaxAttempts        int
	AgentInstructions  string
	CreatorAddress     string
	DurationMinutes    int
	DebateTopic        string
	SecretTerm         string
	ChallengeStatement string
}

type TournamentService struct {
	repo          TournamentStore
	wallet        Wallet
	challenges    *ChallengeService
	locks         *TournamentLocks
	events        events.Publisher
	verifyEntries bool
	logger        zerolog.Logger
}

func NewTournamentService(
	repo TournamentStore,
	w Wallet,
	challenges *ChallengeService,
	locks *TournamentLocks,
	pub events.Publisher,
	cfg *config.Config,
	logger zerolog.Logger,
) *TournamentService {
	return &TournamentService{
		repo:          repo,
		wallet:        w,
		challenges:    challenges,
		locks:         locks,
		events:        pub,
		verifyEntries: cfg.VerifyEntries,
		logger:        logger,
	}
}

func (s *TournamentService) Create(ctx context.Context, in CreateTournamentInput) (*domain.Tournament, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, domain.Validation("name is required")
	}
	if !in.Mode.Valid() {
		return nil, domain.Validation("mode must be one of RIDDLE, TWENTY_QUESTIONS, DEBATE_ARENA, AGENT_CHALLENGE")
	}
	if in.EntryFee == "" {
		in.EntryFee = defaultEntryFee
	}
	fee, err := prize.ParseEther(in.EntryFee)
	if err != nil {
		return nil, domain.Validation("entryFee must be a non-negative ether amount")
	}
	if in.MaxParticipants == 0 {
		in.MaxParticipants = defaultMaxParticipants
	}
	if in.MaxParticipants < 0 {
		return nil, domain.Validation("maxParticipants must be positive")
	}
	if in.MaxAttempts == 0 {
		in.MaxAttempts = in.Mode.DefaultAttempts()
	}
	if in.MaxAttempts < 0 {
		return nil, domain.Validation("maxAttempts must be positive")
	}
	if in.DurationMinutes == 0 {
		in.DurationMinutes = defaultDurationMinutes
	}
	if in.DurationMinutes < 0 {
		return nil, domain.Validation("duration must be positive")
	}

	statement := strings.TrimSpace(in.ChallengeStatement)
	switch in.Mode {
	case domain.ModeTwentyQuestions:
		if strings.TrimSpace(in.SecretTerm) == "" {
			return nil, domain.Validation("secretTerm is required for TWENTY_QUESTIONS")
		}
		statement = judge.DefaultStatement(in.Mode, "", in.MaxAttempts)
	case domain.ModeDebateArena:
		if strings.TrimSpace(in.DebateTopic) == "" {
			return nil, domain.Validation("debateTopic is required for DEBATE_ARENA")
		}
		statement = judge.DefaultStatement(in.Mode, in.DebateTopic, in.MaxAttempts)
	case domain.ModeRiddle:
		if statement == "" || strings.TrimSpace(in.SecretTerm) == "" {
			return nil, domain.Validation("challengeStatement and secretTerm are required for RIDDLE")
		}
	case domain.ModeAgentChallenge:
		if in.IsAutoGenerated {
			generated, err := s.challenges.Generate(ctx, in.AgentInstructions)
			if err != nil {
				return nil, err
			}
			statement = generated
		} else if statement == "" {
			statement = strings.TrimSpace(in.AgentInstructions)
		}
		if statement == "" {
			return nil, domain.Validation("challengeStatement or agentInstructions is required for AGENT_CHALLENGE")
		}
	}

	credential, treasury, err := s.wallet.NewCredential()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to create tournament wallet")
		return nil, fmt.Errorf("failed to create tournament wallet: %w", err)
	}

	id := uuid.New().String()
	endsAt := time.Now().UTC().Add(time.Duration(in.DurationMinutes) * time.Minute)
	t := &domain.Tournament{
		ID:                 id,
		Name:               in.Name,
		Slug:               slug.Make(in.Name) + "-" + id[:8],
		Mode:               in.Mode,
		SecretTerm:         strings.TrimSpace(in.SecretTerm),
		DebateTopic:        strings.TrimSpace(in.DebateTopic),
		ChallengeStatement: statement,
		AgentInstructions:  strings.TrimSpace(in.AgentInstructions),
		IsAutoGenerated:    in.IsAutoGenerated,
		EntryFeeWei:        fee,
		MaxParticipants:    in.MaxParticipants,
		MaxAttempts:        in.MaxAttempts,
		TreasuryAddress:    treasury,
		WalletCredential:   credential,
		CreatorAddress:     domain.NormalizeAddress(in.CreatorAddress),
		Status:             domain.StatusActive,
		EndsAt:             &endsAt,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("tournament_id", t.ID).
		Str("mode", string(t.Mode)).
		Str("treasury", t.TreasuryAddress).
		Str("entry_fee", prize.FormatEther(t.EntryFeeWei)).
		Time("ends_at", endsAt).
		Msg("tournament created")

	s.publish(ctx, events.Event{Type: events.TournamentCreated, TournamentID: t.ID, Mode: string(t.Mode)})
	return t, nil
}

func (s *TournamentService) List(ctx context.Context) ([]*domain.Tournament, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()
	return s.repo.List(ctx, listLimit)
}

func (s *TournamentService) Get(ctx context.Context, id string) (*domain.Tournament, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()
	return s.repo.Get(ctx, id)
}

// Enter admits a participant who paid the entry fee to the tournament treasury.
func (s *TournamentService) Enter(ctx context.Context, id, userAddress, txHash string) (*domain.Participant, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	address := domain.NormalizeAddress(userAddress)
	txHash = strings.TrimSpace(txHash)
	if address == "" {
		return nil, domain.Validation("userAddress is required")
	}
	if txHash == "" {
		return nil, domain.Validation("transactionHash is required")
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != domain.StatusActive || t.Expired(time.Now()) {
		return nil, domain.Forbidden("Tournament is not open for entries")
	}
	if t.Participant(address) != nil {
		return nil, domain.Conflict("Already entered this tournament")
	}
	if t.CurrentParticipants >= t.MaxParticipants {
		return nil, domain.Forbidden("Tournament is full")
	}

	used, err := s.repo.EntryTxUsed(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, domain.Conflict("Entry transaction already used")
	}

	if s.verifyEntries {
		vctx, vcancel := context.WithTimeout(ctx, constants.ChainReadTimeout)
		err := s.wallet.VerifyEntry(vctx, txHash, address, t.TreasuryAddress, t.EntryFeeWei)
		vcancel()
		if err != nil {
			s.logger.Warn().Err(err).Str("tournament_id", id).Str("address", address).Msg("entry verification failed")
			return nil, err
		}
	}

	t.Participants = append(t.Participants, domain.Participant{
		Address:      address,
		AttemptsLeft: t.MaxAttempts,
		EntryTxHash:  txHash,
		JoinedAt:     time.Now().UTC(),
	})
	t.CurrentParticipants++

	if err := s.repo.Save(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("tournament_id", id).
		Str("address", address).
		Int("participants", t.CurrentParticipants).
		Msg("participant entered")

	s.publish(ctx, events.Event{Type: events.ParticipantEntered, TournamentID: id, Mode: string(t.Mode), Address: address})

	p := t.Participants[len(t.Participants)-1]
	return &p, nil
}

func (s *TournamentService) publish(ctx context.Context, ev events.Event) {
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("subject", ev.Subject()).Msg("failed to publish event")
	}
}
