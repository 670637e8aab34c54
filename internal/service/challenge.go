package service

import (
	"context"
	"strings"
	"time"

	"neural-garden/internal/api"
	"neural-garden/internal/constants"
	"neural-garden/internal/judge"
	"neural-garden/internal/metrics"

	"github.com/rs/zerolog"
)

const generatorTemperature = 0.7

type ChallengeResult struct {
	Success bool
	Message string
}

// ChallengeService backs the standalone riddle gate and the challenge generator.
type ChallengeService struct {
	judge   Judge
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewChallengeService(j Judge, m *metrics.Metrics, logger zerolog.Logger) *ChallengeService {
	return &ChallengeService{judge: j, metrics: m, logger: logger}
}

func (s *ChallengeService) Attempt(ctx context.Context, attempt string) (*ChallengeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.JudgeTimeout)
	defer cancel()

	start := time.Now()
	reply, err := s.judge.Complete(ctx, api.ChatRequest{
		Messages: []api.ChatMessage{
			{Role: "system", Content: judge.GatekeeperPrompt()},
			{Role: "user", Content: attempt},
		},
	})
	s.metrics.ObserveJudge("gatekeeper", start, err)
	if err != nil {
		s.logger.Error().Err(err).Msg("gatekeeper judge call failed")
		return nil, err
	}

	return &ChallengeResult{
		Success: strings.Contains(strings.ToLower(attempt), judge.GatekeeperAnswer),
		Message: reply,
	}, nil
}

func (s *ChallengeService) Generate(ctx context.Context, instructions string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.JudgeTimeout)
	defer cancel()

	prompt := strings.TrimSpace(instructions)
	if prompt == "" {
		prompt = judge.DefaultChallengeInstructions
	}

	temp := generatorTemperature
	start := time.Now()
	challenge, err := s.judge.Complete(ctx, api.ChatRequest{
		Messages: []api.ChatMessage{
			{Role: "system", Content: judge.ChallengeCreatorPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: &temp,
	})
	s.metrics.ObserveJudge("generate", start, err)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to generate challenge")
		return "", err
	}
	return strings.TrimSpace(challenge), nil
}
