package service

import (
	"context"
	"errors"
	"testing"

	"neural-garden/internal/api"
	"neural-garden/internal/domain"
	"neural-garden/internal/judge"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptSucceedsOnAnswer(t *testing.T) {
	f := newFixture(t)
	f.judge.replyWith("You may pass.")

	res, err := f.challenges.Attempt(context.Background(), "Is it an Echo?")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "You may pass.", res.Message)
	assert.Equal(t, judge.GatekeeperPrompt(), f.judge.calls[0].Messages[0].Content)

	res, err = f.challenges.Attempt(context.Background(), "a shadow")
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestAttemptPropagatesJudgeFailure(t *testing.T) {
	f := newFixture(t)
	f.judge.reply = func(api.ChatRequest) (string, error) {
		return "", domain.ExternalService("judge timed out", true, context.DeadlineExceeded)
	}

	_, err := f.challenges.Attempt(context.Background(), "echo")
	assert.True(t, errors.Is(err, domain.ErrExternalService))
}

func TestGenerateUsesDefaultInstructions(t *testing.T) {
	f := newFixture(t)
	f.judge.replyWith("\nName three primes that sum to 30.\n")

	challenge, err := f.challenges.Generate(context.Background(), "  ")
	require.NoError(t, err)
	assert.Equal(t, "Name three primes that sum to 30.", challenge)

	call := f.judge.calls[0]
	assert.Equal(t, judge.ChallengeCreatorPrompt, call.Messages[0].Content)
	assert.Equal(t, judge.DefaultChallengeInstructions, call.Messages[1].Content)
	require.NotNil(t, call.Temperature)
	assert.Equal(t, 0.7, *call.Temperature)
}
