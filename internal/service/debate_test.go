package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"neural-garden/internal/api"
	"neural-garden/internal/domain"
	"neural-garden/internal/judge"
	"neural-garden/internal/metrics"
	"neural-garden/internal/prize"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// debateJudge grades "s=N" arguments as N and files every debate under tech.
func debateJudge(req api.ChatRequest) (string, error) {
	switch req.Messages[0].Content {
	case judge.DebateScorerPrompt:
		return strings.TrimPrefix(req.Messages[1].Content, "s="), nil
	case judge.CategoryPrompt():
		return "Tech", nil
	}
	return "Interesting point.", nil
}

func (f *fixture) argue(t *testing.T, id string, lines ...[2]string) {
	t.Helper()
	tr := f.load(t, id)
	for _, l := range lines {
		tr.Messages = append(tr.Messages, domain.Message{
			Seq:              len(tr.Messages) + 1,
			Role:             domain.RoleUser,
			Content:          l[1],
			SenderAddress:    l[0],
			RecipientAddress: tr.TreasuryAddress,
			Timestamp:        time.Now().UTC(),
		}, domain.Message{
			Seq:              len(tr.Messages) + 2,
			Role:             domain.RoleAssistant,
			Content:          "s=10",
			SenderAddress:    tr.TreasuryAddress,
			RecipientAddress: l[0],
			Timestamp:        time.Now().UTC(),
		})
	}
	require.NoError(t, f.repo.Save(context.Background(), tr))
}

func seedDebate(t *testing.T, f *fixture) *domain.Tournament {
	t.Helper()
	tr := f.seed(t, domain.ModeDebateArena, "1", 6)
	f.argue(t, tr.ID,
		[2]string{addr(0), "s=3"},
		[2]string{addr(1), "s=9"},
		[2]string{addr(0), "s=4"},
		[2]string{addr(2), "s=7"},
		[2]string{addr(3), "s=5"},
		[2]string{addr(4), "s=2"},
		[2]string{addr(5), "s=1"},
	)
	return tr
}

func TestResolvePaysTopFiveQuadratically(t *testing.T) {
	f := newFixture(t)
	f.judge.reply = debateJudge
	tr := seedDebate(t, f)

	res, err := f.debate.Resolve(context.Background(), tr.ID)
	require.NoError(t, err)

	assert.Equal(t, "Debate resolved and prizes distributed", res.Message)
	assert.Equal(t, "tech", res.Category)
	assert.Equal(t, "blob-1", res.BlobID)
	assert.Empty(t, res.ArchiveError)
	assert.Equal(t, domain.DistributionSucceeded, res.Distribution)

	distributable := prize.Distributable(prize.Pool(ether(t, "1"), 6))
	want := prize.Schedule(domain.ModeDebateArena, distributable, 5)
	order := []string{addr(1), addr(0), addr(2), addr(3), addr(4)}

	sent := f.wallet.sent()
	require.Len(t, sent, 5)
	for i, s := range sent {
		assert.Equal(t, order[i], s.to, "rank %d", i+1)
		assert.Equal(t, want[i].String(), s.amount.String(), "rank %d", i+1)
	}

	got := f.load(t, tr.ID)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.True(t, got.PrizesDistributed)
	assert.Equal(t, "tech", got.Category)
	assert.Nil(t, got.Winner(addr(5)))

	blobs, err := f.blobs.ListByTournament(context.Background(), tr.ID)
	require.NoError(t, err)
	require.Len(t, blobs, 1)
	assert.Equal(t, "blob-1", blobs[0].BlobID)
	assert.Equal(t, "tech", blobs[0].Category)
}

func TestResolveTwiceTransfersOnce(t *testing.T) {
	f := newFixture(t)
	f.judge.reply = debateJudge
	tr := seedDebate(t, f)

	_, err := f.debate.Resolve(context.Background(), tr.ID)
	require.NoError(t, err)

	res, err := f.debate.Resolve(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.True(t, res.AlreadyResolved)
	assert.Equal(t, "Debate already resolved", res.Message)
	assert.Len(t, f.wallet.sent(), 5)
	assert.Len(t, f.publisher.docs, 1)
}

func TestResolveRetriesOnlyOutstandingPayouts(t *testing.T) {
	f := newFixture(t)
	f.judge.reply = debateJudge
	tr := seedDebate(t, f)
	f.wallet.transferErr = errTransfer

	res, err := f.debate.Resolve(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DistributionFailed, res.Distribution)
	assert.Equal(t, domain.StatusResolving, f.load(t, tr.ID).Status)

	f.wallet.transferErr = nil
	calls := len(f.judge.calls)
	res, err = f.debate.Resolve(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DistributionSucceeded, res.Distribution)
	assert.Len(t, f.wallet.sent(), 5)
	assert.Len(t, f.judge.calls, calls, "winners are not re-scored")
	assert.Len(t, f.publisher.docs, 1)
}

type conflictingStore struct {
	TournamentStore
	conflicts int
}

func (c *conflictingStore) Save(ctx context.Context, t *domain.Tournament) error {
	if c.conflicts > 0 {
		c.conflicts--
		return domain.Conflict("Tournament was modified concurrently")
	}
	return c.TournamentStore.Save(ctx, t)
}

func TestResolveConflictDoesNotArchive(t *testing.T) {
	f := newFixture(t)
	f.judge.reply = debateJudge
	tr := seedDebate(t, f)

	store := &conflictingStore{TournamentStore: f.repo, conflicts: 1}
	locks := NewTournamentLocks()
	m := metrics.New()
	payouts := NewPayoutService(store, f.wallet, locks, f.events, m, zerolog.Nop())
	debate := NewDebateService(store, f.blobs, f.publisher, f.judge, payouts, locks, m, zerolog.Nop())

	_, err := debate.Resolve(context.Background(), tr.ID)
	require.True(t, errors.Is(err, domain.ErrConflict))
	assert.Empty(t, f.publisher.docs)
	assert.Empty(t, f.wallet.sent())

	res, err := debate.Resolve(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, "blob-1", res.BlobID)

	blobs, err := f.blobs.ListByTournament(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Len(t, blobs, 1)
	assert.Len(t, f.wallet.sent(), 5)
}

func TestResolveRejectsOtherModes(t *testing.T) {
	f := newFixture(t)
	tr := f.seed(t, domain.ModeRiddle, "1", 1)

	_, err := f.debate.Resolve(context.Background(), tr.ID)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Equal(t, "Invalid tournament mode", domain.PublicMessage(err))
}

func TestResolveSurvivesArchiveFailure(t *testing.T) {
	f := newFixture(t)
	f.judge.reply = debateJudge
	f.publisher.err = domain.ExternalService("walrus publisher returned 503", true, nil)
	tr := seedDebate(t, f)

	res, err := f.debate.Resolve(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Empty(t, res.BlobID)
	assert.Equal(t, "walrus publisher returned 503", res.ArchiveError)
	assert.Len(t, f.wallet.sent(), 5)

	blobs, err := f.blobs.ListByTournament(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Empty(t, blobs)
}

func TestResolveScoresFailedJudgementsAsZero(t *testing.T) {
	f := newFixture(t)
	f.judge.reply = func(req api.ChatRequest) (string, error) {
		if req.Messages[0].Content == judge.DebateScorerPrompt && req.Messages[1].Content == "s=9" {
			return "", domain.ExternalService("judge timed out", true, context.DeadlineExceeded)
		}
		if req.Messages[0].Content == judge.CategoryPrompt() {
			return "", errors.New("boom")
		}
		return debateJudge(req)
	}
	tr := seedDebate(t, f)

	res, err := f.debate.Resolve(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, judge.UnknownCategory, res.Category)

	sent := f.wallet.sent()
	require.Len(t, sent, 5)
	// addr(1) scored 0 and drops below addr(5); addr(0) and addr(2) tie and keep speaking order
	assert.Equal(t, []string{addr(0), addr(2), addr(3), addr(4), addr(5)},
		[]string{sent[0].to, sent[1].to, sent[2].to, sent[3].to, sent[4].to})
}

func TestResolveWithoutArgumentsCompletes(t *testing.T) {
	f := newFixture(t)
	f.judge.reply = debateJudge
	tr := f.seed(t, domain.ModeDebateArena, "1", 3)

	res, err := f.debate.Resolve(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, "Debate resolved with no participants to reward", res.Message)
	assert.Equal(t, domain.DistributionNone, res.Distribution)
	assert.Empty(t, f.wallet.sent())

	got := f.load(t, tr.ID)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.False(t, got.PrizesDistributed)
}
