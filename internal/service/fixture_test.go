package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"neural-garden/internal/api"
	"neural-garden/internal/config"
	"neural-garden/internal/database"
	"neural-garden/internal/domain"
	"neural-garden/internal/events"
	"neural-garden/internal/metrics"
	"neural-garden/internal/prize"
	"neural-garden/internal/repository"
	"neural-garden/internal/wallet"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeJudge struct {
	mu         sync.Mutex
	structured bool
	reply      func(req api.ChatRequest) (string, error)
	calls      []api.ChatRequest
}

func (f *fakeJudge) Complete(_ context.Context, req api.ChatRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	reply := f.reply
	f.mu.Unlock()
	return reply(req)
}

func (f *fakeJudge) Structured() bool { return f.structured }

func (f *fakeJudge) replyWith(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reply = func(api.ChatRequest) (string, error) { return text, nil }
}

type transferCall struct {
	to     string
	amount *big.Int
}

type fakeWallet struct {
	mu             sync.Mutex
	transfers      []transferCall
	transferErr    error
	transferStatus domain.PayoutStatus
	receiptStatus  domain.PayoutStatus
	importErr      error
	verifyErr      error
	verified       int
}

func (w *fakeWallet) NewCredential() ([]byte, string, error) {
	return []byte(`{"sealed":true}`), "0x00000000000000000000000000000000000000aa", nil
}

func (w *fakeWallet) Import([]byte) (*wallet.Handle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.importErr != nil {
		return nil, w.importErr
	}
	return &wallet.Handle{}, nil
}

func (w *fakeWallet) Transfer(_ context.Context, _ *wallet.Handle, amount *big.Int, to string) (*wallet.TransferResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.transferErr != nil {
		return nil, w.transferErr
	}
	w.transfers = append(w.transfers, transferCall{to: to, amount: new(big.Int).Set(amount)})
	status := w.transferStatus
	if status == "" {
		status = domain.PayoutSucceeded
	}
	return &wallet.TransferResult{TxHash: fmt.Sprintf("0xtx%d", len(w.transfers)), Status: status}, nil
}

func (w *fakeWallet) ReceiptStatus(context.Context, string) (domain.PayoutStatus, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.receiptStatus, nil
}

func (w *fakeWallet) VerifyEntry(context.Context, string, string, string, *big.Int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.verified++
	return w.verifyErr
}

func (w *fakeWallet) sent() []transferCall {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]transferCall(nil), w.transfers...)
}

type fakePublisher struct {
	mu   sync.Mutex
	err  error
	docs []string
}

func (p *fakePublisher) Publish(_ context.Context, category string, _ any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.docs = append(p.docs, category)
	return fmt.Sprintf("blob-%d", len(p.docs)), nil
}

type recordingEvents struct {
	mu  sync.Mutex
	evs []events.Event
}

func (r *recordingEvents) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, ev)
	return nil
}

func (r *recordingEvents) ofType(typ events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.evs {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	repo        *repository.TournamentRepository
	blobs       *repository.BlobRepository
	judge       *fakeJudge
	wallet      *fakeWallet
	publisher   *fakePublisher
	events      *recordingEvents
	cfg         *config.Config
	payouts     *PayoutService
	chat        *ChatService
	debate      *DebateService
	challenges  *ChallengeService
	tournaments *TournamentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "svc.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := zerolog.Nop()
	f := &fixture{
		repo:      repository.NewTournamentRepository(db, log),
		blobs:     repository.NewBlobRepository(db, log),
		judge:     &fakeJudge{reply: func(api.ChatRequest) (string, error) { return "No", nil }},
		wallet:    &fakeWallet{},
		publisher: &fakePublisher{},
		events:    &recordingEvents{},
		cfg:       &config.Config{},
	}

	locks := NewTournamentLocks()
	m := metrics.New()
	f.payouts = NewPayoutService(f.repo, f.wallet, locks, f.events, m, log)
	f.chat = NewChatService(f.repo, f.judge, f.payouts, locks, m, log)
	f.debate = NewDebateService(f.repo, f.blobs, f.publisher, f.judge, f.payouts, locks, m, log)
	f.challenges = NewChallengeService(f.judge, m, log)
	f.tournaments = NewTournamentService(f.repo, f.wallet, f.challenges, locks, f.events, f.cfg, log)
	return f
}

var seedSeq atomic.Int64

func addr(i int) string {
	return fmt.Sprintf("0x%040x", i+1)
}

// seed stores an active tournament with n participants who each paid fee ether.
func (f *fixture) seed(t *testing.T, mode domain.Mode, fee string, n int) *domain.Tournament {
	t.Helper()
	return f.seedWith(t, mode, fee, n, nil)
}

func (f *fixture) seedWith(t *testing.T, mode domain.Mode, fee string, n int, edit func(*domain.Tournament)) *domain.Tournament {
	t.Helper()

	feeWei, err := prize.ParseEther(fee)
	require.NoError(t, err)

	tr := &domain.Tournament{
		ID:                 fmt.Sprintf("%s-%d", mode, seedSeq.Add(1)),
		Name:               "seeded",
		Slug:               "seeded",
		Mode:               mode,
		SecretTerm:         "giraffe",
		DebateTopic:        "Remote work beats the office",
		ChallengeStatement: "Explain recursion in one sentence",
		EntryFeeWei:        feeWei,
		MaxParticipants:    100,
		MaxAttempts:        mode.DefaultAttempts(),
		TreasuryAddress:    "0x00000000000000000000000000000000000000aa",
		WalletCredential:   []byte(`{"sealed":true}`),
		Status:             domain.StatusActive,
	}
	for i := 0; i < n; i++ {
		tr.Participants = append(tr.Participants, domain.Participant{
			Address:      addr(i),
			AttemptsLeft: tr.MaxAttempts,
			EntryTxHash:  fmt.Sprintf("%s-entry-%d", tr.ID, i),
			JoinedAt:     time.Now().UTC(),
		})
	}
	tr.CurrentParticipants = n
	if edit != nil {
		edit(tr)
	}
	require.NoError(t, f.repo.Create(context.Background(), tr))
	return tr
}

func (f *fixture) load(t *testing.T, id string) *domain.Tournament {
	t.Helper()
	tr, err := f.repo.Get(context.Background(), id)
	require.NoError(t, err)
	return tr
}

func ether(t *testing.T, s string) *big.Int {
	t.Helper()
	v, err := prize.ParseEther(s)
	require.NoError(t, err)
	return v
}

var errTransfer = errors.New("insufficient funds for gas")
