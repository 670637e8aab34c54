package service

import (
	"context"
	"math/big"
	"sync"
	"time"

	"neural-garden/internal/api"
	"neural-garden/internal/domain"
	"neural-garden/internal/wallet"
)

type Judge interface {
	Complete(ctx context.Context, req api.ChatRequest) (string, error)
	Structured() bool
}

type Wallet interface {
	NewCredential() ([]byte, string, error)
	Import(credential []byte) (*wallet.Handle, error)
	Transfer(ctx context.Context, h *wallet.Handle, amountWei *big.Int, destination string) (*wallet.TransferResult, error)
	ReceiptStatus(ctx context.Context, txHash string) (domain.PayoutStatus, error)
	VerifyEntry(ctx context.Context, txHash, from, treasury string, minValue *big.Int) error
}

type TournamentStore interface {
	Create(ctx context.Context, t *domain.Tournament) error
	Get(ctx context.Context, id string) (*domain.Tournament, error)
	List(ctx context.Context, limit int) ([]*domain.Tournament, error)
	Save(ctx context.Context, t *domain.Tournament) error
	ExpiredIDs(ctx context.Context, mode domain.Mode, now time.Time) ([]string, error)
	EntryTxUsed(ctx context.Context, txHash string) (bool, error)
}

type BlobStore interface {
	Create(ctx context.Context, rec *domain.StoredBlobRecord) error
}

// TournamentLocks serializes read-check-write sequences per tournament id.
type TournamentLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewTournamentLocks() *TournamentLocks {
	return &TournamentLocks{locks: make(map[string]*lockEntry)}
}

// Lock blocks until the tournament is free and returns its unlock func.
func (l *TournamentLocks) Lock(id string) func() {
	l.mu.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &lockEntry{}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
