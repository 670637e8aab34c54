package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTournamentLocksSerializePerID(t *testing.T) {
	locks := NewTournamentLocks()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("t1")
			defer unlock()

			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, locks.locks)
}

func TestTournamentLocksIndependentIDs(t *testing.T) {
	locks := NewTournamentLocks()

	unlockA := locks.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("b")
		unlock()
		close(done)
	}()
	<-done
	unlockA()
}
