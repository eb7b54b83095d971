package orderbook

import (
	"sync"

	"github.com/google/uuid"
)

// accountLocks serializes every mutation for one account: a tick-driven
// fill and a user-driven cancel can never interleave. Locks are never held
// across network I/O other than the immediately following store write.
type accountLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *accountLocks) Lock(accountID uuid.UUID) func() {
	l.mu.Lock()
	lock, found := l.locks[accountID]
	if !found {
		lock = &sync.Mutex{}
		l.locks[accountID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
