package service

import (
	"sync"

	"github.com/google/uuid"
)

// userLocks hands out one mutex per user so trades for the same account
// serialize across their whole check-and-commit window while unrelated
// users never contend.
type userLocks struct {
	mu    sync.RWMutex
	locks map[uuid.UUID]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{
		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (l *userLocks) Lock(userID uuid.UUID) {
	l.mu.Lock()
	userMutex, ok := l.locks[userID]
	if !ok {
		userMutex = &sync.Mutex{}
		l.locks[userID] = userMutex
	}
	l.mu.Unlock()

	userMutex.Lock()
}

func (l *userLocks) Unlock(userID uuid.UUID) {
	l.mu.RLock()
	userMutex := l.locks[userID]
	l.mu.RUnlock()

	if userMutex != nil {
		userMutex.Unlock()
	}
}
