// Package local provides the per-document lock for single-process deployments.
package local

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type lease struct {
	token   string
	expires time.Time
}

// Lock keeps leases in memory. Every acquisition gets its own token, so a run
// whose lease expired cannot release the lease of the run that took over.
type Lock struct {
	mu       sync.Mutex
	leases   map[string]lease
	now      func() time.Time
	newToken func() string
}

func New() *Lock {
	return &Lock{leases: map[string]lease{}, now: time.Now, newToken: uuid.NewString}
}

func (l *Lock) Acquire(_ context.Context, documentID string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if current, ok := l.leases[documentID]; ok && now.Before(current.expires) {
		return "", false, nil
	}
	token := l.newToken()
	l.leases[documentID] = lease{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

// Release is a no-op unless token still owns the lease.
func (l *Lock) Release(_ context.Context, documentID, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if current, ok := l.leases[documentID]; ok && current.token == token {
		delete(l.leases, documentID)
	}
	return nil
}

func (l *Lock) IsLocked(_ context.Context, documentID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.leases[documentID]
	if !ok {
		return false, nil
	}
	if !l.now().Before(current.expires) {
		delete(l.leases, documentID)
		return false, nil
	}
	return true, nil
}
