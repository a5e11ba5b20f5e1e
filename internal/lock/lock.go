// Package lock provides short-lived named mutual-exclusion leases backed by
// a shared Redis instance, serializing operations on a single logical
// resource across process instances.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inventory-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrLockBusy is returned when the lock is already held. Transient: the
// caller may retry with backoff.
var ErrLockBusy = errors.New("lock busy")

// Store is the shared backend a lease lives in.
type Store interface {
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
	LockHeld(ctx context.Context, key, token string) (bool, error)
}

// Service hands out leases on named locks.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService creates a new lock service
func NewService(store Store) *Service {
	return &Service{
		store:  store,
		logger: util.GetLogger(),
	}
}

// Acquire takes the named lock for at most ttl. A random token identifies
// the lease so release and ownership checks cannot touch a lock that has
// expired and been re-acquired by someone else.
func (s *Service) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	token := uuid.New().String()

	ok, err := s.store.AcquireLock(ctx, key, token, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		util.LockAcquireBusyTotal.Inc()
		return nil, fmt.Errorf("lock %s: %w", key, ErrLockBusy)
	}

	return &Lease{
		key:    key,
		token:  token,
		store:  s.store,
		logger: s.logger,
	}, nil
}

// Lease is one granted lock. It self-expires at its TTL if never released.
type Lease struct {
	key    string
	token  string
	store  Store
	logger *zap.Logger
}

// Key returns the lock name the lease was granted on.
func (l *Lease) Key() string {
	return l.key
}

// Release gives the lock back. Best-effort: a failure is logged, never
// surfaced, since the TTL reclaims the lock anyway.
func (l *Lease) Release(ctx context.Context) {
	if err := l.store.ReleaseLock(ctx, l.key, l.token); err != nil {
		l.logger.Warn("Failed to release lock, TTL will reclaim it",
			zap.String("key", l.key),
			zap.Error(err))
	}
}

// StillHeld reports whether the lease is still owned by this holder.
// Callers must check this immediately before the final write of a
// lock-guarded section: past the TTL the lock may have been re-acquired
// and writes are no longer safe.
func (l *Lease) StillHeld(ctx context.Context) (bool, error) {
	return l.store.LockHeld(ctx, l.key, l.token)
}
