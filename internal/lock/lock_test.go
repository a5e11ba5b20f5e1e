package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memLockStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

func newMemLockStore() *memLockStore {
	return &memLockStore{tokens: make(map[string]string)}
}

func (m *memLockStore) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.tokens[key]; held {
		return false, nil
	}
	m.tokens[key] = token
	return true, nil
}

func (m *memLockStore) ReleaseLock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens[key] == token {
		delete(m.tokens, key)
	}
	return nil
}

func (m *memLockStore) LockHeld(ctx context.Context, key, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[key] == token, nil
}

// expire simulates the TTL reclaiming the lock.
func (m *memLockStore) expire(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, key)
}

func TestAcquireAndRelease(t *testing.T) {
	store := newMemLockStore()
	svc := NewService(store)
	ctx := context.Background()

	lease, err := svc.Acquire(ctx, "update_cart:1", time.Second)
	require.NoError(t, err)

	held, err := lease.StillHeld(ctx)
	require.NoError(t, err)
	assert.True(t, held)

	// second acquirer is rejected, not queued
	_, err = svc.Acquire(ctx, "update_cart:1", time.Second)
	assert.ErrorIs(t, err, ErrLockBusy)

	// a different resource never contends
	other, err := svc.Acquire(ctx, "update_cart:2", time.Second)
	require.NoError(t, err)
	other.Release(ctx)

	lease.Release(ctx)

	_, err = svc.Acquire(ctx, "update_cart:1", time.Second)
	assert.NoError(t, err)
}

func TestExpiredLeaseIsNotHeld(t *testing.T) {
	store := newMemLockStore()
	svc := NewService(store)
	ctx := context.Background()

	lease, err := svc.Acquire(ctx, "update_cart:1", time.Second)
	require.NoError(t, err)

	store.expire("update_cart:1")

	held, err := lease.StillHeld(ctx)
	require.NoError(t, err)
	assert.False(t, held)

	// the lock was re-acquired by someone else; our release must not
	// steal it from them
	next, err := svc.Acquire(ctx, "update_cart:1", time.Second)
	require.NoError(t, err)

	lease.Release(ctx)

	held, err = next.StillHeld(ctx)
	require.NoError(t, err)
	assert.True(t, held)
}
