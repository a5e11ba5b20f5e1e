package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"inventory-service/internal/lock"
	"inventory-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCartStore struct {
	mu    sync.Mutex
	carts map[int64]*models.Cart
}

func newFakeCartStore() *fakeCartStore {
	return &fakeCartStore{carts: make(map[int64]*models.Cart)}
}

func (f *fakeCartStore) GetCartByUserID(ctx context.Context, userID int64) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[userID]
	if !ok {
		return nil, nil
	}
	lines := make([]models.CartLine, len(cart.Lines))
	copy(lines, cart.Lines)
	return &models.Cart{ID: cart.ID, UserID: cart.UserID, Lines: lines}, nil
}

func (f *fakeCartStore) SaveCart(ctx context.Context, cart *models.Cart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.carts[cart.UserID]
	if !ok {
		stored = &models.Cart{ID: int64(len(f.carts) + 1), UserID: cart.UserID}
		f.carts[cart.UserID] = stored
	}
	lines := make([]models.CartLine, len(cart.Lines))
	copy(lines, cart.Lines)
	stored.Lines = lines
	cart.ID = stored.ID
	return nil
}

type fakeCatalog struct {
	missing map[[2]int64]bool
	skus    map[int64]*models.SKU
}

func (f *fakeCatalog) ProductSKUExists(ctx context.Context, productID, skuID int64) (bool, error) {
	return !f.missing[[2]int64{productID, skuID}], nil
}

func (f *fakeCatalog) GetSKUByID(ctx context.Context, skuID int64) (*models.SKU, error) {
	return f.skus[skuID], nil
}

// fakeLockStore is an in-memory lock.Store with real mutual exclusion
// semantics: SetNX-style acquire, token-checked release.
type fakeLockStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{tokens: make(map[string]string)}
}

func (f *fakeLockStore) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, held := f.tokens[key]; held {
		return false, nil
	}
	f.tokens[key] = token
	return true, nil
}

func (f *fakeLockStore) ReleaseLock(ctx context.Context, key, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tokens[key] == token {
		delete(f.tokens, key)
	}
	return nil
}

func (f *fakeLockStore) LockHeld(ctx context.Context, key, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[key] == token, nil
}

func newTestCartService(catalog *fakeCatalog) (*CartService, *fakeCartStore) {
	carts := newFakeCartStore()
	locks := lock.NewService(newFakeLockStore())
	return NewCartService(carts, catalog, locks, time.Second), carts
}

func TestMergeLinesAppendAndAdd(t *testing.T) {
	svc, _ := newTestCartService(&fakeCatalog{})
	ctx := context.Background()

	cart, err := svc.MergeLines(ctx, 42, []models.CartLine{
		{ProductID: 1, SKUID: 10, Quantity: 2},
	})
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, 2, cart.Lines[0].Quantity)

	cart, err = svc.MergeLines(ctx, 42, []models.CartLine{
		{ProductID: 1, SKUID: 10, Quantity: 3},
		{ProductID: 2, SKUID: 20, Quantity: 1},
	})
	require.NoError(t, err)
	require.Len(t, cart.Lines, 2)
	assert.Equal(t, 5, cart.Lines[0].Quantity)
	assert.Equal(t, 1, cart.Lines[1].Quantity)
}

func TestMergeLinesQuantityZeroRemovesLine(t *testing.T) {
	svc, _ := newTestCartService(&fakeCatalog{})
	ctx := context.Background()

	_, err := svc.MergeLines(ctx, 7, []models.CartLine{
		{ProductID: 1, SKUID: 10, Quantity: 3},
	})
	require.NoError(t, err)

	cart, err := svc.MergeLines(ctx, 7, []models.CartLine{
		{ProductID: 1, SKUID: 10, Quantity: -3},
	})
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)
}

func TestMergeLinesNegativeDeltaOnMissingLine(t *testing.T) {
	svc, _ := newTestCartService(&fakeCatalog{})

	cart, err := svc.MergeLines(context.Background(), 7, []models.CartLine{
		{ProductID: 9, SKUID: 90, Quantity: -1},
	})
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)
}

func TestMergeLinesReportsAllInvalidLines(t *testing.T) {
	catalog := &fakeCatalog{missing: map[[2]int64]bool{
		{1, 10}: true,
		{3, 30}: true,
	}}
	svc, carts := newTestCartService(catalog)

	_, err := svc.MergeLines(context.Background(), 5, []models.CartLine{
		{ProductID: 1, SKUID: 10, Quantity: 1},
		{ProductID: 2, SKUID: 20, Quantity: 1},
		{ProductID: 3, SKUID: 30, Quantity: 1},
	})

	var invalid *InvalidProductError
	require.ErrorAs(t, err, &invalid)
	assert.Len(t, invalid.Lines, 2)

	// no partial application
	cart, err := carts.GetCartByUserID(context.Background(), 5)
	require.NoError(t, err)
	assert.Nil(t, cart)
}

func TestMergeLinesLockBusy(t *testing.T) {
	lockStore := newFakeLockStore()
	locks := lock.NewService(lockStore)
	svc := NewCartService(newFakeCartStore(), &fakeCatalog{}, locks, time.Second)

	// hold the user's lock from outside
	ok, err := lockStore.AcquireLock(context.Background(), "update_cart:42", "other", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.MergeLines(context.Background(), 42, []models.CartLine{
		{ProductID: 1, SKUID: 10, Quantity: 1},
	})
	assert.ErrorIs(t, err, lock.ErrLockBusy)
}

func TestMergeLinesConcurrentNoLostUpdates(t *testing.T) {
	svc, _ := newTestCartService(&fakeCatalog{})
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			delta := []models.CartLine{
				{ProductID: int64(i + 1), SKUID: int64((i + 1) * 10), Quantity: 1},
			}
			// retry on contention, the way a caller would
			for {
				_, err := svc.MergeLines(ctx, 99, delta)
				if err == nil {
					return
				}
				if !errors.Is(err, lock.ErrLockBusy) {
					t.Errorf("unexpected merge error: %v", err)
					return
				}
				time.Sleep(time.Millisecond)
			}
		}(i)
	}
	wg.Wait()

	cart, err := svc.MergeLines(ctx, 99, []models.CartLine{
		{ProductID: 1000, SKUID: 10000, Quantity: 1},
	})
	require.NoError(t, err)
	assert.Len(t, cart.Lines, n+1)
}
