package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inventory-service/internal/lock"
	"inventory-service/internal/models"
	"inventory-service/internal/util"

	"go.uber.org/zap"
)

// CartStore persists one cart document per user.
type CartStore interface {
	GetCartByUserID(ctx context.Context, userID int64) (*models.Cart, error)
	SaveCart(ctx context.Context, cart *models.Cart) error
}

// CartService mutates cart documents under the per-user distributed lock.
// The cart is written by no other path, so mutations for one user are
// totally ordered by lock acquisition order.
type CartService struct {
	carts   CartStore
	catalog Catalog
	locks   *lock.Service
	lockTTL time.Duration
	logger  *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(carts CartStore, catalog Catalog, locks *lock.Service, lockTTL time.Duration) *CartService {
	return &CartService{
		carts:   carts,
		catalog: catalog,
		locks:   locks,
		lockTTL: lockTTL,
		logger:  util.GetLogger(),
	}
}

func cartLockKey(userID int64) string {
	return fmt.Sprintf("update_cart:%d", userID)
}

// MergeLines merges a delta into the user's cart inside a lock-guarded
// read-modify-write. A delta quantity is added to the matching line;
// a merged quantity <= 0 drops the line, which is how items are removed.
// Validation failures abort the whole merge reporting every bad line.
func (s *CartService) MergeLines(ctx context.Context, userID int64, delta []models.CartLine) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.MergeLines")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CartMergeLatency.Observe(time.Since(start).Seconds())
	}()

	if err := s.validateLines(ctx, delta); err != nil {
		util.CartMergesFailedTotal.WithLabelValues("invalid_product").Inc()
		return nil, err
	}

	lease, err := s.locks.Acquire(ctx, cartLockKey(userID), s.lockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrLockBusy) {
			util.CartMergesFailedTotal.WithLabelValues("lock_busy").Inc()
		}
		return nil, err
	}
	defer lease.Release(ctx)

	var cart *models.Cart
	err = util.Retry(ctx, 3, 50*time.Millisecond, nil, func() error {
		var loadErr error
		cart, loadErr = s.carts.GetCartByUserID(ctx, userID)
		return loadErr
	})
	if err != nil {
		util.CartMergesFailedTotal.WithLabelValues("store_error").Inc()
		return nil, fmt.Errorf("failed to load cart for user %d: %w", userID, err)
	}
	if cart == nil {
		cart = &models.Cart{UserID: userID}
	}

	cart.Lines = mergeLines(cart.Lines, delta)

	// The lease may have expired under us; writing past the TTL could
	// clobber a later holder's update.
	held, err := lease.StillHeld(ctx)
	if err != nil {
		util.CartMergesFailedTotal.WithLabelValues("store_error").Inc()
		return nil, fmt.Errorf("failed to verify lock ownership: %w", err)
	}
	if !held {
		util.CartMergesFailedTotal.WithLabelValues("lease_expired").Inc()
		s.logger.Warn("Cart lock lease expired before write, aborting merge",
			zap.Int64("user_id", userID))
		return nil, fmt.Errorf("lease on %s expired before write: %w", lease.Key(), lock.ErrLockBusy)
	}

	if err := s.carts.SaveCart(ctx, cart); err != nil {
		util.CartMergesFailedTotal.WithLabelValues("store_error").Inc()
		return nil, fmt.Errorf("failed to save cart for user %d: %w", userID, err)
	}

	util.CartMergesTotal.Inc()
	s.logger.Info("Cart merged",
		zap.Int64("user_id", userID),
		zap.Int("delta_lines", len(delta)),
		zap.Int("cart_lines", len(cart.Lines)))
	return cart, nil
}

// validateLines checks every delta line against the catalog, collecting all
// failures so the caller learns about every bad line at once.
func (s *CartService) validateLines(ctx context.Context, delta []models.CartLine) error {
	var invalid []models.CartLine
	for _, line := range delta {
		exists, err := s.catalog.ProductSKUExists(ctx, line.ProductID, line.SKUID)
		if err != nil {
			return fmt.Errorf("failed to validate line (product=%d, sku=%d): %w",
				line.ProductID, line.SKUID, err)
		}
		if !exists {
			invalid = append(invalid, line)
		}
	}
	if len(invalid) > 0 {
		return &InvalidProductError{Lines: invalid}
	}
	return nil
}

// mergeLines applies a delta to an existing line list. Matching
// (productID, skuID) lines get the delta quantity added; lines whose merged
// quantity drops to zero or below are removed; new lines are appended only
// with a positive quantity.
func mergeLines(existing, delta []models.CartLine) []models.CartLine {
	merged := make([]models.CartLine, len(existing))
	copy(merged, existing)

	for _, d := range delta {
		idx := -1
		for i, line := range merged {
			if line.ProductID == d.ProductID && line.SKUID == d.SKUID {
				idx = i
				break
			}
		}

		if idx >= 0 {
			merged[idx].Quantity += d.Quantity
			if merged[idx].Quantity <= 0 {
				merged = append(merged[:idx], merged[idx+1:]...)
			}
		} else if d.Quantity > 0 {
			merged = append(merged, d)
		}
	}

	return merged
}
