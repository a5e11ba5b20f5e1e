package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/store"
	"inventory-service/internal/util"

	"go.uber.org/zap"
)

// SerialStore persists per-unit stock records with atomic status
// transitions.
type SerialStore interface {
	AddUnits(ctx context.Context, skuID int64, numbers []string) (*models.AddUnitsResult, error)
	ClaimUnits(ctx context.Context, skuID int64, count int) ([]string, error)
	FinalizeUnit(ctx context.Context, number string) error
	ReleaseUnit(ctx context.Context, number string) (bool, error)
}

// ReleasePublisher enqueues delayed release jobs for held units and
// announces the hold to downstream consumers.
type ReleasePublisher interface {
	ScheduleRelease(ctx context.Context, skuID int64, serialNumbers []string, releaseAt time.Time) error
}

// InventoryService exposes the reservation core: hold, finalize and release
// of individual serial units. No external lock is involved; correctness
// comes from the store's atomic status-conditional updates.
type InventoryService struct {
	serials      SerialStore
	catalog      Catalog
	scheduler    ReleasePublisher
	releaseDelay time.Duration
	logger       *zap.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(serials SerialStore, catalog Catalog, scheduler ReleasePublisher, releaseDelay time.Duration) *InventoryService {
	return &InventoryService{
		serials:      serials,
		catalog:      catalog,
		scheduler:    scheduler,
		releaseDelay: releaseDelay,
		logger:       util.GetLogger(),
	}
}

// Reserve holds count units of the SKU and returns their serial numbers.
// The claim is all-or-nothing: a shortfall leaves nothing held and reports
// how many units were available. Each held unit gets a delayed release job
// so an abandoned reservation self-heals after the configured delay.
func (s *InventoryService) Reserve(ctx context.Context, skuID int64, count int) ([]string, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.Reserve")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ReserveLatency.Observe(time.Since(start).Seconds())
	}()

	if count <= 0 {
		return nil, fmt.Errorf("reserve count must be positive, got %d", count)
	}

	sku, err := s.catalog.GetSKUByID(ctx, skuID)
	if err != nil {
		util.ReservationsFailedTotal.WithLabelValues("store_error").Inc()
		return nil, fmt.Errorf("failed to look up sku %d: %w", skuID, err)
	}
	if sku == nil || sku.Status != models.SKUStatusSelling {
		util.ReservationsFailedTotal.WithLabelValues("not_sellable").Inc()
		return nil, fmt.Errorf("sku %d: %w", skuID, ErrSKUNotSellable)
	}

	var numbers []string
	err = util.Retry(ctx, 3, 100*time.Millisecond, isPermanentStockError, func() error {
		var claimErr error
		numbers, claimErr = s.serials.ClaimUnits(ctx, skuID, count)
		return claimErr
	})
	if err != nil {
		var insufficient *store.InsufficientStockError
		if errors.As(err, &insufficient) {
			util.ReservationsFailedTotal.WithLabelValues("insufficient_stock").Inc()
		} else {
			util.ReservationsFailedTotal.WithLabelValues("store_error").Inc()
		}
		return nil, err
	}

	releaseAt := time.Now().Add(s.releaseDelay)
	if err := s.scheduler.ScheduleRelease(ctx, skuID, numbers, releaseAt); err != nil {
		// Without their release jobs these holds would leak forever,
		// so give the units back and fail the reservation.
		s.logger.Error("Failed to schedule release jobs, rolling back holds",
			zap.Int64("sku_id", skuID),
			zap.Error(err))
		s.rollbackHolds(ctx, numbers)
		util.ReservationsFailedTotal.WithLabelValues("schedule_error").Inc()
		return nil, fmt.Errorf("failed to schedule release jobs: %w", err)
	}

	util.UnitsReservedTotal.Add(float64(len(numbers)))
	s.logger.Info("Units reserved",
		zap.Int64("sku_id", skuID),
		zap.Int("count", len(numbers)),
		zap.Time("release_at", releaseAt))
	return numbers, nil
}

// Finalize flips a held unit to sold. A unit that is not on hold (already
// sold, already released, or unknown) fails with store.ErrNotHeld: the
// caller attempted to finalize a reservation it no longer owns.
func (s *InventoryService) Finalize(ctx context.Context, serialNumber string) error {
	ctx, span := util.StartSpan(ctx, "InventoryService.Finalize")
	defer span.End()

	err := util.Retry(ctx, 3, 100*time.Millisecond, isPermanentStockError, func() error {
		return s.serials.FinalizeUnit(ctx, serialNumber)
	})
	if err != nil {
		return err
	}

	util.UnitsSoldTotal.Inc()
	s.logger.Info("Unit sold", zap.String("serial_number", serialNumber))
	return nil
}

// Release flips a held unit back to available. Idempotent: releasing a
// unit that is already available or sold succeeds without touching it.
func (s *InventoryService) Release(ctx context.Context, serialNumber string) error {
	ctx, span := util.StartSpan(ctx, "InventoryService.Release")
	defer span.End()

	var released bool
	err := util.Retry(ctx, 3, 100*time.Millisecond, isPermanentStockError, func() error {
		var relErr error
		released, relErr = s.serials.ReleaseUnit(ctx, serialNumber)
		return relErr
	})
	if err != nil {
		return fmt.Errorf("failed to release %s: %w", serialNumber, err)
	}

	if released {
		util.UnitsReleasedTotal.Inc()
		s.logger.Info("Unit released", zap.String("serial_number", serialNumber))
	}
	return nil
}

// AddUnits inserts new serial records for a SKU with status available.
// Numbers already known to the store are reported back as rejected rather
// than failing the whole call.
func (s *InventoryService) AddUnits(ctx context.Context, skuID int64, numbers []string) (*models.AddUnitsResult, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.AddUnits")
	defer span.End()

	sku, err := s.catalog.GetSKUByID(ctx, skuID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up sku %d: %w", skuID, err)
	}
	if sku == nil || sku.Status == models.SKUStatusDeleted {
		return nil, fmt.Errorf("sku %d: %w", skuID, ErrSKUNotSellable)
	}

	result, err := s.serials.AddUnits(ctx, skuID, numbers)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Serial units added",
		zap.Int64("sku_id", skuID),
		zap.Int("added", len(result.Added)),
		zap.Int("rejected", len(result.Rejected.AlreadySold)+len(result.Rejected.AlreadyAvailable)))
	return result, nil
}

// rollbackHolds gives claimed units back, best-effort.
func (s *InventoryService) rollbackHolds(ctx context.Context, numbers []string) {
	for _, number := range numbers {
		if _, err := s.serials.ReleaseUnit(ctx, number); err != nil {
			s.logger.Error("Failed to roll back hold",
				zap.String("serial_number", number),
				zap.Error(err))
		}
	}
}

// isPermanentStockError keeps util.Retry from re-attempting business
// failures: a shortfall or a wrong-state finalize does not heal by
// retrying.
func isPermanentStockError(err error) bool {
	var insufficient *store.InsufficientStockError
	return errors.As(err, &insufficient) || errors.Is(err, store.ErrNotHeld)
}
