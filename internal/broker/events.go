package broker

import (
	"context"
	"fmt"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventWriter publishes a keyed event to a topic.
type EventWriter interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// ReleaseScheduler enqueues delayed release jobs for held serial units and
// announces the hold on the reservation-events topic. One job per serial
// number goes to the release topic; the release worker flips the hold back
// to available once the scheduled time passes.
type ReleaseScheduler struct {
	jobs   EventWriter
	events EventWriter
	logger *zap.Logger
}

// NewReleaseScheduler creates a new release scheduler
func NewReleaseScheduler(jobs, events EventWriter) *ReleaseScheduler {
	return &ReleaseScheduler{
		jobs:   jobs,
		events: events,
		logger: util.GetLogger(),
	}
}

// ScheduleRelease enqueues one release job per serial number, due at
// releaseAt, then publishes a single reservation-held event for downstream
// consumers. Jobs for units that get finalized before then are harmless:
// release of a sold unit is a no-op.
func (rs *ReleaseScheduler) ScheduleRelease(ctx context.Context, skuID int64, serialNumbers []string, releaseAt time.Time) error {
	for _, number := range serialNumbers {
		event := &models.ReservationReleaseEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeReservationRelease,
				Timestamp: time.Now(),
			},
			SerialNumber: number,
			ReleaseAt:    releaseAt,
		}

		key := fmt.Sprintf("serial-%s", number)
		if err := rs.jobs.PublishEvent(ctx, key, event); err != nil {
			return fmt.Errorf("failed to schedule release for %s: %w", number, err)
		}
	}

	held := &models.ReservationHeldEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeReservationHeld,
			Timestamp: time.Now(),
		},
		SKUID:         skuID,
		SerialNumbers: serialNumbers,
		ReleaseAt:     releaseAt,
	}
	// The held event is a notification; the release jobs above are what
	// keep stale holds from leaking, so a publish failure here must not
	// fail the reservation.
	key := fmt.Sprintf("sku-%d", skuID)
	if err := rs.events.PublishEvent(ctx, key, held); err != nil {
		rs.logger.Error("Failed to publish reservation-held event",
			zap.Int64("sku_id", skuID),
			zap.Error(err))
	}

	return nil
}
