package models

import "time"

// Event types
const (
	EventTypeReservationHeld    = "RESERVATION_HELD"
	EventTypeReservationRelease = "RESERVATION_RELEASE"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// ReservationHeldEvent is published when a reservation moves units to hold.
type ReservationHeldEvent struct {
	BaseEvent
	SKUID         int64     `json:"sku_id"`
	SerialNumbers []string  `json:"serial_numbers"`
	ReleaseAt     time.Time `json:"release_at"`
}

// ReservationReleaseEvent is one queued release job: flip the unit back to
// available once ReleaseAt has passed, unless the hold was finalized first.
// Releasing an already-sold or already-available unit is a no-op, so
// re-delivery of the same job is always safe.
type ReservationReleaseEvent struct {
	BaseEvent
	SerialNumber string    `json:"serial_number"`
	ReleaseAt    time.Time `json:"release_at"`
}
