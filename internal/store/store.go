package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tablero/internal/models"
)

// ErrStoreUnavailable marks infrastructure failures of a backend, including
// timeouts. Callers must surface it as a hard error, never read it as
// "no availability".
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrNotFound is returned when a reservation id does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write detects a competing reservation for
// the same table and slot. The allocator reacts by re-reading and retrying.
var ErrConflict = errors.New("conflicting reservation")

// Unavailable wraps err as a store-unavailable failure.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// Store is the storage collaborator behind any backend (spreadsheet,
// relational, embedded). The engine needs reads, an append, and a status
// update; it never assumes transactions across them.
type Store interface {
	ListTables(ctx context.Context, restaurantID string) ([]models.Table, error)
	ListReservations(ctx context.Context, restaurantID string, date time.Time) ([]models.Reservation, error)
	CreateReservation(ctx context.Context, restaurantID string, r *models.Reservation) error
	UpdateReservationStatus(ctx context.Context, restaurantID, reservationID, newStatus string) error
}

// Pinger is implemented by backends that can answer readiness probes.
type Pinger interface {
	PingContext(ctx context.Context) error
}
