package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tablero/internal/models"
)

// FailoverStore serves reads and writes from a primary backend and falls
// back to a secondary when the primary is down. After a failure the
// primary is probed again once the recovery interval has passed.
//
// Writes that land on the fallback while the primary is down are not
// replayed; the backends are expected to share data out of band (e.g. the
// sheet is an export of the database).
type FailoverStore struct {
	primary  Store
	fallback Store
	logger   *zerolog.Logger

	isDown        atomic.Bool
	mu            sync.Mutex
	lastCheck     time.Time
	checkInterval time.Duration
}

// NewFailoverStore wraps primary with fallback.
func NewFailoverStore(primary, fallback Store, logger *zerolog.Logger) *FailoverStore {
	return &FailoverStore{
		primary:       primary,
		fallback:      fallback,
		logger:        logger,
		checkInterval: time.Minute,
	}
}

// usePrimary reports whether the primary should serve this call.
func (f *FailoverStore) usePrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if time.Since(f.lastCheck) >= f.checkInterval {
		f.lastCheck = time.Now()
		return true // recovery attempt
	}
	return false
}

func (f *FailoverStore) markDown(err error) {
	if f.isDown.CompareAndSwap(false, true) {
		f.logger.Error().Err(err).Msg("primary store down, switching to fallback")
	}
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
}

func (f *FailoverStore) markUp() {
	if f.isDown.CompareAndSwap(true, false) {
		f.logger.Info().Msg("primary store recovered")
	}
}

func (f *FailoverStore) ListTables(ctx context.Context, restaurantID string) ([]models.Table, error) {
	if f.usePrimary() {
		tables, err := f.primary.ListTables(ctx, restaurantID)
		if err == nil {
			f.markUp()
			return tables, nil
		}
		f.markDown(err)
	}
	return f.fallback.ListTables(ctx, restaurantID)
}

func (f *FailoverStore) ListReservations(ctx context.Context, restaurantID string, date time.Time) ([]models.Reservation, error) {
	if f.usePrimary() {
		reservations, err := f.primary.ListReservations(ctx, restaurantID, date)
		if err == nil {
			f.markUp()
			return reservations, nil
		}
		f.markDown(err)
	}
	return f.fallback.ListReservations(ctx, restaurantID, date)
}

func (f *FailoverStore) CreateReservation(ctx context.Context, restaurantID string, r *models.Reservation) error {
	if f.usePrimary() {
		err := f.primary.CreateReservation(ctx, restaurantID, r)
		if err == nil {
			f.markUp()
			return nil
		}
		f.markDown(err)
	}
	return f.fallback.CreateReservation(ctx, restaurantID, r)
}

func (f *FailoverStore) UpdateReservationStatus(ctx context.Context, restaurantID, reservationID, newStatus string) error {
	if f.usePrimary() {
		err := f.primary.UpdateReservationStatus(ctx, restaurantID, reservationID, newStatus)
		if err == nil {
			f.markUp()
			return nil
		}
		f.markDown(err)
	}
	return f.fallback.UpdateReservationStatus(ctx, restaurantID, reservationID, newStatus)
}

// PingContext probes the primary, then the fallback.
func (f *FailoverStore) PingContext(ctx context.Context) error {
	if p, ok := f.primary.(Pinger); ok {
		if err := p.PingContext(ctx); err == nil {
			return nil
		}
	}
	if p, ok := f.fallback.(Pinger); ok {
		return p.PingContext(ctx)
	}
	return nil
}
