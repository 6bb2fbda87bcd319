package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tablero/internal/events"
	"tablero/internal/metrics"
	"tablero/internal/models"
	"tablero/internal/store"
)

// EventBus publishes domain events for downstream notification.
type EventBus interface {
	PublishJSON(eventType string, payload interface{}) error
}

// SnapshotCache is an optional read cache for catalog and ledger snapshots.
// Implementations carry their own TTL; the engine invalidates on writes.
type SnapshotCache interface {
	GetTables(ctx context.Context, restaurantID string) ([]models.Table, bool)
	SetTables(ctx context.Context, restaurantID string, tables []models.Table)
	GetLedger(ctx context.Context, restaurantID string, date time.Time) ([]models.Reservation, bool)
	SetLedger(ctx context.Context, restaurantID string, date time.Time, reservations []models.Reservation)
	InvalidateLedger(ctx context.Context, restaurantID string, date time.Time)
}

// Engine is the temporal table allocation and availability engine. It owns
// the per-restaurant write serialization; everything it reads and writes
// goes through the storage collaborator.
type Engine struct {
	store    store.Store
	resolver *ScheduleResolver
	policy   Policy
	cache    SnapshotCache
	bus      EventBus
	logger   *zerolog.Logger
	loc      *time.Location

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time // overridable in tests
}

// New creates an engine. cache and bus may be nil.
func New(st store.Store, resolver *ScheduleResolver, policy Policy, cache SnapshotCache, bus EventBus, loc *time.Location, logger *zerolog.Logger) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{
		store:    st,
		resolver: resolver,
		policy:   policy.normalized(),
		cache:    cache,
		bus:      bus,
		logger:   logger,
		loc:      loc,
		locks:    make(map[string]*sync.Mutex),
		now:      time.Now,
	}
}

// lockFor returns the single-writer lock for a restaurant.
func (e *Engine) lockFor(restaurantID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[restaurantID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[restaurantID] = l
	}
	return l
}

func (e *Engine) validateRequest(restaurantID, date, clock string, partySize int) (time.Time, error) {
	if restaurantID == "" {
		return time.Time{}, &ValidationError{Field: "restaurant_id", Reason: "must not be empty"}
	}
	if partySize < 1 {
		return time.Time{}, &ValidationError{Field: "party_size", Reason: "must be a positive number"}
	}
	if _, err := time.ParseInLocation("2006-01-02", date, e.loc); err != nil {
		return time.Time{}, &ValidationError{Field: "date", Reason: "expected YYYY-MM-DD"}
	}
	if _, _, err := models.ParseClock(clock); err != nil {
		return time.Time{}, &ValidationError{Field: "time", Reason: "expected 24h HH:MM"}
	}
	at, err := models.CombineDateTime(date, clock, e.loc)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Reason: err.Error()}
	}
	return at, nil
}

// CheckAvailability answers whether a table can be granted for the request.
// Business negatives come back as a structured result; only validation and
// store failures are errors. Read-only: no serialization, cache allowed.
func (e *Engine) CheckAvailability(ctx context.Context, restaurantID, date, clock string, partySize int, zone string) (*AvailabilityResult, error) {
	at, err := e.validateRequest(restaurantID, date, clock, partySize)
	if err != nil {
		return nil, err
	}

	// Same-day requests see the freshest picture when expired seatings
	// are swept first.
	if sameDay(at, e.now().In(e.loc)) {
		if _, err := e.RunReleaseSweep(ctx, restaurantID); err != nil {
			e.logger.Warn().Err(err).Str("restaurant_id", restaurantID).Msg("pre-availability sweep failed")
		}
	}

	sched := e.resolver.Resolve(ctx, restaurantID, at)

	tables, err := e.loadTables(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	reservations, err := e.loadLedger(ctx, restaurantID, at)
	if err != nil {
		return nil, err
	}

	res := computeAvailability(sched, tables, reservations, at, partySize, zone, e.policy)
	metrics.IncAvailabilityCheck(res.Kind)
	return res, nil
}

// CancelReservation transitions a reservation to cancelled. Terminal
// reservations are left untouched by the store adapters.
func (e *Engine) CancelReservation(ctx context.Context, restaurantID, reservationID string) error {
	if restaurantID == "" || reservationID == "" {
		return &ValidationError{Field: "reservation_id", Reason: "restaurant and reservation ids are required"}
	}
	if err := e.store.UpdateReservationStatus(ctx, restaurantID, reservationID, models.StatusCancelled); err != nil {
		return err
	}
	if e.cache != nil {
		// Date unknown from the id alone; drop today's ledger, the rest
		// ages out by TTL.
		e.cache.InvalidateLedger(ctx, restaurantID, e.now().In(e.loc))
	}
	if e.bus != nil {
		if err := e.bus.PublishJSON(events.TypeReservationCancelled, events.ReservationEvent{
			ReservationID: reservationID,
			RestaurantID:  restaurantID,
		}); err != nil {
			e.logger.Warn().Err(err).Str("reservation_id", reservationID).
				Msg("failed to publish reservation cancelled event")
		}
	}
	e.logger.Info().Str("restaurant_id", restaurantID).Str("reservation_id", reservationID).
		Msg("reservation cancelled")
	return nil
}

func (e *Engine) loadTables(ctx context.Context, restaurantID string) ([]models.Table, error) {
	if e.cache != nil {
		if tables, ok := e.cache.GetTables(ctx, restaurantID); ok {
			return tables, nil
		}
	}
	tables, err := e.store.ListTables(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	if e.cache != nil {
		e.cache.SetTables(ctx, restaurantID, tables)
	}
	return tables, nil
}

func (e *Engine) loadLedger(ctx context.Context, restaurantID string, date time.Time) ([]models.Reservation, error) {
	if e.cache != nil {
		if ledger, ok := e.cache.GetLedger(ctx, restaurantID, date); ok {
			return ledger, nil
		}
	}
	ledger, err := e.store.ListReservations(ctx, restaurantID, date)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	if e.cache != nil {
		e.cache.SetLedger(ctx, restaurantID, date, ledger)
	}
	return ledger, nil
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
