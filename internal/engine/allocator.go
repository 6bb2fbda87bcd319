package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"tablero/internal/events"
	"tablero/internal/metrics"
	"tablero/internal/models"
	"tablero/internal/store"
)

func reservationEvent(r *models.Reservation) events.ReservationEvent {
	return events.ReservationEvent{
		ReservationID: r.ID,
		RestaurantID:  r.RestaurantID,
		TableID:       r.AssignedTableID,
		StartAt:       r.StartAt,
		PartySize:     r.PartySize,
		ClientName:    r.ClientName,
		ClientPhone:   r.ClientPhone,
	}
}

// CreateRequest carries a booking request plus the caller identity.
type CreateRequest struct {
	RestaurantID string `json:"restaurant_id"`
	Date         string `json:"date"` // YYYY-MM-DD
	Time         string `json:"time"` // 24h HH:MM
	PartySize    int    `json:"party_size"`
	Zone         string `json:"zone,omitempty"`
	ClientName   string `json:"client_name"`
	ClientPhone  string `json:"client_phone,omitempty"`
	Notes        string `json:"notes,omitempty"`
	CreatedBy    string `json:"created_by,omitempty"`
}

// AllocationResult is the outcome of a reservation attempt. On an
// infeasible request the calculator's result is propagated verbatim so the
// caller hears the same message a plain availability check would produce.
type AllocationResult struct {
	Success         bool     `json:"success"`
	ReservationID   string   `json:"reservation_id,omitempty"`
	AssignedTableID string   `json:"assigned_table_id,omitempty"`
	Kind            string   `json:"kind"`
	Message         string   `json:"message"`
	Alternatives    []string `json:"alternatives,omitempty"`
}

// CreateReservation checks availability, picks the winning table and binds
// a confirmed reservation to it. The check-then-write sequence runs under
// the restaurant's single-writer lock against a fresh ledger snapshot, and
// a lost race is retried once before failing.
func (e *Engine) CreateReservation(ctx context.Context, req CreateRequest) (*AllocationResult, error) {
	at, err := e.validateRequest(req.RestaurantID, req.Date, req.Time, req.PartySize)
	if err != nil {
		return nil, err
	}
	if req.ClientName == "" {
		return nil, &ValidationError{Field: "client_name", Reason: "must not be empty"}
	}

	sched := e.resolver.Resolve(ctx, req.RestaurantID, at)

	const attempts = 2
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		res, err := e.tryAllocate(ctx, req, at, sched)
		if err == nil {
			return res, nil
		}
		if !IsRaceLost(err) {
			return nil, err
		}
		lastErr = err
		e.logger.Warn().Err(err).Str("restaurant_id", req.RestaurantID).Int("attempt", attempt+1).
			Msg("allocation race lost, retrying with fresh snapshot")
		metrics.IncAllocation("race_lost")
	}
	return nil, lastErr
}

// tryAllocate performs one serialized check-then-write attempt.
func (e *Engine) tryAllocate(ctx context.Context, req CreateRequest, at time.Time, sched ScheduleResult) (*AllocationResult, error) {
	lock := e.lockFor(req.RestaurantID)
	lock.Lock()
	defer lock.Unlock()

	// Fresh snapshot inside the critical section; the store is not
	// transactional, so the cache must not serve this read.
	tables, err := e.store.ListTables(ctx, req.RestaurantID)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	reservations, err := e.store.ListReservations(ctx, req.RestaurantID, at)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}

	avail := computeAvailability(sched, tables, reservations, at, req.PartySize, req.Zone, e.policy)
	if !avail.Feasible {
		metrics.IncAllocation(avail.Kind)
		return &AllocationResult{
			Success:      false,
			Kind:         avail.Kind,
			Message:      avail.Message,
			Alternatives: avail.Alternatives,
		}, nil
	}

	winner := selectTable(tables, avail)

	// The caller walked away: leave no partial state behind.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := e.now()
	reservation := &models.Reservation{
		ID:              uuid.NewString(),
		RestaurantID:    req.RestaurantID,
		StartAt:         at,
		PartySize:       req.PartySize,
		ZonePreference:  req.Zone,
		Status:          models.StatusConfirmed,
		AssignedTableID: winner,
		ClientName:      req.ClientName,
		ClientPhone:     req.ClientPhone,
		Notes:           req.Notes,
		CreatedBy:       req.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := e.store.CreateReservation(ctx, req.RestaurantID, reservation); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// An external writer took the slot between our snapshot and
			// the write; the retry re-reads and picks another table.
			return nil, &RaceLostError{RestaurantID: req.RestaurantID, TableID: winner}
		}
		return nil, fmt.Errorf("create reservation: %w", err)
	}

	if e.cache != nil {
		e.cache.InvalidateLedger(ctx, req.RestaurantID, at)
	}
	metrics.IncAllocation("allocated")

	if e.bus != nil {
		if err := e.bus.PublishJSON(events.TypeReservationCreated, reservationEvent(reservation)); err != nil {
			e.logger.Warn().Err(err).Str("reservation_id", reservation.ID).
				Msg("failed to publish reservation created event")
		}
	}

	e.logger.Info().
		Str("restaurant_id", req.RestaurantID).
		Str("reservation_id", reservation.ID).
		Str("table_id", winner).
		Int("party_size", req.PartySize).
		Time("start_at", at).
		Msg("reservation created")

	return &AllocationResult{
		Success:         true,
		ReservationID:   reservation.ID,
		AssignedTableID: winner,
		Kind:            KindOK,
		Message:         fmt.Sprintf("table %s reserved for %d at %s", winner, req.PartySize, at.Format("15:04")),
	}, nil
}

// selectTable picks the winner: smallest capacity across candidates and
// releasing tables, immediate availability breaking capacity ties, then
// ascending table id for determinism.
func selectTable(tables []models.Table, avail *AvailabilityResult) string {
	capacity := make(map[string]int, len(tables))
	for _, t := range tables {
		capacity[t.ID] = t.Capacity
	}

	type option struct {
		id        string
		cap       int
		immediate bool
	}
	options := make([]option, 0, len(avail.CandidateTables)+len(avail.ReleasingTables))
	for _, id := range avail.CandidateTables {
		if c, ok := capacity[id]; ok {
			options = append(options, option{id: id, cap: c, immediate: true})
		}
	}
	for _, id := range avail.ReleasingTables {
		if c, ok := capacity[id]; ok {
			options = append(options, option{id: id, cap: c})
		}
	}
	if len(options) == 0 {
		return ""
	}

	sort.Slice(options, func(i, j int) bool {
		if options[i].cap != options[j].cap {
			return options[i].cap < options[j].cap
		}
		if options[i].immediate != options[j].immediate {
			return options[i].immediate
		}
		return options[i].id < options[j].id
	})
	return options[0].id
}
