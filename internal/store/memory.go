package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tablero/internal/models"
)

// MemoryStore is the embedded in-process backend. It is used for local
// runs and as the store under test; semantics mirror the other adapters.
type MemoryStore struct {
	mu           sync.RWMutex
	tables       map[string][]models.Table       // restaurantID -> tables
	reservations map[string][]models.Reservation // restaurantID -> all rows
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables:       make(map[string][]models.Table),
		reservations: make(map[string][]models.Reservation),
	}
}

// SeedTables replaces the table catalog of a restaurant.
func (m *MemoryStore) SeedTables(restaurantID string, tables []models.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[restaurantID] = append([]models.Table(nil), tables...)
}

func (m *MemoryStore) ListTables(_ context.Context, restaurantID string) ([]models.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Table(nil), m.tables[restaurantID]...), nil
}

func (m *MemoryStore) ListReservations(_ context.Context, restaurantID string, date time.Time) ([]models.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Reservation
	for _, r := range m.reservations[restaurantID] {
		if sameDate(r.StartAt, date) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateReservation(_ context.Context, restaurantID string, r *models.Reservation) error {
	if r == nil {
		return fmt.Errorf("reservation is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservations[restaurantID] = append(m.reservations[restaurantID], *r)
	return nil
}

func (m *MemoryStore) UpdateReservationStatus(_ context.Context, restaurantID, reservationID, newStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.reservations[restaurantID]
	for i := range rows {
		if rows[i].ID != reservationID {
			continue
		}
		if rows[i].IsTerminal() {
			// Terminal states stay terminal; repeated sweeps and
			// cancellations are no-ops.
			return nil
		}
		rows[i].Status = newStatus
		rows[i].UpdatedAt = time.Now()
		return nil
	}
	return fmt.Errorf("reservation %s: %w", reservationID, ErrNotFound)
}

// PingContext satisfies readiness probes.
func (m *MemoryStore) PingContext(_ context.Context) error { return nil }

func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
