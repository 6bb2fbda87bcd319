package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"tablero/internal/metrics"
	"tablero/internal/models"
)

// SQLiteStore is the relational backend, an embedded SQLite file.
type SQLiteStore struct {
	db      *sql.DB
	timeout time.Duration
}

// NewSQLiteStore opens the database at path, runs migrations and applies
// the per-call timeout to every store operation.
func NewSQLiteStore(path string, timeout time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SQLiteStore{db: db, timeout: timeout}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tables (
			id TEXT NOT NULL,
			restaurant_id TEXT NOT NULL,
			capacity INTEGER NOT NULL,
			zone TEXT NOT NULL DEFAULT '',
			shifts TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'free',
			client_ref TEXT NOT NULL DEFAULT '',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (restaurant_id, id)
		)`,

		`CREATE TABLE IF NOT EXISTS reservations (
			id TEXT PRIMARY KEY,
			restaurant_id TEXT NOT NULL,
			start_at DATETIME NOT NULL,
			party_size INTEGER NOT NULL,
			zone_preference TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			assigned_table_id TEXT NOT NULL DEFAULT '',
			client_name TEXT NOT NULL DEFAULT '',
			client_phone TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_reservations_restaurant_start ON reservations(restaurant_id, start_at)`,
		// One active reservation per table and slot; a second writer hits a
		// constraint error that surfaces as ErrConflict.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_slot
			ON reservations(restaurant_id, assigned_table_id, start_at)
			WHERE status IN ('pending', 'confirmed') AND assigned_table_id != ''`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_status ON reservations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tables_restaurant ON tables(restaurant_id)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

func (s *SQLiteStore) ListTables(ctx context.Context, restaurantID string) ([]models.Table, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, capacity, zone, shifts, status, client_ref, updated_at
		FROM tables WHERE restaurant_id = ? ORDER BY id`,
		restaurantID,
	)
	if err != nil {
		metrics.IncStoreError("sqlite", "list_tables")
		return nil, Unavailable("list tables", err)
	}
	defer rows.Close()

	var tables []models.Table
	for rows.Next() {
		var t models.Table
		var shifts string
		if err := rows.Scan(&t.ID, &t.Capacity, &t.Zone, &shifts, &t.Status, &t.ClientRef, &t.UpdatedAt); err != nil {
			metrics.IncStoreError("sqlite", "list_tables")
			return nil, Unavailable("scan table", err)
		}
		if shifts != "" {
			t.Shifts = strings.Split(shifts, ",")
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		metrics.IncStoreError("sqlite", "list_tables")
		return nil, Unavailable("list tables", err)
	}
	return tables, nil
}

func (s *SQLiteStore) ListReservations(ctx context.Context, restaurantID string, date time.Time) ([]models.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, restaurant_id, start_at, party_size, zone_preference, status,
		       assigned_table_id, client_name, client_phone, notes, created_by,
		       created_at, updated_at
		FROM reservations
		WHERE restaurant_id = ? AND start_at >= ? AND start_at < ?
		ORDER BY start_at`,
		restaurantID, startOfDay, endOfDay,
	)
	if err != nil {
		metrics.IncStoreError("sqlite", "list_reservations")
		return nil, Unavailable("list reservations", err)
	}
	defer rows.Close()

	var reservations []models.Reservation
	for rows.Next() {
		var r models.Reservation
		if err := rows.Scan(
			&r.ID, &r.RestaurantID, &r.StartAt, &r.PartySize, &r.ZonePreference, &r.Status,
			&r.AssignedTableID, &r.ClientName, &r.ClientPhone, &r.Notes, &r.CreatedBy,
			&r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			metrics.IncStoreError("sqlite", "list_reservations")
			return nil, Unavailable("scan reservation", err)
		}
		reservations = append(reservations, r)
	}
	if err := rows.Err(); err != nil {
		metrics.IncStoreError("sqlite", "list_reservations")
		return nil, Unavailable("list reservations", err)
	}
	return reservations, nil
}

func (s *SQLiteStore) CreateReservation(ctx context.Context, restaurantID string, r *models.Reservation) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reservations (
			id, restaurant_id, start_at, party_size, zone_preference, status,
			assigned_table_id, client_name, client_phone, notes, created_by,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, restaurantID, r.StartAt, r.PartySize, r.ZonePreference, r.Status,
		r.AssignedTableID, r.ClientName, r.ClientPhone, r.Notes, r.CreatedBy,
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("reservation for table %s at %s: %w",
				r.AssignedTableID, r.StartAt.Format("15:04"), ErrConflict)
		}
		metrics.IncStoreError("sqlite", "create_reservation")
		return Unavailable("create reservation", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateReservationStatus(ctx context.Context, restaurantID, reservationID, newStatus string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE reservations SET status = ?, updated_at = ?
		WHERE restaurant_id = ? AND id = ? AND status NOT IN (?, ?)`,
		newStatus, time.Now(), restaurantID, reservationID,
		models.StatusCompleted, models.StatusCancelled,
	)
	if err != nil {
		metrics.IncStoreError("sqlite", "update_status")
		return Unavailable("update reservation status", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		// Either unknown id or already terminal; only unknown ids are an
		// error, repeated sweeps and cancellations stay no-ops.
		var count int
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM reservations WHERE restaurant_id = ? AND id = ?",
			restaurantID, reservationID,
		).Scan(&count); err == nil && count == 0 {
			return fmt.Errorf("reservation %s: %w", reservationID, ErrNotFound)
		}
	}
	return nil
}

// UpsertTable creates or updates a catalog row. Layout fields come from the
// catalog; status and client_ref are manual overrides and survive re-seeding.
func (s *SQLiteStore) UpsertTable(ctx context.Context, restaurantID string, t *models.Table) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tables (id, restaurant_id, capacity, zone, shifts, status, client_ref, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(restaurant_id, id) DO UPDATE SET
			capacity = excluded.capacity,
			zone = excluded.zone,
			shifts = excluded.shifts,
			updated_at = excluded.updated_at`,
		t.ID, restaurantID, t.Capacity, t.Zone, strings.Join(t.Shifts, ","),
		t.Status, t.ClientRef, time.Now(),
	)
	if err != nil {
		metrics.IncStoreError("sqlite", "upsert_table")
		return Unavailable("upsert table", err)
	}
	return nil
}

// PingContext reports backend readiness.
func (s *SQLiteStore) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
