package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablero/internal/models"
	"tablero/internal/store"
)

// flakyStore fails status updates for selected reservation ids.
type flakyStore struct {
	*store.MemoryStore
	failIDs map[string]bool
}

func (f *flakyStore) UpdateReservationStatus(ctx context.Context, restaurantID, reservationID, newStatus string) error {
	if f.failIDs[reservationID] {
		return errors.New("backend hiccup")
	}
	return f.MemoryStore.UpdateReservationStatus(ctx, restaurantID, reservationID, newStatus)
}

func seedReservation(t *testing.T, st store.Store, id string, startAt time.Time, status string) {
	t.Helper()
	require.NoError(t, st.CreateReservation(context.Background(), "trattoria", &models.Reservation{
		ID:              id,
		Status:          status,
		AssignedTableID: "A",
		StartAt:         startAt,
		PartySize:       2,
	}))
}

func TestRunReleaseSweep(t *testing.T) {
	ctx := context.Background()

	t.Run("ReleasesElapsedWindows", func(t *testing.T) {
		st := seededStore(models.Table{ID: "A", Capacity: 4})
		e := newTestEngine(t, st) // now = 12:00

		seedReservation(t, st, "done", tuesdayAt(9, 0), models.StatusConfirmed)    // elapsed
		seedReservation(t, st, "edge", tuesdayAt(10, 0), models.StatusConfirmed)   // exactly 2h, elapsed
		seedReservation(t, st, "active", tuesdayAt(11, 0), models.StatusConfirmed) // still seated
		seedReservation(t, st, "later", tuesdayAt(19, 0), models.StatusPending)    // not started
		seedReservation(t, st, "gone", tuesdayAt(8, 0), models.StatusCancelled)    // terminal already

		report, err := e.RunReleaseSweep(ctx, "trattoria")
		require.NoError(t, err)
		assert.Equal(t, 4, report.Scanned)
		assert.Equal(t, 2, report.Released)
		assert.Zero(t, report.Failed)

		ledger, err := st.ListReservations(ctx, "trattoria", tuesdayAt(12, 0))
		require.NoError(t, err)
		byID := make(map[string]string, len(ledger))
		for _, r := range ledger {
			byID[r.ID] = r.Status
		}
		assert.Equal(t, models.StatusCompleted, byID["done"])
		assert.Equal(t, models.StatusCompleted, byID["edge"])
		assert.Equal(t, models.StatusConfirmed, byID["active"])
		assert.Equal(t, models.StatusPending, byID["later"])
		assert.Equal(t, models.StatusCancelled, byID["gone"])
	})

	t.Run("Idempotent", func(t *testing.T) {
		st := seededStore(models.Table{ID: "A", Capacity: 4})
		e := newTestEngine(t, st)

		seedReservation(t, st, "done", tuesdayAt(9, 0), models.StatusConfirmed)

		first, err := e.RunReleaseSweep(ctx, "trattoria")
		require.NoError(t, err)
		assert.Equal(t, 1, first.Released)

		second, err := e.RunReleaseSweep(ctx, "trattoria")
		require.NoError(t, err)
		assert.Zero(t, second.Scanned)
		assert.Zero(t, second.Released)
	})

	t.Run("RowFailureDoesNotAbortBatch", func(t *testing.T) {
		mem := seededStore(models.Table{ID: "A", Capacity: 4})
		st := &flakyStore{MemoryStore: mem, failIDs: map[string]bool{"bad": true}}
		e := newTestEngine(t, st)

		seedReservation(t, st, "bad", tuesdayAt(8, 0), models.StatusConfirmed)
		seedReservation(t, st, "good", tuesdayAt(9, 0), models.StatusConfirmed)

		report, err := e.RunReleaseSweep(ctx, "trattoria")
		require.NoError(t, err)
		assert.Equal(t, 1, report.Released)
		assert.Equal(t, 1, report.Failed)

		ledger, err := mem.ListReservations(ctx, "trattoria", tuesdayAt(12, 0))
		require.NoError(t, err)
		for _, r := range ledger {
			if r.ID == "good" {
				assert.Equal(t, models.StatusCompleted, r.Status)
			}
		}
	})

	t.Run("EmptyLedger", func(t *testing.T) {
		e := newTestEngine(t, seededStore(models.Table{ID: "A", Capacity: 4}))

		report, err := e.RunReleaseSweep(ctx, "trattoria")
		require.NoError(t, err)
		assert.Zero(t, report.Scanned)
	})
}

type staticLister []string

func (s staticLister) ListRestaurants() []string { return s }

func TestSweeperLoop(t *testing.T) {
	st := seededStore(models.Table{ID: "A", Capacity: 4})
	e := newTestEngine(t, st)
	seedReservation(t, st, "done", tuesdayAt(9, 0), models.StatusConfirmed)

	logger := e.logger
	s := NewSweeper(e, staticLister{"trattoria"}, 10*time.Millisecond, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	s.Start(ctx) // second start is a no-op

	assert.Eventually(t, func() bool {
		ledger, err := st.ListReservations(context.Background(), "trattoria", tuesdayAt(12, 0))
		if err != nil || len(ledger) == 0 {
			return false
		}
		return ledger[0].Status == models.StatusCompleted
	}, time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop() // second stop is a no-op
}
