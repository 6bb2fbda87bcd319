package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablero/internal/models"
)

var openDinner = ScheduleResult{
	Open:  true,
	Shift: &models.Shift{Name: "dinner", Start: "18:00", End: "23:00"},
}

func testTables() []models.Table {
	return []models.Table{
		{ID: "A", Capacity: 4, Zone: "main"},
		{ID: "B", Capacity: 4, Zone: "main"},
		{ID: "C", Capacity: 2, Zone: "bar"},
		{ID: "D", Capacity: 6, Zone: "terrace"},
	}
}

func confirmedAt(table string, at time.Time) models.Reservation {
	return models.Reservation{
		ID:              "res-" + table + at.Format("1504"),
		Status:          models.StatusConfirmed,
		AssignedTableID: table,
		StartAt:         at,
	}
}

func TestComputeAvailability(t *testing.T) {
	policy := DefaultPolicy()
	dinner := tuesdayAt(19, 0)

	t.Run("AllFree", func(t *testing.T) {
		res := computeAvailability(openDinner, testTables(), nil, dinner, 4, "", policy)
		assert.True(t, res.Feasible)
		assert.Equal(t, KindOK, res.Kind)
		assert.Equal(t, []string{"A", "B", "D"}, res.CandidateTables)
		assert.Empty(t, res.ReleasingTables)
	})

	t.Run("LargePartyGoesManual", func(t *testing.T) {
		res := computeAvailability(openDinner, testTables(), nil, dinner, 7, "", policy)
		assert.False(t, res.Feasible)
		assert.Equal(t, KindManualRequired, res.Kind)
		assert.Contains(t, res.Message, "staff")
	})

	t.Run("ThresholdItselfIsAutomatic", func(t *testing.T) {
		res := computeAvailability(openDinner, testTables(), nil, dinner, 6, "", policy)
		assert.True(t, res.Feasible)
		assert.Equal(t, []string{"D"}, res.CandidateTables)
	})

	t.Run("Closed", func(t *testing.T) {
		closed := ScheduleResult{Open: false, Reason: "the restaurant is closed on Monday"}
		res := computeAvailability(closed, testTables(), nil, dinner, 2, "", policy)
		assert.False(t, res.Feasible)
		assert.Equal(t, KindClosed, res.Kind)
		assert.Equal(t, closed.Reason, res.Message)
	})

	t.Run("MaintenanceExcluded", func(t *testing.T) {
		tables := testTables()
		tables[0].Status = models.TableMaintenance
		res := computeAvailability(openDinner, tables, nil, dinner, 4, "", policy)
		assert.Equal(t, []string{"B", "D"}, res.CandidateTables)
	})

	t.Run("ShiftMembership", func(t *testing.T) {
		tables := testTables()
		tables[1].Shifts = []string{"lunch"}
		res := computeAvailability(openDinner, tables, nil, dinner, 4, "", policy)
		assert.Equal(t, []string{"A", "D"}, res.CandidateTables)
	})

	t.Run("ZonePreferred", func(t *testing.T) {
		res := computeAvailability(openDinner, testTables(), nil, dinner, 4, "main", policy)
		assert.True(t, res.Feasible)
		assert.False(t, res.ZoneFallback)
		assert.Equal(t, []string{"A", "B"}, res.CandidateTables)
	})

	t.Run("ZoneFallback", func(t *testing.T) {
		// No 4-top in the bar; the preference widens rather than fails.
		res := computeAvailability(openDinner, testTables(), nil, dinner, 4, "bar", policy)
		assert.True(t, res.Feasible)
		assert.True(t, res.ZoneFallback)
		assert.Equal(t, []string{"A", "B", "D"}, res.CandidateTables)
		assert.Contains(t, res.Message, "other zones")
	})

	t.Run("OverlapBlocks", func(t *testing.T) {
		ledger := []models.Reservation{
			confirmedAt("A", tuesdayAt(18, 0)),
			confirmedAt("B", tuesdayAt(18, 0)),
			confirmedAt("D", tuesdayAt(18, 0)),
		}
		res := computeAvailability(openDinner, testTables(), ledger, tuesdayAt(19, 59), 4, "", policy)
		assert.False(t, res.Feasible)
		assert.Equal(t, KindNoAvailability, res.Kind)
		assert.Equal(t, []string{"A", "B", "D"}, res.Alternatives)
	})

	t.Run("WindowEndBoundaryReleases", func(t *testing.T) {
		// An 18:00 seating holds its table through 19:59 and frees it for
		// a 20:00 request as a projected release.
		ledger := []models.Reservation{
			confirmedAt("A", tuesdayAt(18, 0)),
			confirmedAt("B", tuesdayAt(18, 0)),
			confirmedAt("D", tuesdayAt(18, 0)),
		}
		res := computeAvailability(openDinner, testTables(), ledger, tuesdayAt(20, 0), 4, "", policy)
		assert.True(t, res.Feasible)
		assert.Empty(t, res.CandidateTables)
		assert.Equal(t, []string{"A", "B", "D"}, res.ReleasingTables)
	})

	t.Run("TerminalRowsOccupyNothing", func(t *testing.T) {
		done := confirmedAt("A", tuesdayAt(19, 0))
		done.Status = models.StatusCompleted
		gone := confirmedAt("B", tuesdayAt(19, 0))
		gone.Status = models.StatusCancelled

		res := computeAvailability(openDinner, testTables(), []models.Reservation{done, gone}, dinner, 4, "", policy)
		assert.Equal(t, []string{"A", "B", "D"}, res.CandidateTables)
	})

	t.Run("UnassignedRowsOccupyNothing", func(t *testing.T) {
		floating := confirmedAt("", tuesdayAt(19, 0))
		res := computeAvailability(openDinner, testTables(), []models.Reservation{floating}, dinner, 4, "", policy)
		assert.Equal(t, []string{"A", "B", "D"}, res.CandidateTables)
	})

	t.Run("LaterBookingBlocksEarlierRequest", func(t *testing.T) {
		// A 20:30 booking on every 4-top blocks a 19:00 request whose
		// window would still be running at 20:30.
		ledger := []models.Reservation{
			confirmedAt("A", tuesdayAt(20, 30)),
			confirmedAt("B", tuesdayAt(20, 30)),
			confirmedAt("D", tuesdayAt(20, 30)),
		}
		res := computeAvailability(openDinner, testTables(), ledger, dinner, 4, "", policy)
		assert.False(t, res.Feasible)
	})

	t.Run("AlternativesCapped", func(t *testing.T) {
		capped := policy
		capped.MaxAlternatives = 2
		ledger := []models.Reservation{
			confirmedAt("A", dinner),
			confirmedAt("B", dinner),
			confirmedAt("D", dinner),
		}
		res := computeAvailability(openDinner, testTables(), ledger, dinner, 4, "", capped)
		require.False(t, res.Feasible)
		assert.Len(t, res.Alternatives, 2)
	})

	t.Run("NoMatchingCapacityHasNoAlternatives", func(t *testing.T) {
		res := computeAvailability(openDinner, []models.Table{{ID: "C", Capacity: 2}}, nil, dinner, 4, "", policy)
		assert.False(t, res.Feasible)
		assert.Empty(t, res.Alternatives)
	})
}
