package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablero/internal/models"
)

func findingCodes(findings []Finding) []string {
	codes := make([]string, 0, len(findings))
	for _, f := range findings {
		codes = append(codes, f.Code)
	}
	return codes
}

func TestAudit(t *testing.T) {
	ctx := context.Background()

	t.Run("CleanCatalog", func(t *testing.T) {
		st := seededStore(
			models.Table{ID: "A", Capacity: 4},
			models.Table{ID: "B", Capacity: 2, Status: models.TableFree},
		)
		e := newTestEngine(t, st)

		findings, err := e.Audit(ctx, "trattoria")
		require.NoError(t, err)
		assert.Empty(t, findings)
	})

	t.Run("OccupiedWithoutClient", func(t *testing.T) {
		st := seededStore(models.Table{ID: "A", Capacity: 4, Status: models.TableOccupied})
		e := newTestEngine(t, st)

		findings, err := e.Audit(ctx, "trattoria")
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.Equal(t, FindingOccupiedNoClient, findings[0].Code)
		assert.Equal(t, SeverityCritical, findings[0].Severity)
		assert.Equal(t, "trattoria", findings[0].RestaurantID)
	})

	t.Run("OccupiedBackedByReservationIsFine", func(t *testing.T) {
		st := seededStore(models.Table{ID: "A", Capacity: 4, Status: models.TableOccupied})
		e := newTestEngine(t, st) // now = 12:00
		seedReservation(t, st, "seated", tuesdayAt(11, 0), models.StatusConfirmed)

		findings, err := e.Audit(ctx, "trattoria")
		require.NoError(t, err)
		assert.Empty(t, findings)
	})

	t.Run("ReservedWithoutClient", func(t *testing.T) {
		st := seededStore(models.Table{ID: "A", Capacity: 4, Status: models.TableReserved})
		e := newTestEngine(t, st)

		findings, err := e.Audit(ctx, "trattoria")
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.Equal(t, FindingReservedNoClient, findings[0].Code)
		assert.Equal(t, SeverityWarning, findings[0].Severity)
	})

	t.Run("FreeWithLeftoverClientRef", func(t *testing.T) {
		st := seededStore(models.Table{ID: "A", Capacity: 4, Status: models.TableFree, ClientRef: "walk-in"})
		e := newTestEngine(t, st)
		seedReservation(t, st, "seated", tuesdayAt(11, 0), models.StatusConfirmed)

		findings, err := e.Audit(ctx, "trattoria")
		require.NoError(t, err)
		assert.Contains(t, findingCodes(findings), FindingStatusMismatch)
	})

	t.Run("SweeperLag", func(t *testing.T) {
		st := seededStore(models.Table{ID: "A", Capacity: 4})
		e := newTestEngine(t, st) // now = 12:00, lag threshold = 4h

		seedReservation(t, st, "stuck", tuesdayAt(8, 0), models.StatusConfirmed)
		seedReservation(t, st, "merely-late", tuesdayAt(9, 0), models.StatusConfirmed)

		findings, err := e.Audit(ctx, "trattoria")
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.Equal(t, FindingSweeperLag, findings[0].Code)
		assert.Equal(t, SeverityCritical, findings[0].Severity)
		assert.Equal(t, "stuck", findings[0].ReservationID)
	})

	t.Run("AuditDoesNotWrite", func(t *testing.T) {
		st := seededStore(models.Table{ID: "A", Capacity: 4})
		e := newTestEngine(t, st)
		seedReservation(t, st, "stuck", tuesdayAt(8, 0), models.StatusConfirmed)

		_, err := e.Audit(ctx, "trattoria")
		require.NoError(t, err)

		ledger, err := st.ListReservations(ctx, "trattoria", tuesdayAt(12, 0))
		require.NoError(t, err)
		require.Len(t, ledger, 1)
		assert.Equal(t, models.StatusConfirmed, ledger[0].Status)
	})
}

type recordingSink struct {
	mu       sync.Mutex
	findings []Finding
}

func (s *recordingSink) NotifyFindings(_ string, findings []Finding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findings = append(s.findings, findings...)
}

func (s *recordingSink) codes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return findingCodes(s.findings)
}

func TestAuditSchedulerLoop(t *testing.T) {
	st := seededStore(models.Table{ID: "A", Capacity: 4, Status: models.TableOccupied})
	e := newTestEngine(t, st)

	sink := &recordingSink{}
	a := NewAuditScheduler(e, staticLister{"trattoria"}, sink, 10*time.Millisecond, e.logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.Start(ctx)
	a.Start(ctx) // second Start is a no-op

	assert.Eventually(t, func() bool {
		for _, code := range sink.codes() {
			if code == FindingOccupiedNoClient {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	a.Stop()
	a.Stop() // second Stop is a no-op
}
