package store

import (
	"context"
	"testing"
	"time"

	"tablero/internal/models"
)

func TestReservationRowValues(t *testing.T) {
	startAt := time.Date(2025, 6, 10, 19, 30, 0, 0, time.UTC)
	updatedAt := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)

	r := &models.Reservation{
		ID:              "abc-123",
		RestaurantID:    "trattoria",
		StartAt:         startAt,
		PartySize:       4,
		Status:          models.StatusConfirmed,
		AssignedTableID: "T2",
		ZonePreference:  "terrace",
		ClientName:      "Ana",
		ClientPhone:     "600111222",
		UpdatedAt:       updatedAt,
	}

	values := reservationRowValues(r)

	expected := []interface{}{
		"abc-123",
		"trattoria",
		"2025-06-10",
		"19:30",
		"4",
		"confirmed",
		"T2",
		"terrace",
		"Ana",
		"600111222",
		"",
		"",
		"2025-06-01 11:00:00",
	}

	if len(values) != len(expected) {
		t.Fatalf("Expected %d values, got %d", len(expected), len(values))
	}
	for i, v := range values {
		if v != expected[i] {
			t.Errorf("At index %d: expected %v, got %v", i, expected[i], v)
		}
	}
}

func TestParseReservationRow_RoundTrip(t *testing.T) {
	startAt := time.Date(2025, 6, 10, 19, 30, 0, 0, time.UTC)
	r := &models.Reservation{
		ID:              "abc-123",
		RestaurantID:    "trattoria",
		StartAt:         startAt,
		PartySize:       4,
		Status:          models.StatusConfirmed,
		AssignedTableID: "T2",
		ClientName:      "Ana",
	}

	parsed, ok := parseReservationRow(reservationRowValues(r), time.UTC)
	if !ok {
		t.Fatal("Expected row to parse")
	}
	if parsed.ID != r.ID || !parsed.StartAt.Equal(startAt) || parsed.PartySize != 4 {
		t.Errorf("Round trip mismatch: %+v", parsed)
	}
	if parsed.AssignedTableID != "T2" || parsed.Status != models.StatusConfirmed {
		t.Errorf("Round trip mismatch: %+v", parsed)
	}
}

func TestParseReservationRow_Malformed(t *testing.T) {
	cases := [][]interface{}{
		{},
		{"id", "r", "not-a-date", "19:30", "4", "confirmed", "T1"},
		{"id", "r", "2025-06-10", "19:30", "four", "confirmed", "T1"},
	}
	for i, row := range cases {
		if _, ok := parseReservationRow(row, time.UTC); ok {
			t.Errorf("Case %d: expected malformed row to be skipped", i)
		}
	}
}

func TestParseTableRow(t *testing.T) {
	tbl, ok := parseTableRow([]interface{}{"T1", "4", "main", "lunch,dinner", "free", ""})
	if !ok {
		t.Fatal("Expected row to parse")
	}
	if tbl.ID != "T1" || tbl.Capacity != 4 || tbl.Zone != "main" {
		t.Errorf("Unexpected table: %+v", tbl)
	}
	if len(tbl.Shifts) != 2 || tbl.Shifts[0] != "lunch" {
		t.Errorf("Unexpected shifts: %v", tbl.Shifts)
	}

	if _, ok := parseTableRow([]interface{}{"T1", "zero"}); ok {
		t.Error("Expected non-numeric capacity to be skipped")
	}
}

func TestSheetsRowCache(t *testing.T) {
	s := &SheetsStore{rowCache: make(map[string]cachedRow)}

	s.setCachedRow("abc", 5, models.StatusConfirmed)
	entry, ok := s.getCachedRow("abc")
	if !ok || entry.row != 5 || entry.status != models.StatusConfirmed {
		t.Errorf("Expected row 5 confirmed, got %+v (ok=%v)", entry, ok)
	}

	s.deleteCachedRow("abc")
	if _, ok := s.getCachedRow("abc"); ok {
		t.Error("Expected row to be deleted from cache")
	}

	s.setCachedRow("def", 10, models.StatusPending)
	s.ClearCache()
	if _, ok := s.getCachedRow("def"); ok {
		t.Error("Expected cache to be cleared")
	}
}

func TestSheetsUpdateStatus_TerminalRowsStayTerminal(t *testing.T) {
	// No sheets.Service behind the store: the terminal guard must return
	// before any API call, otherwise this test panics on the nil client.
	s := &SheetsStore{rowCache: make(map[string]cachedRow)}

	for _, status := range []string{models.StatusCompleted, models.StatusCancelled} {
		s.setCachedRow("done", 4, status)
		if err := s.UpdateReservationStatus(context.Background(), "trattoria", "done", models.StatusCancelled); err != nil {
			t.Errorf("Status %s: expected no-op, got %v", status, err)
		}
		entry, _ := s.getCachedRow("done")
		if entry.status != status {
			t.Errorf("Status %s: cache was rewritten to %s", status, entry.status)
		}
	}
}
