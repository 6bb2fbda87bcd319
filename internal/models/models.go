package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Table statuses as stored in the catalog. Occupancy is normally derived
// from the reservation ledger; the stored status is a manual override
// (maintenance, admin-forced occupied) reconciled by the auditor.
const (
	TableFree        = "free"
	TableOccupied    = "occupied"
	TableReserved    = "reserved"
	TableMaintenance = "maintenance"
)

// Reservation statuses. Completed and cancelled are terminal; rows are
// never deleted, only status-transitioned.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Table is one physical table of a restaurant.
type Table struct {
	ID        string    `json:"id"`
	Capacity  int       `json:"capacity"`
	Zone      string    `json:"zone"`
	Shifts    []string  `json:"shifts"`
	Status    string    `json:"status"`
	ClientRef string    `json:"client_ref,omitempty"` // set only with a manual occupied/reserved override
	UpdatedAt time.Time `json:"updated_at"`
}

// ServesShift reports whether the table is assigned to the named shift.
// An empty shift list means the table serves every shift.
func (t *Table) ServesShift(name string) bool {
	if len(t.Shifts) == 0 {
		return true
	}
	for _, s := range t.Shifts {
		if s == name {
			return true
		}
	}
	return false
}

// Reservation is one booking of a table for a party.
type Reservation struct {
	ID              string    `json:"id"`
	RestaurantID    string    `json:"restaurant_id"`
	StartAt         time.Time `json:"start_at"`
	PartySize       int       `json:"party_size"`
	ZonePreference  string    `json:"zone_preference,omitempty"`
	Status          string    `json:"status"`
	AssignedTableID string    `json:"assigned_table_id,omitempty"`
	ClientName      string    `json:"client_name"`
	ClientPhone     string    `json:"client_phone,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	CreatedBy       string    `json:"created_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IsTerminal reports whether the reservation no longer occupies a table.
func (r *Reservation) IsTerminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusCancelled
}

// IsActive reports whether the reservation still holds its table.
func (r *Reservation) IsActive() bool {
	return r.Status == StatusPending || r.Status == StatusConfirmed
}

// Window returns the occupancy window [StartAt, StartAt+release).
// The window is derived, never stored.
func (r *Reservation) Window(release time.Duration) (start, end time.Time) {
	return r.StartAt, r.StartAt.Add(release)
}

// OverlapsWindow checks the reservation's occupancy window against
// [start, end) using half-open interval semantics.
func (r *Reservation) OverlapsWindow(start, end time.Time, release time.Duration) bool {
	s, e := r.Window(release)
	return s.Before(end) && start.Before(e)
}

// Date returns the reservation day truncated to midnight in its location.
func (r *Reservation) Date() time.Time {
	return time.Date(r.StartAt.Year(), r.StartAt.Month(), r.StartAt.Day(), 0, 0, 0, 0, r.StartAt.Location())
}

// Shift is a named recurring daily service window, e.g. lunch 13:00-16:00.
// Times are "HH:MM"; membership uses half-open [Start, End).
type Shift struct {
	Name  string `json:"name" yaml:"name"`
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// Contains reports whether the clock time hh:mm falls inside the shift.
func (s *Shift) Contains(hour, minute int) bool {
	sh, sm, err := ParseClock(s.Start)
	if err != nil {
		return false
	}
	eh, em, err := ParseClock(s.End)
	if err != nil {
		return false
	}
	t := hour*60 + minute
	return t >= sh*60+sm && t < eh*60+em
}

// ScheduleEntry describes one weekday of the restaurant's opening schedule.
// A day can be open overall while the requested time still falls outside
// any shift.
type ScheduleEntry struct {
	Weekday time.Weekday `json:"weekday" yaml:"weekday"`
	IsOpen  bool         `json:"is_open" yaml:"is_open"`
	Open    string       `json:"open,omitempty" yaml:"open,omitempty"`
	Close   string       `json:"close,omitempty" yaml:"close,omitempty"`
}

// ParseClock parses a 24h "HH:MM" string.
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

// CombineDateTime builds a timestamp from "YYYY-MM-DD" and "HH:MM" in loc.
func CombineDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", date)
	}
	h, m, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, loc), nil
}
