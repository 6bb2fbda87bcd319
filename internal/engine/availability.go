package engine

import (
	"fmt"
	"sort"
	"time"

	"tablero/internal/models"
)

// Policy holds the allocation business rules.
type Policy struct {
	// ReleaseDuration is how long a seated party is assumed to hold its
	// table; the occupancy window of every reservation is
	// [start, start+ReleaseDuration).
	ReleaseDuration time.Duration

	// ManualPartyThreshold is the party size above which requests are
	// routed to a human instead of auto-assigned.
	ManualPartyThreshold int

	// MaxAlternatives caps the alternative tables suggested on a
	// no-availability answer.
	MaxAlternatives int
}

// DefaultPolicy returns the current business rules.
func DefaultPolicy() Policy {
	return Policy{
		ReleaseDuration:      2 * time.Hour,
		ManualPartyThreshold: 6,
		MaxAlternatives:      3,
	}
}

func (p Policy) normalized() Policy {
	if p.ReleaseDuration <= 0 {
		p.ReleaseDuration = 2 * time.Hour
	}
	if p.ManualPartyThreshold <= 0 {
		p.ManualPartyThreshold = 6
	}
	if p.MaxAlternatives <= 0 {
		p.MaxAlternatives = 3
	}
	return p
}

// AvailabilityResult is the structured answer for a booking request.
// Kind distinguishes closed, no-availability and manual-handling negatives
// so the caller can route them differently; Message is relayed verbatim.
type AvailabilityResult struct {
	Feasible        bool          `json:"feasible"`
	Kind            string        `json:"kind"`
	Shift           *models.Shift `json:"shift,omitempty"`
	CandidateTables []string      `json:"candidate_tables,omitempty"`
	ReleasingTables []string      `json:"releasing_tables,omitempty"`
	Message         string        `json:"message"`
	Alternatives    []string      `json:"alternatives,omitempty"`
	ZoneFallback    bool          `json:"zone_fallback,omitempty"`
}

// computeAvailability is the pure calculator over a snapshot of the catalog
// and the ledger. It performs no I/O, which lets the allocator re-run it
// inside its serialized section against a fresh snapshot.
func computeAvailability(
	sched ScheduleResult,
	tables []models.Table,
	reservations []models.Reservation,
	reqStart time.Time,
	partySize int,
	zone string,
	policy Policy,
) *AvailabilityResult {
	policy = policy.normalized()

	if partySize > policy.ManualPartyThreshold {
		return &AvailabilityResult{
			Feasible: false,
			Kind:     KindManualRequired,
			Message: fmt.Sprintf("parties of %d need to be arranged with our staff; please hold for an operator",
				partySize),
		}
	}

	if !sched.Open {
		return &AvailabilityResult{
			Feasible: false,
			Kind:     KindClosed,
			Message:  sched.Reason,
		}
	}

	shiftName := ""
	if sched.Shift != nil {
		shiftName = sched.Shift.Name
	}

	// Capacity, shift membership and manual-override status first.
	base := make([]models.Table, 0, len(tables))
	for _, t := range tables {
		if t.Capacity < partySize {
			continue
		}
		if t.Status == models.TableMaintenance {
			continue
		}
		if shiftName != "" && !t.ServesShift(shiftName) {
			continue
		}
		base = append(base, t)
	}

	// Zone is best effort: an empty zone-filtered set falls back to the
	// full candidate set before declaring infeasibility.
	filtered := base
	zoneFallback := false
	if zone != "" {
		zoned := make([]models.Table, 0, len(base))
		for _, t := range base {
			if t.Zone == zone {
				zoned = append(zoned, t)
			}
		}
		if len(zoned) > 0 {
			filtered = zoned
		} else {
			zoneFallback = len(base) > 0
		}
	}

	reqEnd := reqStart.Add(policy.ReleaseDuration)
	byTable := activeByTable(reservations)

	var immediate, releasing, blocked []string
	for _, t := range filtered {
		conflicts := 0
		priorRelease := false
		for _, r := range byTable[t.ID] {
			if r.OverlapsWindow(reqStart, reqEnd, policy.ReleaseDuration) {
				conflicts++
				continue
			}
			_, end := r.Window(policy.ReleaseDuration)
			// An earlier seating whose window ends at or before the
			// requested time still holds the table right now, but will
			// have released it in time.
			if !end.After(reqStart) && end.After(reqStart.Add(-policy.ReleaseDuration)) {
				priorRelease = true
			}
		}
		switch {
		case conflicts > 0:
			blocked = append(blocked, t.ID)
		case priorRelease:
			releasing = append(releasing, t.ID)
		default:
			immediate = append(immediate, t.ID)
		}
	}
	sort.Strings(immediate)
	sort.Strings(releasing)
	sort.Strings(blocked)

	if len(immediate)+len(releasing) > 0 {
		res := &AvailabilityResult{
			Feasible:        true,
			Kind:            KindOK,
			Shift:           sched.Shift,
			CandidateTables: immediate,
			ReleasingTables: releasing,
			ZoneFallback:    zoneFallback,
			Message:         fmt.Sprintf("a table for %d is available at %s", partySize, reqStart.Format("15:04")),
		}
		if zoneFallback {
			res.Message += fmt.Sprintf(" (no free table in zone %q, offering other zones)", zone)
		}
		return res
	}

	alts := blocked
	if len(alts) > policy.MaxAlternatives {
		alts = alts[:policy.MaxAlternatives]
	}
	msg := fmt.Sprintf("no table for %d is free at %s", partySize, reqStart.Format("15:04"))
	if len(alts) > 0 {
		msg += "; matching tables exist but are taken at that hour"
	}
	return &AvailabilityResult{
		Feasible:     false,
		Kind:         KindNoAvailability,
		Shift:        sched.Shift,
		Message:      msg,
		Alternatives: alts,
		ZoneFallback: zoneFallback,
	}
}

// activeByTable indexes non-terminal reservations by their assigned table.
// Unassigned reservations occupy nothing.
func activeByTable(reservations []models.Reservation) map[string][]models.Reservation {
	byTable := make(map[string][]models.Reservation)
	for _, r := range reservations {
		if !r.IsActive() || r.AssignedTableID == "" {
			continue
		}
		byTable[r.AssignedTableID] = append(byTable[r.AssignedTableID], r)
	}
	return byTable
}
