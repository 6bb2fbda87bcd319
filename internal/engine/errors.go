package engine

import (
	"errors"
	"fmt"
)

// Result kinds for availability and allocation outcomes. Business negatives
// (closed, no availability, manual handling) are values, not errors: the
// phone bot relays their Message verbatim.
const (
	KindOK             = "ok"
	KindClosed         = "closed"
	KindNoAvailability = "no_availability"
	KindManualRequired = "manual_required"
)

// ValidationError reports malformed caller input (date, time, party size).
// It is never retried and is raised before any store access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation checks whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RaceLostError reports that the allocator's serialized re-check found the
// chosen slot already taken. The allocator retries once with a fresh
// availability check before surfacing it.
type RaceLostError struct {
	RestaurantID string
	TableID      string
}

func (e *RaceLostError) Error() string {
	return fmt.Sprintf("allocation race lost for table %s at restaurant %s", e.TableID, e.RestaurantID)
}

// IsRaceLost checks whether err is a RaceLostError.
func IsRaceLost(err error) bool {
	var re *RaceLostError
	return errors.As(err, &re)
}
