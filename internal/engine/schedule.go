package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tablero/internal/models"
)

// ScheduleProvider is the configuration collaborator: per-restaurant weekly
// schedule and service shifts. Backed by restaurants.yaml in this deployment.
type ScheduleProvider interface {
	GetSchedule(ctx context.Context, restaurantID string) ([]models.ScheduleEntry, error)
	GetShifts(ctx context.Context, restaurantID string) ([]models.Shift, error)
}

// ScheduleResult is the resolver's structured answer. It is never an error:
// incomplete configuration must not break booking entirely.
type ScheduleResult struct {
	Open   bool          `json:"open"`
	Shift  *models.Shift `json:"shift,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

// ScheduleResolver decides whether a restaurant is open at a given moment
// and which named shift the time falls into.
type ScheduleResolver struct {
	provider ScheduleProvider
	logger   *zerolog.Logger
}

// NewScheduleResolver creates a resolver over the given provider.
func NewScheduleResolver(provider ScheduleProvider, logger *zerolog.Logger) *ScheduleResolver {
	return &ScheduleResolver{provider: provider, logger: logger}
}

// Resolve looks up the weekday schedule and scans shifts for one whose
// [start, end) window contains the requested time. Missing configuration
// fails open so a partially onboarded restaurant stays bookable.
func (r *ScheduleResolver) Resolve(ctx context.Context, restaurantID string, at time.Time) ScheduleResult {
	schedule, err := r.provider.GetSchedule(ctx, restaurantID)
	if err != nil {
		r.logger.Warn().Err(err).Str("restaurant_id", restaurantID).
			Msg("schedule lookup failed, failing open")
		return ScheduleResult{Open: true, Reason: "schedule unavailable, assuming open"}
	}

	if entry := findEntry(schedule, at.Weekday()); entry != nil && !entry.IsOpen {
		return ScheduleResult{
			Open:   false,
			Reason: fmt.Sprintf("the restaurant is closed on %s", closedDays(schedule)),
		}
	}

	shifts, err := r.provider.GetShifts(ctx, restaurantID)
	if err != nil {
		r.logger.Warn().Err(err).Str("restaurant_id", restaurantID).
			Msg("shift lookup failed, failing open")
		return ScheduleResult{Open: true, Reason: "shifts unavailable, assuming open"}
	}

	if len(shifts) == 0 {
		// Degraded mode: a restaurant without configured shifts stays open
		// all day rather than silently rejecting every request.
		return ScheduleResult{Open: true, Reason: "no shifts configured, open all day"}
	}

	h, m := at.Hour(), at.Minute()
	for i := range shifts {
		if shifts[i].Contains(h, m) {
			return ScheduleResult{Open: true, Shift: &shifts[i]}
		}
	}

	return ScheduleResult{
		Open:   false,
		Reason: fmt.Sprintf("%02d:%02d is outside service hours; shifts: %s", h, m, shiftWindows(shifts)),
	}
}

func findEntry(schedule []models.ScheduleEntry, day time.Weekday) *models.ScheduleEntry {
	for i := range schedule {
		if schedule[i].Weekday == day {
			return &schedule[i]
		}
	}
	return nil
}

func closedDays(schedule []models.ScheduleEntry) string {
	var days []string
	for _, e := range schedule {
		if !e.IsOpen {
			days = append(days, e.Weekday.String())
		}
	}
	if len(days) == 0 {
		return "that day"
	}
	return strings.Join(days, ", ")
}

func shiftWindows(shifts []models.Shift) string {
	parts := make([]string, 0, len(shifts))
	for _, s := range shifts {
		parts = append(parts, fmt.Sprintf("%s %s-%s", s.Name, s.Start, s.End))
	}
	return strings.Join(parts, ", ")
}
