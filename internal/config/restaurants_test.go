package config

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `
restaurants:
  - id: trattoria
    name: "Trattoria Roma"
    schedule:
      - weekday: Monday
        is_open: false
      - weekday: Tuesday
        is_open: true
        open: "12:00"
        close: "23:00"
    shifts:
      - name: lunch
        start: "12:00"
        end: "16:00"
      - name: dinner
        start: "18:00"
        end: "23:00"
    tables:
      - id: T1
        capacity: 2
        zone: main
      - id: T2
        capacity: 4
        zone: terrace
        shifts: [dinner]
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "restaurants.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRestaurants(t *testing.T) {
	cfg, err := LoadRestaurants(writeCatalog(t, sampleCatalog))
	require.NoError(t, err)
	require.Len(t, cfg.Restaurants, 1)

	r := cfg.Restaurants[0]
	assert.Equal(t, "trattoria", r.ID)
	assert.Len(t, r.Shifts, 2)
	assert.Len(t, r.Tables, 2)
	assert.Equal(t, "restaurants: 1, tables: 2", cfg.String())
}

func TestLoadRestaurants_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"Empty", "restaurants: []"},
		{"DuplicateID", `
restaurants:
  - id: a
    tables: [{id: T1, capacity: 2}]
  - id: a
    tables: [{id: T1, capacity: 2}]
`},
		{"BadWeekday", `
restaurants:
  - id: a
    schedule: [{weekday: Someday, is_open: true}]
`},
		{"BadShiftTime", `
restaurants:
  - id: a
    shifts: [{name: lunch, start: "25:00", end: "16:00"}]
`},
		{"ZeroCapacity", `
restaurants:
  - id: a
    tables: [{id: T1, capacity: 0}]
`},
		{"UnknownShiftRef", `
restaurants:
  - id: a
    shifts: [{name: lunch, start: "12:00", end: "16:00"}]
    tables: [{id: T1, capacity: 2, shifts: [dinner]}]
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadRestaurants(writeCatalog(t, tc.content))
			assert.Error(t, err)
		})
	}
}

func TestProvider(t *testing.T) {
	logger := zerolog.New(io.Discard)
	p, err := NewProvider(writeCatalog(t, sampleCatalog), &logger)
	require.NoError(t, err)
	ctx := context.Background()

	schedule, err := p.GetSchedule(ctx, "trattoria")
	require.NoError(t, err)
	require.Len(t, schedule, 2)
	assert.Equal(t, time.Monday, schedule[0].Weekday)
	assert.False(t, schedule[0].IsOpen)

	shifts, err := p.GetShifts(ctx, "trattoria")
	require.NoError(t, err)
	require.Len(t, shifts, 2)
	assert.Equal(t, "lunch", shifts[0].Name)

	_, err = p.GetShifts(ctx, "nowhere")
	assert.Error(t, err)

	assert.Equal(t, []string{"trattoria"}, p.ListRestaurants())

	r, err := p.Restaurant("trattoria")
	require.NoError(t, err)
	seed := r.SeedTables()
	require.Len(t, seed, 2)
	assert.Equal(t, "T2", seed[1].ID)
	assert.Equal(t, []string{"dinner"}, seed[1].Shifts)
}
