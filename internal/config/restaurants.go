package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"tablero/internal/models"
)

// RestaurantsConfig is the restaurants.yaml catalog: one entry per venue
// with its weekly schedule, service shifts and seed table layout.
type RestaurantsConfig struct {
	Restaurants []RestaurantEntry `yaml:"restaurants"`
}

type RestaurantEntry struct {
	ID       string          `yaml:"id"`
	Name     string          `yaml:"name"`
	Schedule []ScheduleEntry `yaml:"schedule"`
	Shifts   []ShiftEntry    `yaml:"shifts"`
	Tables   []TableEntry    `yaml:"tables"`
}

type ScheduleEntry struct {
	Weekday string `yaml:"weekday"`
	IsOpen  bool   `yaml:"is_open"`
	Open    string `yaml:"open,omitempty"`
	Close   string `yaml:"close,omitempty"`
}

type ShiftEntry struct {
	Name  string `yaml:"name"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

type TableEntry struct {
	ID       string   `yaml:"id"`
	Capacity int      `yaml:"capacity"`
	Zone     string   `yaml:"zone"`
	Shifts   []string `yaml:"shifts,omitempty"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// LoadRestaurants reads and validates the restaurant catalog.
func LoadRestaurants(path string) (*RestaurantsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read restaurants config: %w", err)
	}

	var cfg RestaurantsConfig
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse restaurants config: %w", err)
	}

	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid restaurants config: %w", err)
	}

	return &cfg, nil
}

// Validate checks id uniqueness, weekday names and HH:MM time formats.
func (c *RestaurantsConfig) Validate() error {
	if len(c.Restaurants) == 0 {
		return fmt.Errorf("no restaurants defined")
	}

	seen := make(map[string]bool)
	for _, r := range c.Restaurants {
		if r.ID == "" {
			return fmt.Errorf("restaurant with empty id")
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate restaurant id: %s", r.ID)
		}
		seen[r.ID] = true

		for _, s := range r.Schedule {
			if _, ok := weekdays[strings.ToLower(s.Weekday)]; !ok {
				return fmt.Errorf("restaurant %s: unknown weekday %q", r.ID, s.Weekday)
			}
			if s.Open != "" {
				if _, err := time.Parse("15:04", s.Open); err != nil {
					return fmt.Errorf("restaurant %s: invalid open time %q", r.ID, s.Open)
				}
			}
			if s.Close != "" {
				if _, err := time.Parse("15:04", s.Close); err != nil {
					return fmt.Errorf("restaurant %s: invalid close time %q", r.ID, s.Close)
				}
			}
		}

		shiftNames := make(map[string]bool)
		for _, s := range r.Shifts {
			if s.Name == "" {
				return fmt.Errorf("restaurant %s: shift with empty name", r.ID)
			}
			if shiftNames[s.Name] {
				return fmt.Errorf("restaurant %s: duplicate shift name %q", r.ID, s.Name)
			}
			shiftNames[s.Name] = true
			if _, err := time.Parse("15:04", s.Start); err != nil {
				return fmt.Errorf("restaurant %s: shift %s: invalid start %q", r.ID, s.Name, s.Start)
			}
			if _, err := time.Parse("15:04", s.End); err != nil {
				return fmt.Errorf("restaurant %s: shift %s: invalid end %q", r.ID, s.Name, s.End)
			}
		}

		tableIDs := make(map[string]bool)
		for _, t := range r.Tables {
			if t.ID == "" {
				return fmt.Errorf("restaurant %s: table with empty id", r.ID)
			}
			if tableIDs[t.ID] {
				return fmt.Errorf("restaurant %s: duplicate table id %s", r.ID, t.ID)
			}
			tableIDs[t.ID] = true
			if t.Capacity <= 0 {
				return fmt.Errorf("restaurant %s: table %s: capacity must be positive", r.ID, t.ID)
			}
			for _, name := range t.Shifts {
				if !shiftNames[name] {
					return fmt.Errorf("restaurant %s: table %s references unknown shift %q", r.ID, t.ID, name)
				}
			}
		}
	}
	return nil
}

// String returns a one-line summary for startup logging.
func (c *RestaurantsConfig) String() string {
	tables := 0
	for _, r := range c.Restaurants {
		tables += len(r.Tables)
	}
	return fmt.Sprintf("restaurants: %d, tables: %d", len(c.Restaurants), tables)
}

func (r *RestaurantEntry) schedule() []models.ScheduleEntry {
	entries := make([]models.ScheduleEntry, 0, len(r.Schedule))
	for _, s := range r.Schedule {
		entries = append(entries, models.ScheduleEntry{
			Weekday: weekdays[strings.ToLower(s.Weekday)],
			IsOpen:  s.IsOpen,
			Open:    s.Open,
			Close:   s.Close,
		})
	}
	return entries
}

func (r *RestaurantEntry) shifts() []models.Shift {
	shifts := make([]models.Shift, 0, len(r.Shifts))
	for _, s := range r.Shifts {
		shifts = append(shifts, models.Shift{Name: s.Name, Start: s.Start, End: s.End})
	}
	return shifts
}

// SeedTables converts the catalog layout into storable table rows.
func (r *RestaurantEntry) SeedTables() []models.Table {
	tables := make([]models.Table, 0, len(r.Tables))
	for _, t := range r.Tables {
		tables = append(tables, models.Table{
			ID:       t.ID,
			Capacity: t.Capacity,
			Zone:     t.Zone,
			Shifts:   t.Shifts,
			Status:   models.TableFree,
		})
	}
	return tables
}

// Provider serves schedules and shifts from the catalog and supports live
// reload by atomically swapping the loaded config.
type Provider struct {
	mu     sync.RWMutex
	cfg    *RestaurantsConfig
	byID   map[string]*RestaurantEntry
	path   string
	logger *zerolog.Logger
}

// NewProvider loads the catalog from path.
func NewProvider(path string, logger *zerolog.Logger) (*Provider, error) {
	cfg, err := LoadRestaurants(path)
	if err != nil {
		return nil, err
	}
	p := &Provider{path: path, logger: logger}
	p.swap(cfg)
	return p, nil
}

func (p *Provider) swap(cfg *RestaurantsConfig) {
	byID := make(map[string]*RestaurantEntry, len(cfg.Restaurants))
	for i := range cfg.Restaurants {
		byID[cfg.Restaurants[i].ID] = &cfg.Restaurants[i]
	}
	p.mu.Lock()
	p.cfg = cfg
	p.byID = byID
	p.mu.Unlock()
}

func (p *Provider) entry(restaurantID string) (*RestaurantEntry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.byID[restaurantID]
	if !ok {
		return nil, fmt.Errorf("unknown restaurant: %s", restaurantID)
	}
	return e, nil
}

// GetSchedule returns the weekly schedule for the restaurant.
func (p *Provider) GetSchedule(_ context.Context, restaurantID string) ([]models.ScheduleEntry, error) {
	e, err := p.entry(restaurantID)
	if err != nil {
		return nil, err
	}
	return e.schedule(), nil
}

// GetShifts returns the service shifts for the restaurant.
func (p *Provider) GetShifts(_ context.Context, restaurantID string) ([]models.Shift, error) {
	e, err := p.entry(restaurantID)
	if err != nil {
		return nil, err
	}
	return e.shifts(), nil
}

// ListRestaurants returns every configured restaurant id.
func (p *Provider) ListRestaurants() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.cfg.Restaurants))
	for _, r := range p.cfg.Restaurants {
		ids = append(ids, r.ID)
	}
	return ids
}

// Restaurant returns the full catalog entry, for seeding stores.
func (p *Provider) Restaurant(restaurantID string) (*RestaurantEntry, error) {
	return p.entry(restaurantID)
}

// Watch polls the catalog file's mtime and reloads it on change. It blocks
// until the context is cancelled.
func (p *Provider) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	var lastMod time.Time
	if info, err := os.Stat(p.path); err == nil {
		lastMod = info.ModTime()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(p.path)
			if err != nil {
				p.logger.Warn().Err(err).Str("path", p.path).Msg("restaurants config stat failed")
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			lastMod = info.ModTime()

			cfg, err := LoadRestaurants(p.path)
			if err != nil {
				// Keep serving the previous config on a bad edit.
				p.logger.Error().Err(err).Msg("restaurants config reload failed, keeping previous")
				continue
			}
			p.swap(cfg)
			p.logger.Info().Str("summary", cfg.String()).Msg("restaurants config reloaded")
		}
	}
}
