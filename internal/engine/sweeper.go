package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tablero/internal/metrics"
	"tablero/internal/models"
)

// SweepReport summarizes one release sweep over a restaurant's ledger.
type SweepReport struct {
	RestaurantID string `json:"restaurant_id"`
	Scanned      int    `json:"scanned"`
	Released     int    `json:"released"`
	Failed       int    `json:"failed"`
}

// RunReleaseSweep walks today's active reservations and completes every one
// whose occupancy window has fully elapsed, freeing its table. Re-running
// with nothing expired performs no writes, and a failing row never aborts
// the rest of the batch.
func (e *Engine) RunReleaseSweep(ctx context.Context, restaurantID string) (SweepReport, error) {
	report := SweepReport{RestaurantID: restaurantID}
	now := e.now().In(e.loc)

	reservations, err := e.store.ListReservations(ctx, restaurantID, now)
	if err != nil {
		return report, err
	}

	for _, r := range reservations {
		if !r.IsActive() {
			continue
		}
		report.Scanned++

		if now.Sub(r.StartAt) < e.policy.ReleaseDuration {
			continue
		}

		if err := e.store.UpdateReservationStatus(ctx, restaurantID, r.ID, models.StatusCompleted); err != nil {
			report.Failed++
			e.logger.Error().Err(err).
				Str("restaurant_id", restaurantID).
				Str("reservation_id", r.ID).
				Msg("release sweep: status update failed, continuing")
			continue
		}
		report.Released++
		metrics.IncSweepReleased()
	}

	if report.Released > 0 {
		if e.cache != nil {
			e.cache.InvalidateLedger(ctx, restaurantID, now)
		}
		e.logger.Info().
			Str("restaurant_id", restaurantID).
			Int("released", report.Released).
			Int("failed", report.Failed).
			Msg("release sweep completed")
	}
	return report, nil
}

// RestaurantLister enumerates the restaurants the sweeper serves.
type RestaurantLister interface {
	ListRestaurants() []string
}

// Sweeper runs the release sweep on a fixed interval for every restaurant.
type Sweeper struct {
	engine      *Engine
	restaurants RestaurantLister
	interval    time.Duration
	logger      *zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewSweeper creates a sweeper over the engine.
func NewSweeper(engine *Engine, restaurants RestaurantLister, interval time.Duration, logger *zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		engine:      engine,
		restaurants: restaurants,
		interval:    interval,
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the sweep loop. It returns immediately.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info().Dur("interval", s.interval).Msg("release sweeper started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("release sweeper stopped by context")
				return
			case <-s.stopCh:
				s.logger.Info().Msg("release sweeper stopped")
				return
			case <-ticker.C:
				s.sweepAll(ctx)
			}
		}
	}()
}

// Stop stops the loop and waits for the in-flight sweep.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if s.running {
		s.running = false
		close(s.stopCh)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Sweeper) sweepAll(ctx context.Context) {
	for _, restaurantID := range s.restaurants.ListRestaurants() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := s.engine.RunReleaseSweep(ctx, restaurantID); err != nil {
			s.logger.Error().Err(err).Str("restaurant_id", restaurantID).Msg("scheduled sweep failed")
		}
	}
}
