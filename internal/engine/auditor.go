package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tablero/internal/metrics"
	"tablero/internal/models"
)

// Finding severities.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Finding codes.
const (
	FindingOccupiedNoClient = "occupied_no_client"
	FindingReservedNoClient = "reserved_no_client"
	FindingSweeperLag       = "sweeper_lag"
	FindingStatusMismatch   = "status_mismatch"
)

// Finding is one inconsistency between the table catalog and the ledger.
type Finding struct {
	RestaurantID  string `json:"restaurant_id"`
	TableID       string `json:"table_id,omitempty"`
	ReservationID string `json:"reservation_id,omitempty"`
	Severity      string `json:"severity"`
	Code          string `json:"code"`
	Message       string `json:"message"`
}

// Audit flags tables whose recorded state is inconsistent with the ledger.
// It only reads; monitoring consumes the findings, the allocation path
// never does.
func (e *Engine) Audit(ctx context.Context, restaurantID string) ([]Finding, error) {
	tables, err := e.store.ListTables(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	now := e.now().In(e.loc)
	reservations, err := e.store.ListReservations(ctx, restaurantID, now)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}

	byTable := activeByTable(reservations)
	// Twice the release duration means the sweeper has missed at least a
	// full cycle's worth of occupancy.
	lagThreshold := 2 * e.policy.ReleaseDuration

	var findings []Finding
	add := func(f Finding) {
		f.RestaurantID = restaurantID
		findings = append(findings, f)
		metrics.IncAuditFinding(f.Severity)
	}

	for _, t := range tables {
		active := byTable[t.ID]

		switch t.Status {
		case models.TableOccupied:
			if t.ClientRef == "" && len(active) == 0 {
				add(Finding{
					TableID:  t.ID,
					Severity: SeverityCritical,
					Code:     FindingOccupiedNoClient,
					Message:  fmt.Sprintf("table %s is marked occupied with no client or reservation behind it", t.ID),
				})
			}
		case models.TableReserved:
			if t.ClientRef == "" && len(active) == 0 {
				add(Finding{
					TableID:  t.ID,
					Severity: SeverityWarning,
					Code:     FindingReservedNoClient,
					Message:  fmt.Sprintf("table %s is marked reserved with no client reference", t.ID),
				})
			}
		case models.TableFree, "":
			if len(active) > 0 && t.ClientRef != "" {
				add(Finding{
					TableID:  t.ID,
					Severity: SeverityWarning,
					Code:     FindingStatusMismatch,
					Message:  fmt.Sprintf("table %s is marked free but carries a client reference and active reservations", t.ID),
				})
			}
		}

		for _, r := range active {
			elapsed := now.Sub(r.StartAt)
			if elapsed >= lagThreshold {
				add(Finding{
					TableID:       t.ID,
					ReservationID: r.ID,
					Severity:      SeverityCritical,
					Code:          FindingSweeperLag,
					Message: fmt.Sprintf("table %s has been occupied for %s, %s past the release policy",
						t.ID, elapsed.Round(time.Minute), (elapsed - e.policy.ReleaseDuration).Round(time.Minute)),
				})
			}
		}
	}

	return findings, nil
}

// FindingsSink receives audit findings for delivery, e.g. to the managers'
// Telegram chats.
type FindingsSink interface {
	NotifyFindings(restaurantID string, findings []Finding)
}

// AuditScheduler runs the conflict audit on a fixed interval for every
// restaurant and forwards findings to the sink.
type AuditScheduler struct {
	engine      *Engine
	restaurants RestaurantLister
	sink        FindingsSink
	interval    time.Duration
	logger      *zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewAuditScheduler creates a scheduler over the engine. sink may be nil;
// findings then only reach the logs and metrics.
func NewAuditScheduler(engine *Engine, restaurants RestaurantLister, sink FindingsSink, interval time.Duration, logger *zerolog.Logger) *AuditScheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &AuditScheduler{
		engine:      engine,
		restaurants: restaurants,
		sink:        sink,
		interval:    interval,
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the audit loop. It returns immediately.
func (a *AuditScheduler) Start(ctx context.Context) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return
	}
	a.running = true
	a.mu.Unlock()

	a.logger.Info().Dur("interval", a.interval).Msg("audit scheduler started")

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				a.logger.Info().Msg("audit scheduler stopped by context")
				return
			case <-a.stopCh:
				a.logger.Info().Msg("audit scheduler stopped")
				return
			case <-ticker.C:
				a.auditAll(ctx)
			}
		}
	}()
}

// Stop stops the loop and waits for the in-flight audit.
func (a *AuditScheduler) Stop() {
	a.mu.Lock()
	if a.running {
		a.running = false
		close(a.stopCh)
	}
	a.mu.Unlock()
	a.wg.Wait()
}

func (a *AuditScheduler) auditAll(ctx context.Context) {
	for _, restaurantID := range a.restaurants.ListRestaurants() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		findings, err := a.engine.Audit(ctx, restaurantID)
		if err != nil {
			a.logger.Error().Err(err).Str("restaurant_id", restaurantID).Msg("scheduled audit failed")
			continue
		}
		if len(findings) == 0 {
			continue
		}
		a.logger.Warn().Str("restaurant_id", restaurantID).Int("findings", len(findings)).
			Msg("scheduled audit found inconsistencies")
		if a.sink != nil {
			a.sink.NotifyFindings(restaurantID, findings)
		}
	}
}
