package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tablero/internal/api"
	"tablero/internal/cache"
	"tablero/internal/config"
	"tablero/internal/engine"
	"tablero/internal/events"
	"tablero/internal/metrics"
	"tablero/internal/notify"
	"tablero/internal/store"
)

func main() {
	_ = godotenv.Load()

	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("TABLERO_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	provider, err := config.NewProvider(cfg.Restaurants.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load restaurant catalog")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go provider.Watch(ctx, cfg.RestaurantsReloadInterval())

	st, closeStore, err := buildStore(ctx, cfg, provider, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer closeStore()

	var rdb *redis.Client
	var snapshots *cache.SnapshotCache
	if cfg.Redis.Address != "" && cfg.Redis.CacheTTLSeconds > 0 {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		snapshots = cache.New(rdb, cfg.CacheTTL(), &logger)
	}

	bus := events.NewBus()

	var notifier *notify.TelegramNotifier
	if cfg.Telegram.BotToken != "" && len(cfg.Telegram.Managers) > 0 {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			logger.Error().Err(err).Msg("telegram bot unavailable, manager notifications disabled")
		} else {
			notifier = notify.NewTelegramNotifier(bot, cfg.Telegram.Managers, &logger)
			notifier.SubscribeToBus(bus)
			logger.Info().Int("managers", len(cfg.Telegram.Managers)).Msg("manager notifications enabled")
		}
	}

	policy := engine.Policy{
		ReleaseDuration:      cfg.ReleaseDuration(),
		ManualPartyThreshold: cfg.ManualPartyThreshold(),
	}
	resolver := engine.NewScheduleResolver(provider, &logger)

	var engineCache engine.SnapshotCache
	if snapshots != nil {
		engineCache = snapshots
	}
	eng := engine.New(st, resolver, policy, engineCache, bus, cfg.Location(), &logger)

	sweeper := engine.NewSweeper(eng, provider, cfg.SweepInterval(), &logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	var findingsSink engine.FindingsSink
	if notifier != nil {
		findingsSink = notifier
	}
	auditor := engine.NewAuditScheduler(eng, provider, findingsSink, cfg.AuditInterval(), &logger)
	auditor.Start(ctx)
	defer auditor.Stop()

	if cfg.Store.Backend == "sqlite" && cfg.Backup.Enabled {
		backup := store.NewBackupService(cfg.Database.Path, store.BackupConfig{
			Enabled:       cfg.Backup.Enabled,
			StoragePath:   cfg.Backup.StoragePath,
			IntervalHours: cfg.Backup.IntervalHours,
			RetentionDays: cfg.Backup.RetentionDays,
		}, &logger)
		go backup.Start(ctx)
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, st, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	srv := api.NewHTTPServer(eng, provider, cfg.API.Port, &logger)

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().Str("backend", cfg.Store.Backend).Msg("allocation engine started")
	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("API server error")
	}
}

// buildStore constructs the configured backend, optionally wrapped in a
// failover pair, and seeds the table catalog where the backend supports it.
func buildStore(ctx context.Context, cfg *config.Config, provider *config.Provider, logger *zerolog.Logger) (store.Store, func(), error) {
	closeFn := func() {}

	primary, primaryClose, err := openBackend(ctx, cfg, cfg.Store.Backend, provider, logger)
	if err != nil {
		return nil, closeFn, err
	}
	closeFn = primaryClose

	if cfg.Store.Fallback == "" {
		return primary, closeFn, nil
	}

	fallback, fallbackClose, err := openBackend(ctx, cfg, cfg.Store.Fallback, provider, logger)
	if err != nil {
		primaryClose()
		return nil, func() {}, fmt.Errorf("fallback backend %s: %w", cfg.Store.Fallback, err)
	}

	combined := func() {
		primaryClose()
		fallbackClose()
	}
	return store.NewFailoverStore(primary, fallback, logger), combined, nil
}

func openBackend(ctx context.Context, cfg *config.Config, backend string, provider *config.Provider, logger *zerolog.Logger) (store.Store, func(), error) {
	switch backend {
	case "sqlite":
		st, err := store.NewSQLiteStore(cfg.Database.Path, cfg.StoreTimeout())
		if err != nil {
			return nil, nil, err
		}
		if err := seedSQLite(ctx, st, provider); err != nil {
			st.Close()
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil

	case "sheets":
		creds, err := os.ReadFile(cfg.Sheets.CredentialsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read sheets credentials: %w", err)
		}
		st, err := store.NewSheetsStore(ctx, creds, cfg.Sheets.SpreadsheetID, cfg.StoreTimeout())
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil

	case "excel":
		st, err := store.NewExcelStore(cfg.Excel.Path)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil

	case "memory":
		st := store.NewMemoryStore()
		for _, id := range provider.ListRestaurants() {
			r, err := provider.Restaurant(id)
			if err != nil {
				continue
			}
			st.SeedTables(id, r.SeedTables())
		}
		logger.Warn().Msg("memory backend: all data is lost on restart")
		return st, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}

// seedSQLite upserts the catalog layout so a fresh database starts with the
// configured tables. Existing rows keep their status and client reference.
func seedSQLite(ctx context.Context, st *store.SQLiteStore, provider *config.Provider) error {
	for _, id := range provider.ListRestaurants() {
		r, err := provider.Restaurant(id)
		if err != nil {
			continue
		}
		for _, t := range r.SeedTables() {
			table := t
			if err := st.UpsertTable(ctx, id, &table); err != nil {
				return fmt.Errorf("seed table %s/%s: %w", id, t.ID, err)
			}
		}
	}
	return nil
}

func startHealthServer(ctx context.Context, port int, st store.Store, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if p, ok := st.(store.Pinger); ok {
			if err := p.PingContext(ctxPing); err != nil {
				http.Error(w, "store not ready", http.StatusServiceUnavailable)
				return
			}
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
