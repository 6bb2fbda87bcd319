package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tablero/internal/models"
)

// SnapshotCache is a redis-backed read cache for table catalogs and day
// ledgers. Entries carry an explicit TTL and are invalidated on writes;
// any redis failure degrades to a cache miss.
type SnapshotCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zerolog.Logger
}

// New creates a cache with the given TTL.
func New(rdb *redis.Client, ttl time.Duration, logger *zerolog.Logger) *SnapshotCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SnapshotCache{rdb: rdb, ttl: ttl, logger: logger}
}

func tablesKey(restaurantID string) string {
	return "tables:" + restaurantID
}

func ledgerKey(restaurantID string, date time.Time) string {
	return fmt.Sprintf("ledger:%s:%s", restaurantID, date.Format("2006-01-02"))
}

func (c *SnapshotCache) GetTables(ctx context.Context, restaurantID string) ([]models.Table, bool) {
	var tables []models.Table
	if !c.read(ctx, tablesKey(restaurantID), &tables) {
		return nil, false
	}
	return tables, true
}

func (c *SnapshotCache) SetTables(ctx context.Context, restaurantID string, tables []models.Table) {
	c.write(ctx, tablesKey(restaurantID), tables)
}

// InvalidateTables drops the catalog entry, e.g. after an admin edit.
func (c *SnapshotCache) InvalidateTables(ctx context.Context, restaurantID string) {
	if err := c.rdb.Del(ctx, tablesKey(restaurantID)).Err(); err != nil {
		c.logger.Debug().Err(err).Msg("cache invalidate failed")
	}
}

func (c *SnapshotCache) GetLedger(ctx context.Context, restaurantID string, date time.Time) ([]models.Reservation, bool) {
	var ledger []models.Reservation
	if !c.read(ctx, ledgerKey(restaurantID, date), &ledger) {
		return nil, false
	}
	return ledger, true
}

func (c *SnapshotCache) SetLedger(ctx context.Context, restaurantID string, date time.Time, reservations []models.Reservation) {
	c.write(ctx, ledgerKey(restaurantID, date), reservations)
}

func (c *SnapshotCache) InvalidateLedger(ctx context.Context, restaurantID string, date time.Time) {
	if err := c.rdb.Del(ctx, ledgerKey(restaurantID, date)).Err(); err != nil {
		c.logger.Debug().Err(err).Msg("cache invalidate failed")
	}
}

func (c *SnapshotCache) read(ctx context.Context, key string, out interface{}) bool {
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *SnapshotCache) write(ctx context.Context, key string, val interface{}) {
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("cache write failed")
	}
}
