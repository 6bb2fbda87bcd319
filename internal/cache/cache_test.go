package cache

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablero/internal/models"
)

func newTestCache(t *testing.T) (*SnapshotCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := zerolog.New(io.Discard)
	return New(rdb, time.Minute, &logger), mr
}

func TestSnapshotCache_Tables(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, ok := c.GetTables(ctx, "r1")
	assert.False(t, ok)

	tables := []models.Table{{ID: "T1", Capacity: 4, Zone: "main"}}
	c.SetTables(ctx, "r1", tables)

	got, ok := c.GetTables(ctx, "r1")
	assert.True(t, ok)
	assert.Equal(t, tables, got)

	c.InvalidateTables(ctx, "r1")
	_, ok = c.GetTables(ctx, "r1")
	assert.False(t, ok)
}

func TestSnapshotCache_Ledger(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	date := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	ledger := []models.Reservation{{
		ID:              "abc",
		StartAt:         date.Add(19 * time.Hour),
		PartySize:       2,
		Status:          models.StatusConfirmed,
		AssignedTableID: "T1",
	}}
	c.SetLedger(ctx, "r1", date, ledger)

	got, ok := c.GetLedger(ctx, "r1", date)
	assert.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "abc", got[0].ID)
	assert.True(t, got[0].StartAt.Equal(ledger[0].StartAt))

	// Another date is a different key.
	_, ok = c.GetLedger(ctx, "r1", date.AddDate(0, 0, 1))
	assert.False(t, ok)

	c.InvalidateLedger(ctx, "r1", date)
	_, ok = c.GetLedger(ctx, "r1", date)
	assert.False(t, ok)
}

func TestSnapshotCache_TTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.SetTables(ctx, "r1", []models.Table{{ID: "T1", Capacity: 2}})
	mr.FastForward(2 * time.Minute)

	_, ok := c.GetTables(ctx, "r1")
	assert.False(t, ok)
}

func TestSnapshotCache_RedisDownIsMiss(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.SetTables(ctx, "r1", []models.Table{{ID: "T1", Capacity: 2}})
	mr.Close()

	_, ok := c.GetTables(ctx, "r1")
	assert.False(t, ok)
}
