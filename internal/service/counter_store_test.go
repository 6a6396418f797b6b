package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterStore_RecordHit(t *testing.T) {
	mr, _, store := setupCounterStore(t)
	ctx := context.Background()
	d := mustDate(t, "2024-01-14")

	require.NoError(t, store.RecordHit(ctx, d, "1.1.1.1"))
	require.NoError(t, store.RecordHit(ctx, d, "1.1.1.1"))
	require.NoError(t, store.RecordHit(ctx, d, "2.2.2.2"))

	hits, err := mr.Get("test:visitors:daily:2024-01-14")
	require.NoError(t, err)
	assert.Equal(t, "3", hits)

	members, err := mr.Members("test:visitors:set:2024-01-14")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1.1.1.1", "2.2.2.2"}, members)

	total, err := mr.Get("test:visitors:total")
	require.NoError(t, err)
	assert.Equal(t, "3", total)

	assert.Equal(t, testTTL, mr.TTL("test:visitors:daily:2024-01-14"))
	assert.Equal(t, testTTL, mr.TTL("test:visitors:set:2024-01-14"))
	assert.Zero(t, mr.TTL("test:visitors:total"), "total counter never expires")
}

func TestCounterStore_RecordHitRefreshesTTL(t *testing.T) {
	mr, _, store := setupCounterStore(t)
	ctx := context.Background()
	d := mustDate(t, "2024-01-14")

	require.NoError(t, store.RecordHit(ctx, d, "1.1.1.1"))
	mr.FastForward(testTTL / 2)
	require.NoError(t, store.RecordHit(ctx, d, "2.2.2.2"))

	assert.Equal(t, testTTL, mr.TTL("test:visitors:daily:2024-01-14"))
	assert.Equal(t, testTTL, mr.TTL("test:visitors:set:2024-01-14"))
}

func TestCounterStore_RecordHitWithoutIP(t *testing.T) {
	mr, _, store := setupCounterStore(t)
	ctx := context.Background()
	d := mustDate(t, "2024-01-14")

	require.NoError(t, store.RecordHit(ctx, d, ""))

	assert.True(t, mr.Exists("test:visitors:daily:2024-01-14"))
	assert.False(t, mr.Exists("test:visitors:set:2024-01-14"))

	counts, err := store.DailyCounts(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Hits)
	assert.Equal(t, int64(0), counts.Unique)
	assert.True(t, counts.Present)
}

func TestCounterStore_DailyCounts(t *testing.T) {
	mr, _, store := setupCounterStore(t)
	ctx := context.Background()
	d := mustDate(t, "2024-01-14")

	counts, err := store.DailyCounts(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Hits)
	assert.Equal(t, int64(0), counts.Unique)
	assert.False(t, counts.Present)

	require.NoError(t, mr.Set("test:visitors:daily:2024-01-14", "7"))
	_, err = mr.SetAdd("test:visitors:set:2024-01-14", "1.1.1.1", "2.2.2.2")
	require.NoError(t, err)

	counts, err = store.DailyCounts(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, int64(7), counts.Hits)
	assert.Equal(t, int64(2), counts.Unique)
	assert.True(t, counts.Present)
	assert.True(t, d.Equal(counts.Date))
}

func TestCounterStore_DailyCountsAfterExpiry(t *testing.T) {
	mr, _, store := setupCounterStore(t)
	ctx := context.Background()
	d := mustDate(t, "2024-01-14")

	require.NoError(t, store.RecordHit(ctx, d, "1.1.1.1"))
	mr.FastForward(testTTL + 1)

	counts, err := store.DailyCounts(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Hits)
	assert.Equal(t, int64(0), counts.Unique)
	assert.False(t, counts.Present)
}

func TestCounterStore_DailyCountsReportsMaskedFailure(t *testing.T) {
	mr, _, store := setupCounterStore(t)
	ctx := context.Background()
	d := mustDate(t, "2024-01-14")

	// The daily key is missing (GET yields redis.Nil first) while SCARD
	// fails on a key of the wrong type
	require.NoError(t, mr.Set("test:visitors:set:2024-01-14", "not-a-set"))

	counts, err := store.DailyCounts(ctx, d)
	require.Error(t, err)
	assert.Nil(t, counts)
	assert.Contains(t, err.Error(), "unique visitors")
}

func TestCounterStore_TotalHits(t *testing.T) {
	mr, _, store := setupCounterStore(t)
	ctx := context.Background()

	total, err := store.TotalHits(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	require.NoError(t, mr.Set("test:visitors:total", "42"))
	total, err = store.TotalHits(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), total)
}

func TestCounterStore_Unavailable(t *testing.T) {
	mr, _, store := setupCounterStore(t)
	ctx := context.Background()
	d := mustDate(t, "2024-01-14")

	mr.Close()

	assert.Error(t, store.RecordHit(ctx, d, "1.1.1.1"))
	_, err := store.DailyCounts(ctx, d)
	assert.Error(t, err)
	_, err = store.TotalHits(ctx)
	assert.Error(t, err)
}
