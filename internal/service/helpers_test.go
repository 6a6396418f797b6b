package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"techblog/internal/config"
	"techblog/internal/domain"
	"techblog/pkg/logger"
	"techblog/pkg/redis"
)

const testTTL = 30 * 24 * time.Hour

var errDBDown = errors.New("database unavailable")

func seoul(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	return loc
}

// clockAt returns a clock fixed at hour:00 on the given civil date in loc
func clockAt(t *testing.T, day string, hour int, loc *time.Location) func() time.Time {
	t.Helper()
	d := mustDate(t, day)
	instant := time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, loc)
	return func() time.Time { return instant }
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := domain.ParseDate(s)
	require.NoError(t, err)
	return d
}

func setupCounterStore(t *testing.T) (*miniredis.Miniredis, *redis.Client, CounterStore) {
	t.Helper()
	mr := miniredis.RunT(t)

	client, err := redis.NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return mr, client, NewCounterStore(client, testTTL)
}

// testHarness wires a miniredis counter store and an in-memory repository
// with the clock fixed at 2024-01-15 10:00 in Seoul
type testHarness struct {
	mr     *miniredis.Miniredis
	client *redis.Client
	store  CounterStore
	repo   *fakeStatsRepo
	loc    *time.Location
	now    func() time.Time
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	mr, client, store := setupCounterStore(t)
	loc := seoul(t)
	return &testHarness{
		mr:     mr,
		client: client,
		store:  store,
		repo:   newFakeStatsRepo(),
		loc:    loc,
		now:    clockAt(t, "2024-01-15", 10, loc),
	}
}

func (h *testHarness) statsService(t *testing.T) StatsService {
	t.Helper()
	return NewStatsService(h.store, h.repo, h.loc, testLogger(), WithClock(h.now))
}

func (h *testHarness) syncService(t *testing.T) SyncService {
	t.Helper()
	return NewSyncService(h.store, h.repo, h.loc, 4, testLogger(), WithClock(h.now))
}

// hit records a counted hit for day directly in the counter store
func (h *testHarness) hit(t *testing.T, day, ip string) {
	t.Helper()
	require.NoError(t, h.store.RecordHit(context.Background(), mustDate(t, day), ip))
}

func defaultClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier(config.DefaultExcludedPaths, config.DefaultBotPatterns, config.DefaultExcludedCIDRs)
	require.NoError(t, err)
	return c
}

func testLogger() *logger.Logger {
	return logger.NewNop()
}

// fakeStatsRepo is an in-memory VisitorStatsRepository with failure injection
type fakeStatsRepo struct {
	mu      sync.Mutex
	rows    map[string]*domain.VisitorStatsRecord
	nextID  int64
	upserts int

	failUpsert map[string]error // by date
	failRead   error
}

func newFakeStatsRepo() *fakeStatsRepo {
	return &fakeStatsRepo{
		rows:       map[string]*domain.VisitorStatsRecord{},
		failUpsert: map[string]error{},
	}
}

func (r *fakeStatsRepo) put(date time.Time, visitors, unique int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.rows[domain.FormatDate(date)] = &domain.VisitorStatsRecord{
		ID:                 r.nextID,
		Date:               date,
		VisitorCount:       visitors,
		UniqueVisitorCount: unique,
	}
}

func (r *fakeStatsRepo) row(date string) *domain.VisitorStatsRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.rows[date]; ok {
		cp := *rec
		return &cp
	}
	return nil
}

func (r *fakeStatsRepo) Upsert(_ context.Context, date time.Time, visitorCount, uniqueVisitorCount int64) (*domain.VisitorStatsRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	day := domain.FormatDate(date)
	if err := r.failUpsert[day]; err != nil {
		return nil, false, err
	}
	r.upserts++

	now := time.Now()
	rec, ok := r.rows[day]
	if !ok {
		r.nextID++
		rec = &domain.VisitorStatsRecord{ID: r.nextID, Date: date, CreatedAt: now}
		r.rows[day] = rec
	}
	rec.VisitorCount = visitorCount
	rec.UniqueVisitorCount = uniqueVisitorCount
	rec.UpdatedAt = now

	cp := *rec
	return &cp, !ok, nil
}

func (r *fakeStatsRepo) GetByDate(_ context.Context, date time.Time) (*domain.VisitorStatsRecord, error) {
	if r.failRead != nil {
		return nil, r.failRead
	}
	return r.row(domain.FormatDate(date)), nil
}

func (r *fakeStatsRepo) SumUniqueVisitors(_ context.Context, today time.Time) (int64, bool, error) {
	if r.failRead != nil {
		return 0, false, r.failRead
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var sum int64
	for _, rec := range r.rows {
		sum += rec.UniqueVisitorCount
	}
	_, hasToday := r.rows[domain.FormatDate(today)]
	return sum, hasToday, nil
}

func (r *fakeStatsRepo) ListRange(_ context.Context, from, to time.Time) ([]*domain.VisitorStatsRecord, error) {
	if r.failRead != nil {
		return nil, r.failRead
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	records := []*domain.VisitorStatsRecord{}
	for _, rec := range r.rows {
		if !rec.Date.Before(from) && !rec.Date.After(to) {
			cp := *rec
			records = append(records, &cp)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Date.After(records[j].Date) })
	return records, nil
}

// failingStore is a CounterStore whose every call fails
type failingStore struct{ err error }

func (s failingStore) RecordHit(context.Context, time.Time, string) error { return s.err }

func (s failingStore) DailyCounts(context.Context, time.Time) (*domain.DailyCounts, error) {
	return nil, s.err
}

func (s failingStore) TotalHits(context.Context) (int64, error) { return 0, s.err }
