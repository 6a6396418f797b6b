package service

import (
	"context"
	"time"

	"techblog/internal/domain"
)

// CounterStore defines the fast, TTL-bound per-date counters
type CounterStore interface {
	// RecordHit applies one qualifying hit for date: daily and total counters
	// are incremented and ip joins the date's unique visitor set
	RecordHit(ctx context.Context, date time.Time, ip string) error

	// DailyCounts reads the raw and unique counts for date; missing keys read as zero
	DailyCounts(ctx context.Context, date time.Time) (*domain.DailyCounts, error)

	// TotalHits reads the global raw hit counter
	TotalHits(ctx context.Context) (int64, error)
}

// VisitorService defines the counting path
type VisitorService interface {
	// RecordVisit counts the request unless it is excluded. It never fails;
	// the return value reports whether the hit was stored.
	RecordVisit(ctx context.Context, req domain.VisitRequest) bool
}

// StatsService defines the visitor stats read operations
type StatsService interface {
	// Today returns the current civil date in the site time zone
	Today() time.Time

	// TodayCount returns today's raw hits, 0 when the counter store is unavailable
	TodayCount(ctx context.Context) int64

	// TodayUniqueCount returns today's unique visitors, 0 when the counter store is unavailable
	TodayUniqueCount(ctx context.Context) int64

	// AllTimeUniqueCount sums reconciled unique visitors, plus today's live
	// figure when today has not been reconciled yet
	AllTimeUniqueCount(ctx context.Context) (int64, error)

	// HistoricalCount returns the figures for a date that is not in the future
	HistoricalCount(ctx context.Context, date time.Time) (*domain.HistoricalStats, error)

	// Summary returns the current stats shown on the site
	Summary(ctx context.Context) (*domain.StatsSummary, error)

	// History lists reconciled rows in an inclusive range, newest first
	History(ctx context.Context, from, to time.Time) ([]domain.HistoricalStats, error)
}

// SyncService defines the reconciliation entry points. Errors are returned
// only for invalid input; per-date failures are reported in the results.
type SyncService interface {
	SyncDate(ctx context.Context, date time.Time) (*domain.SyncResult, error)
	SyncRange(ctx context.Context, end time.Time, days int) (*domain.SyncReport, error)
	SyncYesterday(ctx context.Context) (*domain.SyncResult, error)
}

// Services aggregates all service interfaces
type Services struct {
	Visitor VisitorService
	Stats   StatsService
	Sync    SyncService
}

// Option customizes a service
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now as the source of "today"
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func applyOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
