package repository

import (
	"context"
	"time"

	"techblog/internal/domain"
)

// VisitorStatsRepository defines the durable per-date visitor stats operations.
// Dates are civil dates (midnight UTC, see domain.CivilDate).
type VisitorStatsRepository interface {
	// Upsert writes the counts for date, overwriting an existing row.
	// created reports whether a new row was inserted.
	Upsert(ctx context.Context, date time.Time, visitorCount, uniqueVisitorCount int64) (record *domain.VisitorStatsRecord, created bool, err error)

	// GetByDate returns the row for date, or nil when none exists
	GetByDate(ctx context.Context, date time.Time) (*domain.VisitorStatsRecord, error)

	// SumUniqueVisitors returns the sum of unique_visitor_count over all rows
	// and whether a row exists for today
	SumUniqueVisitors(ctx context.Context, today time.Time) (sum int64, hasToday bool, err error)

	// ListRange returns rows with from <= date <= to, newest first
	ListRange(ctx context.Context, from, to time.Time) ([]*domain.VisitorStatsRecord, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	VisitorStats VisitorStatsRepository
}
