package service

import (
	"context"
	"fmt"
	"time"

	"techblog/internal/domain"
	"techblog/internal/repository"
	"techblog/pkg/logger"
	"techblog/pkg/metrics"
)

// MaxRangeDays bounds history queries and range reconciliation
const MaxRangeDays = 366

// statsService combines live counters (today) with reconciled rows (past days).
// Counter store failures degrade to zero; durable store failures propagate.
type statsService struct {
	store    CounterStore
	repo     repository.VisitorStatsRepository
	location *time.Location
	now      func() time.Time
	logger   *logger.Logger
}

// NewStatsService creates a new stats service
func NewStatsService(store CounterStore, repo repository.VisitorStatsRepository, location *time.Location, logger *logger.Logger, opts ...Option) StatsService {
	o := applyOptions(opts)
	return &statsService{
		store:    store,
		repo:     repo,
		location: location,
		now:      o.now,
		logger:   logger,
	}
}

func (s *statsService) Today() time.Time {
	return domain.CivilDate(s.now(), s.location)
}

func (s *statsService) TodayCount(ctx context.Context) int64 {
	return s.liveCounts(ctx, s.Today()).Hits
}

func (s *statsService) TodayUniqueCount(ctx context.Context) int64 {
	return s.liveCounts(ctx, s.Today()).Unique
}

func (s *statsService) AllTimeUniqueCount(ctx context.Context) (int64, error) {
	today := s.Today()
	return s.allTimeUnique(ctx, today, func() int64 {
		return s.liveCounts(ctx, today).Unique
	})
}

// allTimeUnique adds todayUnique only when today has no reconciled row, so an
// early manual reconciliation is never counted twice
func (s *statsService) allTimeUnique(ctx context.Context, today time.Time, todayUnique func() int64) (int64, error) {
	sum, hasToday, err := s.repo.SumUniqueVisitors(ctx, today)
	if err != nil {
		return 0, err
	}
	if hasToday {
		return sum, nil
	}
	return sum + todayUnique(), nil
}

// HistoricalCount resolves a date by precedence: today reads the live
// counters, a past date reads its reconciled row and falls back to whatever
// the counters still hold (zero once they expired).
func (s *statsService) HistoricalCount(ctx context.Context, date time.Time) (*domain.HistoricalStats, error) {
	today := s.Today()

	switch {
	case date.After(today):
		return nil, fmt.Errorf("%w: %s is in the future", domain.ErrInvalidDate, domain.FormatDate(date))

	case date.Equal(today):
		counts := s.liveCounts(ctx, today)
		return &domain.HistoricalStats{
			Date:               domain.FormatDate(date),
			VisitorCount:       counts.Hits,
			UniqueVisitorCount: counts.Unique,
			Source:             domain.SourceLive,
		}, nil
	}

	record, err := s.repo.GetByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	if record != nil {
		return recordToStats(record), nil
	}

	counts := s.liveCounts(ctx, date)
	return &domain.HistoricalStats{
		Date:               domain.FormatDate(date),
		VisitorCount:       counts.Hits,
		UniqueVisitorCount: counts.Unique,
		Source:             domain.SourceCounter,
	}, nil
}

func (s *statsService) Summary(ctx context.Context) (*domain.StatsSummary, error) {
	today := s.Today()
	counts := s.liveCounts(ctx, today)

	total, err := s.allTimeUnique(ctx, today, func() int64 { return counts.Unique })
	if err != nil {
		return nil, err
	}

	totalHits, err := s.store.TotalHits(ctx)
	if err != nil {
		metrics.RecordCounterStoreError("total_hits")
		s.logger.WithError(err).Warn("Failed to read total hit counter")
		totalHits = 0
	}

	return &domain.StatsSummary{
		Today:       counts.Hits,
		TodayUnique: counts.Unique,
		Total:       total,
		Date:        domain.FormatDate(today),
		TotalHits:   totalHits,
	}, nil
}

func (s *statsService) History(ctx context.Context, from, to time.Time) ([]domain.HistoricalStats, error) {
	if from.After(to) {
		return nil, fmt.Errorf("%w: from %s is after to %s", domain.ErrInvalidDate, domain.FormatDate(from), domain.FormatDate(to))
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > MaxRangeDays {
		return nil, fmt.Errorf("%w: range of %d days exceeds %d", domain.ErrInvalidDate, days, MaxRangeDays)
	}

	records, err := s.repo.ListRange(ctx, from, to)
	if err != nil {
		return nil, err
	}

	history := make([]domain.HistoricalStats, 0, len(records))
	for _, record := range records {
		history = append(history, *recordToStats(record))
	}
	return history, nil
}

// liveCounts reads the counters for date, yielding zeros when the store fails
func (s *statsService) liveCounts(ctx context.Context, date time.Time) *domain.DailyCounts {
	counts, err := s.store.DailyCounts(ctx, date)
	if err != nil {
		metrics.RecordCounterStoreError("daily_counts")
		s.logger.WithError(err).WithField("date", domain.FormatDate(date)).Warn("Counter store unavailable, using zero counts")
		return &domain.DailyCounts{Date: date}
	}
	return counts
}

func recordToStats(record *domain.VisitorStatsRecord) *domain.HistoricalStats {
	return &domain.HistoricalStats{
		Date:               domain.FormatDate(record.Date),
		VisitorCount:       record.VisitorCount,
		UniqueVisitorCount: record.UniqueVisitorCount,
		Source:             domain.SourceDurable,
	}
}
