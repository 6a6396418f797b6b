package service

import (
	"context"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"

	"techblog/internal/domain"
	"techblog/internal/repository"
	"techblog/pkg/logger"
	"techblog/pkg/metrics"
)

// syncService reconciles closed days from the counter store into the
// durable store. It never deletes counter keys; their TTL is the only cleanup.
type syncService struct {
	store       CounterStore
	repo        repository.VisitorStatsRepository
	location    *time.Location
	concurrency int
	now         func() time.Time
	logger      *logger.Logger
}

// NewSyncService creates a new sync service. Range reconciliation processes
// up to concurrency dates at once.
func NewSyncService(store CounterStore, repo repository.VisitorStatsRepository, location *time.Location, concurrency int, logger *logger.Logger, opts ...Option) SyncService {
	if concurrency < 1 {
		concurrency = 1
	}
	o := applyOptions(opts)
	return &syncService{
		store:       store,
		repo:        repo,
		location:    location,
		concurrency: concurrency,
		now:         o.now,
		logger:      logger,
	}
}

// SyncYesterday reconciles the day before today, the scheduled default
func (s *syncService) SyncYesterday(ctx context.Context) (*domain.SyncResult, error) {
	return s.SyncDate(ctx, s.today().AddDate(0, 0, -1))
}

// SyncDate reconciles one date. Reconciling today stores a point-in-time
// snapshot that a later run overwrites.
func (s *syncService) SyncDate(ctx context.Context, date time.Time) (*domain.SyncResult, error) {
	if err := s.validateEnd(date); err != nil {
		return nil, err
	}

	start := time.Now()
	result := s.syncOne(ctx, date)

	failed := 0
	if !result.Success {
		failed = 1
	}
	metrics.RecordSyncBatch(time.Since(start), failed)

	return &result, nil
}

// SyncRange reconciles end, end-1, ..., end-days+1. Dates are independent:
// a failed date is reported and the others still run.
func (s *syncService) SyncRange(ctx context.Context, end time.Time, days int) (*domain.SyncReport, error) {
	if days < 1 || days > MaxRangeDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d, got %d", domain.ErrInvalidDate, MaxRangeDays, days)
	}
	if err := s.validateEnd(end); err != nil {
		return nil, err
	}

	start := time.Now()
	results := make([]domain.SyncResult, days)

	pool := pond.NewPool(s.concurrency)
	for i := 0; i < days; i++ {
		date := end.AddDate(0, 0, -i)
		pool.Submit(func() {
			results[i] = s.syncOne(ctx, date)
		})
	}
	pool.StopAndWait()

	report := &domain.SyncReport{
		Requested: days,
		Results:   results,
	}
	for _, result := range results {
		if result.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}

	metrics.RecordSyncBatch(time.Since(start), report.Failed)
	s.logger.WithFields(map[string]interface{}{
		"end":       domain.FormatDate(end),
		"days":      days,
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
	}).Info("Visitor stats range reconciliation finished")

	return report, nil
}

// syncOne reads the counters for date and upserts them. When both keys are
// gone and a row already exists, the row is kept rather than zeroed.
func (s *syncService) syncOne(ctx context.Context, date time.Time) domain.SyncResult {
	day := domain.FormatDate(date)
	result := domain.SyncResult{Date: day}
	log := s.logger.WithField("date", day)

	counts, err := s.store.DailyCounts(ctx, date)
	if err != nil {
		metrics.RecordCounterStoreError("daily_counts")
		return s.fail(log, result, err, "failed to read counters")
	}

	if !counts.Present {
		existing, err := s.repo.GetByDate(ctx, date)
		if err != nil {
			return s.fail(log, result, err, "failed to read existing stats")
		}
		if existing != nil {
			result.Success = true
			result.Action = domain.SyncActionKept
			result.VisitorCount = existing.VisitorCount
			result.UniqueVisitorCount = existing.UniqueVisitorCount
			result.Message = fmt.Sprintf("counters for %s expired, kept existing stats", day)
			metrics.RecordSyncDate(string(result.Action))
			log.Info("Counters expired, existing visitor stats kept")
			return result
		}
	}

	record, created, err := s.repo.Upsert(ctx, date, counts.Hits, counts.Unique)
	if err != nil {
		log = log.WithFields(map[string]interface{}{
			"visitor_count":        counts.Hits,
			"unique_visitor_count": counts.Unique,
		})
		return s.fail(log, result, err, "failed to save stats")
	}

	result.Success = true
	result.Action = domain.SyncActionUpdated
	if created {
		result.Action = domain.SyncActionCreated
	}
	result.VisitorCount = record.VisitorCount
	result.UniqueVisitorCount = record.UniqueVisitorCount
	result.Message = fmt.Sprintf("%s stats for %s: %d visits, %d unique", result.Action, day, record.VisitorCount, record.UniqueVisitorCount)
	metrics.RecordSyncDate(string(result.Action))

	log.WithFields(map[string]interface{}{
		"action":               result.Action,
		"visitor_count":        record.VisitorCount,
		"unique_visitor_count": record.UniqueVisitorCount,
	}).Info("Visitor stats reconciled")

	return result
}

func (s *syncService) fail(log *logger.Logger, result domain.SyncResult, err error, message string) domain.SyncResult {
	result.Success = false
	result.Error = err.Error()
	result.Message = message
	metrics.RecordSyncDate("failed")
	log.WithError(err).Error("Visitor stats reconciliation failed: " + message)
	return result
}

func (s *syncService) validateEnd(date time.Time) error {
	if date.After(s.today()) {
		return fmt.Errorf("%w: %s is in the future", domain.ErrInvalidDate, domain.FormatDate(date))
	}
	return nil
}

func (s *syncService) today() time.Time {
	return domain.CivilDate(s.now(), s.location)
}
