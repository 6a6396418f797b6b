package service

import (
	"context"
	"time"

	"techblog/internal/domain"
	"techblog/pkg/logger"
	"techblog/pkg/metrics"
)

// visitorService counts qualifying requests into the counter store
type visitorService struct {
	store      CounterStore
	classifier *Classifier
	location   *time.Location
	now        func() time.Time
	logger     *logger.Logger
}

// NewVisitorService creates a new visitor service. Hits are attributed to the
// civil date in location.
func NewVisitorService(store CounterStore, classifier *Classifier, location *time.Location, logger *logger.Logger, opts ...Option) VisitorService {
	o := applyOptions(opts)
	return &visitorService{
		store:      store,
		classifier: classifier,
		location:   location,
		now:        o.now,
		logger:     logger,
	}
}

// RecordVisit classifies the request and, if it qualifies, records the hit.
// Store failures are logged and swallowed.
func (s *visitorService) RecordVisit(ctx context.Context, req domain.VisitRequest) bool {
	if reason := s.classifier.Classify(req.Path, req.UserAgent, req.IPAddress); reason != ReasonNone {
		metrics.RecordExcluded(string(reason))
		return false
	}

	today := domain.CivilDate(s.now(), s.location)
	if err := s.store.RecordHit(ctx, today, req.IPAddress); err != nil {
		metrics.RecordCounterStoreError("record_hit")
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"date": domain.FormatDate(today),
			"path": req.Path,
		}).Warn("Failed to record visit")
		return false
	}

	metrics.RecordHit()
	return true
}
