package service

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"

	"techblog/pkg/logger"
)

// SyncScheduler reconciles yesterday once a day at a fixed wall-clock time in
// the site time zone. It implements suture.Service.
type SyncScheduler struct {
	sync     SyncService
	hour     int
	minute   int
	location *time.Location
	timeout  time.Duration
	logger   *logger.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// NewSyncScheduler creates a daily scheduler; each run is bounded by timeout
func NewSyncScheduler(sync SyncService, hour, minute int, location *time.Location, timeout time.Duration, logger *logger.Logger, opts ...Option) *SyncScheduler {
	o := applyOptions(opts)
	return &SyncScheduler{
		sync:     sync,
		hour:     hour,
		minute:   minute,
		location: location,
		timeout:  timeout,
		logger:   logger,
		now:      o.now,
		after:    time.After,
	}
}

// Serve waits for each run time until ctx is canceled
func (s *SyncScheduler) Serve(ctx context.Context) error {
	for {
		now := s.now()
		next := NextRun(now, s.hour, s.minute, s.location)
		s.logger.WithField("next_run", next.Format(time.RFC3339)).Info("Visitor stats sync scheduled")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.after(next.Sub(now)):
			s.runOnce(ctx)
		}
	}
}

// String implements fmt.Stringer; suture uses it in events
func (s *SyncScheduler) String() string {
	return "visitor-sync-scheduler"
}

func (s *SyncScheduler) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.sync.SyncYesterday(runCtx)
	if err != nil {
		s.logger.WithError(err).Error("Scheduled visitor stats sync rejected")
		return
	}

	log := s.logger.WithFields(map[string]interface{}{
		"date":    result.Date,
		"success": result.Success,
		"action":  result.Action,
	})
	if !result.Success {
		log.WithField("error", result.Error).Error("Scheduled visitor stats sync failed")
		return
	}
	log.Info("Scheduled visitor stats sync completed")
}

// NextRun returns the first hour:minute in loc strictly after now
func NextRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

// NewSupervisor creates the supervisor that restarts background services,
// reporting its events through log
func NewSupervisor(log *logger.Logger) *suture.Supervisor {
	return suture.New("techblog", suture.Spec{
		EventHook: func(e suture.Event) {
			fields := make([]zap.Field, 0, 4)
			for k, v := range e.Map() {
				fields = append(fields, zap.Any(k, v))
			}
			log.Warn("supervisor_event: "+e.String(), fields...)
		},
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})
}

var _ suture.Service = (*SyncScheduler)(nil)
