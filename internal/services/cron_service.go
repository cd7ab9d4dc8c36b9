package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// jobTimeout bounds a single scheduled run
const jobTimeout = 10 * time.Minute

// ExpiredTokenCleaner removes refresh tokens past their expiry
type ExpiredTokenCleaner interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditPruner removes audit entries past their retention
type AuditPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CronService manages scheduled background jobs
type CronService struct {
	cron       *cron.Cron
	reconciler *ReconcileService
	tokens     ExpiredTokenCleaner
	schedule   string
	logger     *logrus.Logger

	audit          AuditPruner
	auditRetention time.Duration
	now            func() time.Time
}

// NewCronService creates a new CronService. schedule uses the six-field
// format with seconds; an empty schedule disables reconciliation.
func NewCronService(reconciler *ReconcileService, tokens ExpiredTokenCleaner, schedule string, logger *logrus.Logger) *CronService {
	return &CronService{
		cron:       cron.New(cron.WithSeconds()),
		reconciler: reconciler,
		tokens:     tokens,
		schedule:   schedule,
		logger:     logger,
		now:        time.Now,
	}
}

// WithAuditRetention prunes audit entries older than retention once a day.
// Call before Start; a nil pruner or zero retention leaves pruning off.
func (s *CronService) WithAuditRetention(pruner AuditPruner, retention time.Duration) *CronService {
	s.audit = pruner
	s.auditRetention = retention
	return s
}

// Start schedules the jobs and starts the scheduler
func (s *CronService) Start() error {
	if s.schedule != "" {
		if _, err := s.cron.AddFunc(s.schedule, s.reconcileSeatsJob); err != nil {
			return fmt.Errorf("failed to schedule seat reconciliation: %w", err)
		}
		s.logger.WithField("schedule", s.schedule).Info("Scheduled: seat inventory reconciliation")
	}

	// "0 30 4 * * *" = At 4:30 AM every day
	if s.tokens != nil {
		if _, err := s.cron.AddFunc("0 30 4 * * *", s.cleanupTokensJob); err != nil {
			return fmt.Errorf("failed to schedule token cleanup: %w", err)
		}
		s.logger.Info("Scheduled: expired refresh token cleanup (daily at 4:30 AM)")
	}

	// "0 45 4 * * *" = At 4:45 AM every day
	if s.audit != nil && s.auditRetention > 0 {
		if _, err := s.cron.AddFunc("0 45 4 * * *", s.pruneAuditJob); err != nil {
			return fmt.Errorf("failed to schedule audit retention: %w", err)
		}
		s.logger.WithField("retention", s.auditRetention.String()).Info("Scheduled: audit log retention (daily at 4:45 AM)")
	}

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

// RunReconcileNow runs the reconciliation immediately and returns its report
func (s *CronService) RunReconcileNow(ctx context.Context) (*ReconcileReport, error) {
	report, err := s.reconciler.Run(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"trips_checked":  report.TripsChecked,
		"trips_repaired": report.TripsRepaired,
		"failures":       report.Failures,
		"duration_ms":    report.Duration.Milliseconds(),
	}).Info("[CRON] Seat reconciliation finished")
	return report, nil
}

func (s *CronService) reconcileSeatsJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if _, err := s.RunReconcileNow(ctx); err != nil {
		s.logger.WithError(err).Error("[CRON] Seat reconciliation failed")
	}
}

func (s *CronService) cleanupTokensJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	deleted, err := s.tokens.DeleteExpired(ctx, s.now())
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Refresh token cleanup failed")
		return
	}
	s.logger.WithField("deleted", deleted).Info("[CRON] Refresh token cleanup finished")
}

func (s *CronService) pruneAuditJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	cutoff := s.now().Add(-s.auditRetention)
	deleted, err := s.audit.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Audit log retention failed")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"deleted": deleted,
		"cutoff":  cutoff,
	}).Info("[CRON] Audit log retention finished")
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
