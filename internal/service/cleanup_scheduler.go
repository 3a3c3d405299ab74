package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-archive-api/internal/models"
	appErrors "github.com/noah-isme/attendance-archive-api/pkg/errors"
	"github.com/noah-isme/attendance-archive-api/pkg/jobs"
)

// JobTypeArchiveCleanup identifies automatic cleanup jobs on the queue.
const JobTypeArchiveCleanup = "archive.cleanup"

type scheduledCleaner interface {
	RunScheduledCleanup(ctx context.Context) (*models.CleanupResult, error)
}

// CleanupSchedulerConfig controls the automatic cleanup trigger.
type CleanupSchedulerConfig struct {
	Schedule string
	Location *time.Location
}

// CleanupScheduler checks on a cron schedule whether the previous month can be cleaned
// and hands the work to a single-worker queue so runs never overlap.
type CleanupScheduler struct {
	cleaner  scheduledCleaner
	schedule string
	cron     *cron.Cron
	queue    *jobs.Queue
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
}

// NewCleanupScheduler constructs the scheduler. Start must be called to activate it.
func NewCleanupScheduler(cleaner scheduledCleaner, cfg CleanupSchedulerConfig, logger *zap.Logger) *CleanupScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "0 * * * *"
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	s := &CleanupScheduler{
		cleaner:  cleaner,
		schedule: cfg.Schedule,
		cron:     cron.New(cron.WithLocation(loc)),
		logger:   logger,
	}
	s.queue = jobs.NewQueue("archive-cleanup", s.handle, jobs.QueueConfig{
		Workers:    1,
		BufferSize: 1,
		MaxRetries: 0,
		Logger:     logger,
	})
	return s
}

// Start validates the schedule, starts the worker and registers the cron entry.
func (s *CleanupScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", s.schedule, err)
	}

	s.queue.Start(ctx)
	if _, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.Trigger(); err != nil {
			s.logger.Warn("failed to enqueue scheduled cleanup", zap.Error(err))
		}
	}); err != nil {
		s.queue.Stop()
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("cleanup scheduler started", zap.String("schedule", s.schedule))
	return nil
}

// Trigger enqueues a cleanup check immediately. A check already waiting in the queue
// absorbs the trigger.
func (s *CleanupScheduler) Trigger() error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return errors.New("cleanup scheduler not started")
	}

	queued, err := s.queue.TryEnqueue(jobs.Job{ID: uuid.NewString(), Type: JobTypeArchiveCleanup})
	if err != nil {
		return err
	}
	if !queued {
		s.logger.Debug("cleanup check already pending")
	}
	return nil
}

// Stop halts the cron loop, waits for a running check and drains the worker.
func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.queue.Stop()
	s.logger.Info("cleanup scheduler stopped")
}

// NextRun returns the next scheduled check, if any.
func (s *CleanupScheduler) NextRun() *time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}

func (s *CleanupScheduler) handle(ctx context.Context, job jobs.Job) error {
	result, err := s.cleaner.RunScheduledCleanup(ctx)
	switch {
	case err == nil:
		s.logger.Info("scheduled cleanup completed",
			zap.String("job_id", job.ID),
			zap.Int("year", result.Period.Year),
			zap.Int("month", result.Period.Month),
			zap.Int("records_deleted", result.RecordsDeleted.Total()),
			zap.Int("image_failures", result.ImageFailures),
		)
		return nil
	case skippedCleanup(err):
		s.logger.Debug("scheduled cleanup skipped", zap.String("job_id", job.ID), zap.String("reason", err.Error()))
		return nil
	default:
		return err
	}
}

func skippedCleanup(err error) bool {
	return errors.Is(err, appErrors.ErrNotCompleted) ||
		errors.Is(err, appErrors.ErrAlreadyCleaned) ||
		errors.Is(err, appErrors.ErrOutsideCleanupWindow)
}
