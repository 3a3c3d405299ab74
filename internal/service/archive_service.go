package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-archive-api/internal/models"
	"github.com/noah-isme/attendance-archive-api/internal/retention"
	appErrors "github.com/noah-isme/attendance-archive-api/pkg/errors"
	"github.com/noah-isme/attendance-archive-api/pkg/storage"
)

const summaryCachePattern = "archive:summary*"

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type archivePeriodStore interface {
	GetPeriod(ctx context.Context, year, month int) (*models.ArchivePeriod, error)
	MarkComplete(ctx context.Context, year, month int, userID string, at time.Time) (*models.ArchivePeriod, error)
	LatestPendingCleanup(ctx context.Context, year, month int) (*models.ArchivePeriod, error)
	LatestCompleted(ctx context.Context, year, month int) (*models.ArchivePeriod, error)
	CleanupPeriod(ctx context.Context, periodID string, cutoff, executedAt time.Time) (*models.DeletionBatch, error)
	ClearAll(ctx context.Context) (*models.DeletionBatch, error)
}

type recordCounter interface {
	Count(ctx context.Context, filter models.RecordFilter) (int, error)
}

type photoRemover interface {
	Delete(ctx context.Context, key string) error
}

type summaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

// ArchiveServiceConfig holds the retention policy and confirmation literal.
type ArchiveServiceConfig struct {
	Policy         retention.Policy
	ClearAllPhrase string
	Location       *time.Location
	SummaryTTL     time.Duration
}

// ArchiveService runs the monthly archive lifecycle: summary, attestation, cleanup and clear-all.
type ArchiveService struct {
	periods     archivePeriodStore
	attendance  recordCounter
	assessments recordCounter
	photos      photoRemover
	cache       summaryCache
	metrics     *MetricsService
	audit       auditLogger
	clock       retention.Clock
	logger      *zap.Logger
	cfg         ArchiveServiceConfig
}

// NewArchiveService constructs the service with defaults.
func NewArchiveService(periods archivePeriodStore, attendance, assessments recordCounter, photos photoRemover, cache summaryCache, metrics *MetricsService, audit auditLogger, clock retention.Clock, logger *zap.Logger, cfg ArchiveServiceConfig) *ArchiveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if clock == nil {
		clock = retention.SystemClock{Location: cfg.Location}
	}
	if cfg.Policy == (retention.Policy{}) {
		cfg.Policy = retention.DefaultPolicy()
	}
	if cfg.ClearAllPhrase == "" {
		cfg.ClearAllPhrase = "DELETE ALL DATA"
	}
	if cfg.SummaryTTL <= 0 {
		cfg.SummaryTTL = 30 * time.Second
	}
	return &ArchiveService{
		periods:     periods,
		attendance:  attendance,
		assessments: assessments,
		photos:      photos,
		cache:       cache,
		metrics:     metrics,
		audit:       audit,
		clock:       clock,
		logger:      logger,
		cfg:         cfg,
	}
}

// Summary reports the current month, its archive state, the cleanup target and current data counts.
func (s *ArchiveService) Summary(ctx context.Context) (*models.ArchiveSummary, error) {
	now := s.now()
	key := fmt.Sprintf("archive:summary:%s", now.Format("2006-01-02"))
	if s.cache != nil {
		var cached models.ArchiveSummary
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, nil
		}
	}

	year, month := now.Year(), int(now.Month())
	period, err := s.periods.GetPeriod(ctx, year, month)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load archive period")
	}
	target, err := s.cleanupCandidate(ctx, year, month)
	if err != nil {
		return nil, err
	}

	window := s.cfg.Policy.Compute(now, period != nil && period.Completed)
	summary := &models.ArchiveSummary{
		CurrentMonth:       window.CurrentMonthLabel,
		Year:               year,
		Month:              month,
		DaysUntilMonthEnd:  window.DaysUntilMonthEnd,
		ArchiveStatus:      models.StatusOf(year, month, period),
		IsCleanupWindow:    window.IsCleanupWindow,
		ShouldShowReminder: window.ShouldShowReminder,
		GeneratedAt:        now.UTC(),
	}
	if target != nil {
		status := models.StatusOf(target.Year, target.Month, target)
		summary.CleanupTarget = &status
	}

	start, end := retention.MonthBounds(year, now.Month(), s.cfg.Location)
	filter := models.RecordFilter{Start: &start, End: &end}
	current := &models.CurrentData{}
	if current.Attendance, err = s.attendance.Count(ctx, filter); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count attendance")
	}
	if current.Assessments, err = s.assessments.Count(ctx, filter); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count assessments")
	}
	summary.CurrentData = current

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, summary, s.cfg.SummaryTTL)
	}
	return summary, nil
}

// MarkComplete attests that the current month has been exported. It never records twice.
func (s *ArchiveService) MarkComplete(ctx context.Context, actor *models.JWTClaims) (*models.MarkCompleteResult, error) {
	if err := requireArchiveAdmin(actor); err != nil {
		return nil, err
	}
	now := s.now()
	year, month := now.Year(), int(now.Month())

	period, err := s.periods.MarkComplete(ctx, year, month, actor.UserID, now.UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyCompleted, fmt.Sprintf("%s is already marked complete", retention.MonthLabel(year, now.Month())))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark archive complete")
	}
	s.invalidateSummary(ctx)

	status := models.StatusOf(year, month, period)
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionArchiveMarkComplete,
		Resource:   models.AuditResourceArchivePeriod,
		ResourceID: &period.ID,
		NewValues:  mustJSON(status),
	})
	s.logger.Info("archive period marked complete", zap.Int("year", year), zap.Int("month", month), zap.String("user_id", actor.UserID))
	return &models.MarkCompleteResult{Success: true, Period: status}, nil
}

// ExecuteCleanup deletes the operational records of the latest completed period. Without override
// it only runs for a past month during the cleanup window.
func (s *ArchiveService) ExecuteCleanup(ctx context.Context, actor *models.JWTClaims, override bool) (*models.CleanupResult, error) {
	if err := requireArchiveAdmin(actor); err != nil {
		return nil, err
	}
	trigger := models.CleanupTriggerManual
	if override {
		trigger = models.CleanupTriggerOverride
	}
	userID := actor.UserID
	return s.cleanup(ctx, &userID, trigger)
}

// RunScheduledCleanup is the automatic path used by the scheduler. It never overrides the window.
func (s *ArchiveService) RunScheduledCleanup(ctx context.Context) (*models.CleanupResult, error) {
	return s.cleanup(ctx, nil, models.CleanupTriggerScheduled)
}

func (s *ArchiveService) cleanup(ctx context.Context, userID *string, trigger models.CleanupTrigger) (result *models.CleanupResult, err error) {
	defer func() {
		if err != nil {
			s.metrics.RecordCleanup(trigger, err, models.RecordCounts{})
		}
	}()

	now := s.now()
	year, month := now.Year(), now.Month()

	target, err := s.periods.LatestPendingCleanup(ctx, year, int(month))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve cleanup target")
	}
	if target == nil {
		latest, lookupErr := s.periods.LatestCompleted(ctx, year, int(month))
		if lookupErr != nil {
			return nil, appErrors.Wrap(lookupErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve cleanup target")
		}
		if latest != nil && latest.CleanupExecutedAt != nil {
			return nil, appErrors.Clone(appErrors.ErrAlreadyCleaned, fmt.Sprintf("%s was already cleaned", retention.MonthLabel(latest.Year, time.Month(latest.Month))))
		}
		return nil, appErrors.Clone(appErrors.ErrNotCompleted, "no completed archive period awaits cleanup; mark the month complete first")
	}

	targetMonth := time.Month(target.Month)
	if trigger != models.CleanupTriggerOverride {
		if !retention.Before(target.Year, targetMonth, year, month) || !s.cfg.Policy.IsCleanupWindow(now) {
			return nil, appErrors.Clone(appErrors.ErrOutsideCleanupWindow, fmt.Sprintf("cleanup of %s only runs on days 1-%d of the following month", retention.MonthLabel(target.Year, targetMonth), s.cfg.Policy.CleanupWindowDays))
		}
	}

	_, cutoff := retention.MonthBounds(target.Year, targetMonth, s.cfg.Location)
	batch, err := s.periods.CleanupPeriod(ctx, target.ID, cutoff, now.UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyCleaned, fmt.Sprintf("%s was already cleaned", retention.MonthLabel(target.Year, targetMonth)))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "cleanup failed; archive period left completed")
	}

	deleted, failed := s.deletePhotos(ctx, batch.PhotoKeys)
	batch.Counts.Images = deleted
	s.invalidateSummary(ctx)
	s.metrics.RecordCleanup(trigger, nil, batch.Counts)

	executedAt := now.UTC()
	target.CleanupExecutedAt = &executedAt
	result = &models.CleanupResult{
		Message:        fmt.Sprintf("Cleanup completed for %s", retention.MonthLabel(target.Year, targetMonth)),
		Period:         models.StatusOf(target.Year, target.Month, target),
		RecordsDeleted: batch.Counts,
		ImageFailures:  failed,
		Trigger:        trigger,
	}
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     userID,
		Action:     models.AuditActionArchiveCleanup,
		Resource:   models.AuditResourceArchivePeriod,
		ResourceID: &target.ID,
		NewValues:  mustJSON(result),
	})
	s.logger.Info("archive cleanup executed",
		zap.String("trigger", string(trigger)),
		zap.Int("year", target.Year),
		zap.Int("month", target.Month),
		zap.Int("attendance", batch.Counts.Attendance),
		zap.Int("assessments", batch.Counts.Assessments),
		zap.Int("archives", batch.Counts.Archives),
		zap.Int("images", batch.Counts.Images),
		zap.Int("image_failures", failed),
	)
	return result, nil
}

// ClearAll wipes every attendance, assessment and archive record. Accounts are preserved.
func (s *ArchiveService) ClearAll(ctx context.Context, actor *models.JWTClaims, phrase string) (*models.ClearAllResult, error) {
	if err := requireArchiveAdmin(actor); err != nil {
		return nil, err
	}
	if phrase != s.cfg.ClearAllPhrase {
		return nil, appErrors.Clone(appErrors.ErrConfirmationMismatch, fmt.Sprintf("type %q exactly to confirm", s.cfg.ClearAllPhrase))
	}

	batch, err := s.periods.ClearAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear archive data")
	}
	deleted, failed := s.deletePhotos(ctx, batch.PhotoKeys)
	batch.Counts.Images = deleted
	s.invalidateSummary(ctx)
	s.metrics.RecordDeleted(batch.Counts)

	result := &models.ClearAllResult{Success: true, Deleted: batch.Counts, ImageFailures: failed}
	s.emitAudit(ctx, &models.AuditLog{
		UserID:    &actor.UserID,
		Action:    models.AuditActionArchiveClearAll,
		Resource:  models.AuditResourceOperationalRecords,
		NewValues: mustJSON(result),
	})
	s.logger.Warn("all archive data cleared", zap.String("user_id", actor.UserID), zap.Int("records", batch.Counts.Total()))
	return result, nil
}

// deletePhotos runs after the database commit, so failures are counted but never undo the cleanup.
func (s *ArchiveService) deletePhotos(ctx context.Context, keys []string) (deleted, failed int) {
	if s.photos == nil || len(keys) == 0 {
		return 0, 0
	}
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := s.photos.Delete(ctx, key); err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				continue
			}
			failed++
			s.logger.Warn("failed to delete attendance photo", zap.String("key", key), zap.Error(err))
			continue
		}
		deleted++
	}
	return deleted, failed
}

func (s *ArchiveService) cleanupCandidate(ctx context.Context, year, month int) (*models.ArchivePeriod, error) {
	target, err := s.periods.LatestPendingCleanup(ctx, year, month)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve cleanup target")
	}
	if target != nil {
		return target, nil
	}
	latest, err := s.periods.LatestCompleted(ctx, year, month)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve cleanup target")
	}
	return latest, nil
}

func (s *ArchiveService) invalidateSummary(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, summaryCachePattern); err != nil {
		s.logger.Warn("failed to invalidate archive summary cache", zap.Error(err))
	}
}

func (s *ArchiveService) now() time.Time {
	return s.clock.Now().In(s.cfg.Location)
}

func (s *ArchiveService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	if log.UserID == nil {
		log.IPAddress = "system"
		log.UserAgent = "archive-scheduler"
	} else {
		log.IPAddress = "api"
		log.UserAgent = "archive-service"
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to create archive audit", zap.Error(err))
	}
}

func requireArchiveAdmin(actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.Role.IsAdministrative() {
		return appErrors.Clone(appErrors.ErrForbidden, "only administrators can manage archives")
	}
	return nil
}

func mustJSON(v interface{}) []byte {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return payload
}
