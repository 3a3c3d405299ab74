package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-archive-api/internal/models"
	"github.com/noah-isme/attendance-archive-api/internal/retention"
	appErrors "github.com/noah-isme/attendance-archive-api/pkg/errors"
	"github.com/noah-isme/attendance-archive-api/pkg/storage"
)

type periodStoreStub struct {
	periods     map[string]*models.ArchivePeriod
	batch       models.DeletionBatch
	cleanupErr  error
	cleanupArgs []time.Time
	cleanups    int
	clears      int
}

func newPeriodStoreStub() *periodStoreStub {
	return &periodStoreStub{periods: make(map[string]*models.ArchivePeriod)}
}

func periodKey(year, month int) string { return fmt.Sprintf("%04d-%02d", year, month) }

func (s *periodStoreStub) put(p *models.ArchivePeriod) {
	if p.ID == "" {
		p.ID = "period-" + periodKey(p.Year, p.Month)
	}
	s.periods[periodKey(p.Year, p.Month)] = p
}

func (s *periodStoreStub) GetPeriod(_ context.Context, year, month int) (*models.ArchivePeriod, error) {
	if p, ok := s.periods[periodKey(year, month)]; ok {
		clone := *p
		return &clone, nil
	}
	return nil, nil
}

func (s *periodStoreStub) MarkComplete(_ context.Context, year, month int, userID string, at time.Time) (*models.ArchivePeriod, error) {
	p, ok := s.periods[periodKey(year, month)]
	if ok && p.Completed {
		return nil, sql.ErrNoRows
	}
	if !ok {
		p = &models.ArchivePeriod{Year: year, Month: month}
		s.put(p)
	}
	p.Completed = true
	p.CompletedBy = &userID
	p.CompletedAt = &at
	clone := *p
	return &clone, nil
}

func (s *periodStoreStub) latest(year, month int, pendingOnly bool) *models.ArchivePeriod {
	var best *models.ArchivePeriod
	for _, p := range s.periods {
		if !p.Completed || retention.Before(year, time.Month(month), p.Year, time.Month(p.Month)) {
			continue
		}
		if pendingOnly && p.CleanupExecutedAt != nil {
			continue
		}
		if best == nil || retention.Before(best.Year, time.Month(best.Month), p.Year, time.Month(p.Month)) {
			best = p
		}
	}
	if best == nil {
		return nil
	}
	clone := *best
	return &clone
}

func (s *periodStoreStub) LatestPendingCleanup(_ context.Context, year, month int) (*models.ArchivePeriod, error) {
	return s.latest(year, month, true), nil
}

func (s *periodStoreStub) LatestCompleted(_ context.Context, year, month int) (*models.ArchivePeriod, error) {
	return s.latest(year, month, false), nil
}

func (s *periodStoreStub) CleanupPeriod(_ context.Context, periodID string, cutoff, executedAt time.Time) (*models.DeletionBatch, error) {
	if s.cleanupErr != nil {
		return nil, s.cleanupErr
	}
	for _, p := range s.periods {
		if p.ID != periodID {
			continue
		}
		if p.CleanupExecutedAt != nil {
			return nil, sql.ErrNoRows
		}
		p.CleanupExecutedAt = &executedAt
		s.cleanups++
		s.cleanupArgs = append(s.cleanupArgs, cutoff)
		batch := s.batch
		s.batch = models.DeletionBatch{}
		return &batch, nil
	}
	return nil, sql.ErrNoRows
}

func (s *periodStoreStub) ClearAll(context.Context) (*models.DeletionBatch, error) {
	s.clears++
	batch := s.batch
	s.periods = make(map[string]*models.ArchivePeriod)
	return &batch, nil
}

type counterStub struct {
	count   int
	filters []models.RecordFilter
}

func (c *counterStub) Count(_ context.Context, filter models.RecordFilter) (int, error) {
	c.filters = append(c.filters, filter)
	return c.count, nil
}

type photoStub struct {
	deleted []string
	fail    map[string]error
}

func (p *photoStub) Delete(_ context.Context, key string) error {
	if err, ok := p.fail[key]; ok {
		return err
	}
	p.deleted = append(p.deleted, key)
	return nil
}

type memoryCacheStub struct {
	values      map[string]interface{}
	invalidated []string
}

func newMemoryCacheStub() *memoryCacheStub {
	return &memoryCacheStub{values: make(map[string]interface{})}
}

func (c *memoryCacheStub) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	v, ok := c.values[key]
	if !ok {
		return false, nil
	}
	*(dest.(*models.ArchiveSummary)) = *(v.(*models.ArchiveSummary))
	return true, nil
}

func (c *memoryCacheStub) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.values[key] = value
	return nil
}

func (c *memoryCacheStub) Invalidate(_ context.Context, pattern string) error {
	c.invalidated = append(c.invalidated, pattern)
	c.values = make(map[string]interface{})
	return nil
}

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type archiveFixture struct {
	svc     *ArchiveService
	store   *periodStoreStub
	photos  *photoStub
	cache   *memoryCacheStub
	audit   *auditStub
	metrics *MetricsService
	clock   *mutableClock
}

type mutableClock struct{ at time.Time }

func (c *mutableClock) Now() time.Time { return c.at }

func newArchiveFixture(now time.Time) *archiveFixture {
	f := &archiveFixture{
		store:   newPeriodStoreStub(),
		photos:  &photoStub{fail: map[string]error{}},
		cache:   newMemoryCacheStub(),
		audit:   &auditStub{},
		metrics: NewMetricsService(),
		clock:   &mutableClock{at: now},
	}
	f.svc = NewArchiveService(f.store, &counterStub{count: 4}, &counterStub{count: 9}, f.photos, f.cache, f.metrics, f.audit, f.clock, nil, ArchiveServiceConfig{})
	return f
}

var adminClaims = &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}

func TestArchiveServiceSummaryLateMonth(t *testing.T) {
	f := newArchiveFixture(time.Date(2025, time.June, 28, 10, 0, 0, 0, time.UTC))

	summary, err := f.svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "June 2025", summary.CurrentMonth)
	assert.Equal(t, 2, summary.DaysUntilMonthEnd)
	assert.True(t, summary.ShouldShowReminder)
	assert.False(t, summary.IsCleanupWindow)
	assert.Equal(t, models.ArchiveStateOpen, summary.ArchiveStatus.State)
	assert.False(t, summary.ArchiveStatus.Completed)
	assert.Nil(t, summary.CleanupTarget)
	require.NotNil(t, summary.CurrentData)
	assert.Equal(t, 4, summary.CurrentData.Attendance)
	assert.Equal(t, 9, summary.CurrentData.Assessments)
	assert.Len(t, f.cache.values, 1)
}

func TestArchiveServiceMarkCompleteOnce(t *testing.T) {
	now := time.Date(2025, time.June, 28, 10, 0, 0, 0, time.UTC)
	f := newArchiveFixture(now)
	ctx := context.Background()

	_, err := f.svc.Summary(ctx)
	require.NoError(t, err)

	result, err := f.svc.MarkComplete(ctx, adminClaims)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, models.ArchiveStateCompleted, result.Period.State)
	assert.Equal(t, []string{summaryCachePattern}, f.cache.invalidated)

	summary, err := f.svc.Summary(ctx)
	require.NoError(t, err)
	assert.True(t, summary.ArchiveStatus.Completed)
	require.NotNil(t, summary.ArchiveStatus.CompletedAt)
	assert.False(t, summary.ArchiveStatus.CompletedAt.Before(now))
	assert.False(t, summary.ShouldShowReminder)
	require.NotNil(t, summary.CleanupTarget)
	assert.Equal(t, models.ArchiveStateCompleted, summary.CleanupTarget.State)

	_, err = f.svc.MarkComplete(ctx, adminClaims)
	require.ErrorIs(t, err, appErrors.ErrAlreadyCompleted)
	assert.Equal(t, 409, appErrors.FromError(err).Status)

	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionArchiveMarkComplete, f.audit.logs[0].Action)
}

func TestArchiveServiceRequiresAdmin(t *testing.T) {
	f := newArchiveFixture(time.Date(2025, time.July, 2, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	professor := &models.JWTClaims{UserID: "prof-1", Role: models.RoleProfessor}

	_, err := f.svc.MarkComplete(ctx, nil)
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)
	_, err = f.svc.MarkComplete(ctx, professor)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
	_, err = f.svc.ExecuteCleanup(ctx, professor, true)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
	_, err = f.svc.ClearAll(ctx, professor, "DELETE ALL DATA")
	require.ErrorIs(t, err, appErrors.ErrForbidden)
	assert.Zero(t, f.store.clears)
}

func TestArchiveServiceCleanupInsideWindow(t *testing.T) {
	f := newArchiveFixture(time.Date(2025, time.July, 2, 9, 0, 0, 0, time.UTC))
	completedAt := time.Date(2025, time.June, 30, 17, 0, 0, 0, time.UTC)
	f.store.put(&models.ArchivePeriod{Year: 2025, Month: 6, Completed: true, CompletedAt: &completedAt})
	f.store.batch = models.DeletionBatch{
		Counts:    models.RecordCounts{Attendance: 12, Assessments: 30, Archives: 2},
		PhotoKeys: []string{"a.jpg", "b.jpg", "missing.jpg", "broken.jpg"},
	}
	f.photos.fail["missing.jpg"] = storage.ErrObjectNotFound
	f.photos.fail["broken.jpg"] = errors.New("s3 unavailable")
	ctx := context.Background()

	result, err := f.svc.ExecuteCleanup(ctx, adminClaims, false)
	require.NoError(t, err)
	assert.Equal(t, 12, result.RecordsDeleted.Attendance)
	assert.Equal(t, 30, result.RecordsDeleted.Assessments)
	assert.Equal(t, 2, result.RecordsDeleted.Images)
	assert.Equal(t, 1, result.ImageFailures)
	assert.Equal(t, models.ArchiveStateCleaned, result.Period.State)
	assert.Equal(t, models.CleanupTriggerManual, result.Trigger)
	require.Len(t, f.store.cleanupArgs, 1)
	assert.Equal(t, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC), f.store.cleanupArgs[0])

	_, err = f.svc.ExecuteCleanup(ctx, adminClaims, false)
	require.ErrorIs(t, err, appErrors.ErrAlreadyCleaned)
	assert.Equal(t, 1, f.store.cleanups)

	summary, err := f.svc.Summary(ctx)
	require.NoError(t, err)
	require.NotNil(t, summary.CleanupTarget)
	assert.Equal(t, models.ArchiveStateCleaned, summary.CleanupTarget.State)
}

func TestArchiveServiceCleanupRequiresCompletedEvenWithOverride(t *testing.T) {
	f := newArchiveFixture(time.Date(2025, time.July, 2, 9, 0, 0, 0, time.UTC))
	f.store.put(&models.ArchivePeriod{Year: 2025, Month: 6})
	ctx := context.Background()

	_, err := f.svc.ExecuteCleanup(ctx, adminClaims, false)
	require.ErrorIs(t, err, appErrors.ErrNotCompleted)
	_, err = f.svc.ExecuteCleanup(ctx, adminClaims, true)
	require.ErrorIs(t, err, appErrors.ErrNotCompleted)
	assert.Zero(t, f.store.cleanups)
	assert.Empty(t, f.audit.logs)
}

func TestArchiveServiceCleanupOutsideWindow(t *testing.T) {
	f := newArchiveFixture(time.Date(2025, time.July, 15, 9, 0, 0, 0, time.UTC))
	f.store.put(&models.ArchivePeriod{Year: 2025, Month: 6, Completed: true})
	ctx := context.Background()

	_, err := f.svc.ExecuteCleanup(ctx, adminClaims, false)
	require.ErrorIs(t, err, appErrors.ErrOutsideCleanupWindow)
	assert.Zero(t, f.store.cleanups)

	result, err := f.svc.ExecuteCleanup(ctx, adminClaims, true)
	require.NoError(t, err)
	assert.Equal(t, models.CleanupTriggerOverride, result.Trigger)
	assert.Equal(t, 1, f.store.cleanups)
}

func TestArchiveServiceCleanupCurrentMonthNeedsOverride(t *testing.T) {
	f := newArchiveFixture(time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC))
	f.store.put(&models.ArchivePeriod{Year: 2025, Month: 6, Completed: true})

	_, err := f.svc.ExecuteCleanup(context.Background(), adminClaims, false)
	require.ErrorIs(t, err, appErrors.ErrOutsideCleanupWindow)
}

func TestArchiveServiceCleanupFailureLeavesPeriodCompleted(t *testing.T) {
	f := newArchiveFixture(time.Date(2025, time.July, 1, 9, 0, 0, 0, time.UTC))
	f.store.put(&models.ArchivePeriod{Year: 2025, Month: 6, Completed: true})
	f.store.cleanupErr = errors.New("connection reset")

	_, err := f.svc.ExecuteCleanup(context.Background(), adminClaims, false)
	require.Error(t, err)
	assert.Equal(t, 500, appErrors.FromError(err).Status)

	period, err := f.store.GetPeriod(context.Background(), 2025, 6)
	require.NoError(t, err)
	assert.Equal(t, models.ArchiveStateCompleted, period.State())
	assert.Empty(t, f.photos.deleted)
}

func TestArchiveServiceScheduledCleanup(t *testing.T) {
	f := newArchiveFixture(time.Date(2025, time.July, 3, 0, 0, 0, 0, time.UTC))
	f.store.put(&models.ArchivePeriod{Year: 2025, Month: 6, Completed: true})

	result, err := f.svc.RunScheduledCleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.CleanupTriggerScheduled, result.Trigger)
	require.Len(t, f.audit.logs, 1)
	assert.Nil(t, f.audit.logs[0].UserID)
	assert.Equal(t, "system", f.audit.logs[0].IPAddress)
}

func TestArchiveServiceClearAll(t *testing.T) {
	f := newArchiveFixture(time.Date(2025, time.June, 10, 9, 0, 0, 0, time.UTC))
	f.store.put(&models.ArchivePeriod{Year: 2025, Month: 5, Completed: true})
	f.store.batch = models.DeletionBatch{
		Counts:    models.RecordCounts{Attendance: 3, Assessments: 4, Archives: 5},
		PhotoKeys: []string{"x.jpg"},
	}
	ctx := context.Background()

	for _, phrase := range []string{"delete all data", "DELETE ALL DATA ", " DELETE ALL DATA", ""} {
		_, err := f.svc.ClearAll(ctx, adminClaims, phrase)
		require.ErrorIs(t, err, appErrors.ErrConfirmationMismatch, "phrase %q", phrase)
	}
	assert.Zero(t, f.store.clears)

	result, err := f.svc.ClearAll(ctx, adminClaims, "DELETE ALL DATA")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, models.RecordCounts{Attendance: 3, Assessments: 4, Archives: 5, Images: 1}, result.Deleted)
	assert.Equal(t, []string{"x.jpg"}, f.photos.deleted)
	assert.Equal(t, 1, f.store.clears)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionArchiveClearAll, f.audit.logs[0].Action)
}
