package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendance-archive-api/internal/models"
)

// archiveLockKey serialises cleanup and clear-all across API replicas.
const archiveLockKey int64 = 0x41524348

const periodColumns = `id, year, month, completed, completed_by, completed_at, cleanup_executed_at`

// ArchiveRepository persists archive periods and the export trail.
type ArchiveRepository struct {
	db *sqlx.DB
}

// NewArchiveRepository constructs the repository.
func NewArchiveRepository(db *sqlx.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// GetPeriod returns the row for year/month or nil when the month has no bookkeeping yet.
func (r *ArchiveRepository) GetPeriod(ctx context.Context, year, month int) (*models.ArchivePeriod, error) {
	const query = `SELECT ` + periodColumns + ` FROM archive_periods WHERE year = $1 AND month = $2`
	var period models.ArchivePeriod
	if err := r.db.GetContext(ctx, &period, query, year, month); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get archive period: %w", err)
	}
	return &period, nil
}

// MarkComplete flips completed for year/month exactly once. It returns sql.ErrNoRows when the
// period was already completed.
func (r *ArchiveRepository) MarkComplete(ctx context.Context, year, month int, userID string, at time.Time) (*models.ArchivePeriod, error) {
	const query = `INSERT INTO archive_periods (id, year, month, completed, completed_by, completed_at)
VALUES ($1, $2, $3, TRUE, $4, $5)
ON CONFLICT (year, month)
DO UPDATE SET completed = TRUE, completed_by = EXCLUDED.completed_by, completed_at = EXCLUDED.completed_at
WHERE archive_periods.completed = FALSE
RETURNING ` + periodColumns
	var period models.ArchivePeriod
	if err := r.db.GetContext(ctx, &period, query, uuid.NewString(), year, month, nullableString(userID), at); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("mark archive period complete: %w", err)
	}
	return &period, nil
}

// LatestPendingCleanup returns the newest completed, not yet cleaned period at or before year/month.
func (r *ArchiveRepository) LatestPendingCleanup(ctx context.Context, year, month int) (*models.ArchivePeriod, error) {
	const query = `SELECT ` + periodColumns + ` FROM archive_periods
WHERE completed = TRUE AND cleanup_executed_at IS NULL AND (year < $1 OR (year = $1 AND month <= $2))
ORDER BY year DESC, month DESC LIMIT 1`
	return r.latest(ctx, query, year, month)
}

// LatestCompleted returns the newest completed period at or before year/month, cleaned or not.
func (r *ArchiveRepository) LatestCompleted(ctx context.Context, year, month int) (*models.ArchivePeriod, error) {
	const query = `SELECT ` + periodColumns + ` FROM archive_periods
WHERE completed = TRUE AND (year < $1 OR (year = $1 AND month <= $2))
ORDER BY year DESC, month DESC LIMIT 1`
	return r.latest(ctx, query, year, month)
}

func (r *ArchiveRepository) latest(ctx context.Context, query string, year, month int) (*models.ArchivePeriod, error) {
	var period models.ArchivePeriod
	if err := r.db.GetContext(ctx, &period, query, year, month); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find archive period: %w", err)
	}
	return &period, nil
}

// RecordExport appends a row to the export trail.
func (r *ArchiveRepository) RecordExport(ctx context.Context, export *models.ArchiveExport) error {
	if export.ID == "" {
		export.ID = uuid.NewString()
	}
	if export.ExportedAt.IsZero() {
		export.ExportedAt = time.Now().UTC()
	}
	const query = `INSERT INTO archive_exports (id, year, month, kind, filename, exported_by, exported_at)
VALUES (:id, :year, :month, :kind, :filename, :exported_by, :exported_at)`
	if _, err := r.db.NamedExecContext(ctx, query, export); err != nil {
		return fmt.Errorf("record archive export: %w", err)
	}
	return nil
}

// CleanupPeriod deletes every operational row created before cutoff and stamps the period as cleaned
// in one transaction. It returns sql.ErrNoRows when another caller already cleaned the period.
func (r *ArchiveRepository) CleanupPeriod(ctx context.Context, periodID string, cutoff, executedAt time.Time) (*models.DeletionBatch, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin cleanup tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, archiveLockKey); err != nil {
		return nil, fmt.Errorf("acquire archive lock: %w", err)
	}

	const stamp = `UPDATE archive_periods SET cleanup_executed_at = $2
WHERE id = $1 AND completed = TRUE AND cleanup_executed_at IS NULL`
	res, err := tx.ExecContext(ctx, stamp, periodID, executedAt)
	if err != nil {
		return nil, fmt.Errorf("stamp archive cleanup: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("stamp archive cleanup: %w", err)
	}
	if affected == 0 {
		err = sql.ErrNoRows
		return nil, err
	}

	batch := &models.DeletionBatch{}
	if batch.PhotoKeys, err = collectPhotoKeys(ctx, tx, `WHERE started_at < $1`, cutoff); err != nil {
		return nil, err
	}
	if batch.Counts.Attendance, err = execCount(ctx, tx, `DELETE FROM attendance_sessions WHERE started_at < $1`, cutoff); err != nil {
		return nil, fmt.Errorf("delete attendance sessions: %w", err)
	}
	if batch.Counts.Assessments, err = execCount(ctx, tx, `DELETE FROM assessments WHERE created_at < $1`, cutoff); err != nil {
		return nil, fmt.Errorf("delete assessments: %w", err)
	}
	if batch.Counts.Archives, err = execCount(ctx, tx, `DELETE FROM archive_exports WHERE exported_at < $1`, cutoff); err != nil {
		return nil, fmt.Errorf("delete archive exports: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit cleanup tx: %w", err)
	}
	return batch, nil
}

// ClearAll removes every attendance, assessment, export and period row. Users are untouched.
func (r *ArchiveRepository) ClearAll(ctx context.Context) (*models.DeletionBatch, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin clear-all tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, archiveLockKey); err != nil {
		return nil, fmt.Errorf("acquire archive lock: %w", err)
	}

	batch := &models.DeletionBatch{}
	if batch.PhotoKeys, err = collectPhotoKeys(ctx, tx, ""); err != nil {
		return nil, err
	}
	if batch.Counts.Attendance, err = execCount(ctx, tx, `DELETE FROM attendance_sessions`); err != nil {
		return nil, fmt.Errorf("delete attendance sessions: %w", err)
	}
	if batch.Counts.Assessments, err = execCount(ctx, tx, `DELETE FROM assessments`); err != nil {
		return nil, fmt.Errorf("delete assessments: %w", err)
	}
	exports, err := execCount(ctx, tx, `DELETE FROM archive_exports`)
	if err != nil {
		return nil, fmt.Errorf("delete archive exports: %w", err)
	}
	periods, err := execCount(ctx, tx, `DELETE FROM archive_periods`)
	if err != nil {
		return nil, fmt.Errorf("delete archive periods: %w", err)
	}
	batch.Counts.Archives = exports + periods

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit clear-all tx: %w", err)
	}
	return batch, nil
}

func collectPhotoKeys(ctx context.Context, tx *sqlx.Tx, where string, args ...interface{}) ([]string, error) {
	query := `SELECT start_photo_key, end_photo_key FROM attendance_sessions ` + where
	var rows []struct {
		Start sql.NullString `db:"start_photo_key"`
		End   sql.NullString `db:"end_photo_key"`
	}
	if err := tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("collect photo keys: %w", err)
	}
	keys := make([]string, 0, len(rows)*2)
	for _, row := range rows {
		if row.Start.Valid && row.Start.String != "" {
			keys = append(keys, row.Start.String)
		}
		if row.End.Valid && row.End.String != "" {
			keys = append(keys, row.End.String)
		}
	}
	return keys, nil
}

func execCount(ctx context.Context, tx *sqlx.Tx, query string, args ...interface{}) (int, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func nullableString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
