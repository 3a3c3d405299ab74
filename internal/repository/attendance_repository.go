package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendance-archive-api/internal/models"
)

// AttendanceRepository reads attendance sessions for exports and summaries.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// List returns sessions matching the filter ordered by start time.
func (r *AttendanceRepository) List(ctx context.Context, filter models.RecordFilter) ([]models.AttendanceSession, error) {
	where, args := recordConditions(filter, "a.professor_id", "a.started_at")
	query := `SELECT a.id, a.professor_id, COALESCE(u.full_name, '') AS professor_name, a.subject, a.section, a.class_room,
       a.notes, a.started_at, a.ended_at, a.start_photo_key, a.end_photo_key, a.created_at
FROM attendance_sessions a
LEFT JOIN users u ON u.id = a.professor_id` + where + `
ORDER BY a.started_at ASC`
	var sessions []models.AttendanceSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance sessions: %w", err)
	}
	return sessions, nil
}

// Count returns the number of sessions matching the filter.
func (r *AttendanceRepository) Count(ctx context.Context, filter models.RecordFilter) (int, error) {
	where, args := recordConditions(filter, "a.professor_id", "a.started_at")
	query := `SELECT COUNT(*) FROM attendance_sessions a` + where
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("count attendance sessions: %w", err)
	}
	return total, nil
}

// recordConditions renders a WHERE clause for the professor and [Start, End) filters.
func recordConditions(filter models.RecordFilter, professorColumn, timeColumn string) (string, []interface{}) {
	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)
	if filter.ProfessorID != "" {
		args = append(args, filter.ProfessorID)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", professorColumn, len(args)))
	}
	if filter.Start != nil {
		args = append(args, *filter.Start)
		conditions = append(conditions, fmt.Sprintf("%s >= $%d", timeColumn, len(args)))
	}
	if filter.End != nil {
		args = append(args, *filter.End)
		conditions = append(conditions, fmt.Sprintf("%s < $%d", timeColumn, len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
