package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendance-archive-api/internal/models"
)

// AssessmentRepository reads faculty assessments for exports and summaries.
type AssessmentRepository struct {
	db *sqlx.DB
}

// NewAssessmentRepository constructs the repository.
func NewAssessmentRepository(db *sqlx.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// List returns assessments matching the filter ordered by submission time.
func (r *AssessmentRepository) List(ctx context.Context, filter models.RecordFilter) ([]models.Assessment, error) {
	where, args := recordConditions(filter, "s.professor_id", "s.created_at")
	query := `SELECT s.id, s.professor_id, COALESCE(p.full_name, '') AS professor_name, s.student_id,
       COALESCE(st.full_name, '') AS student_name, s.subject, s.class_held_at, s.total_score, s.average_rating,
       s.comments, s.academic_year, s.created_at
FROM assessments s
LEFT JOIN users p ON p.id = s.professor_id
LEFT JOIN users st ON st.id = s.student_id` + where + `
ORDER BY s.created_at ASC`
	var assessments []models.Assessment
	if err := r.db.SelectContext(ctx, &assessments, query, args...); err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	return assessments, nil
}

// Count returns the number of assessments matching the filter.
func (r *AssessmentRepository) Count(ctx context.Context, filter models.RecordFilter) (int, error) {
	where, args := recordConditions(filter, "s.professor_id", "s.created_at")
	query := `SELECT COUNT(*) FROM assessments s` + where
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("count assessments: %w", err)
	}
	return total, nil
}
