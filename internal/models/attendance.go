package models

import "time"

// AttendanceSession is one class session captured by a professor with start and end photos.
type AttendanceSession struct {
	ID            string     `db:"id" json:"id"`
	ProfessorID   string     `db:"professor_id" json:"professorId"`
	ProfessorName string     `db:"professor_name" json:"professorName"`
	Subject       string     `db:"subject" json:"subject"`
	Section       string     `db:"section" json:"section"`
	ClassRoom     string     `db:"class_room" json:"classRoom"`
	Notes         *string    `db:"notes" json:"notes,omitempty"`
	StartedAt     time.Time  `db:"started_at" json:"startedAt"`
	EndedAt       *time.Time `db:"ended_at" json:"endedAt,omitempty"`
	StartPhotoKey *string    `db:"start_photo_key" json:"startPhotoKey,omitempty"`
	EndPhotoKey   *string    `db:"end_photo_key" json:"endPhotoKey,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
}

// PhotoKeys lists the non-empty photo keys of the session.
func (s AttendanceSession) PhotoKeys() []string {
	keys := make([]string, 0, 2)
	for _, key := range []*string{s.StartPhotoKey, s.EndPhotoKey} {
		if key != nil && *key != "" {
			keys = append(keys, *key)
		}
	}
	return keys
}

// Assessment is one student evaluation of a professor.
type Assessment struct {
	ID            string     `db:"id" json:"id"`
	ProfessorID   string     `db:"professor_id" json:"professorId"`
	ProfessorName string     `db:"professor_name" json:"professorName"`
	StudentID     string     `db:"student_id" json:"studentId"`
	StudentName   string     `db:"student_name" json:"studentName"`
	Subject       string     `db:"subject" json:"subject"`
	ClassHeldAt   *time.Time `db:"class_held_at" json:"classHeldAt,omitempty"`
	TotalScore    int        `db:"total_score" json:"totalScore"`
	AverageRating float64    `db:"average_rating" json:"averageRating"`
	Comments      *string    `db:"comments" json:"comments,omitempty"`
	AcademicYear  string     `db:"academic_year" json:"academicYear"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
}
