package models

import "time"

// ArchiveState is the lifecycle position of one archive period.
type ArchiveState string

const (
	ArchiveStateOpen      ArchiveState = "OPEN"
	ArchiveStateCompleted ArchiveState = "COMPLETED"
	ArchiveStateCleaned   ArchiveState = "CLEANED"
)

// ArchivePeriod is the persisted bookkeeping row for one calendar month.
type ArchivePeriod struct {
	ID                string     `db:"id" json:"id"`
	Year              int        `db:"year" json:"year"`
	Month             int        `db:"month" json:"month"`
	Completed         bool       `db:"completed" json:"completed"`
	CompletedBy       *string    `db:"completed_by" json:"completedBy,omitempty"`
	CompletedAt       *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	CleanupExecutedAt *time.Time `db:"cleanup_executed_at" json:"cleanupExecutedAt,omitempty"`
}

// State derives the lifecycle state from the stored flags.
func (p *ArchivePeriod) State() ArchiveState {
	switch {
	case p == nil || !p.Completed:
		return ArchiveStateOpen
	case p.CleanupExecutedAt != nil:
		return ArchiveStateCleaned
	default:
		return ArchiveStateCompleted
	}
}

// ArchiveStatus is the API view of a period.
type ArchiveStatus struct {
	Year              int          `json:"year"`
	Month             int          `json:"month"`
	State             ArchiveState `json:"state"`
	Completed         bool         `json:"completed"`
	CompletedBy       *string      `json:"completedBy,omitempty"`
	CompletedAt       *time.Time   `json:"completedAt,omitempty"`
	CleanupExecutedAt *time.Time   `json:"cleanupExecutedAt,omitempty"`
}

// StatusOf renders a period for the API. A nil period is an open month with no row yet.
func StatusOf(year, month int, p *ArchivePeriod) ArchiveStatus {
	status := ArchiveStatus{Year: year, Month: month, State: p.State()}
	if p != nil {
		status.Completed = p.Completed
		status.CompletedBy = p.CompletedBy
		status.CompletedAt = p.CompletedAt
		status.CleanupExecutedAt = p.CleanupExecutedAt
	}
	return status
}

// CurrentData counts operational rows in the current month.
type CurrentData struct {
	Attendance  int `json:"attendance"`
	Assessments int `json:"assessments"`
}

// ArchiveSummary is returned by the summary endpoint.
type ArchiveSummary struct {
	CurrentMonth       string         `json:"currentMonth"`
	Year               int            `json:"year"`
	Month              int            `json:"month"`
	DaysUntilMonthEnd  int            `json:"daysUntilMonthEnd"`
	ArchiveStatus      ArchiveStatus  `json:"archiveStatus"`
	CleanupTarget      *ArchiveStatus `json:"cleanupTarget"`
	IsCleanupWindow    bool           `json:"isCleanupWindow"`
	ShouldShowReminder bool           `json:"shouldShowReminder"`
	CurrentData        *CurrentData   `json:"currentData,omitempty"`
	GeneratedAt        time.Time      `json:"generatedAt"`
}

// RecordCounts reports how many rows of each kind were removed.
type RecordCounts struct {
	Attendance  int `json:"attendance"`
	Assessments int `json:"assessments"`
	Archives    int `json:"archives"`
	Images      int `json:"images"`
}

// Total sums every counter.
func (c RecordCounts) Total() int {
	return c.Attendance + c.Assessments + c.Archives + c.Images
}

// CleanupTrigger identifies what started a cleanup.
type CleanupTrigger string

const (
	CleanupTriggerManual    CleanupTrigger = "manual"
	CleanupTriggerOverride  CleanupTrigger = "override"
	CleanupTriggerScheduled CleanupTrigger = "scheduled"
)

// CleanupResult is returned after a period cleanup.
type CleanupResult struct {
	Message        string         `json:"message"`
	Period         ArchiveStatus  `json:"period"`
	RecordsDeleted RecordCounts   `json:"recordsDeleted"`
	ImageFailures  int            `json:"imageFailures,omitempty"`
	Trigger        CleanupTrigger `json:"trigger"`
}

// ClearAllResult is returned after wiping every operational record.
type ClearAllResult struct {
	Success       bool         `json:"success"`
	Deleted       RecordCounts `json:"deleted"`
	ImageFailures int          `json:"imageFailures,omitempty"`
}

// MarkCompleteResult is returned after attesting a period.
type MarkCompleteResult struct {
	Success bool          `json:"success"`
	Period  ArchiveStatus `json:"period"`
}

// DeletionBatch collects what one deletion removed inside the transaction.
type DeletionBatch struct {
	Counts    RecordCounts
	PhotoKeys []string
}

// ExportKind enumerates the export artifacts.
type ExportKind string

const (
	ExportKindAttendance  ExportKind = "attendance"
	ExportKindAssessments ExportKind = "assessments"
	ExportKindMonthly     ExportKind = "monthly"
)

// ArchiveExport is one row of the export trail.
type ArchiveExport struct {
	ID         string     `db:"id" json:"id"`
	Year       int        `db:"year" json:"year"`
	Month      int        `db:"month" json:"month"`
	Kind       ExportKind `db:"kind" json:"kind"`
	Filename   string     `db:"filename" json:"filename"`
	ExportedBy *string    `db:"exported_by" json:"exportedBy,omitempty"`
	ExportedAt time.Time  `db:"exported_at" json:"exportedAt"`
}

// RecordFilter narrows attendance and assessment queries. End is exclusive.
type RecordFilter struct {
	ProfessorID string
	Start       *time.Time
	End         *time.Time
}
