package archive

import (
	"fmt"
	"time"
)

// PeriodState is the lifecycle position of one archive month as seen by the console.
type PeriodState int

const (
	// StateUninitialized means no summary has been fetched, or the backend reported no period.
	StateUninitialized PeriodState = iota
	StateOpen
	StateCompleted
	StateCleaned
)

func (s PeriodState) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateCompleted:
		return "COMPLETED"
	case StateCleaned:
		return "CLEANED"
	default:
		return "UNINITIALIZED"
	}
}

// ParseState maps the backend state string. Unknown values are uninitialized.
func ParseState(raw string) PeriodState {
	switch raw {
	case "OPEN":
		return StateOpen
	case "COMPLETED":
		return StateCompleted
	case "CLEANED":
		return StateCleaned
	default:
		return StateUninitialized
	}
}

// Period is one archive month. CompletedBy and CompletedAt are set from StateCompleted on,
// CleanupExecutedAt only in StateCleaned.
type Period struct {
	Year              int
	Month             int
	State             PeriodState
	CompletedBy       string
	CompletedAt       time.Time
	CleanupExecutedAt time.Time
}

// Label renders the month as "June 2025".
func (p Period) Label() string {
	if p.Year == 0 || p.Month < 1 || p.Month > 12 {
		return "the period"
	}
	return fmt.Sprintf("%s %d", time.Month(p.Month), p.Year)
}

// RecordCounts mirrors the per-kind deletion and data counters of the backend.
type RecordCounts struct {
	Attendance  int
	Assessments int
	Archives    int
	Images      int
}

// Total sums every kind.
func (c RecordCounts) Total() int {
	return c.Attendance + c.Assessments + c.Archives + c.Images
}

// Summary is the console snapshot of the backend archive state. CleanupTarget is
// StateUninitialized when no month has been completed yet.
type Summary struct {
	CurrentMonthLabel string
	DaysUntilMonthEnd int
	Current           Period
	CleanupTarget     Period
	IsCleanupWindow   bool
	ShowReminder      bool
	CurrentData       RecordCounts
	HasCurrentData    bool
	FetchedAt         time.Time
}

// CleanupOutcome is returned by a successful cleanup.
type CleanupOutcome struct {
	Message        string
	Period         Period
	RecordsDeleted RecordCounts
	ImageFailures  int
}

// ClearOutcome is returned by a successful clear-all.
type ClearOutcome struct {
	Deleted       RecordCounts
	ImageFailures int
}

// Professor populates the export filter.
type Professor struct {
	ID       string
	FullName string
	Subject  string
}
