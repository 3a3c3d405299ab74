package archive

import (
	"context"
	"time"
)

// ExportKind selects the dataset of an export.
type ExportKind string

const (
	ExportAttendance  ExportKind = "attendance"
	ExportAssessments ExportKind = "assessments"
	ExportMonthly     ExportKind = "monthly"
)

// ExportRequest is one export invocation. Start and End are inclusive calendar days.
// Year and Month are only used by monthly reports.
type ExportRequest struct {
	Kind        ExportKind
	ProfessorID string
	Start       *time.Time
	End         *time.Time
	Format      string
	Year        int
	Month       int
}

// Artifact is a downloaded export.
type Artifact struct {
	Kind        ExportKind
	Filename    string
	ContentType string
	Payload     []byte
}

// Backend is the archive collaborator. Implementations return *ActionError for
// classified failures.
type Backend interface {
	GetArchiveSummary(ctx context.Context) (Summary, error)
	MarkArchiveComplete(ctx context.Context) error
	ExecuteCleanup(ctx context.Context, override bool) (CleanupOutcome, error)
	ClearAllData(ctx context.Context, phrase string) (ClearOutcome, error)
	Export(ctx context.Context, req ExportRequest) (Artifact, error)
	ListProfessors(ctx context.Context) ([]Professor, error)
}
