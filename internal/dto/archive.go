package dto

// ExportQuery captures the optional filters of attendance and assessment exports.
// Dates are inclusive calendar days in YYYY-MM-DD form.
type ExportQuery struct {
	ProfessorID string `form:"professorId" json:"professorId" validate:"omitempty,max=64"`
	StartDate   string `form:"startDate" json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate     string `form:"endDate" json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	Format      string `form:"format" json:"format" validate:"omitempty,oneof=zip csv"`
}

// MonthlyExportQuery selects the month of the combined report. Zero values mean the current month.
type MonthlyExportQuery struct {
	Year  int `form:"year" json:"year" validate:"omitempty,min=2000,max=2100"`
	Month int `form:"month" json:"month" validate:"omitempty,min=1,max=12"`
}

// CleanupRequest toggles the emergency override that skips the cleanup window check.
type CleanupRequest struct {
	Override bool `json:"override"`
}

// ClearAllRequest carries the typed confirmation phrase.
type ClearAllRequest struct {
	ConfirmationPhrase string `json:"confirmationPhrase" validate:"required"`
}
