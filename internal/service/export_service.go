package service

import (
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-archive-api/internal/dto"
	"github.com/noah-isme/attendance-archive-api/internal/models"
	"github.com/noah-isme/attendance-archive-api/internal/retention"
	appErrors "github.com/noah-isme/attendance-archive-api/pkg/errors"
	"github.com/noah-isme/attendance-archive-api/pkg/export"
)

const (
	ContentTypeZIP = "application/zip"
	ContentTypeCSV = "text/csv; charset=utf-8"
	ContentTypePDF = "application/pdf"

	exportDateLayout = "2006-01-02"
)

type attendanceLister interface {
	List(ctx context.Context, filter models.RecordFilter) ([]models.AttendanceSession, error)
}

type assessmentLister interface {
	List(ctx context.Context, filter models.RecordFilter) ([]models.Assessment, error)
}

type photoOpener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

type exportRecorder interface {
	RecordExport(ctx context.Context, export *models.ArchiveExport) error
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(title string, sections ...export.Section) ([]byte, error)
}

// ExportArtifact is a rendered download.
type ExportArtifact struct {
	Filename    string
	ContentType string
	Payload     []byte
	Records     int
}

// ExportServiceConfig tunes export behaviour.
type ExportServiceConfig struct {
	Location *time.Location
}

// ExportService renders attendance, assessment and monthly report downloads.
type ExportService struct {
	attendance  attendanceLister
	assessments assessmentLister
	photos      photoOpener
	recorder    exportRecorder
	csv         csvRenderer
	pdf         pdfRenderer
	metrics     *MetricsService
	audit       auditLogger
	clock       retention.Clock
	logger      *zap.Logger
	cfg         ExportServiceConfig
}

// NewExportService wires the export pipeline.
func NewExportService(attendance attendanceLister, assessments assessmentLister, photos photoOpener, recorder exportRecorder, csv csvRenderer, pdf pdfRenderer, metrics *MetricsService, audit auditLogger, clock retention.Clock, logger *zap.Logger, cfg ExportServiceConfig) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if clock == nil {
		clock = retention.SystemClock{Location: cfg.Location}
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		attendance:  attendance,
		assessments: assessments,
		photos:      photos,
		recorder:    recorder,
		csv:         csv,
		pdf:         pdf,
		metrics:     metrics,
		audit:       audit,
		clock:       clock,
		logger:      logger,
		cfg:         cfg,
	}
}

type exportRange struct {
	filter models.RecordFilter
	year   int
	month  int
	label  string
}

// ExportAttendance renders attendance sessions as a zip of CSV plus photos, or as a bare CSV.
func (s *ExportService) ExportAttendance(ctx context.Context, actor *models.JWTClaims, query dto.ExportQuery) (artifact *ExportArtifact, err error) {
	defer func() { s.observe(models.ExportKindAttendance, artifact, err) }()
	if err := requireArchiveAdmin(actor); err != nil {
		return nil, err
	}
	rng, err := s.resolveRange(query)
	if err != nil {
		return nil, err
	}
	sessions, err := s.attendance.List(ctx, rng.filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	if len(sessions) == 0 {
		return nil, appErrors.ErrNoRecords
	}

	csvPayload, err := s.csv.Render(attendanceDataset(sessions, s.cfg.Location))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render attendance csv")
	}

	if query.Format == "csv" {
		artifact = &ExportArtifact{
			Filename:    fmt.Sprintf("attendance_%s.csv", rng.label),
			ContentType: ContentTypeCSV,
			Payload:     csvPayload,
			Records:     len(sessions),
		}
	} else {
		payload, err := s.attendanceArchive(ctx, sessions, csvPayload)
		if err != nil {
			return nil, err
		}
		artifact = &ExportArtifact{
			Filename:    fmt.Sprintf("attendance_%s.zip", rng.label),
			ContentType: ContentTypeZIP,
			Payload:     payload,
			Records:     len(sessions),
		}
	}
	s.record(ctx, actor, models.ExportKindAttendance, rng, artifact)
	return artifact, nil
}

// ExportAssessments renders faculty assessments as CSV.
func (s *ExportService) ExportAssessments(ctx context.Context, actor *models.JWTClaims, query dto.ExportQuery) (artifact *ExportArtifact, err error) {
	defer func() { s.observe(models.ExportKindAssessments, artifact, err) }()
	if err := requireArchiveAdmin(actor); err != nil {
		return nil, err
	}
	rng, err := s.resolveRange(query)
	if err != nil {
		return nil, err
	}
	assessments, err := s.assessments.List(ctx, rng.filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessments")
	}
	if len(assessments) == 0 {
		return nil, appErrors.ErrNoRecords
	}
	payload, err := s.csv.Render(assessmentDataset(assessments, s.cfg.Location))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render assessments csv")
	}
	artifact = &ExportArtifact{
		Filename:    fmt.Sprintf("assessments_%s.csv", rng.label),
		ContentType: ContentTypeCSV,
		Payload:     payload,
		Records:     len(assessments),
	}
	s.record(ctx, actor, models.ExportKindAssessments, rng, artifact)
	return artifact, nil
}

// ExportMonthly renders one PDF combining a month's attendance and assessments.
func (s *ExportService) ExportMonthly(ctx context.Context, actor *models.JWTClaims, query dto.MonthlyExportQuery) (artifact *ExportArtifact, err error) {
	defer func() { s.observe(models.ExportKindMonthly, artifact, err) }()
	if err := requireArchiveAdmin(actor); err != nil {
		return nil, err
	}
	now := s.clock.Now().In(s.cfg.Location)
	year, month := query.Year, query.Month
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = int(now.Month())
	}
	if month < 1 || month > 12 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "month must be between 1 and 12")
	}
	start, end := retention.MonthBounds(year, time.Month(month), s.cfg.Location)
	filter := models.RecordFilter{Start: &start, End: &end}

	sessions, err := s.attendance.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	assessments, err := s.assessments.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessments")
	}
	if len(sessions) == 0 && len(assessments) == 0 {
		return nil, appErrors.ErrNoRecords
	}

	title := fmt.Sprintf("Monthly Archive Report %s", retention.MonthLabel(year, time.Month(month)))
	payload, err := s.pdf.Render(title,
		export.Section{Heading: fmt.Sprintf("Attendance (%d sessions)", len(sessions)), Data: attendanceDataset(sessions, s.cfg.Location)},
		export.Section{Heading: fmt.Sprintf("Assessments (%d submissions)", len(assessments)), Data: assessmentDataset(assessments, s.cfg.Location)},
	)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render monthly report")
	}
	artifact = &ExportArtifact{
		Filename:    fmt.Sprintf("monthly_report_%04d_%02d.pdf", year, month),
		ContentType: ContentTypePDF,
		Payload:     payload,
		Records:     len(sessions) + len(assessments),
	}
	s.record(ctx, actor, models.ExportKindMonthly, exportRange{filter: filter, year: year, month: month}, artifact)
	return artifact, nil
}

// resolveRange validates the inclusive date filters and converts them to a [start, end) filter.
func (s *ExportService) resolveRange(query dto.ExportQuery) (exportRange, error) {
	now := s.clock.Now().In(s.cfg.Location)
	rng := exportRange{
		filter: models.RecordFilter{ProfessorID: query.ProfessorID},
		year:   now.Year(),
		month:  int(now.Month()),
		label:  now.Format(exportDateLayout),
	}
	var start, end time.Time
	var err error
	if query.StartDate != "" {
		if start, err = time.ParseInLocation(exportDateLayout, query.StartDate, s.cfg.Location); err != nil {
			return rng, appErrors.Clone(appErrors.ErrValidation, "startDate must use YYYY-MM-DD")
		}
		rng.filter.Start = &start
		rng.year, rng.month = start.Year(), int(start.Month())
	}
	if query.EndDate != "" {
		if end, err = time.ParseInLocation(exportDateLayout, query.EndDate, s.cfg.Location); err != nil {
			return rng, appErrors.Clone(appErrors.ErrValidation, "endDate must use YYYY-MM-DD")
		}
		exclusive := end.AddDate(0, 0, 1)
		rng.filter.End = &exclusive
	}
	if rng.filter.Start != nil && rng.filter.End != nil && end.Before(start) {
		return rng, appErrors.Clone(appErrors.ErrValidation, "startDate must not be after endDate")
	}
	switch {
	case query.StartDate != "" && query.EndDate != "":
		rng.label = query.StartDate + "_to_" + query.EndDate
	case query.StartDate != "":
		rng.label = "from_" + query.StartDate
	case query.EndDate != "":
		rng.label = "until_" + query.EndDate
	}
	return rng, nil
}

func (s *ExportService) attendanceArchive(ctx context.Context, sessions []models.AttendanceSession, csvPayload []byte) ([]byte, error) {
	archive := export.NewZipArchive()
	now := s.clock.Now()
	if err := archive.AddFile("attendance.csv", csvPayload, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build attendance archive")
	}
	if s.photos != nil {
		for _, session := range sessions {
			if session.StartPhotoKey != nil && *session.StartPhotoKey != "" {
				s.addPhoto(ctx, archive, session, "start", *session.StartPhotoKey)
			}
			if session.EndPhotoKey != nil && *session.EndPhotoKey != "" {
				s.addPhoto(ctx, archive, session, "end", *session.EndPhotoKey)
			}
		}
	}
	payload, err := archive.Bytes()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalise attendance archive")
	}
	return payload, nil
}

// addPhoto copies one photo into the archive. Missing photos are logged and skipped.
func (s *ExportService) addPhoto(ctx context.Context, archive *export.ZipArchive, session models.AttendanceSession, slot, key string) {
	rc, err := s.photos.Open(ctx, key)
	if err != nil {
		s.logger.Warn("attendance photo unavailable for export", zap.String("session_id", session.ID), zap.String("key", key), zap.Error(err))
		return
	}
	defer rc.Close()
	name := fmt.Sprintf("photos/%s/%s_%s%s", session.StartedAt.In(s.cfg.Location).Format(exportDateLayout), session.ID, slot, path.Ext(key))
	if err := archive.AddStream(name, rc, session.StartedAt); err != nil {
		s.logger.Warn("failed to add attendance photo", zap.String("session_id", session.ID), zap.Error(err))
	}
}

func (s *ExportService) record(ctx context.Context, actor *models.JWTClaims, kind models.ExportKind, rng exportRange, artifact *ExportArtifact) {
	entry := &models.ArchiveExport{
		Year:       rng.year,
		Month:      rng.month,
		Kind:       kind,
		Filename:   artifact.Filename,
		ExportedBy: &actor.UserID,
	}
	if s.recorder != nil {
		if err := s.recorder.RecordExport(ctx, entry); err != nil {
			s.logger.Warn("failed to record archive export", zap.String("kind", string(kind)), zap.Error(err))
		}
	}
	if s.audit != nil {
		log := &models.AuditLog{
			UserID:    &actor.UserID,
			Action:    models.AuditActionArchiveExport,
			Resource:  models.AuditResourceArchiveExport,
			NewValues: mustJSON(entry),
			IPAddress: "api",
			UserAgent: "export-service",
		}
		if entry.ID != "" {
			log.ResourceID = &entry.ID
		}
		if err := s.audit.CreateAuditLog(ctx, log); err != nil {
			s.logger.Warn("failed to create export audit", zap.Error(err))
		}
	}
	s.logger.Info("archive export generated",
		zap.String("kind", string(kind)),
		zap.String("filename", artifact.Filename),
		zap.Int("records", artifact.Records),
		zap.Int("bytes", len(artifact.Payload)),
	)
}

func (s *ExportService) observe(kind models.ExportKind, artifact *ExportArtifact, err error) {
	size := 0
	if artifact != nil {
		size = len(artifact.Payload)
	}
	s.metrics.RecordExport(kind, err, size)
}

func attendanceDataset(sessions []models.AttendanceSession, loc *time.Location) export.Dataset {
	rows := make([][]string, 0, len(sessions))
	for _, session := range sessions {
		rows = append(rows, []string{
			session.StartedAt.In(loc).Format(exportDateLayout),
			session.ProfessorName,
			session.Subject,
			session.Section,
			session.ClassRoom,
			session.StartedAt.In(loc).Format("15:04"),
			formatOptionalTime(session.EndedAt, loc, "15:04"),
			formatOptionalString(session.Notes),
			formatOptionalString(session.StartPhotoKey),
			formatOptionalString(session.EndPhotoKey),
		})
	}
	return export.Dataset{
		Title:   "Attendance",
		Headers: []string{"Date", "Professor", "Subject", "Section", "Room", "Start", "End", "Notes", "Start Photo", "End Photo"},
		Rows:    rows,
	}
}

func assessmentDataset(assessments []models.Assessment, loc *time.Location) export.Dataset {
	rows := make([][]string, 0, len(assessments))
	for _, a := range assessments {
		rows = append(rows, []string{
			a.CreatedAt.In(loc).Format(exportDateLayout),
			a.ProfessorName,
			a.StudentName,
			a.Subject,
			formatOptionalTime(a.ClassHeldAt, loc, "2006-01-02 15:04"),
			strconv.Itoa(a.TotalScore),
			strconv.FormatFloat(a.AverageRating, 'f', 2, 64),
			formatOptionalString(a.Comments),
			a.AcademicYear,
		})
	}
	return export.Dataset{
		Title:   "Assessments",
		Headers: []string{"Submitted", "Professor", "Student", "Subject", "Class Held", "Total Score", "Average Rating", "Comments", "Academic Year"},
		Rows:    rows,
	}
}

func formatOptionalString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func formatOptionalTime(value *time.Time, loc *time.Location, layout string) string {
	if value == nil {
		return ""
	}
	return value.In(loc).Format(layout)
}
