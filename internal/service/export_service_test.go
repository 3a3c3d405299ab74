package service

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-archive-api/internal/dto"
	"github.com/noah-isme/attendance-archive-api/internal/models"
	"github.com/noah-isme/attendance-archive-api/internal/retention"
	appErrors "github.com/noah-isme/attendance-archive-api/pkg/errors"
	"github.com/noah-isme/attendance-archive-api/pkg/storage"
)

type attendanceListerStub struct {
	sessions []models.AttendanceSession
	filters  []models.RecordFilter
}

func (s *attendanceListerStub) List(_ context.Context, filter models.RecordFilter) ([]models.AttendanceSession, error) {
	s.filters = append(s.filters, filter)
	return s.sessions, nil
}

type assessmentListerStub struct {
	assessments []models.Assessment
	filters     []models.RecordFilter
}

func (s *assessmentListerStub) List(_ context.Context, filter models.RecordFilter) ([]models.Assessment, error) {
	s.filters = append(s.filters, filter)
	return s.assessments, nil
}

type photoOpenerStub struct {
	files map[string]string
}

func (p *photoOpenerStub) Open(_ context.Context, key string) (io.ReadCloser, error) {
	content, ok := p.files[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

type exportRecorderStub struct {
	exports []*models.ArchiveExport
}

func (r *exportRecorderStub) RecordExport(_ context.Context, export *models.ArchiveExport) error {
	export.ID = "export-1"
	r.exports = append(r.exports, export)
	return nil
}

type exportFixture struct {
	svc         *ExportService
	attendance  *attendanceListerStub
	assessments *assessmentListerStub
	recorder    *exportRecorderStub
	audit       *auditStub
}

func newExportFixture(now time.Time) *exportFixture {
	f := &exportFixture{
		attendance:  &attendanceListerStub{},
		assessments: &assessmentListerStub{},
		recorder:    &exportRecorderStub{},
		audit:       &auditStub{},
	}
	photos := &photoOpenerStub{files: map[string]string{"s-1/start.jpg": "start-bytes"}}
	f.svc = NewExportService(f.attendance, f.assessments, photos, f.recorder, nil, nil, NewMetricsService(), f.audit,
		retention.FixedClock{At: now}, nil, ExportServiceConfig{})
	return f
}

func strRef(v string) *string { return &v }

func sampleSession() models.AttendanceSession {
	started := time.Date(2025, time.June, 10, 8, 0, 0, 0, time.UTC)
	ended := started.Add(90 * time.Minute)
	return models.AttendanceSession{
		ID:            "s-1",
		ProfessorID:   "p-1",
		ProfessorName: "Ada Lovelace",
		Subject:       "Mathematics",
		Section:       "A",
		ClassRoom:     "R101",
		StartedAt:     started,
		EndedAt:       &ended,
		StartPhotoKey: strRef("s-1/start.jpg"),
		EndPhotoKey:   strRef("s-1/missing.jpg"),
	}
}

func TestExportAttendanceZip(t *testing.T) {
	f := newExportFixture(time.Date(2025, time.June, 28, 9, 0, 0, 0, time.UTC))
	f.attendance.sessions = []models.AttendanceSession{sampleSession()}

	artifact, err := f.svc.ExportAttendance(context.Background(), adminClaims, dto.ExportQuery{
		ProfessorID: "p-1", StartDate: "2025-06-01", EndDate: "2025-06-30",
	})
	require.NoError(t, err)
	assert.Equal(t, ContentTypeZIP, artifact.ContentType)
	assert.Equal(t, "attendance_2025-06-01_to_2025-06-30.zip", artifact.Filename)
	assert.Equal(t, 1, artifact.Records)

	require.Len(t, f.attendance.filters, 1)
	filter := f.attendance.filters[0]
	assert.Equal(t, "p-1", filter.ProfessorID)
	assert.Equal(t, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), *filter.Start)
	assert.Equal(t, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC), *filter.End)

	reader, err := zip.NewReader(bytes.NewReader(artifact.Payload), int64(len(artifact.Payload)))
	require.NoError(t, err)
	names := make([]string, 0, len(reader.File))
	for _, file := range reader.File {
		names = append(names, file.Name)
	}
	assert.ElementsMatch(t, []string{"attendance.csv", "photos/2025-06-10/s-1_start.jpg"}, names)

	require.Len(t, f.recorder.exports, 1)
	assert.Equal(t, 2025, f.recorder.exports[0].Year)
	assert.Equal(t, 6, f.recorder.exports[0].Month)
	assert.Equal(t, models.ExportKindAttendance, f.recorder.exports[0].Kind)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionArchiveExport, f.audit.logs[0].Action)
}

func TestExportAttendanceCSVDefaultName(t *testing.T) {
	f := newExportFixture(time.Date(2025, time.June, 28, 9, 0, 0, 0, time.UTC))
	f.attendance.sessions = []models.AttendanceSession{sampleSession()}

	artifact, err := f.svc.ExportAttendance(context.Background(), adminClaims, dto.ExportQuery{Format: "csv"})
	require.NoError(t, err)
	assert.Equal(t, "attendance_2025-06-28.csv", artifact.Filename)
	assert.Equal(t, ContentTypeCSV, artifact.ContentType)
	assert.Contains(t, string(artifact.Payload), "Ada Lovelace")
	assert.Nil(t, f.attendance.filters[0].Start)
	assert.Nil(t, f.attendance.filters[0].End)
}

func TestExportRejectsInvertedRange(t *testing.T) {
	f := newExportFixture(time.Date(2025, time.June, 28, 9, 0, 0, 0, time.UTC))

	_, err := f.svc.ExportAssessments(context.Background(), adminClaims, dto.ExportQuery{StartDate: "2025-06-20", EndDate: "2025-06-10"})
	require.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Empty(t, f.assessments.filters)

	_, err = f.svc.ExportAssessments(context.Background(), adminClaims, dto.ExportQuery{StartDate: "20-06-2025"})
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestExportNoRecords(t *testing.T) {
	f := newExportFixture(time.Date(2025, time.June, 28, 9, 0, 0, 0, time.UTC))

	_, err := f.svc.ExportAssessments(context.Background(), adminClaims, dto.ExportQuery{})
	require.ErrorIs(t, err, appErrors.ErrNoRecords)
	assert.Equal(t, "No records found", appErrors.FromError(err).Message)
	assert.Empty(t, f.recorder.exports)

	_, err = f.svc.ExportMonthly(context.Background(), adminClaims, dto.MonthlyExportQuery{})
	require.ErrorIs(t, err, appErrors.ErrNoRecords)
}

func TestExportAssessmentsCSV(t *testing.T) {
	f := newExportFixture(time.Date(2025, time.June, 28, 9, 0, 0, 0, time.UTC))
	f.assessments.assessments = []models.Assessment{{
		ID: "a-1", ProfessorName: "Ada Lovelace", StudentName: "Grace Hopper", Subject: "Mathematics",
		TotalScore: 42, AverageRating: 4.2, AcademicYear: "2024-2025",
		CreatedAt: time.Date(2025, time.June, 11, 10, 0, 0, 0, time.UTC),
	}}

	artifact, err := f.svc.ExportAssessments(context.Background(), adminClaims, dto.ExportQuery{StartDate: "2025-06-01"})
	require.NoError(t, err)
	assert.Equal(t, "assessments_from_2025-06-01.csv", artifact.Filename)
	body := string(artifact.Payload)
	assert.Contains(t, body, "Grace Hopper")
	assert.Contains(t, body, "4.20")
}

func TestExportMonthlyPDF(t *testing.T) {
	f := newExportFixture(time.Date(2025, time.July, 2, 9, 0, 0, 0, time.UTC))
	f.attendance.sessions = []models.AttendanceSession{sampleSession()}

	artifact, err := f.svc.ExportMonthly(context.Background(), adminClaims, dto.MonthlyExportQuery{Year: 2025, Month: 6})
	require.NoError(t, err)
	assert.Equal(t, "monthly_report_2025_06.pdf", artifact.Filename)
	assert.Equal(t, ContentTypePDF, artifact.ContentType)
	assert.True(t, bytes.HasPrefix(artifact.Payload, []byte("%PDF")))
	assert.Equal(t, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), *f.attendance.filters[0].Start)
	assert.Equal(t, 6, f.recorder.exports[0].Month)
}

func TestExportRequiresAdmin(t *testing.T) {
	f := newExportFixture(time.Now())
	_, err := f.svc.ExportAttendance(context.Background(), &models.JWTClaims{UserID: "s-1", Role: models.RoleStudent}, dto.ExportQuery{})
	require.ErrorIs(t, err, appErrors.ErrForbidden)
	assert.Empty(t, f.attendance.filters)
}
