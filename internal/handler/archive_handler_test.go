package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-archive-api/internal/dto"
	"github.com/noah-isme/attendance-archive-api/internal/middleware"
	"github.com/noah-isme/attendance-archive-api/internal/models"
	"github.com/noah-isme/attendance-archive-api/internal/service"
	appErrors "github.com/noah-isme/attendance-archive-api/pkg/errors"
)

type archiveServiceMock struct {
	summary      *models.ArchiveSummary
	markErr      error
	cleanupErr   error
	clearErr     error
	override     *bool
	phrase       string
	cleanupCalls int
}

func (m *archiveServiceMock) Summary(context.Context) (*models.ArchiveSummary, error) {
	return m.summary, nil
}

func (m *archiveServiceMock) MarkComplete(context.Context, *models.JWTClaims) (*models.MarkCompleteResult, error) {
	if m.markErr != nil {
		return nil, m.markErr
	}
	return &models.MarkCompleteResult{Success: true}, nil
}

func (m *archiveServiceMock) ExecuteCleanup(_ context.Context, _ *models.JWTClaims, override bool) (*models.CleanupResult, error) {
	m.cleanupCalls++
	m.override = &override
	if m.cleanupErr != nil {
		return nil, m.cleanupErr
	}
	return &models.CleanupResult{Message: "cleaned"}, nil
}

func (m *archiveServiceMock) ClearAll(_ context.Context, _ *models.JWTClaims, phrase string) (*models.ClearAllResult, error) {
	m.phrase = phrase
	if m.clearErr != nil {
		return nil, m.clearErr
	}
	return &models.ClearAllResult{Success: true}, nil
}

type exportServiceMock struct {
	artifact *service.ExportArtifact
	err      error
	calls    int
	query    dto.ExportQuery
	monthly  dto.MonthlyExportQuery
}

func (m *exportServiceMock) ExportAttendance(_ context.Context, _ *models.JWTClaims, query dto.ExportQuery) (*service.ExportArtifact, error) {
	m.calls++
	m.query = query
	return m.artifact, m.err
}

func (m *exportServiceMock) ExportAssessments(_ context.Context, _ *models.JWTClaims, query dto.ExportQuery) (*service.ExportArtifact, error) {
	m.calls++
	m.query = query
	return m.artifact, m.err
}

func (m *exportServiceMock) ExportMonthly(_ context.Context, _ *models.JWTClaims, query dto.MonthlyExportQuery) (*service.ExportArtifact, error) {
	m.calls++
	m.monthly = query
	return m.artifact, m.err
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})
	return c, w
}

func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope.Error.Code
}

func TestArchiveHandlerSummary(t *testing.T) {
	svc := &archiveServiceMock{summary: &models.ArchiveSummary{CurrentMonth: "June 2025", DaysUntilMonthEnd: 2}}
	h := NewArchiveHandler(svc, nil, nil)

	c, w := newGinContext(http.MethodGet, "/archive/summary", nil)
	h.Summary(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"currentMonth":"June 2025"`)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestArchiveHandlerMarkCompleteConflict(t *testing.T) {
	h := NewArchiveHandler(&archiveServiceMock{markErr: appErrors.ErrAlreadyCompleted}, nil, nil)

	c, w := newGinContext(http.MethodPost, "/archive/mark-complete", nil)
	h.MarkComplete(c)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_COMPLETED", decodeErrorCode(t, w))
}

func TestArchiveHandlerCleanupOverride(t *testing.T) {
	svc := &archiveServiceMock{}
	h := NewArchiveHandler(svc, nil, nil)

	c, w := newGinContext(http.MethodPost, "/archive/cleanup", nil)
	h.Cleanup(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.override)
	assert.False(t, *svc.override)

	c, w = newGinContext(http.MethodPost, "/archive/cleanup", []byte(`{"override":true}`))
	h.Cleanup(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, *svc.override)
}

func TestArchiveHandlerCleanupPrecondition(t *testing.T) {
	h := NewArchiveHandler(&archiveServiceMock{cleanupErr: appErrors.ErrOutsideCleanupWindow}, nil, nil)

	c, w := newGinContext(http.MethodPost, "/archive/cleanup", []byte(`{}`))
	h.Cleanup(c)

	require.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.Equal(t, "OUTSIDE_CLEANUP_WINDOW", decodeErrorCode(t, w))
}

func TestArchiveHandlerClearAll(t *testing.T) {
	svc := &archiveServiceMock{}
	h := NewArchiveHandler(svc, nil, nil)

	c, w := newGinContext(http.MethodPost, "/archive/clear-all", []byte(`{}`))
	h.ClearAll(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.phrase)

	c, w = newGinContext(http.MethodPost, "/archive/clear-all", []byte(`{"confirmationPhrase":"DELETE ALL DATA"}`))
	h.ClearAll(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DELETE ALL DATA", svc.phrase)

	svc.clearErr = appErrors.ErrConfirmationMismatch
	c, w = newGinContext(http.MethodPost, "/archive/clear-all", []byte(`{"confirmationPhrase":"delete all data"}`))
	h.ClearAll(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "CONFIRMATION_MISMATCH", decodeErrorCode(t, w))
}

func TestArchiveHandlerExportAttendance(t *testing.T) {
	exports := &exportServiceMock{artifact: &service.ExportArtifact{
		Filename:    "attendance_2025-06-01_to_2025-06-30.zip",
		ContentType: service.ContentTypeZIP,
		Payload:     []byte("PK"),
	}}
	h := NewArchiveHandler(nil, exports, nil)

	c, w := newGinContext(http.MethodGet, "/archive/export/attendance?professorId=p1&startDate=2025-06-01&endDate=2025-06-30", nil)
	h.ExportAttendance(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.ContentTypeZIP, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="attendance_2025-06-01_to_2025-06-30.zip"`)
	assert.Equal(t, "PK", w.Body.String())
	assert.Equal(t, "p1", exports.query.ProfessorID)
	assert.Equal(t, "2025-06-30", exports.query.EndDate)
}

func TestArchiveHandlerExportRejectsBadFilters(t *testing.T) {
	exports := &exportServiceMock{}
	h := NewArchiveHandler(nil, exports, nil)

	for _, path := range []string{
		"/archive/export/attendance?format=pdf",
		"/archive/export/attendance?startDate=06/01/2025",
	} {
		c, w := newGinContext(http.MethodGet, path, nil)
		h.ExportAttendance(c)
		require.Equal(t, http.StatusBadRequest, w.Code, path)
	}
	assert.Zero(t, exports.calls)
}

func TestArchiveHandlerExportNoRecords(t *testing.T) {
	h := NewArchiveHandler(nil, &exportServiceMock{err: appErrors.ErrNoRecords}, nil)

	c, w := newGinContext(http.MethodGet, "/archive/export/assessments", nil)
	h.ExportAssessments(c)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.Contains(t, w.Body.String(), "No records found")
}

func TestArchiveHandlerExportMonthly(t *testing.T) {
	exports := &exportServiceMock{artifact: &service.ExportArtifact{Filename: "monthly_report_2025_06.pdf", ContentType: service.ContentTypePDF, Payload: []byte("%PDF")}}
	h := NewArchiveHandler(nil, exports, nil)

	c, w := newGinContext(http.MethodGet, "/archive/export/monthly?year=2025&month=6", nil)
	h.ExportMonthly(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.MonthlyExportQuery{Year: 2025, Month: 6}, exports.monthly)

	c, w = newGinContext(http.MethodGet, "/archive/export/monthly?year=2025&month=13", nil)
	h.ExportMonthly(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1, exports.calls)
}

func TestArchiveHandlerWithoutServices(t *testing.T) {
	h := NewArchiveHandler(nil, nil, nil)

	c, w := newGinContext(http.MethodGet, "/archive/summary", nil)
	h.Summary(c)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	c, w = newGinContext(http.MethodGet, "/archive/export/attendance", nil)
	h.ExportAttendance(c)
	require.Equal(t, http.StatusInternalServerError, w.Code)
}
