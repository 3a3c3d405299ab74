package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/attendance-archive-api/internal/dto"
	"github.com/noah-isme/attendance-archive-api/internal/models"
	"github.com/noah-isme/attendance-archive-api/internal/service"
	appErrors "github.com/noah-isme/attendance-archive-api/pkg/errors"
	"github.com/noah-isme/attendance-archive-api/pkg/response"
)

type archiveService interface {
	Summary(ctx context.Context) (*models.ArchiveSummary, error)
	MarkComplete(ctx context.Context, actor *models.JWTClaims) (*models.MarkCompleteResult, error)
	ExecuteCleanup(ctx context.Context, actor *models.JWTClaims, override bool) (*models.CleanupResult, error)
	ClearAll(ctx context.Context, actor *models.JWTClaims, phrase string) (*models.ClearAllResult, error)
}

type exportService interface {
	ExportAttendance(ctx context.Context, actor *models.JWTClaims, query dto.ExportQuery) (*service.ExportArtifact, error)
	ExportAssessments(ctx context.Context, actor *models.JWTClaims, query dto.ExportQuery) (*service.ExportArtifact, error)
	ExportMonthly(ctx context.Context, actor *models.JWTClaims, query dto.MonthlyExportQuery) (*service.ExportArtifact, error)
}

// ArchiveHandler exposes the monthly archive lifecycle and export endpoints.
type ArchiveHandler struct {
	archive   archiveService
	exports   exportService
	validator *validator.Validate
}

// NewArchiveHandler constructs the handler.
func NewArchiveHandler(archive archiveService, exports exportService, validate *validator.Validate) *ArchiveHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &ArchiveHandler{archive: archive, exports: exports, validator: validate}
}

// Summary godoc
// @Summary Archive summary
// @Description Current month status, cleanup target, reminder and window flags
// @Tags Archive
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /archive/summary [get]
func (h *ArchiveHandler) Summary(c *gin.Context) {
	if h.archive == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "archive service not configured"))
		return
	}
	summary, err := h.archive.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary)
}

// MarkComplete godoc
// @Summary Mark current month complete
// @Tags Archive
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /archive/mark-complete [post]
func (h *ArchiveHandler) MarkComplete(c *gin.Context) {
	if h.archive == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "archive service not configured"))
		return
	}
	result, err := h.archive.MarkComplete(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Cleanup godoc
// @Summary Execute monthly cleanup
// @Description Deletes operational records of the latest completed month. override skips the window check.
// @Tags Archive
// @Accept json
// @Produce json
// @Param payload body dto.CleanupRequest false "Cleanup options"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /archive/cleanup [post]
func (h *ArchiveHandler) Cleanup(c *gin.Context) {
	if h.archive == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "archive service not configured"))
		return
	}
	var req dto.CleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cleanup payload"))
		return
	}
	result, err := h.archive.ExecuteCleanup(c.Request.Context(), claimsFromContext(c), req.Override)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// ClearAll godoc
// @Summary Delete all operational data
// @Tags Archive
// @Accept json
// @Produce json
// @Param payload body dto.ClearAllRequest true "Confirmation phrase"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /archive/clear-all [post]
func (h *ArchiveHandler) ClearAll(c *gin.Context) {
	if h.archive == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "archive service not configured"))
		return
	}
	var req dto.ClearAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid clear-all payload"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "confirmationPhrase is required"))
		return
	}
	result, err := h.archive.ClearAll(c.Request.Context(), claimsFromContext(c), req.ConfirmationPhrase)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// ExportAttendance godoc
// @Summary Export attendance
// @Description Zip with attendance.csv and photos, or a bare CSV with format=csv
// @Tags Archive
// @Produce application/zip
// @Produce text/csv
// @Param professorId query string false "Professor filter"
// @Param startDate query string false "Inclusive start date (YYYY-MM-DD)"
// @Param endDate query string false "Inclusive end date (YYYY-MM-DD)"
// @Param format query string false "zip or csv"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /archive/export/attendance [get]
func (h *ArchiveHandler) ExportAttendance(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export service not configured"))
		return
	}
	h.export(c, h.exports.ExportAttendance)
}

// ExportAssessments godoc
// @Summary Export assessments
// @Tags Archive
// @Produce text/csv
// @Param professorId query string false "Professor filter"
// @Param startDate query string false "Inclusive start date (YYYY-MM-DD)"
// @Param endDate query string false "Inclusive end date (YYYY-MM-DD)"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /archive/export/assessments [get]
func (h *ArchiveHandler) ExportAssessments(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export service not configured"))
		return
	}
	h.export(c, h.exports.ExportAssessments)
}

// ExportMonthly godoc
// @Summary Export monthly PDF report
// @Tags Archive
// @Produce application/pdf
// @Param year query int false "Year, defaults to the current year"
// @Param month query int false "Month 1-12, defaults to the current month"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /archive/export/monthly [get]
func (h *ArchiveHandler) ExportMonthly(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export service not configured"))
		return
	}
	var query dto.MonthlyExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "year and month must be numbers"))
		return
	}
	if err := h.validator.Struct(query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report month"))
		return
	}
	artifact, err := h.exports.ExportMonthly(c.Request.Context(), claimsFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, artifact.Filename, artifact.ContentType, artifact.Payload)
}

type exportFunc func(ctx context.Context, actor *models.JWTClaims, query dto.ExportQuery) (*service.ExportArtifact, error)

func (h *ArchiveHandler) export(c *gin.Context, run exportFunc) {
	var query dto.ExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export filters"))
		return
	}
	if err := h.validator.Struct(query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "dates must use YYYY-MM-DD and format must be zip or csv"))
		return
	}
	artifact, err := run(c.Request.Context(), claimsFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, artifact.Filename, artifact.ContentType, artifact.Payload)
}
