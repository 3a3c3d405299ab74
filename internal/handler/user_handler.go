package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendance-archive-api/internal/models"
	"github.com/noah-isme/attendance-archive-api/pkg/response"
)

type userService interface {
	ListProfessors(ctx context.Context, actor *models.JWTClaims) ([]models.Professor, error)
}

// UserHandler serves user lookups.
type UserHandler struct {
	service userService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc userService) *UserHandler {
	return &UserHandler{service: svc}
}

// Professors godoc
// @Summary List professors
// @Description Active professors for the export filter
// @Tags Users
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users/professors [get]
func (h *UserHandler) Professors(c *gin.Context) {
	professors, err := h.service.ListProfessors(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, professors, map[string]interface{}{"total": len(professors)})
}
