package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendance-archive-api/internal/middleware"
	"github.com/noah-isme/attendance-archive-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentClaims(c)
}
