package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-archive-api/internal/models"
	appErrors "github.com/noah-isme/attendance-archive-api/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
}

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Wrap(errors.New("bad token"), appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}
	return v.claims, nil
}

func newProtectedRouter(role models.UserRole, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers := []gin.HandlerFunc{JWT(validatorStub{claims: &models.JWTClaims{UserID: "u1", Role: role}})}
	handlers = append(handlers, extra...)
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.POST("/protected", handlers...)
	return router
}

func serve(router *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/protected", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestJWTRejectsMissingAndInvalidTokens(t *testing.T) {
	router := newProtectedRouter(models.RoleAdmin)

	assert.Equal(t, http.StatusUnauthorized, serve(router, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "bad").Code)
	assert.Equal(t, http.StatusNoContent, serve(router, "good").Code)
}

func TestRequireAdmin(t *testing.T) {
	assert.Equal(t, http.StatusNoContent, serve(newProtectedRouter(models.RoleSuperAdmin, RequireAdmin()), "good").Code)
	assert.Equal(t, http.StatusForbidden, serve(newProtectedRouter(models.RoleProfessor, RequireAdmin()), "good").Code)
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	RequireAdmin()(c)
	require.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimitPerUser(t *testing.T) {
	router := newProtectedRouter(models.RoleAdmin, RateLimit(NewRateLimiter(1, 2)))

	assert.Equal(t, http.StatusNoContent, serve(router, "good").Code)
	assert.Equal(t, http.StatusNoContent, serve(router, "good").Code)
	rec := serve(router, "good")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimiterIsolatesKeys(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	assert.True(t, rl.Allow("user:a"))
	assert.False(t, rl.Allow("user:a"))
	assert.True(t, rl.Allow("user:b"))
}
