package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/attendance-archive-api/internal/models"
	appErrors "github.com/noah-isme/attendance-archive-api/pkg/errors"
)

type mockAuthRepo struct {
	userByEmail    *models.User
	findByEmailErr error
	findByIDErr    error
	auditLogs      []*models.AuditLog
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.findByIDErr != nil {
		return nil, m.findByIDErr
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func newTestAuthService(t *testing.T, repo *mockAuthRepo) *AuthService {
	t.Helper()
	return NewAuthService(repo, nil, zap.NewNop(), AuthConfig{
		AccessTokenSecret: "secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "attendance-archive-api",
	})
}

func hashedUser(t *testing.T, password string, role models.UserRole) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{ID: "user-1", Email: "admin@example.com", PasswordHash: string(hash), FullName: "Admin", Role: role, Active: true}
}

func TestLoginSuccessIssuesValidToken(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: hashedUser(t, "password123", models.RoleAdmin)}
	svc := newTestAuthService(t, repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, models.RoleAdmin, resp.User.Role)
	require.Len(t, repo.auditLogs, 1)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestLoginInvalidPassword(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: hashedUser(t, "password123", models.RoleAdmin)}
	svc := newTestAuthService(t, repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@example.com", Password: "wrong"})
	require.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
}

func TestLoginUnknownUser(t *testing.T) {
	svc := newTestAuthService(t, &mockAuthRepo{findByEmailErr: sql.ErrNoRows})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "x"})
	require.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
}

func TestLoginInactiveAccount(t *testing.T) {
	user := hashedUser(t, "password123", models.RoleAdmin)
	user.Active = false
	svc := newTestAuthService(t, &mockAuthRepo{userByEmail: user})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@example.com", Password: "password123"})
	require.ErrorIs(t, err, appErrors.ErrInactiveAccount)
}

func TestLoginValidation(t *testing.T) {
	svc := newTestAuthService(t, &mockAuthRepo{})
	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email"})
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: hashedUser(t, "password123", models.RoleAdmin)}
	issuer := NewAuthService(repo, nil, nil, AuthConfig{AccessTokenSecret: "other", Issuer: "attendance-archive-api"})
	resp, err := issuer.Login(context.Background(), models.LoginRequest{Email: "admin@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = newTestAuthService(t, repo).ValidateToken(resp.AccessToken)
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestCurrentUser(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: hashedUser(t, "password123", models.RoleProfessor)}
	svc := newTestAuthService(t, repo)

	info, err := svc.CurrentUser(context.Background(), &models.JWTClaims{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleProfessor, info.Role)

	_, err = svc.CurrentUser(context.Background(), nil)
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)

	repo.findByIDErr = sql.ErrNoRows
	_, err = svc.CurrentUser(context.Background(), &models.JWTClaims{UserID: "gone"})
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
