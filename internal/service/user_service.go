package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-archive-api/internal/models"
	appErrors "github.com/noah-isme/attendance-archive-api/pkg/errors"
)

const (
	professorsCacheKey = "users:professors"
	professorsCacheTTL = 5 * time.Minute
)

type professorRepository interface {
	ListProfessors(ctx context.Context) ([]models.Professor, error)
}

// UserService exposes user lookups needed by the archive console.
type UserService struct {
	repo   professorRepository
	cache  summaryCache
	logger *zap.Logger
}

// NewUserService creates an instance of UserService. cache may be nil.
func NewUserService(repo professorRepository, cache summaryCache, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, cache: cache, logger: logger}
}

// ListProfessors returns the active professors used to populate export filters.
func (s *UserService) ListProfessors(ctx context.Context, actor *models.JWTClaims) ([]models.Professor, error) {
	if err := requireArchiveAdmin(actor); err != nil {
		return nil, err
	}

	if s.cache != nil {
		var cached []models.Professor
		hit, err := s.cache.Get(ctx, professorsCacheKey, &cached)
		if err != nil {
			s.logger.Warn("professor cache read failed", zap.Error(err))
		} else if hit {
			return cached, nil
		}
	}

	professors, err := s.repo.ListProfessors(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list professors")
	}
	if professors == nil {
		professors = []models.Professor{}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, professorsCacheKey, professors, professorsCacheTTL); err != nil {
			s.logger.Warn("professor cache write failed", zap.Error(err))
		}
	}
	return professors, nil
}
