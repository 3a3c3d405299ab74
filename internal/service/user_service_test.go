package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-archive-api/internal/models"
	appErrors "github.com/noah-isme/attendance-archive-api/pkg/errors"
)

type professorRepoStub struct {
	professors []models.Professor
	err        error
	calls      int
}

func (s *professorRepoStub) ListProfessors(context.Context) ([]models.Professor, error) {
	s.calls++
	return s.professors, s.err
}

type professorCacheStub struct {
	stored []models.Professor
	hit    bool
}

func (c *professorCacheStub) Get(_ context.Context, _ string, dest interface{}) (bool, error) {
	if !c.hit {
		return false, nil
	}
	*(dest.(*[]models.Professor)) = c.stored
	return true, nil
}

func (c *professorCacheStub) Set(_ context.Context, _ string, value interface{}, _ time.Duration) error {
	c.stored = value.([]models.Professor)
	c.hit = true
	return nil
}

func (c *professorCacheStub) Invalidate(context.Context, string) error {
	c.hit = false
	return nil
}

func TestListProfessorsCachesResult(t *testing.T) {
	repo := &professorRepoStub{professors: []models.Professor{{ID: "p1", FullName: "Ada Lovelace", Subject: "Math"}}}
	cache := &professorCacheStub{}
	svc := NewUserService(repo, cache, nil)

	first, err := svc.ListProfessors(context.Background(), adminClaims)
	require.NoError(t, err)
	second, err := svc.ListProfessors(context.Background(), adminClaims)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.calls)
}

func TestListProfessorsEmptyIsNotNil(t *testing.T) {
	svc := NewUserService(&professorRepoStub{}, nil, nil)

	professors, err := svc.ListProfessors(context.Background(), adminClaims)
	require.NoError(t, err)
	assert.NotNil(t, professors)
	assert.Empty(t, professors)
}

func TestListProfessorsRequiresAdmin(t *testing.T) {
	svc := NewUserService(&professorRepoStub{}, nil, nil)

	_, err := svc.ListProfessors(context.Background(), &models.JWTClaims{UserID: "s1", Role: models.RoleStudent})
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestListProfessorsRepositoryError(t *testing.T) {
	svc := NewUserService(&professorRepoStub{err: errors.New("boom")}, nil, nil)

	_, err := svc.ListProfessors(context.Background(), adminClaims)
	require.ErrorIs(t, err, appErrors.ErrInternal)
}
