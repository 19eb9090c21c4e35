package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shs-registrar-api/internal/models"
	appErrors "github.com/noah-isme/shs-registrar-api/pkg/errors"
)

type schoolYearRepoMock struct {
	active        *models.SchoolYear
	activeErr     error
	byID          map[string]*models.SchoolYear
	activateErr   error
	activateCalls []string
	deactivated   bool
}

func (m *schoolYearRepoMock) List(ctx context.Context, filter models.SchoolYearFilter) ([]models.SchoolYear, int, error) {
	return nil, 0, nil
}

func (m *schoolYearRepoMock) FindByID(ctx context.Context, id string) (*models.SchoolYear, error) {
	if year, ok := m.byID[id]; ok {
		return year, nil
	}
	return nil, sql.ErrNoRows
}

func (m *schoolYearRepoMock) FindActive(ctx context.Context) (*models.SchoolYear, error) {
	if m.activeErr != nil {
		return nil, m.activeErr
	}
	if m.active == nil {
		return nil, sql.ErrNoRows
	}
	return m.active, nil
}

func (m *schoolYearRepoMock) Create(ctx context.Context, year *models.SchoolYear) error { return nil }
func (m *schoolYearRepoMock) Update(ctx context.Context, year *models.SchoolYear) error { return nil }

func (m *schoolYearRepoMock) Activate(ctx context.Context, id string) error {
	m.activateCalls = append(m.activateCalls, id)
	if m.activateErr != nil {
		return m.activateErr
	}
	return nil
}

func (m *schoolYearRepoMock) DeactivateAll(ctx context.Context) error {
	m.deactivated = true
	return nil
}

type cacheMock struct {
	values    map[string][]byte
	getErr    error
	deleteErr error
	deletes   []string
	sets      []string
}

func newCacheMock() *cacheMock {
	return &cacheMock{values: map[string][]byte{}}
}

func (m *cacheMock) Get(ctx context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *cacheMock) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	m.sets = append(m.sets, key)
	return nil
}

func (m *cacheMock) Delete(ctx context.Context, key string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.values, key)
	m.deletes = append(m.deletes, key)
	return nil
}

type auditMock struct {
	logs []*models.AuditLog
	err  error
}

func (m *auditMock) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if m.err != nil {
		return m.err
	}
	m.logs = append(m.logs, log)
	return nil
}

func sampleSchoolYear() *models.SchoolYear {
	return &models.SchoolYear{
		ID:        "sy-1",
		YearStart: "2025",
		YearEnd:   "2026",
		Semester:  "1st Semester",
		IsActive:  true,
	}
}

func TestSchoolYearServiceGetActiveCachesResult(t *testing.T) {
	repo := &schoolYearRepoMock{active: sampleSchoolYear()}
	cache := newCacheMock()
	svc := NewSchoolYearService(repo, cache, nil, nil, nil, nil, SchoolYearServiceConfig{})

	year, err := svc.GetActive(context.Background())
	require.NoError(t, err)
	require.NotNil(t, year)
	assert.Equal(t, "sy-1", year.ID)
	assert.Contains(t, cache.sets, activeSchoolYearCacheKey)

	// Second read is served from cache even after storage changes.
	repo.active = nil
	year, err = svc.GetActive(context.Background())
	require.NoError(t, err)
	require.NotNil(t, year)
	assert.Equal(t, "sy-1", year.ID)
}

func TestSchoolYearServiceGetActiveNoneActive(t *testing.T) {
	repo := &schoolYearRepoMock{}
	svc := NewSchoolYearService(repo, newCacheMock(), nil, nil, nil, nil, SchoolYearServiceConfig{})

	year, err := svc.GetActive(context.Background())
	require.NoError(t, err)
	assert.Nil(t, year)
}

func TestSchoolYearServiceGetActiveCacheFailureFallsThrough(t *testing.T) {
	repo := &schoolYearRepoMock{active: sampleSchoolYear()}
	cache := newCacheMock()
	cache.getErr = assert.AnError
	svc := NewSchoolYearService(repo, cache, nil, nil, nil, nil, SchoolYearServiceConfig{})

	year, err := svc.GetActive(context.Background())
	require.NoError(t, err)
	require.NotNil(t, year)
	assert.Equal(t, "sy-1", year.ID)
}

func TestSchoolYearServiceRequireActiveFails(t *testing.T) {
	repo := &schoolYearRepoMock{}
	svc := NewSchoolYearService(repo, newCacheMock(), nil, nil, nil, nil, SchoolYearServiceConfig{})

	_, err := svc.RequireActive(context.Background(), "enrollment submission")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNoActiveSchoolYear))
	assert.Contains(t, appErrors.FromError(err).Message, "enrollment submission")
}

func TestSchoolYearServiceActivateInvalidatesCache(t *testing.T) {
	target := sampleSchoolYear()
	repo := &schoolYearRepoMock{byID: map[string]*models.SchoolYear{"sy-1": target}}
	cache := newCacheMock()
	cache.values[activeSchoolYearCacheKey] = []byte(`{"id":"stale"}`)
	audit := &auditMock{}
	svc := NewSchoolYearService(repo, cache, audit, nil, nil, nil, SchoolYearServiceConfig{})

	year, err := svc.Activate(context.Background(), "sy-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "sy-1", year.ID)
	assert.Contains(t, cache.deletes, activeSchoolYearCacheKey)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionSchoolYearActivate, audit.logs[0].Action)
}

func TestSchoolYearServiceActivateCacheDeleteFailure(t *testing.T) {
	repo := &schoolYearRepoMock{byID: map[string]*models.SchoolYear{"sy-1": sampleSchoolYear()}}
	cache := newCacheMock()
	cache.deleteErr = assert.AnError
	svc := NewSchoolYearService(repo, cache, nil, nil, nil, nil, SchoolYearServiceConfig{})

	_, err := svc.Activate(context.Background(), "sy-1", nil)
	require.Error(t, err)
}

func TestSchoolYearServiceActivateNotFound(t *testing.T) {
	repo := &schoolYearRepoMock{activateErr: sql.ErrNoRows}
	svc := NewSchoolYearService(repo, newCacheMock(), nil, nil, nil, nil, SchoolYearServiceConfig{})

	_, err := svc.Activate(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestSchoolYearServiceDeactivateAll(t *testing.T) {
	repo := &schoolYearRepoMock{}
	cache := newCacheMock()
	cache.values[activeSchoolYearCacheKey] = []byte(`{"id":"sy-1"}`)
	audit := &auditMock{}
	svc := NewSchoolYearService(repo, cache, audit, nil, nil, nil, SchoolYearServiceConfig{})

	require.NoError(t, svc.DeactivateAll(context.Background(), nil))
	assert.True(t, repo.deactivated)
	assert.Contains(t, cache.deletes, activeSchoolYearCacheKey)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionSchoolYearClear, audit.logs[0].Action)
}
