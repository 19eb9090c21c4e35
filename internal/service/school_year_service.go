package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/shs-registrar-api/internal/models"
	appErrors "github.com/noah-isme/shs-registrar-api/pkg/errors"
)

// activeSchoolYearCacheKey is the cache slot holding the active school year.
const activeSchoolYearCacheKey = "school_year:active"

type schoolYearRepository interface {
	List(ctx context.Context, filter models.SchoolYearFilter) ([]models.SchoolYear, int, error)
	FindByID(ctx context.Context, id string) (*models.SchoolYear, error)
	FindActive(ctx context.Context) (*models.SchoolYear, error)
	Create(ctx context.Context, year *models.SchoolYear) error
	Update(ctx context.Context, year *models.SchoolYear) error
	Activate(ctx context.Context, id string) error
	DeactivateAll(ctx context.Context) error
}

type schoolYearCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateSchoolYearRequest describes a new school year configuration.
type CreateSchoolYearRequest struct {
	YearStart       string     `json:"year_start" validate:"required,len=4"`
	YearEnd         string     `json:"year_end" validate:"required,len=4"`
	Semester        string     `json:"semester" validate:"required"`
	EnrollmentStart *time.Time `json:"enrollment_start"`
	EnrollmentEnd   *time.Time `json:"enrollment_end"`
}

// UpdateSchoolYearRequest describes edits to an existing school year.
type UpdateSchoolYearRequest struct {
	YearStart       string     `json:"year_start" validate:"required,len=4"`
	YearEnd         string     `json:"year_end" validate:"required,len=4"`
	Semester        string     `json:"semester" validate:"required"`
	EnrollmentStart *time.Time `json:"enrollment_start"`
	EnrollmentEnd   *time.Time `json:"enrollment_end"`
}

// SchoolYearService is the single source of truth for the active school
// year. Reads go through a short-lived cache; activation and deactivation
// invalidate it synchronously so a writer immediately observes its own
// change.
type SchoolYearService struct {
	repo      schoolYearRepository
	cache     schoolYearCache
	audit     auditLogger
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// SchoolYearServiceConfig tunes cache behaviour.
type SchoolYearServiceConfig struct {
	CacheTTL time.Duration
}

// NewSchoolYearService constructs the service.
func NewSchoolYearService(repo schoolYearRepository, cache schoolYearCache, audit auditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg SchoolYearServiceConfig) *SchoolYearService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SchoolYearService{repo: repo, cache: cache, audit: audit, metrics: metrics, validator: validate, logger: logger, cacheTTL: ttl}
}

// GetActive returns the active school year, or nil when none is active.
// Cache read failures fall through to storage; only the cache is populated
// as a side effect.
func (s *SchoolYearService) GetActive(ctx context.Context) (*models.SchoolYear, error) {
	if s.cache != nil {
		var cached models.SchoolYear
		start := time.Now()
		if err := s.cache.Get(ctx, activeSchoolYearCacheKey, &cached); err == nil {
			s.metrics.RecordCacheOperation(true, time.Since(start))
			return &cached, nil
		} else if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("active school year cache read failed", zap.Error(err))
		}
		s.metrics.RecordCacheOperation(false, time.Since(start))
	}

	start := time.Now()
	year, err := s.repo.FindActive(ctx)
	s.metrics.ObserveDBQuery("school_year_active", time.Since(start))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active school year")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, activeSchoolYearCacheKey, year, s.cacheTTL); err != nil {
			s.logger.Warn("active school year cache write failed", zap.Error(err))
		}
	}
	return year, nil
}

// RequireActive returns the active school year or fails with a typed error
// naming the operation that needed it. Every mutating enrollment and
// registration operation calls this first.
func (s *SchoolYearService) RequireActive(ctx context.Context, operation string) (*models.SchoolYear, error) {
	year, err := s.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	if year == nil {
		return nil, appErrors.Clone(appErrors.ErrNoActiveSchoolYear, fmt.Sprintf("no active school year for %s", operation))
	}
	return year, nil
}

// Activate marks one school year active and deactivates the rest. The cache
// is invalidated before returning so subsequent reads see the new year.
func (s *SchoolYearService) Activate(ctx context.Context, id string, actor *models.JWTClaims) (*models.SchoolYear, error) {
	if err := s.repo.Activate(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate school year")
	}

	if err := s.invalidate(ctx); err != nil {
		return nil, err
	}

	year, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school year")
	}

	s.emitAudit(ctx, actor, models.AuditActionSchoolYearActivate, id, year.Label())
	return year, nil
}

// DeactivateAll clears the active flag on every school year, leaving the
// system without an active year until the next activation.
func (s *SchoolYearService) DeactivateAll(ctx context.Context, actor *models.JWTClaims) error {
	if err := s.repo.DeactivateAll(ctx); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate school years")
	}
	if err := s.invalidate(ctx); err != nil {
		return err
	}
	s.emitAudit(ctx, actor, models.AuditActionSchoolYearClear, "", "")
	return nil
}

// List returns school years with pagination metadata.
func (s *SchoolYearService) List(ctx context.Context, filter models.SchoolYearFilter) ([]models.SchoolYear, *models.Pagination, error) {
	years, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list school years")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return years, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads a single school year.
func (s *SchoolYearService) Get(ctx context.Context, id string) (*models.SchoolYear, error) {
	year, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school year")
	}
	return year, nil
}

// Create registers a new school year configuration, inactive by default.
func (s *SchoolYearService) Create(ctx context.Context, req CreateSchoolYearRequest) (*models.SchoolYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid school year payload")
	}
	year := &models.SchoolYear{
		YearStart:       req.YearStart,
		YearEnd:         req.YearEnd,
		Semester:        req.Semester,
		EnrollmentStart: req.EnrollmentStart,
		EnrollmentEnd:   req.EnrollmentEnd,
	}
	if err := s.repo.Create(ctx, year); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create school year")
	}
	return year, nil
}

// Update edits an existing school year. The active flag is untouched;
// activation has its own path.
func (s *SchoolYearService) Update(ctx context.Context, id string, req UpdateSchoolYearRequest) (*models.SchoolYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid school year payload")
	}
	year, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school year")
	}

	year.YearStart = req.YearStart
	year.YearEnd = req.YearEnd
	year.Semester = req.Semester
	year.EnrollmentStart = req.EnrollmentStart
	year.EnrollmentEnd = req.EnrollmentEnd

	if err := s.repo.Update(ctx, year); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update school year")
	}

	if year.IsActive {
		if err := s.invalidate(ctx); err != nil {
			return nil, err
		}
	}
	return year, nil
}

func (s *SchoolYearService) invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Delete(ctx, activeSchoolYearCacheKey); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to invalidate school year cache")
	}
	return nil
}

func (s *SchoolYearService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID, label string) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"school_year": label})
	log := &models.AuditLog{
		UserID:    actorIDPtr(actor),
		Action:    action,
		Resource:  "school_year",
		NewValues: payload,
		IPAddress: "system",
		UserAgent: "school-year-service",
	}
	if resourceID != "" {
		log.ResourceID = &resourceID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record school year audit", zap.Error(err))
	}
}

func actorIDPtr(actor *models.JWTClaims) *string {
	if actor == nil || actor.UserID == "" {
		return nil
	}
	return &actor.UserID
}
