package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/shs-registrar-api/internal/models"
	appErrors "github.com/noah-isme/shs-registrar-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ExistsForStudentYear(ctx context.Context, studentID, schoolYearID string) (bool, error)
	CreateWithPreferences(ctx context.Context, enrollment *models.Enrollment, preferences []models.StrandPreference) error
	UpdateReview(ctx context.Context, id string, status models.EnrollmentStatus, sectionID, strandID, updatedBy *string) error
	Resubmit(ctx context.Context, enrollment *models.Enrollment, preferences []models.StrandPreference) error
	ListPreferences(ctx context.Context, enrollmentID string) ([]models.StrandPreference, error)
}

type activeYearGuard interface {
	RequireActive(ctx context.Context, operation string) (*models.SchoolYear, error)
}

// Review decisions accepted by the lifecycle.
const (
	ReviewDecisionApprove = "APPROVE"
	ReviewDecisionReject  = "REJECT"
)

// SubmitEnrollmentRequest describes a new enrollment application.
type SubmitEnrollmentRequest struct {
	StudentID          string   `json:"student_id" validate:"required"`
	IntendedGradeLevel int      `json:"intended_grade_level" validate:"required,min=11,max=12"`
	EnrollmentType     string   `json:"enrollment_type" validate:"required,oneof=NEW RETURNING TRANSFEREE"`
	StrandPreferences  []string `json:"strand_preferences" validate:"required,min=1,dive,required"`
	DocumentsAttached  bool     `json:"documents_attached"`
}

// ResubmitEnrollmentRequest carries refreshed application data for a
// rejected enrollment.
type ResubmitEnrollmentRequest struct {
	IntendedGradeLevel int      `json:"intended_grade_level" validate:"required,min=11,max=12"`
	EnrollmentType     string   `json:"enrollment_type" validate:"required,oneof=NEW RETURNING TRANSFEREE"`
	StrandPreferences  []string `json:"strand_preferences" validate:"required,min=1,dive,required"`
	DocumentsAttached  bool     `json:"documents_attached"`
}

// ReviewEnrollmentRequest records a coordinator's decision.
type ReviewEnrollmentRequest struct {
	Decision          string  `json:"decision" validate:"required,oneof=APPROVE REJECT"`
	AssignedSectionID *string `json:"assigned_section_id"`
	AssignedStrandID  *string `json:"assigned_strand_id"`
}

// EnrollmentService drives the enrollment application lifecycle: submission,
// review, and resubmission. The approved-to-enrolled transition belongs to
// the registration engine, which flips it inside the COR transaction.
type EnrollmentService struct {
	repo      enrollmentRepository
	guard     activeYearGuard
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, guard activeYearGuard, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, guard: guard, audit: audit, validator: validate, logger: logger}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads an enrollment with its joined display fields.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// GetPreferences returns the ranked strand preferences of an enrollment.
func (s *EnrollmentService) GetPreferences(ctx context.Context, id string) ([]models.StrandPreference, error) {
	preferences, err := s.repo.ListPreferences(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load strand preferences")
	}
	return preferences, nil
}

// Submit creates a pending enrollment for the active school year. One
// application per student per school year; duplicates are rejected without
// writing anything.
func (s *EnrollmentService) Submit(ctx context.Context, req SubmitEnrollmentRequest, actor *models.JWTClaims) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	year, err := s.guard.RequireActive(ctx, "enrollment submission")
	if err != nil {
		return nil, err
	}

	preferences, err := normalizePreferences(req.StrandPreferences)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsForStudentYear(ctx, req.StudentID, year.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment,
			fmt.Sprintf("student %s already has an enrollment for school year %s", req.StudentID, year.Label()))
	}

	enrollment := &models.Enrollment{
		StudentID:          req.StudentID,
		SchoolYearID:       year.ID,
		Status:             models.EnrollmentStatusPending,
		IntendedGradeLevel: req.IntendedGradeLevel,
		EnrollmentType:     models.EnrollmentType(req.EnrollmentType),
		DocumentsAttached:  req.DocumentsAttached,
		UpdatedBy:          actorIDPtr(actor),
	}
	if err := s.repo.CreateWithPreferences(ctx, enrollment, preferences); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	s.emitAudit(ctx, actor, models.AuditActionEnrollmentSubmit, enrollment.ID, string(models.EnrollmentStatusPending))

	detail, err := s.repo.FindDetailByID(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Review transitions a pending enrollment to approved or rejected. Approval
// requires both a section and a strand assignment. Rejection keeps the
// record; resubmission later moves it back to pending.
func (s *EnrollmentService) Review(ctx context.Context, id string, req ReviewEnrollmentRequest, actor *models.JWTClaims) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}

	if _, err := s.guard.RequireActive(ctx, "enrollment review"); err != nil {
		return nil, err
	}

	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	target := models.EnrollmentStatusRejected
	if req.Decision == ReviewDecisionApprove {
		target = models.EnrollmentStatusApproved
	}
	if !enrollment.Status.CanTransitionTo(target) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("enrollment %s cannot move from %s to %s", id, enrollment.Status, target))
	}

	var sectionID, strandID *string
	if target == models.EnrollmentStatusApproved {
		if req.AssignedSectionID == nil || *req.AssignedSectionID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "approval requires an assigned section")
		}
		if req.AssignedStrandID == nil || *req.AssignedStrandID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "approval requires an assigned strand")
		}
		sectionID = req.AssignedSectionID
		strandID = req.AssignedStrandID
	}

	if err := s.repo.UpdateReview(ctx, id, target, sectionID, strandID, actorIDPtr(actor)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record review decision")
	}

	s.emitAudit(ctx, actor, models.AuditActionEnrollmentReview, id, string(target))

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Resubmit moves a rejected enrollment back to pending with updated
// application data. The same record is reused; no new row is created.
func (s *EnrollmentService) Resubmit(ctx context.Context, id string, req ResubmitEnrollmentRequest, actor *models.JWTClaims) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resubmission payload")
	}

	if _, err := s.guard.RequireActive(ctx, "enrollment resubmission"); err != nil {
		return nil, err
	}

	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if !enrollment.Status.CanTransitionTo(models.EnrollmentStatusPending) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("enrollment %s cannot move from %s to %s", id, enrollment.Status, models.EnrollmentStatusPending))
	}

	preferences, err := normalizePreferences(req.StrandPreferences)
	if err != nil {
		return nil, err
	}

	enrollment.IntendedGradeLevel = req.IntendedGradeLevel
	enrollment.EnrollmentType = models.EnrollmentType(req.EnrollmentType)
	enrollment.DocumentsAttached = req.DocumentsAttached
	enrollment.UpdatedBy = actorIDPtr(actor)

	if err := s.repo.Resubmit(ctx, enrollment, preferences); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resubmit enrollment")
	}

	s.emitAudit(ctx, actor, models.AuditActionEnrollmentResubmit, id, string(models.EnrollmentStatusPending))

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

func (s *EnrollmentService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, enrollmentID, status string) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"status": status})
	log := &models.AuditLog{
		UserID:     actorIDPtr(actor),
		Action:     action,
		Resource:   "enrollment",
		ResourceID: &enrollmentID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "enrollment-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record enrollment audit", zap.Error(err))
	}
}

// normalizePreferences assigns ranks 1..N in submission order and rejects
// duplicate strand choices.
func normalizePreferences(strandIDs []string) ([]models.StrandPreference, error) {
	seen := make(map[string]struct{}, len(strandIDs))
	preferences := make([]models.StrandPreference, 0, len(strandIDs))
	for i, strandID := range strandIDs {
		if _, dup := seen[strandID]; dup {
			return nil, appErrors.Clone(appErrors.ErrInvalidPreferences,
				fmt.Sprintf("strand %s appears more than once in preferences", strandID))
		}
		seen[strandID] = struct{}{}
		preferences = append(preferences, models.StrandPreference{
			StrandID:        strandID,
			PreferenceOrder: i + 1,
		})
	}
	return preferences, nil
}
