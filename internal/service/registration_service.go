package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/shs-registrar-api/internal/models"
	appErrors "github.com/noah-isme/shs-registrar-api/pkg/errors"
)

type corRepository interface {
	FindByID(ctx context.Context, id string) (*models.CertificateOfRegistration, error)
	FindByEnrollment(ctx context.Context, exec sqlx.ExtContext, enrollmentID string) (*models.CertificateOfRegistration, error)
	NextSequence(ctx context.Context, exec sqlx.ExtContext, schoolYearID string) (int, error)
	NumberExists(ctx context.Context, exec sqlx.ExtContext, number string) (bool, error)
	Insert(ctx context.Context, exec sqlx.ExtContext, cor *models.CertificateOfRegistration) error
	TouchAudit(ctx context.Context, exec sqlx.ExtContext, id, generatedBy string) error
}

type classEnrollmentRepository interface {
	Upsert(ctx context.Context, exec sqlx.ExtContext, ce *models.ClassEnrollment) error
	DeleteByEnrollment(ctx context.Context, exec sqlx.ExtContext, enrollmentID string) error
	ListSubjectsByEnrollment(ctx context.Context, enrollmentID string) ([]models.CORSubject, error)
}

type sectionRosterSource interface {
	ListBySectionAndYear(ctx context.Context, sectionID, schoolYearID string) ([]models.ClassOffering, error)
}

type transfereeCreditResolver interface {
	ResolveCredited(ctx context.Context, studentID string) (map[string]struct{}, error)
}

type enrollmentStatusWriter interface {
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.EnrollmentStatus, updatedBy *string) error
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// Named unique constraints backing the concurrency guards. The enrollment
// constraint is the authoritative one-COR-per-enrollment guard; the number
// constraint is the final backstop behind the sequence allocator.
const (
	corEnrollmentConstraint = "cor_enrollment_unique"
	corNumberConstraint     = "cor_number_unique"
)

// RegistrationService generates certificates of registration. A single
// transaction materialises class enrollments from the section roster,
// credits transferee subjects, allocates the COR number, and flips the
// enrollment to enrolled.
type RegistrationService struct {
	cors        corRepository
	classes     classEnrollmentRepository
	roster      sectionRosterSource
	credits     transfereeCreditResolver
	enrollments enrollmentStatusWriter
	guard       activeYearGuard
	audit       auditLogger
	tx          txProvider
	metrics     *MetricsService
	logger      *zap.Logger
	maxRetries  int
}

// RegistrationConfig tunes number allocation behaviour.
type RegistrationConfig struct {
	NumberMaxRetries int
}

// NewRegistrationService wires the registration engine.
func NewRegistrationService(
	cors corRepository,
	classes classEnrollmentRepository,
	roster sectionRosterSource,
	credits transfereeCreditResolver,
	enrollments enrollmentStatusWriter,
	guard activeYearGuard,
	audit auditLogger,
	tx txProvider,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg RegistrationConfig,
) *RegistrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	retries := cfg.NumberMaxRetries
	if retries <= 0 {
		retries = 10
	}
	return &RegistrationService{
		cors:        cors,
		classes:     classes,
		roster:      roster,
		credits:     credits,
		enrollments: enrollments,
		guard:       guard,
		audit:       audit,
		tx:          tx,
		metrics:     metrics,
		logger:      logger,
		maxRetries:  retries,
	}
}

// Get loads a certificate by identifier.
func (s *RegistrationService) Get(ctx context.Context, id string) (*models.CertificateOfRegistration, error) {
	cor, err := s.cors.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate of registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	return cor, nil
}

// GetByEnrollment loads the certificate bound to an enrollment.
func (s *RegistrationService) GetByEnrollment(ctx context.Context, enrollmentID string) (*models.CertificateOfRegistration, error) {
	cor, err := s.cors.FindByEnrollment(ctx, nil, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no certificate of registration for enrollment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	return cor, nil
}

// GetCORSubjects returns the display-ready subject list for a certificate.
func (s *RegistrationService) GetCORSubjects(ctx context.Context, corID string) ([]models.CORSubject, error) {
	cor, err := s.Get(ctx, corID)
	if err != nil {
		return nil, err
	}
	subjects, err := s.classes.ListSubjectsByEnrollment(ctx, cor.EnrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate subjects")
	}
	return subjects, nil
}

// GenerateCOR creates the certificate of registration for an approved
// enrollment. Calling it again for the same enrollment returns the existing
// certificate unchanged. Nothing survives a failed generation.
func (s *RegistrationService) GenerateCOR(ctx context.Context, enrollmentID string, actor *models.JWTClaims) (*models.CertificateOfRegistration, error) {
	if _, err := s.guard.RequireActive(ctx, "cor generation"); err != nil {
		return nil, err
	}

	detail, err := s.enrollments.FindDetailByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("enrollment %s not found", enrollmentID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if err := checkRegistrationComplete(detail); err != nil {
		return nil, err
	}

	// Idempotency fast path.
	existing, err := s.cors.FindByEnrollment(ctx, nil, enrollmentID)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing certificate")
	}
	if existing != nil {
		return existing, nil
	}

	if detail.Status != models.EnrollmentStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("enrollment %s is %s; only approved enrollments can be registered", enrollmentID, detail.Status))
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Re-check under the transaction; the unique constraint on
	// enrollment_id remains the authoritative guard.
	if inTx, txErr := s.cors.FindByEnrollment(ctx, tx, enrollmentID); txErr == nil && inTx != nil {
		return inTx, nil
	} else if txErr != nil && txErr != sql.ErrNoRows {
		return nil, appErrors.Wrap(txErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing certificate")
	}

	if err := s.materializeClasses(ctx, tx, detail); err != nil {
		return nil, err
	}

	yearLabel := fmt.Sprintf("%s-%s", detail.SchoolYearStart, detail.SchoolYearEnd)
	number, err := s.allocateNumber(ctx, tx, detail.SchoolYearID, yearLabel)
	if err != nil {
		return nil, err
	}

	cor := &models.CertificateOfRegistration{
		CORNumber:    number,
		EnrollmentID: detail.ID,
		StudentID:    detail.StudentID,
		SchoolYearID: detail.SchoolYearID,
		SectionID:    *detail.AssignedSectionID,
		StrandID:     *detail.AssignedStrandID,
		Semester:     models.NormalizeSemester(detail.Semester),
		YearLevel:    detail.IntendedGradeLevel,
		Status:       models.CORStatusActive,
		GeneratedBy:  actorID(actor),
	}
	if err := s.cors.Insert(ctx, tx, cor); err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			_ = tx.Rollback()
			switch constraint {
			case corEnrollmentConstraint:
				// A concurrent generation won; return its certificate.
				winner, findErr := s.cors.FindByEnrollment(ctx, nil, enrollmentID)
				if findErr != nil {
					return nil, appErrors.Wrap(findErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load concurrent certificate")
				}
				return winner, nil
			case corNumberConstraint:
				return nil, appErrors.Clone(appErrors.ErrSequenceExhausted,
					fmt.Sprintf("cor number %s collided for school year %s", number, yearLabel))
			}
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to insert certificate")
	}

	if !detail.Status.CanTransitionTo(models.EnrollmentStatusEnrolled) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("enrollment %s cannot move from %s to %s", enrollmentID, detail.Status, models.EnrollmentStatusEnrolled))
	}
	if err := s.enrollments.UpdateStatus(ctx, tx, enrollmentID, models.EnrollmentStatusEnrolled, actorIDPtr(actor)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark enrollment enrolled")
	}

	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit registration")
	}
	committed = true

	s.metrics.RecordCORGenerated()
	s.emitAudit(ctx, actor, models.AuditActionCORGenerate, cor.ID, cor.CORNumber)
	return cor, nil
}

// RegenerateCOR rebuilds a certificate's class enrollments from the current
// section roster. The certificate and its number are preserved; only the
// dependent rows and the audit fields change.
func (s *RegistrationService) RegenerateCOR(ctx context.Context, corID string, actor *models.JWTClaims) (*models.CertificateOfRegistration, error) {
	if _, err := s.guard.RequireActive(ctx, "cor regeneration"); err != nil {
		return nil, err
	}

	cor, err := s.Get(ctx, corID)
	if err != nil {
		return nil, err
	}

	detail, err := s.enrollments.FindDetailByID(ctx, cor.EnrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if err := checkRegistrationComplete(detail); err != nil {
		return nil, err
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := s.classes.DeleteByEnrollment(ctx, tx, cor.EnrollmentID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear class enrollments")
	}
	if err := s.materializeClasses(ctx, tx, detail); err != nil {
		return nil, err
	}
	if err := s.cors.TouchAudit(ctx, tx, cor.ID, actorID(actor)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update certificate audit fields")
	}

	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit regeneration")
	}
	committed = true

	s.emitAudit(ctx, actor, models.AuditActionCORRegenerate, cor.ID, cor.CORNumber)

	refreshed, err := s.cors.FindByID(ctx, cor.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload certificate")
	}
	return refreshed, nil
}

// materializeClasses upserts one class enrollment per roster offering,
// crediting transferee subjects instead of enrolling them live.
func (s *RegistrationService) materializeClasses(ctx context.Context, tx *sqlx.Tx, detail *models.EnrollmentDetail) error {
	offerings, err := s.roster.ListBySectionAndYear(ctx, *detail.AssignedSectionID, detail.SchoolYearID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section roster")
	}
	if len(offerings) == 0 {
		s.logger.Warn("section roster is empty; certificate will carry no subjects",
			zap.String("enrollment_id", detail.ID),
			zap.String("section_id", *detail.AssignedSectionID))
		return nil
	}

	credited := map[string]struct{}{}
	if detail.EnrollmentType == models.EnrollmentTypeTransferee {
		credited, err = s.credits.ResolveCredited(ctx, detail.StudentID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve transferee credits")
		}
	}

	for _, offering := range offerings {
		status := models.ClassEnrollmentStatusEnrolled
		if _, ok := credited[offering.SubjectID]; ok {
			status = models.ClassEnrollmentStatusCredited
		}
		ce := &models.ClassEnrollment{
			ClassID:      offering.ID,
			StudentID:    detail.StudentID,
			EnrollmentID: detail.ID,
			SectionID:    *detail.AssignedSectionID,
			Status:       status,
		}
		if err := s.classes.Upsert(ctx, tx, ce); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to materialize class enrollment")
		}
	}
	return nil
}

// allocateNumber advances the per-year sequence and probes for free numbers.
// The counter makes collisions rare; the probe loop and the unique
// constraint on cor_number cover concurrent writers that slipped past it.
// A constraint hit at insert time is terminal for this attempt: the
// violation aborts the surrounding transaction, so no further candidates
// can be probed inside it and the caller reports exhaustion instead.
func (s *RegistrationService) allocateNumber(ctx context.Context, tx *sqlx.Tx, schoolYearID, yearLabel string) (string, error) {
	seq, err := s.cors.NextSequence(ctx, tx, schoolYearID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to advance cor sequence")
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		candidate := models.FormatCORNumber(yearLabel, seq)
		taken, err := s.cors.NumberExists(ctx, tx, candidate)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to probe cor number")
		}
		if !taken {
			return candidate, nil
		}
		seq++
	}
	return "", appErrors.Clone(appErrors.ErrSequenceExhausted,
		fmt.Sprintf("exhausted cor number candidates for school year %s", yearLabel))
}

// checkRegistrationComplete verifies the enrollment carries everything a
// certificate needs, naming the missing field in the error.
func checkRegistrationComplete(detail *models.EnrollmentDetail) error {
	missing := ""
	switch {
	case detail.StudentName == "":
		missing = "student personal information"
	case detail.SchoolYearStart == "":
		missing = "school year"
	case detail.AssignedSectionID == nil || *detail.AssignedSectionID == "":
		missing = "assigned section"
	case detail.AssignedStrandID == nil || *detail.AssignedStrandID == "":
		missing = "assigned strand"
	}
	if missing != "" {
		return appErrors.Clone(appErrors.ErrIncompleteEnrollment,
			fmt.Sprintf("enrollment %s is missing %s", detail.ID, missing))
	}
	return nil
}

func (s *RegistrationService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, corID, corNumber string) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"cor_number": corNumber})
	log := &models.AuditLog{
		UserID:     actorIDPtr(actor),
		Action:     action,
		Resource:   "certificate_of_registration",
		ResourceID: &corID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "registration-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record registration audit", zap.Error(err))
	}
}

func actorID(actor *models.JWTClaims) string {
	if actor == nil || actor.UserID == "" {
		return "system"
	}
	return actor.UserID
}

func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint, true
	}
	return "", false
}
