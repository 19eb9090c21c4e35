package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/shs-registrar-api/internal/models"
)

// RegistrationRepository persists certificates of registration and the
// per-year number sequence backing them.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

func (r *RegistrationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const corColumns = `id, cor_number, enrollment_id, student_id, school_year_id, section_id, strand_id,
        semester, year_level, registration_date, status, generated_by, generated_at`

// FindByID loads a certificate by identifier.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.CertificateOfRegistration, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificates_of_registration WHERE id = $1`, corColumns)
	var cor models.CertificateOfRegistration
	if err := r.db.GetContext(ctx, &cor, query, id); err != nil {
		return nil, err
	}
	return &cor, nil
}

// FindByEnrollment loads the certificate bound to an enrollment, optionally
// inside a caller-owned transaction.
func (r *RegistrationRepository) FindByEnrollment(ctx context.Context, exec sqlx.ExtContext, enrollmentID string) (*models.CertificateOfRegistration, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificates_of_registration WHERE enrollment_id = $1`, corColumns)
	var cor models.CertificateOfRegistration
	if err := sqlx.GetContext(ctx, r.exec(exec), &cor, query, enrollmentID); err != nil {
		return nil, err
	}
	return &cor, nil
}

// NextSequence atomically advances and returns the COR sequence for a school
// year using an upsert-based counter row.
func (r *RegistrationRepository) NextSequence(ctx context.Context, exec sqlx.ExtContext, schoolYearID string) (int, error) {
	const query = `INSERT INTO cor_sequences (school_year_id, last_seq) VALUES ($1, 1)
        ON CONFLICT (school_year_id) DO UPDATE SET last_seq = cor_sequences.last_seq + 1
        RETURNING last_seq`
	var seq int
	if err := sqlx.GetContext(ctx, r.exec(exec), &seq, query, schoolYearID); err != nil {
		return 0, fmt.Errorf("advance cor sequence: %w", err)
	}
	return seq, nil
}

// NumberExists reports whether a COR number is already taken.
func (r *RegistrationRepository) NumberExists(ctx context.Context, exec sqlx.ExtContext, number string) (bool, error) {
	const query = `SELECT 1 FROM certificates_of_registration WHERE cor_number = $1 LIMIT 1`
	var exists int
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, number); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check cor number: %w", err)
	}
	return true, nil
}

// Insert persists a new certificate. Constraint violations are returned
// unwrapped so the caller can distinguish number collisions from the
// one-COR-per-enrollment guard.
func (r *RegistrationRepository) Insert(ctx context.Context, exec sqlx.ExtContext, cor *models.CertificateOfRegistration) error {
	if cor.ID == "" {
		cor.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cor.RegistrationDate.IsZero() {
		cor.RegistrationDate = now
	}
	if cor.GeneratedAt.IsZero() {
		cor.GeneratedAt = now
	}
	if cor.Status == "" {
		cor.Status = models.CORStatusActive
	}

	const query = `INSERT INTO certificates_of_registration (id, cor_number, enrollment_id, student_id, school_year_id,
        section_id, strand_id, semester, year_level, registration_date, status, generated_by, generated_at)
        VALUES (:id, :cor_number, :enrollment_id, :student_id, :school_year_id,
        :section_id, :strand_id, :semester, :year_level, :registration_date, :status, :generated_by, :generated_at)`
	_, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, cor)
	return err
}

// TouchAudit refreshes who/when regenerated the certificate.
func (r *RegistrationRepository) TouchAudit(ctx context.Context, exec sqlx.ExtContext, id, generatedBy string) error {
	const query = `UPDATE certificates_of_registration SET generated_by = $2, generated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, generatedBy, time.Now().UTC()); err != nil {
		return fmt.Errorf("touch cor audit: %w", err)
	}
	return nil
}
