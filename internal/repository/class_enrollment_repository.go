package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/shs-registrar-api/internal/models"
)

// ClassEnrollmentRepository materialises the link between students and
// concrete class offerings.
type ClassEnrollmentRepository struct {
	db *sqlx.DB
}

// NewClassEnrollmentRepository constructs the repository.
func NewClassEnrollmentRepository(db *sqlx.DB) *ClassEnrollmentRepository {
	return &ClassEnrollmentRepository{db: db}
}

func (r *ClassEnrollmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Upsert writes one class enrollment keyed by (class, student, enrollment).
// Re-running generation updates status and section in place instead of
// inserting duplicates.
func (r *ClassEnrollmentRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, ce *models.ClassEnrollment) error {
	if ce.ID == "" {
		ce.ID = uuid.NewString()
	}
	if ce.EnrolledAt.IsZero() {
		ce.EnrolledAt = time.Now().UTC()
	}
	if ce.Status == "" {
		ce.Status = models.ClassEnrollmentStatusEnrolled
	}

	const query = `INSERT INTO class_enrollments (id, class_id, student_id, enrollment_id, section_id, status, enrolled_at)
        VALUES (:id, :class_id, :student_id, :enrollment_id, :section_id, :status, :enrolled_at)
        ON CONFLICT (class_id, student_id, enrollment_id)
        DO UPDATE SET status = EXCLUDED.status, section_id = EXCLUDED.section_id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, ce); err != nil {
		return fmt.Errorf("upsert class enrollment: %w", err)
	}
	return nil
}

// DeleteByEnrollment removes every class enrollment for one enrollment.
// Regeneration rebuilds from scratch rather than patching.
func (r *ClassEnrollmentRepository) DeleteByEnrollment(ctx context.Context, exec sqlx.ExtContext, enrollmentID string) error {
	const query = `DELETE FROM class_enrollments WHERE enrollment_id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, enrollmentID); err != nil {
		return fmt.Errorf("delete class enrollments: %w", err)
	}
	return nil
}

// ListSubjectsByEnrollment is the display-ready projection for a COR: one
// row per materialised subject with schedule and faculty info.
func (r *ClassEnrollmentRepository) ListSubjectsByEnrollment(ctx context.Context, enrollmentID string) ([]models.CORSubject, error) {
	const query = `SELECT ce.class_id, co.subject_id,
        sub.code AS subject_code, sub.name AS subject_name,
        co.schedule, co.faculty_name,
        (ce.status = 'CREDITED') AS credited
        FROM class_enrollments ce
        JOIN class_offerings co ON co.id = ce.class_id
        JOIN subjects sub ON sub.id = co.subject_id
        WHERE ce.enrollment_id = $1
        ORDER BY sub.code`
	var subjects []models.CORSubject
	if err := r.db.SelectContext(ctx, &subjects, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list cor subjects: %w", err)
	}
	return subjects, nil
}
