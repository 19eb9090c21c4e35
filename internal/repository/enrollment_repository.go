package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/shs-registrar-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollment applications and
// their strand preferences.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `e.id, e.student_id, e.school_year_id, e.status, e.intended_grade_level, e.enrollment_type,
        e.assigned_section_id, e.assigned_strand_id, e.documents_attached, e.created_at, e.updated_at, e.updated_by`

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN students s ON s.id = e.student_id
LEFT JOIN school_years y ON y.id = e.school_year_id
LEFT JOIN sections sec ON sec.id = e.assigned_section_id
LEFT JOIN strands st ON st.id = e.assigned_strand_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SchoolYearID != "" {
		conditions = append(conditions, fmt.Sprintf("e.school_year_id = $%d", len(args)+1))
		args = append(args, filter.SchoolYearID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("e.enrollment_type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":   "e.created_at",
		"student_name": "s.full_name",
		"status":       "e.status",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s,
        s.full_name AS student_name, s.lrn AS student_lrn,
        y.year_start AS school_year_start, y.year_end AS school_year_end, y.semester AS semester,
        sec.name AS section_name, st.code AS strand_code
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, enrollmentColumns, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments e WHERE e.id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with the joined fields the review and
// registration flows need.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s,
        s.full_name AS student_name, s.lrn AS student_lrn,
        y.year_start AS school_year_start, y.year_end AS school_year_end, y.semester AS semester,
        sec.name AS section_name, st.code AS strand_code
        FROM enrollments e
        LEFT JOIN students s ON s.id = e.student_id
        LEFT JOIN school_years y ON y.id = e.school_year_id
        LEFT JOIN sections sec ON sec.id = e.assigned_section_id
        LEFT JOIN strands st ON st.id = e.assigned_strand_id
        WHERE e.id = $1`, enrollmentColumns)
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsForStudentYear checks whether the student already applied for the
// school year.
func (r *EnrollmentRepository) ExistsForStudentYear(ctx context.Context, studentID, schoolYearID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND school_year_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, schoolYearID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment existence: %w", err)
	}
	return true, nil
}

// CreateWithPreferences persists a new enrollment and its ranked strand
// preferences in one transaction.
func (r *EnrollmentRepository) CreateWithPreferences(ctx context.Context, enrollment *models.Enrollment, preferences []models.StrandPreference) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = now
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusPending
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create enrollment tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertEnrollment = `INSERT INTO enrollments (id, student_id, school_year_id, status, intended_grade_level, enrollment_type,
        assigned_section_id, assigned_strand_id, documents_attached, created_at, updated_at, updated_by)
        VALUES (:id, :student_id, :school_year_id, :status, :intended_grade_level, :enrollment_type,
        :assigned_section_id, :assigned_strand_id, :documents_attached, :created_at, :updated_at, :updated_by)`
	if _, err = sqlx.NamedExecContext(ctx, tx, insertEnrollment, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}

	if err = insertPreferences(ctx, tx, enrollment.ID, preferences); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create enrollment tx: %w", err)
	}
	return nil
}

// UpdateReview records a review decision and its section/strand assignment.
func (r *EnrollmentRepository) UpdateReview(ctx context.Context, id string, status models.EnrollmentStatus, sectionID, strandID, updatedBy *string) error {
	const query = `UPDATE enrollments SET status = $2, assigned_section_id = $3, assigned_strand_id = $4, updated_at = $5, updated_by = $6 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, sectionID, strandID, time.Now().UTC(), updatedBy); err != nil {
		return fmt.Errorf("review enrollment: %w", err)
	}
	return nil
}

// Resubmit moves a rejected enrollment back to pending with refreshed
// application data, replacing its strand preferences in one transaction.
func (r *EnrollmentRepository) Resubmit(ctx context.Context, enrollment *models.Enrollment, preferences []models.StrandPreference) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin resubmit tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	enrollment.Status = models.EnrollmentStatusPending
	enrollment.UpdatedAt = time.Now().UTC()

	const update = `UPDATE enrollments SET status = :status, intended_grade_level = :intended_grade_level,
        enrollment_type = :enrollment_type, documents_attached = :documents_attached,
        assigned_section_id = NULL, assigned_strand_id = NULL, updated_at = :updated_at, updated_by = :updated_by
        WHERE id = :id`
	if _, err = sqlx.NamedExecContext(ctx, tx, update, enrollment); err != nil {
		return fmt.Errorf("resubmit enrollment: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM strand_preferences WHERE enrollment_id = $1`, enrollment.ID); err != nil {
		return fmt.Errorf("clear strand preferences: %w", err)
	}

	if err = insertPreferences(ctx, tx, enrollment.ID, preferences); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit resubmit tx: %w", err)
	}
	return nil
}

// UpdateStatus moves an enrollment to a new status, optionally inside a
// caller-owned transaction.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.EnrollmentStatus, updatedBy *string) error {
	if exec == nil {
		exec = r.db
	}
	const query = `UPDATE enrollments SET status = $2, updated_at = $3, updated_by = $4 WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, id, status, time.Now().UTC(), updatedBy); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// ListPreferences returns the ranked strand preferences for an enrollment.
func (r *EnrollmentRepository) ListPreferences(ctx context.Context, enrollmentID string) ([]models.StrandPreference, error) {
	const query = `SELECT enrollment_id, strand_id, preference_order FROM strand_preferences WHERE enrollment_id = $1 ORDER BY preference_order`
	var preferences []models.StrandPreference
	if err := r.db.SelectContext(ctx, &preferences, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list strand preferences: %w", err)
	}
	return preferences, nil
}

func insertPreferences(ctx context.Context, tx *sqlx.Tx, enrollmentID string, preferences []models.StrandPreference) error {
	const insert = `INSERT INTO strand_preferences (enrollment_id, strand_id, preference_order) VALUES ($1, $2, $3)`
	for _, pref := range preferences {
		if _, err := tx.ExecContext(ctx, insert, enrollmentID, pref.StrandID, pref.PreferenceOrder); err != nil {
			return fmt.Errorf("insert strand preference: %w", err)
		}
	}
	return nil
}
