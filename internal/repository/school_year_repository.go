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

// SchoolYearRepository handles persistence for school years.
type SchoolYearRepository struct {
	db *sqlx.DB
}

// NewSchoolYearRepository constructs the repository.
func NewSchoolYearRepository(db *sqlx.DB) *SchoolYearRepository {
	return &SchoolYearRepository{db: db}
}

const schoolYearColumns = `id, year_start, year_end, semester, is_active, enrollment_start, enrollment_end, created_at, updated_at`

// List returns school years matching provided filters.
func (r *SchoolYearRepository) List(ctx context.Context, filter models.SchoolYearFilter) ([]models.SchoolYear, int, error) {
	base := "FROM school_years WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.YearStart != "" {
		conditions = append(conditions, fmt.Sprintf("year_start = $%d", len(args)+1))
		args = append(args, filter.YearStart)
	}
	if filter.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)+1))
		args = append(args, *filter.IsActive)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"year_start": true,
		"semester":   true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "year_start"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", schoolYearColumns, base, sortBy, order, size, offset)

	var years []models.SchoolYear
	if err := r.db.SelectContext(ctx, &years, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list school years: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count school years: %w", err)
	}

	return years, total, nil
}

// FindByID loads a school year by identifier.
func (r *SchoolYearRepository) FindByID(ctx context.Context, id string) (*models.SchoolYear, error) {
	query := fmt.Sprintf(`SELECT %s FROM school_years WHERE id = $1`, schoolYearColumns)
	var year models.SchoolYear
	if err := r.db.GetContext(ctx, &year, query, id); err != nil {
		return nil, err
	}
	return &year, nil
}

// FindActive returns the currently active school year.
func (r *SchoolYearRepository) FindActive(ctx context.Context) (*models.SchoolYear, error) {
	query := fmt.Sprintf(`SELECT %s FROM school_years WHERE is_active = TRUE LIMIT 1`, schoolYearColumns)
	var year models.SchoolYear
	if err := r.db.GetContext(ctx, &year, query); err != nil {
		return nil, err
	}
	return &year, nil
}

// Create inserts a new school year record.
func (r *SchoolYearRepository) Create(ctx context.Context, year *models.SchoolYear) error {
	if year.ID == "" {
		year.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if year.CreatedAt.IsZero() {
		year.CreatedAt = now
	}
	year.UpdatedAt = now

	const query = `INSERT INTO school_years (id, year_start, year_end, semester, is_active, enrollment_start, enrollment_end, created_at, updated_at)
        VALUES (:id, :year_start, :year_end, :semester, :is_active, :enrollment_start, :enrollment_end, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, year); err != nil {
		return fmt.Errorf("create school year: %w", err)
	}
	return nil
}

// Update modifies an existing school year.
func (r *SchoolYearRepository) Update(ctx context.Context, year *models.SchoolYear) error {
	year.UpdatedAt = time.Now().UTC()
	const query = `UPDATE school_years SET year_start = :year_start, year_end = :year_end, semester = :semester,
        enrollment_start = :enrollment_start, enrollment_end = :enrollment_end, updated_at = :updated_at WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, year)
	if err != nil {
		return fmt.Errorf("update school year: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("school year rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Activate marks the provided school year as active and deactivates the rest
// in one transaction. The partial unique index on is_active backstops races
// between concurrent activations.
func (r *SchoolYearRepository) Activate(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activate tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, `UPDATE school_years SET is_active = FALSE, updated_at = $1 WHERE is_active = TRUE AND id <> $2`, now, id); err != nil {
		return fmt.Errorf("deactivate other school years: %w", err)
	}

	var result sql.Result
	if result, err = tx.ExecContext(ctx, `UPDATE school_years SET is_active = TRUE, updated_at = $2 WHERE id = $1`, id, now); err != nil {
		return fmt.Errorf("activate school year: %w", err)
	}
	var affected int64
	if affected, err = result.RowsAffected(); err != nil {
		return fmt.Errorf("activate rows affected: %w", err)
	}
	if affected == 0 {
		err = sql.ErrNoRows
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit activate tx: %w", err)
	}
	return nil
}

// DeactivateAll clears the active flag on every school year.
func (r *SchoolYearRepository) DeactivateAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE school_years SET is_active = FALSE, updated_at = $1 WHERE is_active = TRUE`, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate school years: %w", err)
	}
	return nil
}
