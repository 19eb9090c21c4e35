package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/shs-registrar-api/internal/models"
)

// SectionRosterRepository reads the class offerings a section must attend.
// The roster itself is owned by scheduling; this is a read-only view.
type SectionRosterRepository struct {
	db *sqlx.DB
}

// NewSectionRosterRepository constructs the repository.
func NewSectionRosterRepository(db *sqlx.DB) *SectionRosterRepository {
	return &SectionRosterRepository{db: db}
}

// ListBySectionAndYear returns the class roster for a section and school year.
func (r *SectionRosterRepository) ListBySectionAndYear(ctx context.Context, sectionID, schoolYearID string) ([]models.ClassOffering, error) {
	const query = `SELECT co.id, co.subject_id, co.section_id, co.school_year_id,
        sub.code AS subject_code, sub.name AS subject_name,
        co.schedule, co.faculty_name
        FROM class_offerings co
        JOIN subjects sub ON sub.id = co.subject_id
        WHERE co.section_id = $1 AND co.school_year_id = $2
        ORDER BY sub.code`
	var offerings []models.ClassOffering
	if err := r.db.SelectContext(ctx, &offerings, query, sectionID, schoolYearID); err != nil {
		return nil, fmt.Errorf("list section roster: %w", err)
	}
	return offerings, nil
}
