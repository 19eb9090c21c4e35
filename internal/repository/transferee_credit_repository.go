package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/shs-registrar-api/internal/models"
)

// TransfereeCreditRepository reads previously earned subject credits for
// transferee students.
type TransfereeCreditRepository struct {
	db *sqlx.DB
}

// NewTransfereeCreditRepository constructs the repository.
func NewTransfereeCreditRepository(db *sqlx.DB) *TransfereeCreditRepository {
	return &TransfereeCreditRepository{db: db}
}

// ResolveCredited returns the set of subject ids already credited to the
// student. Pending credits are ignored.
func (r *TransfereeCreditRepository) ResolveCredited(ctx context.Context, studentID string) (map[string]struct{}, error) {
	const query = `SELECT subject_id FROM transferee_credits WHERE student_id = $1 AND credit_status = $2`
	var subjectIDs []string
	if err := r.db.SelectContext(ctx, &subjectIDs, query, studentID, models.CreditStatusCredited); err != nil {
		return nil, fmt.Errorf("resolve transferee credits: %w", err)
	}
	credited := make(map[string]struct{}, len(subjectIDs))
	for _, id := range subjectIDs {
		credited[id] = struct{}{}
	}
	return credited, nil
}
