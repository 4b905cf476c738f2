package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/campusbooks/registrar-api/internal/models"
)

// TuitionRepository handles read access to tuition accounts. Totals are
// mutated only inside the settlement store.
type TuitionRepository struct {
	db *sqlx.DB
}

// NewTuitionRepository constructs the repository.
func NewTuitionRepository(db *sqlx.DB) *TuitionRepository {
	return &TuitionRepository{db: db}
}

// FindByStudentAndTerm returns the (student, term) tuition account.
func (r *TuitionRepository) FindByStudentAndTerm(ctx context.Context, studentID, termID string) (*models.TuitionAccount, error) {
	const query = `SELECT id, student_id, term_id, total_credits, amount_per_credit, total_amount, paid_amount, created_at, updated_at
        FROM tuition_accounts WHERE student_id = $1 AND term_id = $2`
	var account models.TuitionAccount
	if err := r.db.GetContext(ctx, &account, query, studentID, termID); err != nil {
		return nil, err
	}
	return &account, nil
}
