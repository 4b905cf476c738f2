package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/campusbooks/registrar-api/internal/models"
)

// WalletRepository handles read access to wallets and their ledgers. Balance
// mutations happen only inside the settlement store, paired with a ledger
// entry.
type WalletRepository struct {
	db *sqlx.DB
}

// NewWalletRepository constructs the repository.
func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// FindByStudent returns the wallet owned by a student.
func (r *WalletRepository) FindByStudent(ctx context.Context, studentID string) (*models.Wallet, error) {
	const query = `SELECT id, student_id, balance, status, created_at, updated_at FROM wallets WHERE student_id = $1`
	var wallet models.Wallet
	if err := r.db.GetContext(ctx, &wallet, query, studentID); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// FindTransactionByExternalRef returns the ledger entry recorded for an
// external payment reference, if any. Used to answer replayed callbacks.
func (r *WalletRepository) FindTransactionByExternalRef(ctx context.Context, externalRef string) (*models.WalletTransaction, error) {
	const query = `SELECT id, wallet_id, amount, type, tuition_account_id, external_ref, description, created_at
        FROM wallet_transactions WHERE external_ref = $1`
	var entry models.WalletTransaction
	if err := r.db.GetContext(ctx, &entry, query, externalRef); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListTransactions returns ledger entries for a wallet, newest first.
func (r *WalletRepository) ListTransactions(ctx context.Context, filter models.WalletTransactionFilter) ([]models.WalletTransaction, int, error) {
	conditions := []string{"wallet_id = $1"}
	args := []interface{}{filter.WalletID}

	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	clause := " WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, wallet_id, amount, type, tuition_account_id, external_ref, description, created_at
        FROM wallet_transactions%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, clause, size, offset)

	var entries []models.WalletTransaction
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list wallet transactions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM wallet_transactions%s", clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count wallet transactions: %w", err)
	}
	return entries, total, nil
}
