package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusbooks/registrar-api/internal/models"
)

func TestWalletFindByStudent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWalletRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_id", "balance", "status", "created_at", "updated_at"}).
		AddRow("wal-1", "stu-1", "500000", string(models.WalletStatusActive), now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, balance, status, created_at, updated_at FROM wallets WHERE student_id = $1")).
		WithArgs("stu-1").
		WillReturnRows(rows)

	wallet, err := repo.FindByStudent(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, "wal-1", wallet.ID)
	assert.Equal(t, "500000", wallet.Balance.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletFindTransactionByExternalRef(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWalletRepository(db)

	ref := "pay-001"
	rows := sqlmock.NewRows([]string{"id", "wallet_id", "amount", "type", "tuition_account_id", "external_ref", "description", "created_at"}).
		AddRow("wtx-1", "wal-1", "250000", string(models.WalletTxDeposit), nil, ref, "bank transfer", time.Now())
	mock.ExpectQuery(`SELECT .+ FROM wallet_transactions WHERE external_ref = \$1`).
		WithArgs(ref).
		WillReturnRows(rows)

	entry, err := repo.FindTransactionByExternalRef(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "wtx-1", entry.ID)
	require.NotNil(t, entry.ExternalRef)
	assert.Equal(t, ref, *entry.ExternalRef)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletFindTransactionByExternalRefMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWalletRepository(db)

	mock.ExpectQuery(`SELECT .+ FROM wallet_transactions WHERE external_ref = \$1`).
		WithArgs("unknown").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindTransactionByExternalRef(context.Background(), "unknown")
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletListTransactions(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWalletRepository(db)

	now := time.Now()
	listRows := sqlmock.NewRows([]string{"id", "wallet_id", "amount", "type", "tuition_account_id", "external_ref", "description", "created_at"}).
		AddRow("wtx-2", "wal-1", "-450000", string(models.WalletTxTuitionPayment), "tui-1", nil, "Tuition for CS101 (3 credits)", now).
		AddRow("wtx-1", "wal-1", "500000", string(models.WalletTxDeposit), nil, "pay-001", "initial top up", now.Add(-time.Hour))
	mock.ExpectQuery(`SELECT .+ FROM wallet_transactions WHERE wallet_id = \$1 ORDER BY created_at DESC LIMIT 20 OFFSET 0`).
		WithArgs("wal-1").
		WillReturnRows(listRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM wallet_transactions WHERE wallet_id = $1")).
		WithArgs("wal-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	entries, total, err := repo.ListTransactions(context.Background(), models.WalletTransactionFilter{WalletID: "wal-1"})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, 2, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletListTransactionsTypeFilter(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWalletRepository(db)

	mock.ExpectQuery(`SELECT .+ FROM wallet_transactions WHERE wallet_id = \$1 AND type = \$2 ORDER BY created_at DESC LIMIT 20 OFFSET 0`).
		WithArgs("wal-1", models.WalletTxRefund).
		WillReturnRows(sqlmock.NewRows([]string{"id", "wallet_id", "amount", "type", "tuition_account_id", "external_ref", "description", "created_at"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM wallet_transactions WHERE wallet_id = $1 AND type = $2")).
		WithArgs("wal-1", models.WalletTxRefund).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	entries, total, err := repo.ListTransactions(context.Background(), models.WalletTransactionFilter{
		WalletID: "wal-1", Type: models.WalletTxRefund,
	})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 0, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
