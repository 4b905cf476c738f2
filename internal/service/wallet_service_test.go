package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusbooks/registrar-api/internal/models"
	appErrors "github.com/campusbooks/registrar-api/pkg/errors"
)

type mockWalletReader struct {
	store *fakeSettlementStore
}

func (m *mockWalletReader) FindByStudent(ctx context.Context, studentID string) (*models.Wallet, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	w, ok := m.store.state.wallets[studentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &w, nil
}

func (m *mockWalletReader) FindTransactionByExternalRef(ctx context.Context, externalRef string) (*models.WalletTransaction, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for _, e := range m.store.state.ledger {
		if e.ExternalRef != nil && *e.ExternalRef == externalRef {
			entry := e
			return &entry, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockWalletReader) ListTransactions(ctx context.Context, filter models.WalletTransactionFilter) ([]models.WalletTransaction, int, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var out []models.WalletTransaction
	for _, e := range m.store.state.ledger {
		if e.WalletID == filter.WalletID {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

// mockGuard claims keys in-process the way the Redis SETNX guard does.
type mockGuard struct {
	claimed  map[string]bool
	released []string
	err      error
}

func (m *mockGuard) ClaimOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.claimed == nil {
		m.claimed = make(map[string]bool)
	}
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	return true, nil
}

func (m *mockGuard) Release(ctx context.Context, key string) {
	m.released = append(m.released, key)
	delete(m.claimed, key)
}

func newWalletFixture(t *testing.T) (*WalletService, *fakeSettlementStore, *mockGuard) {
	t.Helper()
	store := newFakeStore()
	store.state.wallets[testStudentID] = models.Wallet{
		ID: "wal-1", StudentID: testStudentID,
		Balance: money(100000), Status: models.WalletStatusActive,
	}
	students := &mockStudentReader{byUser: map[string]models.Student{
		testUserID: {ID: testStudentID, UserID: testUserID, StudentNo: "2024001", FullName: "Test Student", Active: true},
	}}
	guard := &mockGuard{}
	svc := NewWalletService(store, &mockWalletReader{store: store}, students, guard, time.Hour, zap.NewNop())
	return svc, store, guard
}

func TestDepositCreditsWallet(t *testing.T) {
	svc, store, _ := newWalletFixture(t)

	result, err := svc.Deposit(context.Background(), DepositRequest{
		StudentID:   testStudentID,
		Amount:      money(250000),
		ExternalRef: "pay-001",
		Description: "bank transfer",
	})
	require.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.True(t, result.WalletBalance.Equal(money(350000)))

	assert.True(t, store.state.wallets[testStudentID].Balance.Equal(money(350000)))
	require.Len(t, store.state.ledger, 1)
	assert.Equal(t, models.WalletTxDeposit, store.state.ledger[0].Type)
	require.NotNil(t, store.state.ledger[0].ExternalRef)
	assert.Equal(t, "pay-001", *store.state.ledger[0].ExternalRef)
}

func TestDepositReplayIsIdempotent(t *testing.T) {
	svc, store, _ := newWalletFixture(t)

	first, err := svc.Deposit(context.Background(), DepositRequest{
		StudentID: testStudentID, Amount: money(250000), ExternalRef: "pay-002",
	})
	require.NoError(t, err)

	second, err := svc.Deposit(context.Background(), DepositRequest{
		StudentID: testStudentID, Amount: money(250000), ExternalRef: "pay-002",
	})
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.TransactionID, second.TransactionID)

	// Credited exactly once.
	assert.True(t, store.state.wallets[testStudentID].Balance.Equal(money(350000)))
	assert.Len(t, store.state.ledger, 1)
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	svc, store, _ := newWalletFixture(t)

	_, err := svc.Deposit(context.Background(), DepositRequest{
		StudentID: testStudentID, Amount: money(0), ExternalRef: "pay-003",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Deposit(context.Background(), DepositRequest{
		StudentID: testStudentID, Amount: money(-100), ExternalRef: "pay-004",
	})
	require.Error(t, err)
	assert.Empty(t, store.state.ledger)
}

func TestDepositUnknownStudentReleasesGuard(t *testing.T) {
	svc, _, guard := newWalletFixture(t)

	_, err := svc.Deposit(context.Background(), DepositRequest{
		StudentID: "ghost", Amount: money(100), ExternalRef: "pay-005",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrStudentNotFound))
	assert.Contains(t, guard.released, "deposit:pay-005")

	// A retry after the failure can claim the key again.
	assert.False(t, guard.claimed["deposit:pay-005"])
}

func TestWalletGet(t *testing.T) {
	svc, _, _ := newWalletFixture(t)

	wallet, err := svc.Get(context.Background(), testUserID)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(money(100000)))

	_, err = svc.Get(context.Background(), "nobody")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrStudentNotFound))
}

func TestWalletTransactions(t *testing.T) {
	svc, _, _ := newWalletFixture(t)
	_, err := svc.Deposit(context.Background(), DepositRequest{
		StudentID: testStudentID, Amount: money(50000), ExternalRef: "pay-006",
	})
	require.NoError(t, err)

	entries, pagination, err := svc.Transactions(context.Background(), testUserID, models.WalletTransactionFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, pagination.TotalCount)
	assert.Equal(t, 1, pagination.Page)
}

func TestWalletStatementPDF(t *testing.T) {
	svc, _, _ := newWalletFixture(t)
	_, err := svc.Deposit(context.Background(), DepositRequest{
		StudentID: testStudentID, Amount: money(50000), ExternalRef: "pay-007", Description: "top up",
	})
	require.NoError(t, err)

	pdf, err := svc.StatementPDF(context.Background(), testUserID)
	require.NoError(t, err)
	assert.True(t, len(pdf) > 0)
	assert.Equal(t, "%PDF", string(pdf[:4]))
}
