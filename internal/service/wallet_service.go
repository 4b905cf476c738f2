package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/campusbooks/registrar-api/internal/models"
	"github.com/campusbooks/registrar-api/internal/repository"
	appErrors "github.com/campusbooks/registrar-api/pkg/errors"
	"github.com/campusbooks/registrar-api/pkg/export"
)

type walletReader interface {
	FindByStudent(ctx context.Context, studentID string) (*models.Wallet, error)
	FindTransactionByExternalRef(ctx context.Context, externalRef string) (*models.WalletTransaction, error)
	ListTransactions(ctx context.Context, filter models.WalletTransactionFilter) ([]models.WalletTransaction, int, error)
}

type depositGuard interface {
	ClaimOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string)
}

// DepositRequest is the ledger-side effect of an external payment callback.
type DepositRequest struct {
	StudentID   string          `json:"student_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	ExternalRef string          `json:"external_ref" validate:"required"`
	Description string          `json:"description"`
}

// DepositResult reports the settled deposit.
type DepositResult struct {
	TransactionID string          `json:"transaction_id"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
	Replayed      bool            `json:"replayed"`
}

// WalletService serves wallet reads and applies external deposits. Balance
// mutations always ride the settlement store so wallet and ledger move
// together.
type WalletService struct {
	store    settlementStore
	wallets  walletReader
	students studentReader
	guard    depositGuard
	guardTTL time.Duration
	exporter *export.StatementExporter
	logger   *zap.Logger
}

// NewWalletService constructs the service.
func NewWalletService(store settlementStore, wallets walletReader, students studentReader, guard depositGuard, guardTTL time.Duration, logger *zap.Logger) *WalletService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if guardTTL <= 0 {
		guardTTL = 24 * time.Hour
	}
	return &WalletService{
		store:    store,
		wallets:  wallets,
		students: students,
		guard:    guard,
		guardTTL: guardTTL,
		exporter: export.NewStatementExporter(),
		logger:   logger,
	}
}

// Get returns the wallet of the student behind the calling user.
func (s *WalletService) Get(ctx context.Context, studentUserID string) (*models.Wallet, error) {
	student, err := s.students.FindByUserID(ctx, studentUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrStudentNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrSystem.Code, appErrors.ErrSystem.Status, "failed to load student")
	}
	wallet, err := s.wallets.FindByStudent(ctx, student.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "wallet not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrSystem.Code, appErrors.ErrSystem.Status, "failed to load wallet")
	}
	return wallet, nil
}

// Transactions returns the wallet ledger, newest first.
func (s *WalletService) Transactions(ctx context.Context, studentUserID string, filter models.WalletTransactionFilter) ([]models.WalletTransaction, *models.Pagination, error) {
	wallet, err := s.Get(ctx, studentUserID)
	if err != nil {
		return nil, nil, err
	}
	filter.WalletID = wallet.ID
	entries, total, err := s.wallets.ListTransactions(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrSystem.Code, appErrors.ErrSystem.Status, "failed to list transactions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return entries, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Deposit credits the wallet from an external payment. Replays of the same
// external reference are answered with the original outcome: a Redis claim
// filters fast retries and the unique external_ref constraint backstops it.
func (s *WalletService) Deposit(ctx context.Context, req DepositRequest) (*DepositResult, error) {
	if req.Amount.Sign() <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "deposit amount must be positive")
	}

	guardKey := "deposit:" + req.ExternalRef
	claimed, err := s.guard.ClaimOnce(ctx, guardKey, s.guardTTL)
	if err != nil {
		s.logger.Warn("deposit guard unavailable, relying on unique constraint", zap.Error(err))
		claimed = true
	}
	if !claimed {
		return s.replayedDeposit(ctx, req.ExternalRef)
	}

	var result DepositResult
	txErr := s.store.WithinTx(ctx, func(tx repository.SettlementTx) error {
		wallet, err := tx.WalletForUpdate(ctx, req.StudentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrStudentNotFound, "student has no wallet")
			}
			return fmt.Errorf("lock wallet: %w", err)
		}

		newBalance := wallet.Balance.Add(req.Amount)
		if err := tx.UpdateWalletBalance(ctx, wallet.ID, newBalance); err != nil {
			return err
		}
		entry := &models.WalletTransaction{
			WalletID:    wallet.ID,
			Amount:      req.Amount,
			Type:        models.WalletTxDeposit,
			ExternalRef: &req.ExternalRef,
			Description: req.Description,
		}
		if err := tx.InsertWalletTransaction(ctx, entry); err != nil {
			return err
		}
		result = DepositResult{TransactionID: entry.ID, WalletBalance: newBalance}
		return nil
	})
	if txErr != nil {
		s.guard.Release(ctx, guardKey)
		var appErr *appErrors.Error
		if errors.As(txErr, &appErr) {
			return nil, appErr
		}
		// A unique violation here means the ledger already holds this ref.
		if replay, replayErr := s.replayedDeposit(ctx, req.ExternalRef); replayErr == nil {
			return replay, nil
		}
		s.logger.Error("deposit failed", zap.String("external_ref", req.ExternalRef), zap.Error(txErr))
		return nil, appErrors.Wrap(txErr, appErrors.ErrSystem.Code, appErrors.ErrSystem.Status, "deposit failed")
	}
	return &result, nil
}

func (s *WalletService) replayedDeposit(ctx context.Context, externalRef string) (*DepositResult, error) {
	entry, err := s.wallets.FindTransactionByExternalRef(ctx, externalRef)
	if err != nil {
		return nil, err
	}
	return &DepositResult{TransactionID: entry.ID, Replayed: true}, nil
}

// StatementPDF renders the student's ledger as a PDF document.
func (s *WalletService) StatementPDF(ctx context.Context, studentUserID string) ([]byte, error) {
	student, err := s.students.FindByUserID(ctx, studentUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrStudentNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrSystem.Code, appErrors.ErrSystem.Status, "failed to load student")
	}
	wallet, err := s.wallets.FindByStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSystem.Code, appErrors.ErrSystem.Status, "failed to load wallet")
	}
	entries, _, err := s.wallets.ListTransactions(ctx, models.WalletTransactionFilter{WalletID: wallet.ID, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSystem.Code, appErrors.ErrSystem.Status, "failed to list transactions")
	}

	st := export.Statement{
		StudentName: student.FullName,
		StudentNo:   student.StudentNo,
		Balance:     wallet.Balance,
		GeneratedAt: time.Now().UTC(),
	}
	for _, e := range entries {
		st.Lines = append(st.Lines, export.StatementLine{
			Date:        e.CreatedAt,
			Type:        string(e.Type),
			Description: e.Description,
			Amount:      e.Amount,
		})
	}
	pdf, err := s.exporter.Render(st)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSystem.Code, appErrors.ErrSystem.Status, "failed to render statement")
	}
	return pdf, nil
}
