package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletStatus represents the state of a student wallet.
type WalletStatus string

const (
	WalletStatusActive WalletStatus = "ACTIVE"
	WalletStatusFrozen WalletStatus = "FROZEN"
)

// Wallet holds a student's spendable balance. The balance is denormalized for
// O(1) reads and must always equal the sum of its transactions; both are
// mutated together inside one settlement transaction.
type Wallet struct {
	ID        string          `db:"id" json:"id"`
	StudentID string          `db:"student_id" json:"student_id"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	Status    WalletStatus    `db:"status" json:"status"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// WalletTransactionType categorises ledger entries.
type WalletTransactionType string

const (
	WalletTxTuitionPayment WalletTransactionType = "TUITION_PAYMENT"
	WalletTxRefund         WalletTransactionType = "REFUND"
	WalletTxDeposit        WalletTransactionType = "DEPOSIT"
)

// WalletTransaction is an append-only ledger entry. Amount is signed:
// negative for charges, positive for deposits and refunds. Rows are never
// updated after creation.
type WalletTransaction struct {
	ID               string                `db:"id" json:"id"`
	WalletID         string                `db:"wallet_id" json:"wallet_id"`
	Amount           decimal.Decimal       `db:"amount" json:"amount"`
	Type             WalletTransactionType `db:"type" json:"type"`
	TuitionAccountID *string               `db:"tuition_account_id" json:"tuition_account_id,omitempty"`
	ExternalRef      *string               `db:"external_ref" json:"external_ref,omitempty"`
	Description      string                `db:"description" json:"description"`
	CreatedAt        time.Time             `db:"created_at" json:"created_at"`
}

// WalletTransactionFilter provides filters for listing ledger entries.
type WalletTransactionFilter struct {
	WalletID string
	Type     WalletTransactionType
	Page     int
	PageSize int
}
