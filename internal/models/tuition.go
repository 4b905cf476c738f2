package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TuitionStatus is the derived payment state of a tuition account.
type TuitionStatus string

const (
	TuitionStatusUnpaid  TuitionStatus = "UNPAID"
	TuitionStatusPartial TuitionStatus = "PARTIAL"
	TuitionStatusPaid    TuitionStatus = "PAID"
)

// TuitionAccount aggregates billing for one (student, term). The payment
// status is never stored; it is recomputed from the totals on read so the two
// can't drift apart. AmountPerCredit is fixed when the account is created and
// does not change for the life of the term.
type TuitionAccount struct {
	ID              string          `db:"id" json:"id"`
	StudentID       string          `db:"student_id" json:"student_id"`
	TermID          string          `db:"term_id" json:"term_id"`
	TotalCredits    int             `db:"total_credits" json:"total_credits"`
	AmountPerCredit decimal.Decimal `db:"amount_per_credit" json:"amount_per_credit"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	PaidAmount      decimal.Decimal `db:"paid_amount" json:"paid_amount"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Status derives the payment state from the stored totals.
func (a *TuitionAccount) Status() TuitionStatus {
	if a.TotalAmount.Sign() <= 0 || a.PaidAmount.GreaterThanOrEqual(a.TotalAmount) {
		return TuitionStatusPaid
	}
	if a.PaidAmount.Sign() <= 0 {
		return TuitionStatusUnpaid
	}
	return TuitionStatusPartial
}

// FeeFor is the charge for a course of the given credit count at this
// account's rate.
func (a *TuitionAccount) FeeFor(credits int) decimal.Decimal {
	return a.AmountPerCredit.Mul(decimal.NewFromInt(int64(credits)))
}
