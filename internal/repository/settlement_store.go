package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/campusbooks/registrar-api/internal/models"
	appErrors "github.com/campusbooks/registrar-api/pkg/errors"
)

// Postgres error codes the settlement path reacts to.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUniqueViolation      = "23505"
)

// SettlementTx exposes the row-locked reads and mutations available inside
// one settlement transaction. Counter rows (wallet, section, tuition) must be
// read through the ForUpdate methods before being compared and mutated.
type SettlementTx interface {
	SectionForUpdate(ctx context.Context, sectionID string) (*models.ClassSection, error)
	WalletForUpdate(ctx context.Context, studentID string) (*models.Wallet, error)
	TuitionForUpdate(ctx context.Context, studentID, termID string) (*models.TuitionAccount, error)
	EnrollmentForUpdate(ctx context.Context, enrollmentID string) (*models.Enrollment, error)

	HasActiveEnrollment(ctx context.Context, studentID, courseID, termID string) (bool, error)
	ActiveEnrollments(ctx context.Context, studentID, termID string) ([]models.Enrollment, error)
	CompletedCourseIDs(ctx context.Context, studentID string) ([]string, error)
	SectionEvents(ctx context.Context, sectionID string) ([]models.ScheduleEvent, error)
	ActiveSectionEvents(ctx context.Context, studentID, termID string) ([]models.ScheduleEvent, error)

	CreateTuitionAccount(ctx context.Context, account *models.TuitionAccount) error
	UpdateTuitionTotals(ctx context.Context, account *models.TuitionAccount) error
	UpdateWalletBalance(ctx context.Context, walletID string, balance decimal.Decimal) error
	InsertWalletTransaction(ctx context.Context, entry *models.WalletTransaction) error
	UpdateSectionEnrollment(ctx context.Context, sectionID string, current int) error
	CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error
	UpdateEnrollmentDecision(ctx context.Context, id string, status models.EnrollmentStatus, decidedBy string, reason *string) error
}

// SettlementStore runs settlement closures inside serializable transactions,
// retrying the whole closure on serialization conflicts so stale reads are
// never replayed.
type SettlementStore struct {
	db         *sqlx.DB
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
	onRetry    func()
}

// NewSettlementStore constructs the store. maxRetries bounds the number of
// re-runs after the initial attempt; backoff is the base delay, doubled per
// attempt.
func NewSettlementStore(db *sqlx.DB, maxRetries int, backoff time.Duration, logger *zap.Logger) *SettlementStore {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoff <= 0 {
		backoff = 25 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettlementStore{db: db, maxRetries: maxRetries, backoff: backoff, logger: logger}
}

// OnRetry registers a hook invoked once per serialization-conflict retry.
func (s *SettlementStore) OnRetry(fn func()) {
	s.onRetry = fn
}

// WithinTx executes fn inside a serializable transaction. On serialization
// failure or deadlock the transaction is rolled back and fn re-runs from
// scratch with exponential backoff. Business failures (typed *errors.Error)
// roll back and return immediately; they are never retried.
func (s *SettlementStore) WithinTx(ctx context.Context, fn func(tx SettlementTx) error) error {
	delay := s.backoff
	for attempt := 0; ; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) || attempt >= s.maxRetries {
			return err
		}
		s.logger.Warn("settlement tx conflict, retrying",
			zap.Int("attempt", attempt+1), zap.Error(err))
		if s.onRetry != nil {
			s.onRetry()
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}

func (s *SettlementStore) runOnce(ctx context.Context, fn func(tx SettlementTx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin settlement tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&settlementTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settlement tx: %w", err)
	}
	committed = true
	return nil
}

func isRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqSerializationFailure || pqErr.Code == pqDeadlockDetected
	}
	return false
}

type settlementTx struct {
	tx *sqlx.Tx
}

func (t *settlementTx) SectionForUpdate(ctx context.Context, sectionID string) (*models.ClassSection, error) {
	const query = `SELECT id, course_id, term_id, code, max_capacity, current_enrollment, open, created_at, updated_at
        FROM class_sections WHERE id = $1 FOR UPDATE`
	var section models.ClassSection
	if err := t.tx.GetContext(ctx, &section, query, sectionID); err != nil {
		return nil, err
	}
	return &section, nil
}

func (t *settlementTx) WalletForUpdate(ctx context.Context, studentID string) (*models.Wallet, error) {
	const query = `SELECT id, student_id, balance, status, created_at, updated_at
        FROM wallets WHERE student_id = $1 FOR UPDATE`
	var wallet models.Wallet
	if err := t.tx.GetContext(ctx, &wallet, query, studentID); err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (t *settlementTx) TuitionForUpdate(ctx context.Context, studentID, termID string) (*models.TuitionAccount, error) {
	const query = `SELECT id, student_id, term_id, total_credits, amount_per_credit, total_amount, paid_amount, created_at, updated_at
        FROM tuition_accounts WHERE student_id = $1 AND term_id = $2 FOR UPDATE`
	var account models.TuitionAccount
	if err := t.tx.GetContext(ctx, &account, query, studentID, termID); err != nil {
		return nil, err
	}
	return &account, nil
}

func (t *settlementTx) EnrollmentForUpdate(ctx context.Context, enrollmentID string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, class_section_id, course_id, term_id, credits, status, decided_by, decision_reason, enrolled_at, updated_at
        FROM enrollments WHERE id = $1 FOR UPDATE`
	var enrollment models.Enrollment
	if err := t.tx.GetContext(ctx, &enrollment, query, enrollmentID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (t *settlementTx) HasActiveEnrollment(ctx context.Context, studentID, courseID, termID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments
        WHERE student_id = $1 AND course_id = $2 AND term_id = $3 AND status = ANY($4) LIMIT 1`
	var exists int
	err := t.tx.GetContext(ctx, &exists, query, studentID, courseID, termID, pq.Array(activeStatusStrings()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

func (t *settlementTx) ActiveEnrollments(ctx context.Context, studentID, termID string) ([]models.Enrollment, error) {
	const query = `SELECT id, student_id, class_section_id, course_id, term_id, credits, status, decided_by, decision_reason, enrolled_at, updated_at
        FROM enrollments WHERE student_id = $1 AND term_id = $2 AND status = ANY($3)`
	var enrollments []models.Enrollment
	if err := t.tx.SelectContext(ctx, &enrollments, query, studentID, termID, pq.Array(activeStatusStrings())); err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}
	return enrollments, nil
}

func (t *settlementTx) CompletedCourseIDs(ctx context.Context, studentID string) ([]string, error) {
	const query = `SELECT course_id FROM enrollments WHERE student_id = $1 AND status = $2`
	var ids []string
	if err := t.tx.SelectContext(ctx, &ids, query, studentID, models.EnrollmentStatusCompleted); err != nil {
		return nil, fmt.Errorf("list completed courses: %w", err)
	}
	return ids, nil
}

func (t *settlementTx) SectionEvents(ctx context.Context, sectionID string) ([]models.ScheduleEvent, error) {
	const query = `SELECT id, class_section_id, day_of_week, start_minute, end_minute, room
        FROM schedule_events WHERE class_section_id = $1`
	var events []models.ScheduleEvent
	if err := t.tx.SelectContext(ctx, &events, query, sectionID); err != nil {
		return nil, fmt.Errorf("list section events: %w", err)
	}
	return events, nil
}

func (t *settlementTx) ActiveSectionEvents(ctx context.Context, studentID, termID string) ([]models.ScheduleEvent, error) {
	const query = `SELECT se.id, se.class_section_id, se.day_of_week, se.start_minute, se.end_minute, se.room
        FROM schedule_events se
        JOIN enrollments e ON e.class_section_id = se.class_section_id
        WHERE e.student_id = $1 AND e.term_id = $2 AND e.status = ANY($3)`
	var events []models.ScheduleEvent
	if err := t.tx.SelectContext(ctx, &events, query, studentID, termID, pq.Array(activeStatusStrings())); err != nil {
		return nil, fmt.Errorf("list enrolled section events: %w", err)
	}
	return events, nil
}

func (t *settlementTx) CreateTuitionAccount(ctx context.Context, account *models.TuitionAccount) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	const query = `INSERT INTO tuition_accounts (id, student_id, term_id, total_credits, amount_per_credit, total_amount, paid_amount, created_at, updated_at)
        VALUES (:id, :student_id, :term_id, :total_credits, :amount_per_credit, :total_amount, :paid_amount, :created_at, :updated_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, account); err != nil {
		return fmt.Errorf("create tuition account: %w", err)
	}
	return nil
}

func (t *settlementTx) UpdateTuitionTotals(ctx context.Context, account *models.TuitionAccount) error {
	account.UpdatedAt = time.Now().UTC()
	const query = `UPDATE tuition_accounts SET total_credits = $2, total_amount = $3, paid_amount = $4, updated_at = $5 WHERE id = $1`
	if _, err := t.tx.ExecContext(ctx, query, account.ID, account.TotalCredits, account.TotalAmount, account.PaidAmount, account.UpdatedAt); err != nil {
		return fmt.Errorf("update tuition totals: %w", err)
	}
	return nil
}

func (t *settlementTx) UpdateWalletBalance(ctx context.Context, walletID string, balance decimal.Decimal) error {
	const query = `UPDATE wallets SET balance = $2, updated_at = $3 WHERE id = $1`
	if _, err := t.tx.ExecContext(ctx, query, walletID, balance, time.Now().UTC()); err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	return nil
}

func (t *settlementTx) InsertWalletTransaction(ctx context.Context, entry *models.WalletTransaction) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO wallet_transactions (id, wallet_id, amount, type, tuition_account_id, external_ref, description, created_at)
        VALUES (:id, :wallet_id, :amount, :type, :tuition_account_id, :external_ref, :description, :created_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert wallet transaction: %w", err)
	}
	return nil
}

func (t *settlementTx) UpdateSectionEnrollment(ctx context.Context, sectionID string, current int) error {
	const query = `UPDATE class_sections SET current_enrollment = $2, updated_at = $3 WHERE id = $1`
	if _, err := t.tx.ExecContext(ctx, query, sectionID, current, time.Now().UTC()); err != nil {
		return fmt.Errorf("update section enrollment: %w", err)
	}
	return nil
}

func (t *settlementTx) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}
	enrollment.UpdatedAt = now
	const query = `INSERT INTO enrollments (id, student_id, class_section_id, course_id, term_id, credits, status, decided_by, decision_reason, enrolled_at, updated_at)
        VALUES (:id, :student_id, :class_section_id, :course_id, :term_id, :credits, :status, :decided_by, :decision_reason, :enrolled_at, :updated_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, enrollment); err != nil {
		// The partial unique index over active statuses backstops the
		// in-transaction duplicate check against concurrent inserts.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return appErrors.Clone(appErrors.ErrDuplicateEnrollment, "")
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

func (t *settlementTx) UpdateEnrollmentDecision(ctx context.Context, id string, status models.EnrollmentStatus, decidedBy string, reason *string) error {
	const query = `UPDATE enrollments SET status = $2, decided_by = $3, decision_reason = $4, updated_at = $5 WHERE id = $1`
	if _, err := t.tx.ExecContext(ctx, query, id, status, decidedBy, reason, time.Now().UTC()); err != nil {
		return fmt.Errorf("update enrollment decision: %w", err)
	}
	return nil
}

func activeStatusStrings() []string {
	out := make([]string, len(models.ActiveEnrollmentStatuses))
	for i, s := range models.ActiveEnrollmentStatuses {
		out[i] = string(s)
	}
	return out
}
