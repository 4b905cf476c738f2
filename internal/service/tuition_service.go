package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/campusbooks/registrar-api/internal/models"
	appErrors "github.com/campusbooks/registrar-api/pkg/errors"
)

type tuitionReader interface {
	FindByStudentAndTerm(ctx context.Context, studentID, termID string) (*models.TuitionAccount, error)
}

type activeEnrollmentLister interface {
	ActiveByStudentAndTerm(ctx context.Context, studentID, termID string) ([]models.Enrollment, error)
}

// TuitionSummary is the read model for a (student, term) tuition account,
// with the payment status derived on the way out.
type TuitionSummary struct {
	Account     models.TuitionAccount `json:"account"`
	Status      models.TuitionStatus  `json:"status"`
	Outstanding decimal.Decimal       `json:"outstanding"`
	Enrollments []models.Enrollment   `json:"enrollments"`
}

// TuitionService serves tuition account reads.
type TuitionService struct {
	accounts    tuitionReader
	enrollments activeEnrollmentLister
	students    studentReader
	logger      *zap.Logger
}

// NewTuitionService constructs the service.
func NewTuitionService(accounts tuitionReader, enrollments activeEnrollmentLister, students studentReader, logger *zap.Logger) *TuitionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TuitionService{accounts: accounts, enrollments: enrollments, students: students, logger: logger}
}

// GetForTerm returns the calling student's tuition position for a term.
func (s *TuitionService) GetForTerm(ctx context.Context, studentUserID, termID string) (*TuitionSummary, error) {
	student, err := s.students.FindByUserID(ctx, studentUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrStudentNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrSystem.Code, appErrors.ErrSystem.Status, "failed to load student")
	}

	account, err := s.accounts.FindByStudentAndTerm(ctx, student.ID, termID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no tuition account for this term")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrSystem.Code, appErrors.ErrSystem.Status, "failed to load tuition account")
	}

	enrollments, err := s.enrollments.ActiveByStudentAndTerm(ctx, student.ID, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSystem.Code, appErrors.ErrSystem.Status, "failed to load enrollments")
	}

	outstanding := account.TotalAmount.Sub(account.PaidAmount)
	if outstanding.Sign() < 0 {
		outstanding = decimal.Zero
	}
	return &TuitionSummary{
		Account:     *account,
		Status:      account.Status(),
		Outstanding: outstanding,
		Enrollments: enrollments,
	}, nil
}
