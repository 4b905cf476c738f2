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
)

type settlementStore interface {
	WithinTx(ctx context.Context, fn func(tx repository.SettlementTx) error) error
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

type termReader interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Prerequisites(ctx context.Context, courseID string) ([]string, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Course, error)
}

type sectionReader interface {
	FindByID(ctx context.Context, id string) (*models.ClassSection, error)
}

type enrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

type decisionNotifier interface {
	Notify(eventType string, notice DecisionNotice)
}

// RegistrationResult is the success payload of a settlement operation.
type RegistrationResult struct {
	EnrollmentID  string                  `json:"enrollment_id"`
	Status        models.EnrollmentStatus `json:"status"`
	FeeAmount     decimal.Decimal         `json:"fee_amount"`
	WalletBalance decimal.Decimal         `json:"wallet_balance"`
	Message       string                  `json:"message"`
}

// MissingPrerequisite describes one unmet prerequisite course.
type MissingPrerequisite struct {
	CourseID string `json:"course_id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
}

// RegistrationConfig tunes billing defaults.
type RegistrationConfig struct {
	DefaultAmountPerCredit decimal.Decimal
}

// RegistrationService is the enrollment state machine: it sequences the
// eligibility checks, capacity gate and wallet settlement inside one
// serializable transaction, and runs the approve/reject workflow under the
// same discipline.
type RegistrationService struct {
	store       settlementStore
	users       userReader
	students    studentReader
	terms       termReader
	courses     courseReader
	sections    sectionReader
	enrollments enrollmentReader
	notifier    decisionNotifier
	metrics     *MetricsService
	config      RegistrationConfig
	logger      *zap.Logger
}

// NewRegistrationService constructs the service.
func NewRegistrationService(
	store settlementStore,
	users userReader,
	students studentReader,
	terms termReader,
	courses courseReader,
	sections sectionReader,
	enrollments enrollmentReader,
	notifier decisionNotifier,
	metrics *MetricsService,
	config RegistrationConfig,
	logger *zap.Logger,
) *RegistrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		store:       store,
		users:       users,
		students:    students,
		terms:       terms,
		courses:     courses,
		sections:    sections,
		enrollments: enrollments,
		notifier:    notifier,
		metrics:     metrics,
		config:      config,
		logger:      logger,
	}
}

// RegisterAndPay registers the calling student for a class section and
// settles tuition from the wallet, all inside one serializable transaction.
// Every failure is a typed error from the registration taxonomy; the
// transaction is fully rolled back on any of them.
func (s *RegistrationService) RegisterAndPay(ctx context.Context, studentUserID, classSectionID string) (*RegistrationResult, error) {
	started := time.Now()
	result, err := s.registerAndPay(ctx, studentUserID, classSectionID)
	s.observeRegistration(err, time.Since(started))
	return result, err
}

func (s *RegistrationService) registerAndPay(ctx context.Context, studentUserID, classSectionID string) (*RegistrationResult, error) {
	student, err := s.resolveStudent(ctx, studentUserID)
	if err != nil {
		return nil, err
	}

	// Cheap read-only prechecks. Everything that gates admission is
	// re-validated under locks inside the transaction below.
	section, err := s.sections.FindByID(ctx, classSectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrClassSectionNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrSystem.Code, appErrors.ErrSystem.Status, "failed to load class section")
	}
	course, err := s.courses.FindByID(ctx, section.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSystem.Code, appErrors.ErrSystem.Status, "failed to load course")
	}
	term, err := s.terms.FindByID(ctx, section.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSystem.Code, appErrors.ErrSystem.Status, "failed to load term")
	}
	if !term.RegistrationOpenAt(time.Now().UTC()) {
		return nil, appErrors.Clone(appErrors.ErrSemesterWindowClosed, "")
	}
	prereqIDs, err := s.courses.Prerequisites(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSystem.Code, appErrors.ErrSystem.Status, "failed to load prerequisites")
	}

	var result RegistrationResult
	txErr := s.store.WithinTx(ctx, func(tx repository.SettlementTx) error {
		sec, err := tx.SectionForUpdate(ctx, classSectionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrClassSectionNotFound, "")
			}
			return fmt.Errorf("lock class section: %w", err)
		}

		wallet, err := tx.WalletForUpdate(ctx, student.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrWalletInsufficient, "student has no wallet")
			}
			return fmt.Errorf("lock wallet: %w", err)
		}

		dup, err := tx.HasActiveEnrollment(ctx, student.ID, course.ID, term.ID)
		if err != nil {
			return err
		}
		if dup {
			return appErrors.Clone(appErrors.ErrDuplicateEnrollment, "")
		}

		completed, err := tx.CompletedCourseIDs(ctx, student.ID)
		if err != nil {
			return err
		}
		if missing := MissingPrerequisites(prereqIDs, completed); len(missing) > 0 {
			return appErrors.WithDetails(appErrors.ErrPrereqNotMet, s.describeCourses(ctx, missing))
		}

		active, err := tx.ActiveEnrollments(ctx, student.ID, term.ID)
		if err != nil {
			return err
		}
		if CreditLoad(active)+course.Credits > term.MaxCredits {
			return appErrors.Clone(appErrors.ErrCreditLimitExceeded,
				fmt.Sprintf("registering %d credits would exceed the term limit of %d", course.Credits, term.MaxCredits))
		}

		targetEvents, err := tx.SectionEvents(ctx, sec.ID)
		if err != nil {
			return err
		}
		enrolledEvents, err := tx.ActiveSectionEvents(ctx, student.ID, term.ID)
		if err != nil {
			return err
		}
		if conflict := FindScheduleConflict(targetEvents, enrolledEvents); conflict != nil {
			return appErrors.WithDetails(appErrors.ErrTimeConflict, conflict)
		}

		if !sec.HasSeat() {
			return appErrors.Clone(appErrors.ErrClassFull, "")
		}

		account, err := s.tuitionAccount(ctx, tx, student.ID, term.ID)
		if err != nil {
			return err
		}
		fee := account.FeeFor(course.Credits)

		if wallet.Balance.LessThan(fee) {
			return appErrors.Clone(appErrors.ErrWalletInsufficient, "")
		}

		account.TotalCredits += course.Credits
		account.TotalAmount = account.TotalAmount.Add(fee)
		account.PaidAmount = account.PaidAmount.Add(fee)
		if err := tx.UpdateTuitionTotals(ctx, account); err != nil {
			return err
		}

		newBalance := wallet.Balance.Sub(fee)
		if err := tx.UpdateWalletBalance(ctx, wallet.ID, newBalance); err != nil {
			return err
		}
		if err := tx.InsertWalletTransaction(ctx, &models.WalletTransaction{
			WalletID:         wallet.ID,
			Amount:           fee.Neg(),
			Type:             models.WalletTxTuitionPayment,
			TuitionAccountID: &account.ID,
			Description:      fmt.Sprintf("Tuition for %s (%d credits)", course.Code, course.Credits),
		}); err != nil {
			return err
		}

		if err := tx.UpdateSectionEnrollment(ctx, sec.ID, sec.CurrentEnrollment+1); err != nil {
			return err
		}

		enrollment := &models.Enrollment{
			StudentID:      student.ID,
			ClassSectionID: sec.ID,
			CourseID:       course.ID,
			TermID:         term.ID,
			Credits:        course.Credits,
			Status:         models.EnrollmentStatusPendingApproval,
		}
		if err := tx.CreateEnrollment(ctx, enrollment); err != nil {
			return err
		}

		result = RegistrationResult{
			EnrollmentID:  enrollment.ID,
			Status:        enrollment.Status,
			FeeAmount:     fee,
			WalletBalance: newBalance,
			Message:       fmt.Sprintf("Registered for %s; %s charged, awaiting approval", course.Code, fee.StringFixed(2)),
		}
		return nil
	})
	if txErr != nil {
		return nil, s.settlementError(txErr, "registration failed")
	}

	if s.notifier != nil {
		s.notifier.Notify(NotifyRegistrationSubmitted, DecisionNotice{
			EnrollmentID: result.EnrollmentID,
			StudentID:    student.ID,
			Status:       result.Status,
		})
	}
	return &result, nil
}

// Approve finalizes a pending registration. Payment was captured at
// registration time, so no money moves here.
func (s *RegistrationService) Approve(ctx context.Context, adminUserID, enrollmentID string) (*RegistrationResult, error) {
	if err := s.requireAdmin(ctx, adminUserID); err != nil {
		s.observeDecision("approve", err)
		return nil, err
	}

	var result RegistrationResult
	var studentID string
	txErr := s.store.WithinTx(ctx, func(tx repository.SettlementTx) error {
		enrollment, err := tx.EnrollmentForUpdate(ctx, enrollmentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrEnrollmentNotFound, "")
			}
			return fmt.Errorf("lock enrollment: %w", err)
		}
		if enrollment.Status != models.EnrollmentStatusPendingApproval {
			return appErrors.Clone(appErrors.ErrEnrollmentStatusInvalid,
				fmt.Sprintf("enrollment is %s, expected %s", enrollment.Status, models.EnrollmentStatusPendingApproval))
		}
		if err := tx.UpdateEnrollmentDecision(ctx, enrollment.ID, models.EnrollmentStatusEnrolled, adminUserID, nil); err != nil {
			return err
		}
		studentID = enrollment.StudentID
		result = RegistrationResult{
			EnrollmentID: enrollment.ID,
			Status:       models.EnrollmentStatusEnrolled,
			Message:      "Enrollment approved",
		}
		return nil
	})
	s.observeDecision("approve", txErr)
	if txErr != nil {
		return nil, s.settlementError(txErr, "approval failed")
	}

	if s.notifier != nil {
		s.notifier.Notify(NotifyEnrollmentApproved, DecisionNotice{
			EnrollmentID: result.EnrollmentID,
			StudentID:    studentID,
			Status:       result.Status,
		})
	}
	return &result, nil
}

// Reject reverses a pending registration: the tuition charge is refunded to
// the wallet, the tuition account and section counters are rolled back, and
// the enrollment becomes REJECTED. The refund is recomputed from the tuition
// account's stored per-credit rate and the enrollment's credit snapshot; the
// rate never changes within a term, so refund always equals the original
// charge.
func (s *RegistrationService) Reject(ctx context.Context, adminUserID, enrollmentID, reason string) (*RegistrationResult, error) {
	if err := s.requireAdmin(ctx, adminUserID); err != nil {
		s.observeDecision("reject", err)
		return nil, err
	}

	var result RegistrationResult
	var studentID string
	txErr := s.store.WithinTx(ctx, func(tx repository.SettlementTx) error {
		enrollment, err := tx.EnrollmentForUpdate(ctx, enrollmentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrEnrollmentNotFound, "")
			}
			return fmt.Errorf("lock enrollment: %w", err)
		}
		if enrollment.Status != models.EnrollmentStatusPendingApproval {
			return appErrors.Clone(appErrors.ErrEnrollmentStatusInvalid,
				fmt.Sprintf("enrollment is %s, expected %s", enrollment.Status, models.EnrollmentStatusPendingApproval))
		}

		section, err := tx.SectionForUpdate(ctx, enrollment.ClassSectionID)
		if err != nil {
			return fmt.Errorf("lock class section: %w", err)
		}
		wallet, err := tx.WalletForUpdate(ctx, enrollment.StudentID)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}
		account, err := tx.TuitionForUpdate(ctx, enrollment.StudentID, enrollment.TermID)
		if err != nil {
			return fmt.Errorf("lock tuition account: %w", err)
		}

		refund := account.FeeFor(enrollment.Credits)

		newBalance := wallet.Balance.Add(refund)
		if err := tx.UpdateWalletBalance(ctx, wallet.ID, newBalance); err != nil {
			return err
		}
		if err := tx.InsertWalletTransaction(ctx, &models.WalletTransaction{
			WalletID:         wallet.ID,
			Amount:           refund,
			Type:             models.WalletTxRefund,
			TuitionAccountID: &account.ID,
			Description:      fmt.Sprintf("Refund for rejected enrollment: %s", reason),
		}); err != nil {
			return err
		}

		account.TotalCredits = maxInt(0, account.TotalCredits-enrollment.Credits)
		account.TotalAmount = floorZero(account.TotalAmount.Sub(refund))
		account.PaidAmount = floorZero(account.PaidAmount.Sub(refund))
		if err := tx.UpdateTuitionTotals(ctx, account); err != nil {
			return err
		}

		if err := tx.UpdateSectionEnrollment(ctx, section.ID, maxInt(0, section.CurrentEnrollment-1)); err != nil {
			return err
		}

		if err := tx.UpdateEnrollmentDecision(ctx, enrollment.ID, models.EnrollmentStatusRejected, adminUserID, &reason); err != nil {
			return err
		}

		studentID = enrollment.StudentID
		result = RegistrationResult{
			EnrollmentID:  enrollment.ID,
			Status:        models.EnrollmentStatusRejected,
			FeeAmount:     refund,
			WalletBalance: newBalance,
			Message:       fmt.Sprintf("Enrollment rejected; %s refunded", refund.StringFixed(2)),
		}
		return nil
	})
	s.observeDecision("reject", txErr)
	if txErr != nil {
		return nil, s.settlementError(txErr, "rejection failed")
	}

	if s.notifier != nil {
		s.notifier.Notify(NotifyEnrollmentRejected, DecisionNotice{
			EnrollmentID: result.EnrollmentID,
			StudentID:    studentID,
			Status:       result.Status,
			Reason:       reason,
		})
	}
	return &result, nil
}

// List returns enrollments with pagination metadata for the admin view.
func (s *RegistrationService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrSystem.Code, appErrors.ErrSystem.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *RegistrationService) resolveStudent(ctx context.Context, userID string) (*models.Student, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrSystem.Code, appErrors.ErrSystem.Status, "failed to load user")
	}
	if user.Role != models.RoleStudent || !user.Active {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "caller is not an active student")
	}
	student, err := s.students.FindByUserID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrStudentNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrSystem.Code, appErrors.ErrSystem.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrStudentNotFound, "student record is inactive")
	}
	return student, nil
}

func (s *RegistrationService) requireAdmin(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrUnauthorized, "")
		}
		return appErrors.Wrap(err, appErrors.ErrSystem.Code, appErrors.ErrSystem.Status, "failed to load user")
	}
	if user.Role != models.RoleAdmin || !user.Active {
		return appErrors.Clone(appErrors.ErrUnauthorized, "caller is not an active admin")
	}
	return nil
}

// tuitionAccount returns the locked (student, term) account, creating it with
// the configured default rate on first use. The rate is fixed here for the
// life of the term.
func (s *RegistrationService) tuitionAccount(ctx context.Context, tx repository.SettlementTx, studentID, termID string) (*models.TuitionAccount, error) {
	account, err := tx.TuitionForUpdate(ctx, studentID, termID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lock tuition account: %w", err)
	}
	account = &models.TuitionAccount{
		StudentID:       studentID,
		TermID:          termID,
		AmountPerCredit: s.config.DefaultAmountPerCredit,
		TotalAmount:     decimal.Zero,
		PaidAmount:      decimal.Zero,
	}
	if err := tx.CreateTuitionAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// describeCourses resolves course IDs to display info for PREREQ_NOT_MET
// details; best-effort, IDs alone are returned when the lookup fails.
func (s *RegistrationService) describeCourses(ctx context.Context, ids []string) []MissingPrerequisite {
	out := make([]MissingPrerequisite, 0, len(ids))
	courses, err := s.courses.FindByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to describe missing prerequisites", zap.Error(err))
		for _, id := range ids {
			out = append(out, MissingPrerequisite{CourseID: id})
		}
		return out
	}
	byID := make(map[string]models.Course, len(courses))
	for _, c := range courses {
		byID[c.ID] = c
	}
	for _, id := range ids {
		c := byID[id]
		out = append(out, MissingPrerequisite{CourseID: id, Code: c.Code, Name: c.Name})
	}
	return out
}

// settlementError maps closure errors to the taxonomy: typed errors pass
// through untouched, anything else is an infrastructure fault.
func (s *RegistrationService) settlementError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	s.logger.Error("settlement transaction failed", zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrSystem.Code, appErrors.ErrSystem.Status, message)
}

func (s *RegistrationService) observeRegistration(err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveRegistration(outcomeLabel(err), elapsed)
}

func (s *RegistrationService) observeDecision(action string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveDecision(action, outcomeLabel(err))
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	return appErrors.FromError(err).Code
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.Sign() < 0 {
		return decimal.Zero
	}
	return d
}
