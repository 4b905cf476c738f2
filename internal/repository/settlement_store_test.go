package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusbooks/registrar-api/internal/models"
	appErrors "github.com/campusbooks/registrar-api/pkg/errors"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func sectionRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "course_id", "term_id", "code", "max_capacity", "current_enrollment", "open", "created_at", "updated_at"}).
		AddRow("sec-1", "course-1", "term-1", "A", 30, 5, true, now, now)
}

func TestWithinTxCommits(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewSettlementStore(db, 3, time.Millisecond, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM class_sections WHERE id = \$1 FOR UPDATE`).
		WithArgs("sec-1").
		WillReturnRows(sectionRows())
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(tx SettlementTx) error {
		section, err := tx.SectionForUpdate(context.Background(), "sec-1")
		if err != nil {
			return err
		}
		assert.Equal(t, 5, section.CurrentEnrollment)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRetriesSerializationFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewSettlementStore(db, 3, time.Millisecond, zap.NewNop())
	var retries int
	store.OnRetry(func() { retries++ })

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM class_sections WHERE id = \$1 FOR UPDATE`).
		WithArgs("sec-1").
		WillReturnError(&pq.Error{Code: "40001", Message: "could not serialize access"})
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM class_sections WHERE id = \$1 FOR UPDATE`).
		WithArgs("sec-1").
		WillReturnRows(sectionRows())
	mock.ExpectCommit()

	runs := 0
	err := store.WithinTx(context.Background(), func(tx SettlementTx) error {
		runs++
		_, err := tx.SectionForUpdate(context.Background(), "sec-1")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, runs, "closure re-runs from scratch after a conflict")
	assert.Equal(t, 1, retries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxExhaustsRetries(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewSettlementStore(db, 1, time.Millisecond, zap.NewNop())

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT .+ FROM class_sections WHERE id = \$1 FOR UPDATE`).
			WillReturnError(&pq.Error{Code: "40001"})
		mock.ExpectRollback()
	}

	err := store.WithinTx(context.Background(), func(tx SettlementTx) error {
		_, err := tx.SectionForUpdate(context.Background(), "sec-1")
		return err
	})
	require.Error(t, err)
	var pqErr *pq.Error
	require.ErrorAs(t, err, &pqErr)
	assert.Equal(t, pq.ErrorCode("40001"), pqErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxBusinessErrorNotRetried(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewSettlementStore(db, 3, time.Millisecond, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectRollback()

	runs := 0
	err := store.WithinTx(context.Background(), func(tx SettlementTx) error {
		runs++
		return appErrors.Clone(appErrors.ErrClassFull, "")
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrClassFull))
	assert.Equal(t, 1, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEnrollmentMapsUniqueViolation(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewSettlementStore(db, 0, time.Millisecond, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_enrollments_live"})
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(tx SettlementTx) error {
		return tx.CreateEnrollment(context.Background(), &models.Enrollment{
			StudentID: "stu-1", ClassSectionID: "sec-1", CourseID: "course-1",
			TermID: "term-1", Credits: 3, Status: models.EnrollmentStatusPendingApproval,
		})
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrDuplicateEnrollment))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasActiveEnrollment(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewSettlementStore(db, 0, time.Millisecond, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT 1 FROM enrollments`).
		WithArgs("stu-1", "course-1", "term-1", pq.Array(activeStatusStrings())).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(tx SettlementTx) error {
		dup, err := tx.HasActiveEnrollment(context.Background(), "stu-1", "course-1", "term-1")
		require.NoError(t, err)
		assert.True(t, dup)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasActiveEnrollmentNoRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewSettlementStore(db, 0, time.Millisecond, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT 1 FROM enrollments`).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(tx SettlementTx) error {
		dup, err := tx.HasActiveEnrollment(context.Background(), "stu-1", "course-1", "term-1")
		require.NoError(t, err)
		assert.False(t, dup)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
