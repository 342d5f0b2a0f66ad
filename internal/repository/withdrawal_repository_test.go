package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugestion/asistencia-api/internal/models"
)

func TestWithdrawalCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWithdrawalRepository(db)

	mock.ExpectExec("INSERT INTO retiros").WillReturnResult(sqlmock.NewResult(1, 1))

	withdrawal := &models.Withdrawal{
		StudentID:   "st-1",
		SchoolID:    "ie-1",
		Date:        time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		Type:        models.WithdrawalTypeMedical,
		Reason:      "cita medica",
		Status:      models.WithdrawalRequested,
		RequestedBy: "user-1",
	}
	err := repo.Create(context.Background(), withdrawal)
	require.NoError(t, err)
	assert.NotEmpty(t, withdrawal.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalUpdateStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWithdrawalRepository(db)

	reviewer := "user-rev"
	mock.ExpectExec("UPDATE retiros SET status").
		WithArgs("ret-1", models.WithdrawalApproved, &reviewer, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "ret-1", models.WithdrawalApproved, &reviewer, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalUpdateStatusMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWithdrawalRepository(db)

	mock.ExpectExec("UPDATE retiros SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", models.WithdrawalCancelled, nil, nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawalExistsActiveForDate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWithdrawalRepository(db)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("st-1", sqlmock.AnyArg(), models.WithdrawalRejected, models.WithdrawalCompleted, models.WithdrawalCancelled).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsActiveForDate(context.Background(), "st-1", time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
