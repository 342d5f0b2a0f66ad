package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugestion/asistencia-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestCreateEntry(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery("INSERT INTO asistencias").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("att-1"))

	entry := time.Date(2026, 3, 16, 8, 5, 0, 0, time.UTC)
	err := repo.CreateEntry(context.Background(), &models.Attendance{
		StudentID: "st-1",
		SchoolID:  "ie-1",
		Date:      time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		Status:    models.AttendancePresent,
		EntryTime: &entry,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEntryConflict(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	// ON CONFLICT DO NOTHING returns no row when the day already has one.
	mock.ExpectQuery("INSERT INTO asistencias").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err := repo.CreateEntry(context.Background(), &models.Attendance{
		StudentID: "st-1",
		SchoolID:  "ie-1",
		Date:      time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		Status:    models.AttendancePresent,
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkAbsentees(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	rows := sqlmock.NewRows([]string{"student_id"}).AddRow("st-1").AddRow("st-2")
	mock.ExpectQuery("INSERT INTO asistencias").
		WillReturnRows(rows)

	date := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	marked, err := repo.MarkAbsentees(context.Background(), "ie-1", date)
	require.NoError(t, err)
	assert.Equal(t, []string{"st-1", "st-2"}, marked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkAbsenteesNothingLeft(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery("INSERT INTO asistencias").
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}))

	marked, err := repo.MarkAbsentees(context.Background(), "ie-1", time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, marked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusKeepsNotesWhenNil(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE asistencias SET status = $2, notes = COALESCE($3, notes), updated_at = $4 WHERE id = $1")).
		WithArgs("att-1", models.AttendanceJustified, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "att-1", models.AttendanceJustified, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusMissingRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("UPDATE asistencias").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", models.AttendanceWithdrawn, nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentSummary(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	rows := sqlmock.NewRows([]string{"status", "cnt"}).
		AddRow(string(models.AttendancePresent), 16).
		AddRow(string(models.AttendanceLate), 2).
		AddRow(string(models.AttendanceAbsent), 2)
	mock.ExpectQuery("SELECT status, COUNT").
		WithArgs("st-1").
		WillReturnRows(rows)

	summary, err := repo.StudentSummary(context.Background(), "st-1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 16, summary.Present)
	assert.Equal(t, 2, summary.Late)
	assert.Equal(t, 2, summary.Absent)
	assert.Equal(t, 20, summary.Total)
	assert.InDelta(t, 90.0, summary.Percent, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepStatsCountsUnmarked(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	statusRows := sqlmock.NewRows([]string{"status", "cnt"}).
		AddRow(string(models.AttendancePresent), 25).
		AddRow(string(models.AttendanceAbsent), 3)
	mock.ExpectQuery("SELECT status, COUNT").
		WithArgs("ie-1", sqlmock.AnyArg()).
		WillReturnRows(statusRows)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("ie-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(30))

	stats, err := repo.SweepStats(context.Background(), "ie-1", time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 30, stats.ActiveStudents)
	assert.Equal(t, 2, stats.Unmarked)
	assert.Equal(t, 25, stats.ByStatus[models.AttendancePresent])
	assert.NoError(t, mock.ExpectationsWereMet())
}
