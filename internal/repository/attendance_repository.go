package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edugestion/asistencia-api/internal/models"
)

// AttendanceRepository handles persistence for daily attendance rows.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const attendanceColumns = `a.id, a.student_id, a.school_id, a.date, a.status, a.entry_time, a.exit_time,
        a.registered_by, a.notes, a.created_at, a.updated_at`

// FindByStudentDate loads the day's row for a student, if present.
func (r *AttendanceRepository) FindByStudentDate(ctx context.Context, studentID string, date time.Time) (*models.Attendance, error) {
	query := fmt.Sprintf(`SELECT %s FROM asistencias a WHERE a.student_id = $1 AND a.date = $2`, attendanceColumns)
	var row models.Attendance
	if err := r.db.GetContext(ctx, &row, query, studentID, date); err != nil {
		return nil, err
	}
	return &row, nil
}

// CreateEntry inserts the day's row. The unique (student_id, date) constraint
// makes a concurrent duplicate surface as sql.ErrNoRows via DO NOTHING.
func (r *AttendanceRepository) CreateEntry(ctx context.Context, record *models.Attendance) error {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = now
	record.UpdatedAt = now
	const query = `INSERT INTO asistencias (id, student_id, school_id, date, status, entry_time, exit_time, registered_by, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (student_id, date) DO NOTHING
RETURNING id`
	var insertedID string
	err := r.db.QueryRowxContext(ctx, query, record.ID, record.StudentID, record.SchoolID, record.Date,
		record.Status, record.EntryTime, record.ExitTime, record.RegisteredBy, record.Notes,
		record.CreatedAt, record.UpdatedAt).Scan(&insertedID)
	if err != nil {
		if err == sql.ErrNoRows {
			return sql.ErrNoRows
		}
		return fmt.Errorf("insert attendance entry: %w", err)
	}
	return nil
}

// UpdateEntry records the entry stamp on an existing row (e.g. a student the
// sweep marked absent who arrives later).
func (r *AttendanceRepository) UpdateEntry(ctx context.Context, id string, status models.AttendanceStatus, entryTime time.Time, registeredBy *string) error {
	const query = `UPDATE asistencias SET status = $2, entry_time = $3, registered_by = $4, updated_at = $5 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, entryTime, registeredBy, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update attendance entry: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetExit writes the exit stamp.
func (r *AttendanceRepository) SetExit(ctx context.Context, id string, exitTime time.Time) error {
	const query = `UPDATE asistencias SET exit_time = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, exitTime, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set attendance exit: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus rewrites the row status (withdrawal completion, justification
// approval).
func (r *AttendanceRepository) UpdateStatus(ctx context.Context, id string, status models.AttendanceStatus, notes *string) error {
	const query = `UPDATE asistencias SET status = $2, notes = COALESCE($3, notes), updated_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, notes, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update attendance status: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns attendance rows matching the provided filter.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	base := `FROM asistencias a
JOIN estudiantes e ON e.id = a.student_id
JOIN usuarios u ON u.id = e.user_id
LEFT JOIN grado_secciones gs ON gs.id = e.classroom_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.SchoolID != "" {
		where = append(where, fmt.Sprintf("a.school_id = $%d", len(args)+1))
		args = append(args, filter.SchoolID)
	}
	if filter.ClassroomID != "" {
		where = append(where, fmt.Sprintf("e.classroom_id = $%d", len(args)+1))
		args = append(args, filter.ClassroomID)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("a.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != nil && filter.Status.Valid() {
		where = append(where, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("a.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("a.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"date":       "a.date",
		"status":     "a.status",
		"student":    "u.full_name",
		"created_at": "a.created_at",
	}
	sortColumn, ok := allowedSort[filter.SortBy]
	if !ok {
		sortColumn = "a.date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s,
        u.full_name AS student_name, u.dni AS student_dni, e.classroom_id,
        (gs.grade || ' ' || gs.section) AS classroom_label
        %s WHERE %s
        ORDER BY %s %s
        LIMIT %d OFFSET %d`, attendanceColumns, base, whereClause, sortColumn, order, size, offset)

	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return rows, total, nil
}

// StudentSummary aggregates counts for a student within an optional range.
func (r *AttendanceRepository) StudentSummary(ctx context.Context, studentID string, from, to *time.Time) (*models.AttendanceSummary, error) {
	where := []string{"student_id = $1"}
	args := []interface{}{studentID}
	if from != nil {
		where = append(where, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *from)
	}
	if to != nil {
		where = append(where, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, *to)
	}
	query := fmt.Sprintf(`SELECT status, COUNT(*) AS cnt FROM asistencias WHERE %s GROUP BY status`,
		strings.Join(where, " AND "))
	rows := []struct {
		Status string `db:"status"`
		Count  int    `db:"cnt"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("attendance summary: %w", err)
	}
	summary := &models.AttendanceSummary{StudentID: studentID}
	for _, row := range rows {
		switch models.AttendanceStatus(row.Status) {
		case models.AttendancePresent:
			summary.Present += row.Count
		case models.AttendanceLate:
			summary.Late += row.Count
		case models.AttendanceAbsent:
			summary.Absent += row.Count
		case models.AttendanceWithdrawn:
			summary.Withdrawn += row.Count
		case models.AttendanceJustified:
			summary.Justified += row.Count
		}
		summary.Total += row.Count
	}
	if summary.Total > 0 {
		summary.Percent = float64(summary.Present+summary.Late) / float64(summary.Total) * 100
	}
	return summary, nil
}

// MarkAbsentees inserts an INASISTENCIA row for every active student of the
// school without a row on the date. A single set-based statement keeps the
// sweep idempotent and atomic; re-running cannot duplicate.
func (r *AttendanceRepository) MarkAbsentees(ctx context.Context, schoolID string, date time.Time) ([]string, error) {
	const query = `INSERT INTO asistencias (id, student_id, school_id, date, status, created_at, updated_at)
SELECT gen_random_uuid(), e.id, u.school_id, $2, $3, $4, $4
FROM estudiantes e
JOIN usuarios u ON u.id = e.user_id
WHERE u.active = true AND u.school_id = $1
  AND NOT EXISTS (SELECT 1 FROM asistencias a WHERE a.student_id = e.id AND a.date = $2)
RETURNING student_id`
	now := time.Now().UTC()
	var studentIDs []string
	if err := r.db.SelectContext(ctx, &studentIDs, query, schoolID, date, models.AttendanceAbsent, now); err != nil {
		return nil, fmt.Errorf("mark absentees: %w", err)
	}
	return studentIDs, nil
}

// SweepStats summarises the day for the sweep status endpoint.
func (r *AttendanceRepository) SweepStats(ctx context.Context, schoolID string, date time.Time) (*models.SweepStats, error) {
	const statusQuery = `SELECT status, COUNT(*) AS cnt FROM asistencias WHERE school_id = $1 AND date = $2 GROUP BY status`
	rows := []struct {
		Status string `db:"status"`
		Count  int    `db:"cnt"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, statusQuery, schoolID, date); err != nil {
		return nil, fmt.Errorf("sweep stats: %w", err)
	}

	const activeQuery = `SELECT COUNT(*) FROM estudiantes e JOIN usuarios u ON u.id = e.user_id
WHERE u.active = true AND u.school_id = $1`
	var active int
	if err := r.db.GetContext(ctx, &active, activeQuery, schoolID); err != nil {
		return nil, fmt.Errorf("count active students: %w", err)
	}

	stats := &models.SweepStats{
		SchoolID:       schoolID,
		Date:           date,
		ActiveStudents: active,
		ByStatus:       make(map[models.AttendanceStatus]int),
	}
	marked := 0
	for _, row := range rows {
		stats.ByStatus[models.AttendanceStatus(row.Status)] = row.Count
		marked += row.Count
	}
	stats.Unmarked = active - marked
	if stats.Unmarked < 0 {
		stats.Unmarked = 0
	}
	return stats, nil
}

// SchoolIDs lists the distinct schools with active students, for all-school
// sweep runs.
func (r *AttendanceRepository) SchoolIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT u.school_id FROM estudiantes e JOIN usuarios u ON u.id = e.user_id WHERE u.active = true`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("list school ids: %w", err)
	}
	return ids, nil
}
