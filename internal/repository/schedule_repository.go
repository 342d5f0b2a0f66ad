package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/edugestion/asistencia-api/internal/models"
)

// ScheduleRepository handles class schedule blocks and their tolerance
// overrides.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// List returns schedule blocks matching the filter.
func (r *ScheduleRepository) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ClassSchedule, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.ClassroomID != "" {
		where = append(where, fmt.Sprintf("classroom_id = $%d", len(args)+1))
		args = append(args, filter.ClassroomID)
	}
	if filter.DayOfWeek != nil {
		where = append(where, fmt.Sprintf("day_of_week = $%d", len(args)+1))
		args = append(args, *filter.DayOfWeek)
	}
	if filter.TeacherID != "" {
		where = append(where, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	query := fmt.Sprintf(`SELECT id, classroom_id, day_of_week, start_time, end_time, subject, teacher_id, tolerance_min, created_at, updated_at
FROM horario_clases WHERE %s ORDER BY day_of_week, start_time`, strings.Join(where, " AND "))
	var rows []models.ClassSchedule
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return rows, nil
}

// FindByID loads a single schedule block.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.ClassSchedule, error) {
	const query = `SELECT id, classroom_id, day_of_week, start_time, end_time, subject, teacher_id, tolerance_min, created_at, updated_at
FROM horario_clases WHERE id = $1`
	var schedule models.ClassSchedule
	if err := r.db.GetContext(ctx, &schedule, query, id); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// FirstBlockFor returns the earliest block for a classroom on a weekday, the
// one the entry cutoff is computed against.
func (r *ScheduleRepository) FirstBlockFor(ctx context.Context, classroomID string, dayOfWeek int) (*models.ClassSchedule, error) {
	const query = `SELECT id, classroom_id, day_of_week, start_time, end_time, subject, teacher_id, tolerance_min, created_at, updated_at
FROM horario_clases WHERE classroom_id = $1 AND day_of_week = $2
ORDER BY start_time ASC LIMIT 1`
	var schedule models.ClassSchedule
	if err := r.db.GetContext(ctx, &schedule, query, classroomID, dayOfWeek); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// Create inserts a schedule block.
func (r *ScheduleRepository) Create(ctx context.Context, schedule *models.ClassSchedule) error {
	now := time.Now().UTC()
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	schedule.CreatedAt = now
	schedule.UpdatedAt = now
	const query = `INSERT INTO horario_clases (id, classroom_id, day_of_week, start_time, end_time, subject, teacher_id, tolerance_min, created_at, updated_at)
VALUES (:id, :classroom_id, :day_of_week, :start_time, :end_time, :subject, :teacher_id, :tolerance_min, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, schedule); err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// Update modifies a schedule block.
func (r *ScheduleRepository) Update(ctx context.Context, schedule *models.ClassSchedule) error {
	schedule.UpdatedAt = time.Now().UTC()
	const query = `UPDATE horario_clases SET day_of_week = :day_of_week, start_time = :start_time, end_time = :end_time,
subject = :subject, teacher_id = :teacher_id, tolerance_min = :tolerance_min, updated_at = :updated_at
WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, schedule)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a schedule block.
func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM horario_clases WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetToleranceForSchool overrides tolerance_min on every block of a school.
func (r *ScheduleRepository) SetToleranceForSchool(ctx context.Context, schoolID string, minutes int) (int, error) {
	const query = `UPDATE horario_clases SET tolerance_min = $2, updated_at = $3
WHERE classroom_id IN (SELECT id FROM grado_secciones WHERE school_id = $1)`
	res, err := r.db.ExecContext(ctx, query, schoolID, minutes, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("set school tolerance: %w", err)
	}
	rows, _ := res.RowsAffected()
	return int(rows), nil
}

// SetToleranceForIDs overrides tolerance_min on a targeted subset of blocks.
func (r *ScheduleRepository) SetToleranceForIDs(ctx context.Context, ids []string, minutes int) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `UPDATE horario_clases SET tolerance_min = $2, updated_at = $3 WHERE id = ANY($1)`
	res, err := r.db.ExecContext(ctx, query, pq.Array(ids), minutes, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("set selected tolerance: %w", err)
	}
	rows, _ := res.RowsAffected()
	return int(rows), nil
}
