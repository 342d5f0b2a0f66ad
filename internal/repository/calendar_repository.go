package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edugestion/asistencia-api/internal/models"
)

// CalendarRepository persists school calendar overrides.
type CalendarRepository struct {
	db *sqlx.DB
}

// NewCalendarRepository constructs the repository.
func NewCalendarRepository(db *sqlx.DB) *CalendarRepository {
	return &CalendarRepository{db: db}
}

// List returns calendar entries for a school, optionally bounded by a range.
func (r *CalendarRepository) List(ctx context.Context, schoolID string, from, to *time.Time) ([]models.CalendarEntry, error) {
	query := `SELECT id, school_id, type, description, start_date, end_date, created_at
FROM calendario_escolar WHERE school_id = $1`
	args := []interface{}{schoolID}
	if from != nil {
		query += fmt.Sprintf(" AND end_date >= $%d", len(args)+1)
		args = append(args, *from)
	}
	if to != nil {
		query += fmt.Sprintf(" AND start_date <= $%d", len(args)+1)
		args = append(args, *to)
	}
	query += " ORDER BY start_date"
	var entries []models.CalendarEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list calendar: %w", err)
	}
	return entries, nil
}

// FindForDate returns the override covering a date, if any. Overlapping
// entries resolve to the most recently created one.
func (r *CalendarRepository) FindForDate(ctx context.Context, schoolID string, date time.Time) (*models.CalendarEntry, error) {
	const query = `SELECT id, school_id, type, description, start_date, end_date, created_at
FROM calendario_escolar
WHERE school_id = $1 AND start_date <= $2 AND end_date >= $2
ORDER BY created_at DESC LIMIT 1`
	var entry models.CalendarEntry
	if err := r.db.GetContext(ctx, &entry, query, schoolID, date); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Create inserts a calendar override.
func (r *CalendarRepository) Create(ctx context.Context, entry *models.CalendarEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO calendario_escolar (id, school_id, type, description, start_date, end_date, created_at)
VALUES (:id, :school_id, :type, :description, :start_date, :end_date, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert calendar entry: %w", err)
	}
	return nil
}

// Delete removes a calendar override.
func (r *CalendarRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM calendario_escolar WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete calendar entry: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
