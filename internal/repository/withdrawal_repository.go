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

// WithdrawalRepository handles early-withdrawal requests.
type WithdrawalRepository struct {
	db *sqlx.DB
}

// NewWithdrawalRepository constructs the repository.
func NewWithdrawalRepository(db *sqlx.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

const withdrawalColumns = `r.id, r.student_id, r.school_id, r.date, r.type, r.reason, r.status,
        r.requested_by, r.pickup_person, r.reviewed_by, r.review_date, r.review_notes, r.created_at, r.updated_at`

// Create inserts a withdrawal request in its initial state.
func (r *WithdrawalRepository) Create(ctx context.Context, withdrawal *models.Withdrawal) error {
	now := time.Now().UTC()
	if withdrawal.ID == "" {
		withdrawal.ID = uuid.NewString()
	}
	withdrawal.CreatedAt = now
	withdrawal.UpdatedAt = now
	const query = `INSERT INTO retiros (id, student_id, school_id, date, type, reason, status, requested_by, pickup_person, created_at, updated_at)
VALUES (:id, :student_id, :school_id, :date, :type, :reason, :status, :requested_by, :pickup_person, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, withdrawal); err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

// FindByID loads a bare withdrawal row.
func (r *WithdrawalRepository) FindByID(ctx context.Context, id string) (*models.Withdrawal, error) {
	query := fmt.Sprintf(`SELECT %s FROM retiros r WHERE r.id = $1`, withdrawalColumns)
	var withdrawal models.Withdrawal
	if err := r.db.GetContext(ctx, &withdrawal, query, id); err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

// FindDetailByID loads a withdrawal with student metadata joined in.
func (r *WithdrawalRepository) FindDetailByID(ctx context.Context, id string) (*models.WithdrawalDetail, error) {
	query := fmt.Sprintf(`SELECT %s, u.full_name AS student_name, u.dni AS student_dni
FROM retiros r
JOIN estudiantes e ON e.id = r.student_id
JOIN usuarios u ON u.id = e.user_id
WHERE r.id = $1`, withdrawalColumns)
	var detail models.WithdrawalDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns withdrawals matching the filter, newest first.
func (r *WithdrawalRepository) List(ctx context.Context, filter models.WithdrawalFilter) ([]models.WithdrawalDetail, int, error) {
	base := `FROM retiros r
JOIN estudiantes e ON e.id = r.student_id
JOIN usuarios u ON u.id = e.user_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.SchoolID != "" {
		where = append(where, fmt.Sprintf("r.school_id = $%d", len(args)+1))
		args = append(args, filter.SchoolID)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("r.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.RequestedBy != "" {
		where = append(where, fmt.Sprintf("r.requested_by = $%d", len(args)+1))
		args = append(args, filter.RequestedBy)
	}
	if filter.Status != nil {
		where = append(where, fmt.Sprintf("r.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("r.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("r.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s, u.full_name AS student_name, u.dni AS student_dni
        %s WHERE %s
        ORDER BY r.created_at DESC
        LIMIT %d OFFSET %d`, withdrawalColumns, base, whereClause, size, offset)

	var rows []models.WithdrawalDetail
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list withdrawals: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count withdrawals: %w", err)
	}
	return rows, total, nil
}

// ExistsActiveForDate reports whether the student already has a withdrawal on
// the date that has not reached a terminal state.
func (r *WithdrawalRepository) ExistsActiveForDate(ctx context.Context, studentID string, date time.Time) (bool, error) {
	const query = `SELECT EXISTS (
SELECT 1 FROM retiros WHERE student_id = $1 AND date = $2
  AND status NOT IN ($3, $4, $5))`
	var exists bool
	err := r.db.GetContext(ctx, &exists, query, studentID, date,
		models.WithdrawalRejected, models.WithdrawalCompleted, models.WithdrawalCancelled)
	if err != nil {
		return false, fmt.Errorf("check active withdrawal: %w", err)
	}
	return exists, nil
}

// UpdateStatus persists a state transition. Review fields are written only
// when provided so pickup and completion transitions do not clobber them.
func (r *WithdrawalRepository) UpdateStatus(ctx context.Context, id string, status models.WithdrawalStatus, reviewedBy, notes *string) error {
	now := time.Now().UTC()
	const query = `UPDATE retiros SET status = $2,
    reviewed_by = COALESCE($3, reviewed_by),
    review_notes = COALESCE($4, review_notes),
    review_date = CASE WHEN $3::text IS NOT NULL THEN $5 ELSE review_date END,
    updated_at = $5
WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, reviewedBy, notes, now)
	if err != nil {
		return fmt.Errorf("update withdrawal status: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
