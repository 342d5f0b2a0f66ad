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

// JustificationRepository handles absence justifications, their attendance
// links and attached documents.
type JustificationRepository struct {
	db *sqlx.DB
}

// NewJustificationRepository constructs the repository.
func NewJustificationRepository(db *sqlx.DB) *JustificationRepository {
	return &JustificationRepository{db: db}
}

const justificationColumns = `j.id, j.student_id, j.school_id, j.type_id, j.status, j.reason,
        j.submitted_by, j.reviewed_by, j.review_date, j.review_notes, j.created_at, j.updated_at`

// Create inserts the justification and its attendance links in one
// transaction.
func (r *JustificationRepository) Create(ctx context.Context, justification *models.Justification, attendanceIDs []string) error {
	now := time.Now().UTC()
	if justification.ID == "" {
		justification.ID = uuid.NewString()
	}
	justification.CreatedAt = now
	justification.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin justification tx: %w", err)
	}
	const insert = `INSERT INTO justificaciones (id, student_id, school_id, type_id, status, reason, submitted_by, created_at, updated_at)
VALUES (:id, :student_id, :school_id, :type_id, :status, :reason, :submitted_by, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insert, justification); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert justification: %w", err)
	}
	const link = `INSERT INTO asistencia_justificaciones (id, justification_id, attendance_id, created_at)
VALUES ($1, $2, $3, $4)`
	for _, attendanceID := range attendanceIDs {
		if _, err := tx.ExecContext(ctx, link, uuid.NewString(), justification.ID, attendanceID, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("link attendance %s: %w", attendanceID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit justification tx: %w", err)
	}
	return nil
}

// FindByID loads a bare justification row.
func (r *JustificationRepository) FindByID(ctx context.Context, id string) (*models.Justification, error) {
	query := fmt.Sprintf(`SELECT %s FROM justificaciones j WHERE j.id = $1`, justificationColumns)
	var justification models.Justification
	if err := r.db.GetContext(ctx, &justification, query, id); err != nil {
		return nil, err
	}
	return &justification, nil
}

// FindDetailByID loads a justification with type, student, linked attendance
// ids and documents.
func (r *JustificationRepository) FindDetailByID(ctx context.Context, id string) (*models.JustificationDetail, error) {
	query := fmt.Sprintf(`SELECT %s, t.code AS type_code, t.name AS type_name, u.full_name AS student_name
FROM justificaciones j
JOIN tipo_justificaciones t ON t.id = j.type_id
JOIN estudiantes e ON e.id = j.student_id
JOIN usuarios u ON u.id = e.user_id
WHERE j.id = $1`, justificationColumns)
	var detail models.JustificationDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	attendanceIDs, err := r.LinkedAttendanceIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.AttendanceIDs = attendanceIDs
	documents, err := r.ListDocuments(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.Documents = documents
	return &detail, nil
}

// List returns justifications matching the filter, newest first.
func (r *JustificationRepository) List(ctx context.Context, filter models.JustificationFilter) ([]models.JustificationDetail, int, error) {
	base := `FROM justificaciones j
JOIN tipo_justificaciones t ON t.id = j.type_id
JOIN estudiantes e ON e.id = j.student_id
JOIN usuarios u ON u.id = e.user_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.SchoolID != "" {
		where = append(where, fmt.Sprintf("j.school_id = $%d", len(args)+1))
		args = append(args, filter.SchoolID)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("j.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != nil {
		where = append(where, fmt.Sprintf("j.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
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

	query := fmt.Sprintf(`SELECT %s, t.code AS type_code, t.name AS type_name, u.full_name AS student_name
        %s WHERE %s
        ORDER BY j.created_at DESC
        LIMIT %d OFFSET %d`, justificationColumns, base, whereClause, size, offset)

	var rows []models.JustificationDetail
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list justifications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count justifications: %w", err)
	}
	return rows, total, nil
}

// UpdateStatus persists a state transition with optional review metadata.
func (r *JustificationRepository) UpdateStatus(ctx context.Context, id string, status models.JustificationStatus, reviewedBy, notes *string) error {
	now := time.Now().UTC()
	const query = `UPDATE justificaciones SET status = $2,
    reviewed_by = COALESCE($3, reviewed_by),
    review_notes = COALESCE($4, review_notes),
    review_date = CASE WHEN $3::text IS NOT NULL THEN $5 ELSE review_date END,
    updated_at = $5
WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, reviewedBy, notes, now)
	if err != nil {
		return fmt.Errorf("update justification status: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ResetForResubmission moves a rejected justification back to PENDIENTE and
// clears every review field so the new cycle starts clean.
func (r *JustificationRepository) ResetForResubmission(ctx context.Context, id string, reason string) error {
	const query = `UPDATE justificaciones SET status = $2, reason = $3,
    reviewed_by = NULL, review_date = NULL, review_notes = NULL, updated_at = $4
WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, models.JustificationPending, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reset justification: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes the justification, its links and documents in one
// transaction. Callers enforce the PENDIENTE-only rule.
func (r *JustificationRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete justification tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM asistencia_justificaciones WHERE justification_id = $1`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete justification links: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documento_justificaciones WHERE justification_id = $1`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete justification documents: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM justificaciones WHERE id = $1`, id)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete justification: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		_ = tx.Rollback()
		return sql.ErrNoRows
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete justification tx: %w", err)
	}
	return nil
}

// AddDocument attaches an uploaded file record.
func (r *JustificationRepository) AddDocument(ctx context.Context, document *models.JustificationDocument) error {
	if document.ID == "" {
		document.ID = uuid.NewString()
	}
	document.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO documento_justificaciones (id, justification_id, file_name, stored_path, mime_type, size_bytes, uploaded_by, created_at)
VALUES (:id, :justification_id, :file_name, :stored_path, :mime_type, :size_bytes, :uploaded_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, document); err != nil {
		return fmt.Errorf("insert justification document: %w", err)
	}
	return nil
}

// ListDocuments returns the attachments of a justification.
func (r *JustificationRepository) ListDocuments(ctx context.Context, justificationID string) ([]models.JustificationDocument, error) {
	const query = `SELECT id, justification_id, file_name, stored_path, mime_type, size_bytes, uploaded_by, created_at
FROM documento_justificaciones WHERE justification_id = $1 ORDER BY created_at`
	var documents []models.JustificationDocument
	if err := r.db.SelectContext(ctx, &documents, query, justificationID); err != nil {
		return nil, fmt.Errorf("list justification documents: %w", err)
	}
	return documents, nil
}

// FindDocument loads a single attachment row.
func (r *JustificationRepository) FindDocument(ctx context.Context, documentID string) (*models.JustificationDocument, error) {
	const query = `SELECT id, justification_id, file_name, stored_path, mime_type, size_bytes, uploaded_by, created_at
FROM documento_justificaciones WHERE id = $1`
	var document models.JustificationDocument
	if err := r.db.GetContext(ctx, &document, query, documentID); err != nil {
		return nil, err
	}
	return &document, nil
}

// LinkedAttendanceIDs returns the attendance rows covered by a justification.
func (r *JustificationRepository) LinkedAttendanceIDs(ctx context.Context, justificationID string) ([]string, error) {
	const query = `SELECT attendance_id FROM asistencia_justificaciones WHERE justification_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, justificationID); err != nil {
		return nil, fmt.Errorf("linked attendance ids: %w", err)
	}
	return ids, nil
}

// FindType loads a justification type catalog row.
func (r *JustificationRepository) FindType(ctx context.Context, typeID string) (*models.JustificationType, error) {
	const query = `SELECT id, code, name, requires_document, max_days FROM tipo_justificaciones WHERE id = $1`
	var jtype models.JustificationType
	if err := r.db.GetContext(ctx, &jtype, query, typeID); err != nil {
		return nil, err
	}
	return &jtype, nil
}

// ListTypes returns the justification type catalog.
func (r *JustificationRepository) ListTypes(ctx context.Context) ([]models.JustificationType, error) {
	const query = `SELECT id, code, name, requires_document, max_days FROM tipo_justificaciones ORDER BY name`
	var types []models.JustificationType
	if err := r.db.SelectContext(ctx, &types, query); err != nil {
		return nil, fmt.Errorf("list justification types: %w", err)
	}
	return types, nil
}

// ExpireStale moves non-final justifications past their type's max_days
// window to VENCIDA in a single set-based statement, returning the ids it
// touched. Types with max_days <= 0 have no submission window and never
// expire.
func (r *JustificationRepository) ExpireStale(ctx context.Context, now time.Time) ([]string, error) {
	const query = `UPDATE justificaciones j SET status = $1, updated_at = $2
FROM tipo_justificaciones t
WHERE t.id = j.type_id
  AND t.max_days > 0
  AND j.status IN ($3, $4, $5)
  AND j.created_at + make_interval(days => t.max_days) < $2
RETURNING j.id`
	var ids []string
	err := r.db.SelectContext(ctx, &ids, query, models.JustificationExpired, now,
		models.JustificationPending, models.JustificationInReview, models.JustificationNeedsDocs)
	if err != nil {
		return nil, fmt.Errorf("expire justifications: %w", err)
	}
	return ids, nil
}
