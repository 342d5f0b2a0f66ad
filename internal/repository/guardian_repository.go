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

// GuardianRepository handles guardians and their links to students.
type GuardianRepository struct {
	db *sqlx.DB
}

// NewGuardianRepository constructs the repository.
func NewGuardianRepository(db *sqlx.DB) *GuardianRepository {
	return &GuardianRepository{db: db}
}

// FindByUserID resolves the guardian row for an authenticated user.
func (r *GuardianRepository) FindByUserID(ctx context.Context, userID string) (*models.Guardian, error) {
	const query = `SELECT id, user_id, created_at FROM apoderados WHERE user_id = $1`
	var guardian models.Guardian
	if err := r.db.GetContext(ctx, &guardian, query, userID); err != nil {
		return nil, err
	}
	return &guardian, nil
}

// Create inserts a guardian row for an existing user.
func (r *GuardianRepository) Create(ctx context.Context, guardian *models.Guardian) error {
	if guardian.ID == "" {
		guardian.ID = uuid.NewString()
	}
	guardian.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO apoderados (id, user_id, created_at) VALUES (:id, :user_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, guardian); err != nil {
		return fmt.Errorf("insert guardian: %w", err)
	}
	return nil
}

// ContactsForStudent returns every guardian linked to the student, with user
// contact data for notification fan-out.
func (r *GuardianRepository) ContactsForStudent(ctx context.Context, studentID string) ([]models.GuardianContact, error) {
	const query = `SELECT ea.guardian_id, u.id AS user_id, u.full_name, u.email, u.phone, ea.relation, ea.titular
FROM estudiante_apoderados ea
JOIN apoderados a ON a.id = ea.guardian_id
JOIN usuarios u ON u.id = a.user_id
WHERE ea.student_id = $1 AND u.active = true
ORDER BY ea.titular DESC, u.full_name`
	var contacts []models.GuardianContact
	if err := r.db.SelectContext(ctx, &contacts, query, studentID); err != nil {
		return nil, fmt.Errorf("guardian contacts: %w", err)
	}
	return contacts, nil
}

// Link ties a guardian to a student. Setting titular demotes any previous
// titular link in the same transaction.
func (r *GuardianRepository) Link(ctx context.Context, link *models.GuardianLink) error {
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	link.CreatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin link guardian tx: %w", err)
	}
	if link.Titular {
		if _, err := tx.ExecContext(ctx,
			`UPDATE estudiante_apoderados SET titular = false WHERE student_id = $1 AND titular = true`,
			link.StudentID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("demote titular: %w", err)
		}
	}
	const insert = `INSERT INTO estudiante_apoderados (id, student_id, guardian_id, relation, titular, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (student_id, guardian_id)
DO UPDATE SET relation = EXCLUDED.relation, titular = EXCLUDED.titular`
	if _, err := tx.ExecContext(ctx, insert, link.ID, link.StudentID, link.GuardianID,
		link.Relation, link.Titular, link.CreatedAt); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("link guardian: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit link guardian tx: %w", err)
	}
	return nil
}

// Unlink removes the guardian-student association.
func (r *GuardianRepository) Unlink(ctx context.Context, studentID, guardianID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM estudiante_apoderados WHERE student_id = $1 AND guardian_id = $2`,
		studentID, guardianID)
	if err != nil {
		return fmt.Errorf("unlink guardian: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// LinkFor returns the link row between a guardian and a student, if any.
func (r *GuardianRepository) LinkFor(ctx context.Context, studentID, guardianID string) (*models.GuardianLink, error) {
	const query = `SELECT id, student_id, guardian_id, relation, titular, created_at
FROM estudiante_apoderados WHERE student_id = $1 AND guardian_id = $2`
	var link models.GuardianLink
	if err := r.db.GetContext(ctx, &link, query, studentID, guardianID); err != nil {
		return nil, err
	}
	return &link, nil
}

// Students lists the students linked to a guardian.
func (r *GuardianRepository) Students(ctx context.Context, guardianID string) ([]models.StudentDetail, error) {
	query := fmt.Sprintf(`SELECT %s %s
JOIN estudiante_apoderados ea ON ea.student_id = e.id
WHERE ea.guardian_id = $1 ORDER BY u.full_name`, studentDetailColumns, studentDetailJoins)
	var rows []models.StudentDetail
	if err := r.db.SelectContext(ctx, &rows, query, guardianID); err != nil {
		return nil, fmt.Errorf("guardian students: %w", err)
	}
	return rows, nil
}
