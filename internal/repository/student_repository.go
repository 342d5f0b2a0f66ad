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

// StudentRepository handles persistence for students and classrooms.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentDetailColumns = `e.id, e.user_id, e.classroom_id, e.qr_code, e.code, e.created_at, e.updated_at,
        u.full_name, u.dni, u.school_id, u.active,
        gs.grade AS classroom_grade, (gs.grade || ' ' || gs.section) AS classroom_label`

const studentDetailJoins = `FROM estudiantes e
JOIN usuarios u ON u.id = e.user_id
LEFT JOIN grado_secciones gs ON gs.id = e.classroom_id`

// List returns students matching the filter plus the total count.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.SchoolID != "" {
		where = append(where, fmt.Sprintf("u.school_id = $%d", len(args)+1))
		args = append(args, filter.SchoolID)
	}
	if filter.ClassroomID != "" {
		where = append(where, fmt.Sprintf("e.classroom_id = $%d", len(args)+1))
		args = append(args, filter.ClassroomID)
	}
	if filter.Active != nil {
		where = append(where, fmt.Sprintf("u.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(u.full_name ILIKE $%d OR u.dni ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s WHERE %s ORDER BY u.full_name ASC LIMIT %d OFFSET %d`,
		studentDetailColumns, studentDetailJoins, whereClause, size, offset)
	var rows []models.StudentDetail
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", studentDetailJoins, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return rows, total, nil
}

// FindByID loads a student with user and classroom metadata.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE e.id = $1`, studentDetailColumns, studentDetailJoins)
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindByQRCode resolves the attendance token scanned at the gate.
func (r *StudentRepository) FindByQRCode(ctx context.Context, qrCode string) (*models.StudentDetail, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE e.qr_code = $1`, studentDetailColumns, studentDetailJoins)
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, qrCode); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create inserts a student row. The backing user must already exist.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	now := time.Now().UTC()
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	if student.QRCode == "" {
		student.QRCode = uuid.NewString()
	}
	student.CreatedAt = now
	student.UpdatedAt = now
	const query = `INSERT INTO estudiantes (id, user_id, classroom_id, qr_code, code, created_at, updated_at)
VALUES (:id, :user_id, :classroom_id, :qr_code, :code, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("insert student: %w", err)
	}
	return nil
}

// UpdateClassroom moves the student to another classroom. One classroom at a
// time per student is guaranteed by the single column.
func (r *StudentRepository) UpdateClassroom(ctx context.Context, id, classroomID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE estudiantes SET classroom_id = $2, updated_at = $3 WHERE id = $1`,
		id, classroomID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update student classroom: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RegenerateQR rotates the attendance token and returns the new value.
func (r *StudentRepository) RegenerateQR(ctx context.Context, id string) (string, error) {
	qr := uuid.NewString()
	res, err := r.db.ExecContext(ctx,
		`UPDATE estudiantes SET qr_code = $2, updated_at = $3 WHERE id = $1`,
		id, qr, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("regenerate qr: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return "", sql.ErrNoRows
	}
	return qr, nil
}

// ListClassrooms returns the classroom catalog for a school.
func (r *StudentRepository) ListClassrooms(ctx context.Context, schoolID string) ([]models.Classroom, error) {
	const query = `SELECT id, school_id, level, grade, section, created_at
FROM grado_secciones WHERE school_id = $1 ORDER BY level, grade, section`
	var rooms []models.Classroom
	if err := r.db.SelectContext(ctx, &rooms, query, schoolID); err != nil {
		return nil, fmt.Errorf("list classrooms: %w", err)
	}
	return rooms, nil
}

// FindClassroom loads a single classroom.
func (r *StudentRepository) FindClassroom(ctx context.Context, id string) (*models.Classroom, error) {
	const query = `SELECT id, school_id, level, grade, section, created_at FROM grado_secciones WHERE id = $1`
	var room models.Classroom
	if err := r.db.GetContext(ctx, &room, query, id); err != nil {
		return nil, err
	}
	return &room, nil
}
