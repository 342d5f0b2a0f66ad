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

// UserRepository handles persistence for users, their role assignments and
// refresh-token sessions.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// List returns users matching the provided filter plus the total count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.UserWithRoles, int, error) {
	base := `FROM usuarios u`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.SchoolID != "" {
		where = append(where, fmt.Sprintf("u.school_id = $%d", len(args)+1))
		args = append(args, filter.SchoolID)
	}
	if filter.Active != nil {
		where = append(where, fmt.Sprintf("u.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Role != nil {
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM usuario_roles ur JOIN roles ro ON ro.id = ur.role_id WHERE ur.user_id = u.id AND ro.codigo = $%d)",
			len(args)+1))
		args = append(args, string(*filter.Role))
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(u.full_name ILIKE $%d OR u.email ILIKE $%d OR u.dni ILIKE $%d)",
			len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT u.id, u.email, u.password_hash, u.full_name, u.dni, u.phone, u.school_id,
        u.active, u.last_login, u.created_at, u.updated_at
        %s WHERE %s ORDER BY u.full_name ASC LIMIT %d OFFSET %d`, base, whereClause, size, offset)

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	result := make([]models.UserWithRoles, 0, len(users))
	for _, user := range users {
		roles, err := r.rolesFor(ctx, user.ID)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, models.UserWithRoles{User: user, Roles: roles})
	}
	return result, total, nil
}

// FindByID loads a user with its role assignments.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.UserWithRoles, error) {
	const query = `SELECT id, email, password_hash, full_name, dni, phone, school_id, active, last_login, created_at, updated_at
FROM usuarios WHERE id = $1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	roles, err := r.rolesFor(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &models.UserWithRoles{User: user, Roles: roles}, nil
}

// FindByEmail loads a user by email with its role assignments.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.UserWithRoles, error) {
	const query = `SELECT id, email, password_hash, full_name, dni, phone, school_id, active, last_login, created_at, updated_at
FROM usuarios WHERE LOWER(email) = LOWER($1)`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, err
	}
	roles, err := r.rolesFor(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &models.UserWithRoles{User: user, Roles: roles}, nil
}

// Create inserts a user and its role assignments in one transaction.
func (r *UserRepository) Create(ctx context.Context, user *models.User, roles []models.UserRole) error {
	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create user tx: %w", err)
	}
	const insertUser = `INSERT INTO usuarios (id, email, password_hash, full_name, dni, phone, school_id, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := tx.ExecContext(ctx, insertUser, user.ID, user.Email, user.PasswordHash, user.FullName,
		user.DNI, user.Phone, user.SchoolID, user.Active, user.CreatedAt, user.UpdatedAt); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert user: %w", err)
	}
	if err := assignRoles(ctx, tx, user.ID, roles); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create user tx: %w", err)
	}
	return nil
}

// Update modifies mutable user attributes.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	const query = `UPDATE usuarios SET full_name = $2, phone = $3, active = $4, updated_at = $5 WHERE id = $1`
	user.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query, user.ID, user.FullName, user.Phone, user.Active, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Deactivate soft-deletes a user. Rows are never removed.
func (r *UserRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE usuarios SET active = false, updated_at = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ReplaceRoles swaps the full role assignment set atomically.
func (r *UserRepository) ReplaceRoles(ctx context.Context, userID string, roles []models.UserRole) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace roles tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM usuario_roles WHERE user_id = $1`, userID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear roles: %w", err)
	}
	if err := assignRoles(ctx, tx, userID, roles); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace roles tx: %w", err)
	}
	return nil
}

// UpdateLastLogin stamps the last successful login.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE usuarios SET last_login = $2 WHERE id = $1`, id, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE usuarios SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// CreateRefreshToken persists a refresh-token session.
func (r *UserRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked, ip_address, user_agent)
VALUES (:id, :user_id, :token, :expires_at, :created_at, :revoked, :ip_address, :user_agent)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken loads a stored refresh token by value.
func (r *UserRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent
FROM refresh_tokens WHERE token = $1`
	var stored models.RefreshToken
	if err := r.db.GetContext(ctx, &stored, query, token); err != nil {
		return nil, err
	}
	return &stored, nil
}

// RevokeRefreshToken marks one session as revoked.
func (r *UserRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = true, revoked_at = $2 WHERE id = $1`,
		id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens revokes every active session for a user.
func (r *UserRepository) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = true, revoked_at = $2 WHERE user_id = $1 AND revoked = false`,
		userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

func (r *UserRepository) rolesFor(ctx context.Context, userID string) ([]models.UserRole, error) {
	const query = `SELECT ro.codigo FROM usuario_roles ur JOIN roles ro ON ro.id = ur.role_id WHERE ur.user_id = $1 ORDER BY ro.codigo`
	var codes []string
	if err := r.db.SelectContext(ctx, &codes, query, userID); err != nil {
		return nil, fmt.Errorf("load user roles: %w", err)
	}
	roles := make([]models.UserRole, len(codes))
	for i, code := range codes {
		roles[i] = models.UserRole(code)
	}
	return roles, nil
}

func assignRoles(ctx context.Context, tx *sqlx.Tx, userID string, roles []models.UserRole) error {
	const query = `INSERT INTO usuario_roles (id, user_id, role_id)
SELECT $1, $2, ro.id FROM roles ro WHERE ro.codigo = $3
ON CONFLICT (user_id, role_id) DO NOTHING`
	for _, role := range roles {
		if _, err := tx.ExecContext(ctx, query, uuid.NewString(), userID, string(role)); err != nil {
			return fmt.Errorf("assign role %s: %w", role, err)
		}
	}
	return nil
}
