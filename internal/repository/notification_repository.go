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

// NotificationRepository persists in-app notification rows.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification row.
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	notification.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO notificaciones (id, user_id, type, title, message, read, created_at)
VALUES (:id, :user_id, :type, :title, :message, :read, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, notification); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// List returns a user's notifications, newest first.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	where := []string{"user_id = $1"}
	args := []interface{}{filter.UserID}
	if filter.Unread != nil {
		where = append(where, fmt.Sprintf("read = $%d", len(args)+1))
		args = append(args, !*filter.Unread)
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

	query := fmt.Sprintf(`SELECT id, user_id, type, title, message, read, created_at
FROM notificaciones WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, whereClause, size, offset)
	var rows []models.Notification
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM notificaciones WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return rows, total, nil
}

// CountUnread returns the badge count.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM notificaciones WHERE user_id = $1 AND read = false`, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead flags one notification, scoped to its owner.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notificaciones SET read = true WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkAllRead flags every unread notification of a user, returning how many
// rows changed.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notificaciones SET read = true WHERE user_id = $1 AND read = false`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	rows, _ := res.RowsAffected()
	return int(rows), nil
}

// Delete removes one notification, scoped to its owner.
func (r *NotificationRepository) Delete(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM notificaciones WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
