package models

import "time"

// NotificationType classifies notification rows for client rendering.
type NotificationType string

const (
	NotificationEntry         NotificationType = "ENTRADA"
	NotificationExit          NotificationType = "SALIDA"
	NotificationAbsence       NotificationType = "INASISTENCIA"
	NotificationWithdrawal    NotificationType = "RETIRO"
	NotificationJustification NotificationType = "JUSTIFICACION"
)

// Notification is a row consumable by the badge/poll endpoint. Delivery is
// best effort; there is no idempotency key, so a retried handler may produce
// duplicates.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Type      NotificationType `db:"type" json:"type"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	Read      bool             `db:"read" json:"read"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// NotificationFilter scopes notification listings.
type NotificationFilter struct {
	UserID   string
	Unread   *bool
	Page     int
	PageSize int
}
