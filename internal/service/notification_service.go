package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edugestion/asistencia-api/internal/models"
	appErrors "github.com/edugestion/asistencia-api/pkg/errors"
	"github.com/edugestion/asistencia-api/pkg/jobs"
)

type notificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, id, userID string) error
}

type notificationGuardianRepository interface {
	ContactsForStudent(ctx context.Context, studentID string) ([]models.GuardianContact, error)
}

// notificationPayload is the job body carried through the queue. Exactly one
// of StudentID (guardian fan-out) or TargetUserID (direct) is set.
type notificationPayload struct {
	StudentID    string
	TargetUserID string
	Type         models.NotificationType
	Title        string
	Message      string
}

// NotificationService fans notifications out to guardians through the
// background queue and serves the badge/poll endpoints. Delivery is best
// effort: a failed fan-out retries in the queue and is eventually dropped.
type NotificationService struct {
	repo      notificationRepository
	guardians notificationGuardianRepository
	queue     *jobs.Queue
	logger    *zap.Logger
}

// NewNotificationService constructs a NotificationService. Call Start before
// dispatching.
func NewNotificationService(repo notificationRepository, guardians notificationGuardianRepository, logger *zap.Logger, cfg jobs.QueueConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{repo: repo, guardians: guardians, logger: logger}
	cfg.Logger = logger
	s.queue = jobs.NewQueue("notifications", s.process, cfg)
	return s
}

// Start launches the queue workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the queue workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// NotifyGuardians enqueues a fan-out to every guardian of the student.
func (s *NotificationService) NotifyGuardians(studentID string, nType models.NotificationType, title, message string) {
	err := s.queue.Enqueue(jobs.Job{
		ID:   uuid.NewString(),
		Type: string(nType),
		Payload: notificationPayload{
			StudentID: studentID,
			Type:      nType,
			Title:     title,
			Message:   message,
		},
	})
	if err != nil {
		s.logger.Warn("failed to enqueue notification", zap.String("student_id", studentID), zap.Error(err))
	}
}

// NotifyUser enqueues a direct notification for one user.
func (s *NotificationService) NotifyUser(userID string, nType models.NotificationType, title, message string) {
	err := s.queue.Enqueue(jobs.Job{
		ID:   uuid.NewString(),
		Type: string(nType),
		Payload: notificationPayload{
			TargetUserID: userID,
			Type:         nType,
			Title:        title,
			Message:      message,
		},
	})
	if err == nil {
		return
	}
	// Queue down; write synchronously so the row is not lost.
	if createErr := s.repo.Create(context.Background(), &models.Notification{
		UserID:  userID,
		Type:    nType,
		Title:   title,
		Message: message,
	}); createErr != nil {
		s.logger.Warn("failed to persist direct notification", zap.String("user_id", userID), zap.Error(createErr))
	}
}

func (s *NotificationService) process(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(notificationPayload)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}

	if payload.TargetUserID != "" {
		return s.deliver(ctx, payload.TargetUserID, payload.Type, payload.Title, payload.Message)
	}

	contacts, err := s.guardians.ContactsForStudent(ctx, payload.StudentID)
	if err != nil {
		return fmt.Errorf("load guardian contacts: %w", err)
	}
	for _, contact := range contacts {
		if err := s.deliver(ctx, contact.UserID, payload.Type, payload.Title, payload.Message); err != nil {
			return err
		}
	}
	return nil
}

func (s *NotificationService) deliver(ctx context.Context, userID string, nType models.NotificationType, title, message string) error {
	notification := &models.Notification{
		UserID:  userID,
		Type:    nType,
		Title:   title,
		Message: message,
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}
	// Console channel. SMS/email delivery hangs off this log line until a
	// provider is wired.
	s.logger.Info("notification delivered",
		zap.String("user_id", userID),
		zap.String("type", string(nType)),
		zap.String("title", title),
		zap.String("message", message),
		zap.Time("at", time.Now().UTC()))
	return nil
}

// List returns the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return rows, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// CountUnread returns the badge count.
func (s *NotificationService) CountUnread(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	return count, nil
}

// MarkRead flags one notification as read.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification")
	}
	return nil
}

// MarkAllRead flags every unread notification of the user.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications")
	}
	return count, nil
}

// Delete removes one notification.
func (s *NotificationService) Delete(ctx context.Context, id, userID string) error {
	if err := s.repo.Delete(ctx, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete notification")
	}
	return nil
}
