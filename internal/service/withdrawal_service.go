package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edugestion/asistencia-api/internal/models"
	appErrors "github.com/edugestion/asistencia-api/pkg/errors"
)

type withdrawalRepository interface {
	Create(ctx context.Context, withdrawal *models.Withdrawal) error
	FindByID(ctx context.Context, id string) (*models.Withdrawal, error)
	FindDetailByID(ctx context.Context, id string) (*models.WithdrawalDetail, error)
	List(ctx context.Context, filter models.WithdrawalFilter) ([]models.WithdrawalDetail, int, error)
	ExistsActiveForDate(ctx context.Context, studentID string, date time.Time) (bool, error)
	UpdateStatus(ctx context.Context, id string, status models.WithdrawalStatus, reviewedBy, notes *string) error
}

type withdrawalGuardianRepository interface {
	FindByUserID(ctx context.Context, userID string) (*models.Guardian, error)
	LinkFor(ctx context.Context, studentID, guardianID string) (*models.GuardianLink, error)
}

type withdrawalAttendanceRepository interface {
	FindByStudentDate(ctx context.Context, studentID string, date time.Time) (*models.Attendance, error)
	UpdateStatus(ctx context.Context, id string, status models.AttendanceStatus, notes *string) error
}

type withdrawalStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type withdrawalNotifier interface {
	NotifyGuardians(studentID string, nType models.NotificationType, title, message string)
}

// CreateWithdrawalRequest opens a withdrawal request.
type CreateWithdrawalRequest struct {
	StudentID    string  `json:"student_id" validate:"required"`
	Date         string  `json:"date" validate:"required,datetime=2006-01-02"`
	Type         string  `json:"type" validate:"required,oneof=MEDICO FAMILIAR PERSONAL OTRO"`
	Reason       string  `json:"reason" validate:"required,min=5"`
	PickupPerson *string `json:"pickup_person"`
}

// ReviewWithdrawalRequest carries the reviewer's comment.
type ReviewWithdrawalRequest struct {
	Notes *string `json:"notes"`
}

// WithdrawalService drives the retiro workflow. Every transition goes through
// the status transition table; requests in a terminal state reject any
// further move.
type WithdrawalService struct {
	repo       withdrawalRepository
	guardians  withdrawalGuardianRepository
	attendance withdrawalAttendanceRepository
	students   withdrawalStudentRepository
	notifier   withdrawalNotifier
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewWithdrawalService constructs a WithdrawalService.
func NewWithdrawalService(
	repo withdrawalRepository,
	guardians withdrawalGuardianRepository,
	attendance withdrawalAttendanceRepository,
	students withdrawalStudentRepository,
	notifier withdrawalNotifier,
	validate *validator.Validate,
	logger *zap.Logger,
) *WithdrawalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &WithdrawalService{
		repo:       repo,
		guardians:  guardians,
		attendance: attendance,
		students:   students,
		notifier:   notifier,
		validator:  validate,
		logger:     logger,
	}
}

// Create opens a withdrawal request. One active request per student per date.
func (s *WithdrawalService) Create(ctx context.Context, req CreateWithdrawalRequest, claims *models.JWTClaims) (*models.WithdrawalDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid withdrawal payload")
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	// Guardians may only open requests for their own linked students.
	if claims.Role == models.RoleGuardian {
		if _, err := s.guardianLink(ctx, claims.UserID, req.StudentID); err != nil {
			return nil, err
		}
	}

	active, err := s.repo.ExistsActiveForDate(ctx, req.StudentID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing withdrawals")
	}
	if active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "an active withdrawal already exists for this date")
	}

	withdrawal := &models.Withdrawal{
		StudentID:    req.StudentID,
		SchoolID:     student.SchoolID,
		Date:         date,
		Type:         req.Type,
		Reason:       req.Reason,
		Status:       models.WithdrawalRequested,
		RequestedBy:  claims.UserID,
		PickupPerson: req.PickupPerson,
	}
	if err := s.repo.Create(ctx, withdrawal); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create withdrawal")
	}

	s.logger.Info("withdrawal requested",
		zap.String("withdrawal_id", withdrawal.ID),
		zap.String("student_id", req.StudentID),
		zap.String("requested_by", claims.UserID))

	return s.Get(ctx, withdrawal.ID)
}

// Get loads a withdrawal with student metadata.
func (s *WithdrawalService) Get(ctx context.Context, id string) (*models.WithdrawalDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "withdrawal not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load withdrawal")
	}
	return detail, nil
}

// List returns withdrawals for the filter.
func (s *WithdrawalService) List(ctx context.Context, filter models.WithdrawalFilter) ([]models.WithdrawalDetail, *models.Pagination, error) {
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list withdrawals")
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

// Review moves the request to EN_REVISION.
func (s *WithdrawalService) Review(ctx context.Context, id string, claims *models.JWTClaims) (*models.WithdrawalDetail, error) {
	return s.transition(ctx, id, models.WithdrawalInReview, claims, nil, false)
}

// Approve authorizes the withdrawal. Only the titular guardian of the
// student may approve or reject.
func (s *WithdrawalService) Approve(ctx context.Context, id string, req ReviewWithdrawalRequest, claims *models.JWTClaims) (*models.WithdrawalDetail, error) {
	return s.transition(ctx, id, models.WithdrawalApproved, claims, req.Notes, true)
}

// Reject denies the withdrawal. Titular guardian only.
func (s *WithdrawalService) Reject(ctx context.Context, id string, req ReviewWithdrawalRequest, claims *models.JWTClaims) (*models.WithdrawalDetail, error) {
	return s.transition(ctx, id, models.WithdrawalRejected, claims, req.Notes, true)
}

// Start marks the student as being picked up (EN_PROCESO).
func (s *WithdrawalService) Start(ctx context.Context, id string, claims *models.JWTClaims) (*models.WithdrawalDetail, error) {
	return s.transition(ctx, id, models.WithdrawalInProgress, claims, nil, false)
}

// Complete closes the withdrawal and flips the day's attendance row to
// RETIRADO.
func (s *WithdrawalService) Complete(ctx context.Context, id string, claims *models.JWTClaims) (*models.WithdrawalDetail, error) {
	detail, err := s.transition(ctx, id, models.WithdrawalCompleted, claims, nil, false)
	if err != nil {
		return nil, err
	}

	record, err := s.attendance.FindByStudentDate(ctx, detail.StudentID, detail.Date)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("failed to load attendance for completed withdrawal", zap.Error(err))
		}
		return detail, nil
	}
	note := fmt.Sprintf("retiro %s completado", detail.ID)
	if err := s.attendance.UpdateStatus(ctx, record.ID, models.AttendanceWithdrawn, &note); err != nil {
		s.logger.Error("failed to mark attendance as withdrawn",
			zap.String("withdrawal_id", detail.ID), zap.Error(err))
	}

	message := fmt.Sprintf("El retiro de %s del %s fue completado", detail.StudentName, detail.Date.Format("02/01/2006"))
	s.notifier.NotifyGuardians(detail.StudentID, models.NotificationWithdrawal, "Retiro completado", message)

	return detail, nil
}

// Cancel aborts a request that has not started pickup. Only the requester or
// administrative staff may cancel.
func (s *WithdrawalService) Cancel(ctx context.Context, id string, claims *models.JWTClaims) (*models.WithdrawalDetail, error) {
	withdrawal, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "withdrawal not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load withdrawal")
	}
	if claims.Role != models.RoleAdmin && claims.Role != models.RoleAuxiliary && withdrawal.RequestedBy != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the requester or staff may cancel")
	}
	return s.transition(ctx, id, models.WithdrawalCancelled, claims, nil, false)
}

// transition applies one FSM move after checking the transition table and,
// when titularOnly, the titular guardian rule.
func (s *WithdrawalService) transition(ctx context.Context, id string, to models.WithdrawalStatus, claims *models.JWTClaims, notes *string, titularOnly bool) (*models.WithdrawalDetail, error) {
	withdrawal, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "withdrawal not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load withdrawal")
	}

	if withdrawal.Status.Final() {
		return nil, appErrors.Clone(appErrors.ErrFinalState,
			fmt.Sprintf("withdrawal is already %s", withdrawal.Status))
	}
	if !withdrawal.Status.CanTransition(to) {
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition,
			fmt.Sprintf("cannot move from %s to %s", withdrawal.Status, to))
	}

	if titularOnly && claims.Role == models.RoleGuardian {
		link, err := s.guardianLink(ctx, claims.UserID, withdrawal.StudentID)
		if err != nil {
			return nil, err
		}
		if !link.Titular {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only the titular guardian may decide withdrawals")
		}
	}

	reviewedBy := &claims.UserID
	if to == models.WithdrawalInProgress || to == models.WithdrawalCompleted || to == models.WithdrawalCancelled {
		reviewedBy = nil
	}

	if err := s.repo.UpdateStatus(ctx, id, to, reviewedBy, notes); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update withdrawal")
	}

	s.logger.Info("withdrawal transitioned",
		zap.String("withdrawal_id", id),
		zap.String("from", string(withdrawal.Status)),
		zap.String("to", string(to)),
		zap.String("actor", claims.UserID))

	return s.Get(ctx, id)
}

func (s *WithdrawalService) guardianLink(ctx context.Context, userID, studentID string) (*models.GuardianLink, error) {
	guardian, err := s.guardians.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not a guardian of this student")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load guardian")
	}
	link, err := s.guardians.LinkFor(ctx, studentID, guardian.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not a guardian of this student")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load guardian link")
	}
	return link, nil
}
