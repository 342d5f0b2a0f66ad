package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edugestion/asistencia-api/internal/models"
	appErrors "github.com/edugestion/asistencia-api/pkg/errors"
	"github.com/edugestion/asistencia-api/pkg/storage"
)

type justificationRepository interface {
	Create(ctx context.Context, justification *models.Justification, attendanceIDs []string) error
	FindByID(ctx context.Context, id string) (*models.Justification, error)
	FindDetailByID(ctx context.Context, id string) (*models.JustificationDetail, error)
	List(ctx context.Context, filter models.JustificationFilter) ([]models.JustificationDetail, int, error)
	UpdateStatus(ctx context.Context, id string, status models.JustificationStatus, reviewedBy, notes *string) error
	ResetForResubmission(ctx context.Context, id string, reason string) error
	Delete(ctx context.Context, id string) error
	AddDocument(ctx context.Context, document *models.JustificationDocument) error
	ListDocuments(ctx context.Context, justificationID string) ([]models.JustificationDocument, error)
	FindDocument(ctx context.Context, documentID string) (*models.JustificationDocument, error)
	LinkedAttendanceIDs(ctx context.Context, justificationID string) ([]string, error)
	FindType(ctx context.Context, typeID string) (*models.JustificationType, error)
	ListTypes(ctx context.Context) ([]models.JustificationType, error)
}

type justificationAttendanceRepository interface {
	FindByStudentDate(ctx context.Context, studentID string, date time.Time) (*models.Attendance, error)
	UpdateStatus(ctx context.Context, id string, status models.AttendanceStatus, notes *string) error
}

type justificationNotifier interface {
	NotifyGuardians(studentID string, nType models.NotificationType, title, message string)
	NotifyUser(userID string, nType models.NotificationType, title, message string)
}

// CreateJustificationRequest opens a justification over one or more absence
// dates.
type CreateJustificationRequest struct {
	StudentID string   `json:"student_id" validate:"required"`
	TypeID    string   `json:"type_id" validate:"required"`
	Reason    string   `json:"reason" validate:"required,min=5"`
	Dates     []string `json:"dates" validate:"required,min=1,dive,datetime=2006-01-02"`
}

// ReviewJustificationRequest carries the reviewer's notes.
type ReviewJustificationRequest struct {
	Notes *string `json:"notes"`
}

// ResubmitJustificationRequest reopens a rejected justification.
type ResubmitJustificationRequest struct {
	Reason string `json:"reason" validate:"required,min=5"`
}

// DocumentUpload describes an incoming attachment.
type DocumentUpload struct {
	FileName  string
	MIMEType  string
	SizeBytes int64
	Content   io.Reader
}

// JustificationConfig bounds document uploads.
type JustificationConfig struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// JustificationService drives the absence-justification workflow: submission
// within the type's day window, document handling, review transitions and the
// RECHAZADA resubmission path.
type JustificationService struct {
	repo       justificationRepository
	attendance justificationAttendanceRepository
	documents  *storage.LocalStorage
	notifier   justificationNotifier
	validator  *validator.Validate
	logger     *zap.Logger
	config     JustificationConfig
	now        func() time.Time
}

// NewJustificationService constructs a JustificationService.
func NewJustificationService(
	repo justificationRepository,
	attendance justificationAttendanceRepository,
	documents *storage.LocalStorage,
	notifier justificationNotifier,
	validate *validator.Validate,
	logger *zap.Logger,
	config JustificationConfig,
) *JustificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.MaxFileSizeBytes <= 0 {
		config.MaxFileSizeBytes = 5 << 20
	}
	if len(config.AllowedMIMEs) == 0 {
		config.AllowedMIMEs = []string{"application/pdf", "image/jpeg", "image/png"}
	}
	return &JustificationService{
		repo:       repo,
		attendance: attendance,
		documents:  documents,
		notifier:   notifier,
		validator:  validate,
		logger:     logger,
		config:     config,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Create submits a justification. Every date must map to an INASISTENCIA or
// TARDANZA row, and the oldest date must fall inside the type's max_days
// window.
func (s *JustificationService) Create(ctx context.Context, req CreateJustificationRequest, claims *models.JWTClaims) (*models.JustificationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid justification payload")
	}

	jtype, err := s.repo.FindType(ctx, req.TypeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "justification type not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load justification type")
	}

	attendanceIDs := make([]string, 0, len(req.Dates))
	var schoolID string
	for _, raw := range req.Dates {
		date, parseErr := time.Parse("2006-01-02", raw)
		if parseErr != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date "+raw)
		}

		if jtype.MaxDays > 0 {
			deadline := date.AddDate(0, 0, jtype.MaxDays)
			if s.now().After(deadline) {
				return nil, appErrors.Clone(appErrors.ErrValidation,
					fmt.Sprintf("the %s window for %s closed on %s", jtype.Code, raw, deadline.Format("2006-01-02")))
			}
		}

		record, findErr := s.attendance.FindByStudentDate(ctx, req.StudentID, date)
		if findErr != nil {
			if errors.Is(findErr, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "no attendance row for "+raw)
			}
			return nil, appErrors.Wrap(findErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
		}
		if record.Status != models.AttendanceAbsent && record.Status != models.AttendanceLate {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("attendance on %s is %s, not justifiable", raw, record.Status))
		}
		attendanceIDs = append(attendanceIDs, record.ID)
		schoolID = record.SchoolID
	}

	justification := &models.Justification{
		StudentID:   req.StudentID,
		SchoolID:    schoolID,
		TypeID:      req.TypeID,
		Status:      models.JustificationPending,
		Reason:      req.Reason,
		SubmittedBy: claims.UserID,
	}
	if err := s.repo.Create(ctx, justification, attendanceIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create justification")
	}

	s.logger.Info("justification submitted",
		zap.String("justification_id", justification.ID),
		zap.String("student_id", req.StudentID),
		zap.Int("dates", len(req.Dates)))

	return s.Get(ctx, justification.ID)
}

// Get loads a justification with type, attendance links and documents.
func (s *JustificationService) Get(ctx context.Context, id string) (*models.JustificationDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "justification not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load justification")
	}
	return detail, nil
}

// List returns justifications for the filter.
func (s *JustificationService) List(ctx context.Context, filter models.JustificationFilter) ([]models.JustificationDetail, *models.Pagination, error) {
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list justifications")
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

// Types returns the justification type catalog.
func (s *JustificationService) Types(ctx context.Context) ([]models.JustificationType, error) {
	types, err := s.repo.ListTypes(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list justification types")
	}
	return types, nil
}

// AttachDocument stores an uploaded file and records it. Attachments are only
// accepted while the justification is still open.
func (s *JustificationService) AttachDocument(ctx context.Context, justificationID string, upload DocumentUpload, claims *models.JWTClaims) (*models.JustificationDocument, error) {
	justification, err := s.repo.FindByID(ctx, justificationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "justification not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load justification")
	}
	if justification.Status.Final() {
		return nil, appErrors.Clone(appErrors.ErrFinalState, "justification is closed")
	}

	if upload.SizeBytes > s.config.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("file exceeds %d bytes", s.config.MaxFileSizeBytes))
	}
	if !s.mimeAllowed(upload.MIMEType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file type not allowed")
	}

	storedName := filepath.Join(justificationID, uuid.NewString()+filepath.Ext(upload.FileName))
	if _, err := s.documents.SaveStream(storedName, upload.Content); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document")
	}

	document := &models.JustificationDocument{
		JustificationID: justificationID,
		FileName:        upload.FileName,
		StoredPath:      storedName,
		MIMEType:        upload.MIMEType,
		SizeBytes:       upload.SizeBytes,
		UploadedBy:      claims.UserID,
	}
	if err := s.repo.AddDocument(ctx, document); err != nil {
		_ = s.documents.Delete(storedName)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record document")
	}

	// A documentation request is satisfied once a file arrives.
	if justification.Status == models.JustificationNeedsDocs {
		if err := s.repo.UpdateStatus(ctx, justificationID, models.JustificationInReview, nil, nil); err != nil {
			s.logger.Warn("failed to move justification back to review", zap.Error(err))
		}
	}

	return document, nil
}

// OpenDocument returns a read handle for a stored attachment.
func (s *JustificationService) OpenDocument(ctx context.Context, documentID string) (*models.JustificationDocument, io.ReadCloser, error) {
	document, err := s.repo.FindDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	file, err := s.documents.Open(document.StoredPath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open document")
	}
	return document, file, nil
}

// Approve accepts the justification and flips every linked attendance row to
// JUSTIFICADA. Types flagged requiere_documento cannot be approved without at
// least one attachment.
func (s *JustificationService) Approve(ctx context.Context, id string, req ReviewJustificationRequest, claims *models.JWTClaims) (*models.JustificationDetail, error) {
	if err := s.checkDocumentRequirement(ctx, id); err != nil {
		return nil, err
	}

	detail, err := s.transition(ctx, id, models.JustificationApproved, claims, req.Notes)
	if err != nil {
		return nil, err
	}

	note := fmt.Sprintf("justificación %s aprobada", id)
	for _, attendanceID := range detail.AttendanceIDs {
		if err := s.attendance.UpdateStatus(ctx, attendanceID, models.AttendanceJustified, &note); err != nil {
			s.logger.Error("failed to mark attendance justified",
				zap.String("attendance_id", attendanceID), zap.Error(err))
		}
	}

	s.notifier.NotifyUser(detail.SubmittedBy, models.NotificationJustification,
		"Justificación aprobada",
		fmt.Sprintf("La justificación de %s fue aprobada", detail.StudentName))

	return detail, nil
}

// checkDocumentRequirement blocks approval while the justification type
// demands a supporting document and none has been attached.
func (s *JustificationService) checkDocumentRequirement(ctx context.Context, id string) error {
	justification, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "justification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load justification")
	}

	jtype, err := s.repo.FindType(ctx, justification.TypeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load justification type")
	}
	if !jtype.RequiresDocument {
		return nil
	}

	documents, err := s.repo.ListDocuments(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	if len(documents) == 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "justification type requires a supporting document")
	}
	return nil
}

// Reject denies the justification. The submitter may resubmit once corrected.
func (s *JustificationService) Reject(ctx context.Context, id string, req ReviewJustificationRequest, claims *models.JWTClaims) (*models.JustificationDetail, error) {
	detail, err := s.transition(ctx, id, models.JustificationRejected, claims, req.Notes)
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyUser(detail.SubmittedBy, models.NotificationJustification,
		"Justificación rechazada",
		fmt.Sprintf("La justificación de %s fue rechazada", detail.StudentName))
	return detail, nil
}

// RequestDocumentation asks the submitter for supporting files.
func (s *JustificationService) RequestDocumentation(ctx context.Context, id string, req ReviewJustificationRequest, claims *models.JWTClaims) (*models.JustificationDetail, error) {
	detail, err := s.transition(ctx, id, models.JustificationNeedsDocs, claims, req.Notes)
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyUser(detail.SubmittedBy, models.NotificationJustification,
		"Documentación requerida",
		fmt.Sprintf("La justificación de %s requiere documentación adicional", detail.StudentName))
	return detail, nil
}

// StartReview moves the justification to EN_REVISION.
func (s *JustificationService) StartReview(ctx context.Context, id string, claims *models.JWTClaims) (*models.JustificationDetail, error) {
	return s.transition(ctx, id, models.JustificationInReview, claims, nil)
}

// Resubmit reopens a rejected justification. Review fields are cleared so the
// new cycle carries no stale reviewer data. Only the original submitter may
// resubmit.
func (s *JustificationService) Resubmit(ctx context.Context, id string, req ResubmitJustificationRequest, claims *models.JWTClaims) (*models.JustificationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resubmit payload")
	}

	justification, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "justification not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load justification")
	}
	if justification.SubmittedBy != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the submitter may resubmit")
	}
	if !justification.Status.CanTransition(models.JustificationPending) {
		if justification.Status.Final() {
			return nil, appErrors.Clone(appErrors.ErrFinalState,
				fmt.Sprintf("cannot resubmit a %s justification", justification.Status))
		}
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition,
			fmt.Sprintf("cannot resubmit from %s", justification.Status))
	}

	if err := s.repo.ResetForResubmission(ctx, id, req.Reason); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resubmit justification")
	}

	s.logger.Info("justification resubmitted", zap.String("justification_id", id))
	return s.Get(ctx, id)
}

// Delete removes a justification that is still PENDIENTE, together with its
// stored documents. Only the submitter or administrative staff may delete.
func (s *JustificationService) Delete(ctx context.Context, id string, claims *models.JWTClaims) error {
	justification, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "justification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load justification")
	}
	if justification.Status != models.JustificationPending {
		return appErrors.Clone(appErrors.ErrConflict, "only pending justifications can be deleted")
	}
	if claims.Role != models.RoleAdmin && justification.SubmittedBy != claims.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the submitter or staff may delete")
	}

	documents, err := s.repo.ListDocuments(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete justification")
	}

	for _, document := range documents {
		if err := s.documents.Delete(document.StoredPath); err != nil {
			s.logger.Warn("failed to remove stored document", zap.String("path", document.StoredPath), zap.Error(err))
		}
	}
	return nil
}

// transition applies one FSM move after checking the transition table.
func (s *JustificationService) transition(ctx context.Context, id string, to models.JustificationStatus, claims *models.JWTClaims, notes *string) (*models.JustificationDetail, error) {
	justification, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "justification not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load justification")
	}

	if justification.Status.Final() {
		return nil, appErrors.Clone(appErrors.ErrFinalState,
			fmt.Sprintf("justification is already %s", justification.Status))
	}
	if !justification.Status.CanTransition(to) {
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition,
			fmt.Sprintf("cannot move from %s to %s", justification.Status, to))
	}

	if err := s.repo.UpdateStatus(ctx, id, to, &claims.UserID, notes); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update justification")
	}

	s.logger.Info("justification transitioned",
		zap.String("justification_id", id),
		zap.String("from", string(justification.Status)),
		zap.String("to", string(to)),
		zap.String("actor", claims.UserID))

	return s.Get(ctx, id)
}

func (s *JustificationService) mimeAllowed(mime string) bool {
	for _, allowed := range s.config.AllowedMIMEs {
		if mime == allowed {
			return true
		}
	}
	return false
}
