package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edugestion/asistencia-api/internal/models"
	appErrors "github.com/edugestion/asistencia-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	Create(ctx context.Context, student *models.Student) error
	UpdateClassroom(ctx context.Context, id, classroomID string) error
	RegenerateQR(ctx context.Context, id string) (string, error)
	ListClassrooms(ctx context.Context, schoolID string) ([]models.Classroom, error)
	FindClassroom(ctx context.Context, id string) (*models.Classroom, error)
}

type studentGuardianRepository interface {
	FindByUserID(ctx context.Context, userID string) (*models.Guardian, error)
	Create(ctx context.Context, guardian *models.Guardian) error
	ContactsForStudent(ctx context.Context, studentID string) ([]models.GuardianContact, error)
	Link(ctx context.Context, link *models.GuardianLink) error
	Unlink(ctx context.Context, studentID, guardianID string) error
	Students(ctx context.Context, guardianID string) ([]models.StudentDetail, error)
}

// EnrollStudentRequest creates the student row for an existing user.
type EnrollStudentRequest struct {
	UserID      string `json:"user_id" validate:"required"`
	ClassroomID string `json:"classroom_id" validate:"required"`
	Code        string `json:"code" validate:"required"`
}

// LinkGuardianRequest ties a guardian user to a student.
type LinkGuardianRequest struct {
	GuardianUserID string `json:"guardian_user_id" validate:"required"`
	Relation       string `json:"relation" validate:"required"`
	Titular        bool   `json:"titular"`
}

// StudentService handles student enrollment and guardian links.
type StudentService struct {
	students  studentRepository
	guardians studentGuardianRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs a StudentService.
func NewStudentService(students studentRepository, guardians studentGuardianRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &StudentService{students: students, guardians: guardians, validator: validate, logger: logger}
}

// List returns paginated students.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	students, total, err := s.students.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return students, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a student by ID.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Enroll creates the student row for an existing user. A fresh QR token is
// generated on insert.
func (s *StudentService) Enroll(ctx context.Context, req EnrollStudentRequest) (*models.StudentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enroll payload")
	}

	if _, err := s.students.FindClassroom(ctx, req.ClassroomID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "classroom not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom")
	}

	student := &models.Student{
		UserID:      req.UserID,
		ClassroomID: req.ClassroomID,
		Code:        req.Code,
	}
	if err := s.students.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll student")
	}

	s.logger.Info("student enrolled", zap.String("student_id", student.ID), zap.String("classroom_id", req.ClassroomID))
	return s.Get(ctx, student.ID)
}

// Transfer moves a student to another classroom.
func (s *StudentService) Transfer(ctx context.Context, studentID, classroomID string) error {
	if _, err := s.students.FindClassroom(ctx, classroomID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "classroom not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom")
	}
	if err := s.students.UpdateClassroom(ctx, studentID, classroomID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to transfer student")
	}
	return nil
}

// RegenerateQR rotates the student's QR token, invalidating printed cards.
func (s *StudentService) RegenerateQR(ctx context.Context, studentID string) (string, error) {
	qr, err := s.students.RegenerateQR(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to regenerate qr")
	}
	s.logger.Info("student qr regenerated", zap.String("student_id", studentID))
	return qr, nil
}

// Classrooms lists the grade/section catalog for a school.
func (s *StudentService) Classrooms(ctx context.Context, schoolID string) ([]models.Classroom, error) {
	rooms, err := s.students.ListClassrooms(ctx, schoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classrooms")
	}
	return rooms, nil
}

// Guardians returns the guardians linked to a student.
func (s *StudentService) Guardians(ctx context.Context, studentID string) ([]models.GuardianContact, error) {
	contacts, err := s.guardians.ContactsForStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list guardians")
	}
	return contacts, nil
}

// LinkGuardian ties a guardian user to a student, creating the guardian row
// on first use.
func (s *StudentService) LinkGuardian(ctx context.Context, studentID string, req LinkGuardianRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid link payload")
	}

	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	guardian, err := s.guardians.FindByUserID(ctx, req.GuardianUserID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load guardian")
		}
		guardian = &models.Guardian{UserID: req.GuardianUserID}
		if err := s.guardians.Create(ctx, guardian); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create guardian")
		}
	}

	link := &models.GuardianLink{
		StudentID:  studentID,
		GuardianID: guardian.ID,
		Relation:   req.Relation,
		Titular:    req.Titular,
	}
	if err := s.guardians.Link(ctx, link); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link guardian")
	}
	return nil
}

// UnlinkGuardian removes a guardian-student association.
func (s *StudentService) UnlinkGuardian(ctx context.Context, studentID, guardianID string) error {
	if err := s.guardians.Unlink(ctx, studentID, guardianID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "guardian link not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unlink guardian")
	}
	return nil
}

// StudentsOfGuardian lists students linked to the guardian behind a user
// account. Guardian users hit this for their home screen.
func (s *StudentService) StudentsOfGuardian(ctx context.Context, guardianUserID string) ([]models.StudentDetail, error) {
	guardian, err := s.guardians.FindByUserID(ctx, guardianUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []models.StudentDetail{}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load guardian")
	}
	students, err := s.guardians.Students(ctx, guardian.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list guardian students")
	}
	return students, nil
}
