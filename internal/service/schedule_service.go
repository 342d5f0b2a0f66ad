package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edugestion/asistencia-api/internal/models"
	appErrors "github.com/edugestion/asistencia-api/pkg/errors"
)

type scheduleRepository interface {
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.ClassSchedule, error)
	FindByID(ctx context.Context, id string) (*models.ClassSchedule, error)
	Create(ctx context.Context, schedule *models.ClassSchedule) error
	Update(ctx context.Context, schedule *models.ClassSchedule) error
	Delete(ctx context.Context, id string) error
}

type calendarRepository interface {
	List(ctx context.Context, schoolID string, from, to *time.Time) ([]models.CalendarEntry, error)
	Create(ctx context.Context, entry *models.CalendarEntry) error
	Delete(ctx context.Context, id string) error
}

// UpsertScheduleRequest creates or updates a schedule block.
type UpsertScheduleRequest struct {
	ClassroomID  string  `json:"classroom_id" validate:"required"`
	DayOfWeek    int     `json:"day_of_week" validate:"min=1,max=6"`
	StartTime    string  `json:"start_time" validate:"required,datetime=15:04"`
	EndTime      string  `json:"end_time" validate:"required,datetime=15:04"`
	Subject      *string `json:"subject"`
	TeacherID    *string `json:"teacher_id"`
	ToleranceMin *int    `json:"tolerance_min" validate:"omitempty,min=0,max=60"`
}

// CreateCalendarRequest adds a calendar override range.
type CreateCalendarRequest struct {
	Type        models.CalendarDayType `json:"type" validate:"required,oneof=CLASES FERIADO VACACIONES EVENTO"`
	Description *string                `json:"description"`
	StartDate   string                 `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string                 `json:"end_date" validate:"required,datetime=2006-01-02"`
}

// ScheduleService manages class schedule blocks and the school calendar.
type ScheduleService struct {
	schedules scheduleRepository
	calendar  calendarRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduleService constructs a ScheduleService.
func NewScheduleService(schedules scheduleRepository, calendar calendarRepository, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ScheduleService{schedules: schedules, calendar: calendar, validator: validate, logger: logger}
}

// List returns schedule blocks for the filter.
func (s *ScheduleService) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ClassSchedule, error) {
	blocks, err := s.schedules.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	return blocks, nil
}

// Create adds a schedule block.
func (s *ScheduleService) Create(ctx context.Context, req UpsertScheduleRequest) (*models.ClassSchedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	if req.EndTime <= req.StartTime {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}

	schedule := &models.ClassSchedule{
		ClassroomID:  req.ClassroomID,
		DayOfWeek:    req.DayOfWeek,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		Subject:      req.Subject,
		TeacherID:    req.TeacherID,
		ToleranceMin: req.ToleranceMin,
	}
	if err := s.schedules.Create(ctx, schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule")
	}
	return schedule, nil
}

// Update modifies a schedule block.
func (s *ScheduleService) Update(ctx context.Context, id string, req UpsertScheduleRequest) (*models.ClassSchedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	if req.EndTime <= req.StartTime {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}

	schedule, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}

	schedule.DayOfWeek = req.DayOfWeek
	schedule.StartTime = req.StartTime
	schedule.EndTime = req.EndTime
	schedule.Subject = req.Subject
	schedule.TeacherID = req.TeacherID
	schedule.ToleranceMin = req.ToleranceMin

	if err := s.schedules.Update(ctx, schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule")
	}
	return schedule, nil
}

// Delete removes a schedule block.
func (s *ScheduleService) Delete(ctx context.Context, id string) error {
	if err := s.schedules.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete schedule")
	}
	return nil
}

// Calendar lists the calendar overrides of a school.
func (s *ScheduleService) Calendar(ctx context.Context, schoolID string, from, to *time.Time) ([]models.CalendarEntry, error) {
	entries, err := s.calendar.List(ctx, schoolID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list calendar")
	}
	return entries, nil
}

// AddCalendarEntry records a calendar override.
func (s *ScheduleService) AddCalendarEntry(ctx context.Context, schoolID string, req CreateCalendarRequest) (*models.CalendarEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid calendar payload")
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid start_date")
	}
	endDate, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid end_date")
	}
	if endDate.Before(startDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must not precede start_date")
	}

	entry := &models.CalendarEntry{
		SchoolID:    schoolID,
		Type:        req.Type,
		Description: req.Description,
		StartDate:   startDate,
		EndDate:     endDate,
	}
	if err := s.calendar.Create(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create calendar entry")
	}
	return entry, nil
}

// RemoveCalendarEntry deletes a calendar override.
func (s *ScheduleService) RemoveCalendarEntry(ctx context.Context, id string) error {
	if err := s.calendar.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "calendar entry not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete calendar entry")
	}
	return nil
}
