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

type toleranceSettingsRepository interface {
	Get(ctx context.Context, schoolID string) (*models.SchoolSettings, error)
	Upsert(ctx context.Context, settings *models.SchoolSettings) error
}

type toleranceScheduleRepository interface {
	FindByID(ctx context.Context, id string) (*models.ClassSchedule, error)
	Update(ctx context.Context, schedule *models.ClassSchedule) error
	SetToleranceForSchool(ctx context.Context, schoolID string, minutes int) (int, error)
	SetToleranceForIDs(ctx context.Context, ids []string, minutes int) (int, error)
}

// GlobalToleranceRequest sets the school-wide grace period.
type GlobalToleranceRequest struct {
	Minutes          int     `json:"minutes" validate:"min=0,max=60"`
	EntryWindowStart *string `json:"entry_window_start" validate:"omitempty,datetime=15:04"`
	EntryWindowEnd   *string `json:"entry_window_end" validate:"omitempty,datetime=15:04"`
	Propagate        bool    `json:"propagate"`
}

// BlockToleranceRequest overrides one schedule block.
type BlockToleranceRequest struct {
	Minutes int `json:"minutes" validate:"min=0,max=60"`
}

// SelectedToleranceRequest overrides a chosen set of schedule blocks.
type SelectedToleranceRequest struct {
	ScheduleIDs []string `json:"schedule_ids" validate:"required,min=1"`
	Minutes     int      `json:"minutes" validate:"min=0,max=60"`
}

// ToleranceService manages the tolerance configuration at its three levels:
// school-wide default, per-block override and targeted bulk override. Minutes
// are bounded to 0-60.
type ToleranceService struct {
	settings  toleranceSettingsRepository
	schedules toleranceScheduleRepository
	validator *validator.Validate
	logger    *zap.Logger
	defaults  AttendanceSettings
}

// NewToleranceService constructs a ToleranceService.
func NewToleranceService(settings toleranceSettingsRepository, schedules toleranceScheduleRepository, validate *validator.Validate, logger *zap.Logger, defaults AttendanceSettings) *ToleranceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ToleranceService{settings: settings, schedules: schedules, validator: validate, logger: logger, defaults: defaults}
}

// Get returns the school settings, synthesizing defaults when no row exists.
func (s *ToleranceService) Get(ctx context.Context, schoolID string) (*models.SchoolSettings, error) {
	settings, err := s.settings.Get(ctx, schoolID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.SchoolSettings{
				SchoolID:         schoolID,
				ToleranceMinutes: s.defaults.DefaultToleranceMin,
				EntryWindowStart: s.defaults.EntryWindowStart,
				EntryWindowEnd:   s.defaults.EntryWindowEnd,
			}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load settings")
	}
	return settings, nil
}

// SetGlobal updates the school-wide tolerance and, when Propagate is set,
// rewrites every schedule block override too.
func (s *ToleranceService) SetGlobal(ctx context.Context, schoolID string, req GlobalToleranceRequest, actorID string) (*models.SchoolSettings, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid tolerance payload")
	}

	settings, err := s.Get(ctx, schoolID)
	if err != nil {
		return nil, err
	}
	settings.ToleranceMinutes = req.Minutes
	if req.EntryWindowStart != nil {
		settings.EntryWindowStart = *req.EntryWindowStart
	}
	if req.EntryWindowEnd != nil {
		settings.EntryWindowEnd = *req.EntryWindowEnd
	}
	settings.UpdatedBy = &actorID

	if err := s.settings.Upsert(ctx, settings); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save settings")
	}

	if req.Propagate {
		updated, err := s.schedules.SetToleranceForSchool(ctx, schoolID, req.Minutes)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to propagate tolerance")
		}
		s.logger.Info("tolerance propagated to schedule blocks",
			zap.String("school_id", schoolID), zap.Int("blocks", updated))
	}

	s.logger.Info("school tolerance updated",
		zap.String("school_id", schoolID),
		zap.Int("minutes", req.Minutes),
		zap.String("actor", actorID))

	return settings, nil
}

// SetForBlock overrides tolerance on one schedule block.
func (s *ToleranceService) SetForBlock(ctx context.Context, scheduleID string, req BlockToleranceRequest) (*models.ClassSchedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid tolerance payload")
	}

	schedule, err := s.schedules.FindByID(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule block not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}

	minutes := req.Minutes
	schedule.ToleranceMin = &minutes
	if err := s.schedules.Update(ctx, schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule")
	}
	return schedule, nil
}

// SetForSelected overrides tolerance on a chosen set of blocks, returning how
// many rows changed.
func (s *ToleranceService) SetForSelected(ctx context.Context, req SelectedToleranceRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid tolerance payload")
	}
	updated, err := s.schedules.SetToleranceForIDs(ctx, req.ScheduleIDs, req.Minutes)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update blocks")
	}
	if updated < len(req.ScheduleIDs) {
		s.logger.Warn("some schedule blocks were not found",
			zap.Int("requested", len(req.ScheduleIDs)), zap.Int("updated", updated))
	}
	return updated, nil
}
