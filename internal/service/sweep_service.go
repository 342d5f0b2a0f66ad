package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edugestion/asistencia-api/internal/models"
	appErrors "github.com/edugestion/asistencia-api/pkg/errors"
)

type sweepAttendanceRepository interface {
	MarkAbsentees(ctx context.Context, schoolID string, date time.Time) ([]string, error)
	SweepStats(ctx context.Context, schoolID string, date time.Time) (*models.SweepStats, error)
	SchoolIDs(ctx context.Context) ([]string, error)
}

type sweepJustificationRepository interface {
	ExpireStale(ctx context.Context, now time.Time) ([]string, error)
}

type sweepCalendarRepository interface {
	FindForDate(ctx context.Context, schoolID string, date time.Time) (*models.CalendarEntry, error)
}

type sweepNotifier interface {
	NotifyGuardians(studentID string, nType models.NotificationType, title, message string)
}

// SweepService marks unregistered students absent after the entry window
// closes and expires stale justifications. The endpoint is idempotent: the
// set-based insert only touches students without a row.
type SweepService struct {
	attendance     sweepAttendanceRepository
	justifications sweepJustificationRepository
	calendar       sweepCalendarRepository
	notifier       sweepNotifier
	metrics        *MetricsService
	logger         *zap.Logger
	now            func() time.Time
}

// NewSweepService constructs a SweepService.
func NewSweepService(
	attendance sweepAttendanceRepository,
	justifications sweepJustificationRepository,
	calendar sweepCalendarRepository,
	notifier sweepNotifier,
	metrics *MetricsService,
	logger *zap.Logger,
) *SweepService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepService{
		attendance:     attendance,
		justifications: justifications,
		calendar:       calendar,
		notifier:       notifier,
		metrics:        metrics,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps one school for the given date. Holidays and vacation days are
// skipped with a zero result rather than an error so schedulers can fire
// unconditionally.
func (s *SweepService) Run(ctx context.Context, schoolID string, date time.Time) (*models.SweepResult, error) {
	date = dateOnly(date)
	result := &models.SweepResult{SchoolID: schoolID, Date: date}

	entry, err := s.calendar.FindForDate(ctx, schoolID, date)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check calendar")
	}
	if err == nil && !entry.Type.SchoolDay() {
		s.logger.Info("sweep skipped, no classes",
			zap.String("school_id", schoolID),
			zap.String("day_type", string(entry.Type)),
			zap.Time("date", date))
		return result, nil
	}

	studentIDs, err := s.attendance.MarkAbsentees(ctx, schoolID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark absentees")
	}
	result.Marked = len(studentIDs)
	result.StudentIDs = studentIDs

	expired, err := s.justifications.ExpireStale(ctx, s.now())
	if err != nil {
		// Absences are already committed; report the partial failure but do
		// not roll anything back.
		s.logger.Error("failed to expire justifications", zap.Error(err))
	} else {
		result.Expired = len(expired)
	}

	s.metrics.RecordSweepMarked(result.Marked)

	message := fmt.Sprintf("Su estudiante no registró ingreso el %s", date.Format("02/01/2006"))
	for _, studentID := range studentIDs {
		s.notifier.NotifyGuardians(studentID, models.NotificationAbsence, "Inasistencia registrada", message)
	}

	s.logger.Info("absence sweep completed",
		zap.String("school_id", schoolID),
		zap.Time("date", date),
		zap.Int("marked", result.Marked),
		zap.Int("expired_justifications", result.Expired))

	return result, nil
}

// RunAll sweeps every school with active students.
func (s *SweepService) RunAll(ctx context.Context, date time.Time) ([]models.SweepResult, error) {
	schoolIDs, err := s.attendance.SchoolIDs(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schools")
	}
	results := make([]models.SweepResult, 0, len(schoolIDs))
	for _, schoolID := range schoolIDs {
		result, err := s.Run(ctx, schoolID, date)
		if err != nil {
			s.logger.Error("sweep failed for school", zap.String("school_id", schoolID), zap.Error(err))
			continue
		}
		results = append(results, *result)
	}
	return results, nil
}

// Stats reports the current day status for the sweep monitoring endpoint.
func (s *SweepService) Stats(ctx context.Context, schoolID string, date time.Time) (*models.SweepStats, error) {
	stats, err := s.attendance.SweepStats(ctx, schoolID, dateOnly(date))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sweep stats")
	}
	return stats, nil
}
