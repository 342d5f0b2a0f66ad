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

type attendanceRepository interface {
	FindByStudentDate(ctx context.Context, studentID string, date time.Time) (*models.Attendance, error)
	CreateEntry(ctx context.Context, record *models.Attendance) error
	UpdateEntry(ctx context.Context, id string, status models.AttendanceStatus, entryTime time.Time, registeredBy *string) error
	SetExit(ctx context.Context, id string, exitTime time.Time) error
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
	StudentSummary(ctx context.Context, studentID string, from, to *time.Time) (*models.AttendanceSummary, error)
}

type attendanceStudentRepository interface {
	FindByQRCode(ctx context.Context, qrCode string) (*models.StudentDetail, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type attendanceScheduleRepository interface {
	FirstBlockFor(ctx context.Context, classroomID string, dayOfWeek int) (*models.ClassSchedule, error)
}

type attendanceSettingsRepository interface {
	Get(ctx context.Context, schoolID string) (*models.SchoolSettings, error)
}

type attendanceCalendarRepository interface {
	FindForDate(ctx context.Context, schoolID string, date time.Time) (*models.CalendarEntry, error)
}

type summaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type attendanceNotifier interface {
	NotifyGuardians(studentID string, nType models.NotificationType, title, message string)
}

// RegisterEntryRequest captures a QR entry scan. The timestamp is optional;
// absent, the server clock is used.
type RegisterEntryRequest struct {
	QRCode string     `json:"qr_code" validate:"required"`
	At     *time.Time `json:"timestamp"`
}

// RegisterExitRequest captures a QR exit scan.
type RegisterExitRequest struct {
	QRCode string     `json:"qr_code" validate:"required"`
	At     *time.Time `json:"timestamp"`
}

// AttendanceSettings tunes the service defaults when the school has no
// configuration row.
type AttendanceSettings struct {
	DefaultToleranceMin int
	EntryWindowStart    string
	EntryWindowEnd      string
	SummaryCacheTTL     time.Duration
}

// AttendanceService runs the QR capture workflow: entry classification with
// tolerance windows, exit stamps, listings and cached summaries.
type AttendanceService struct {
	repo      attendanceRepository
	students  attendanceStudentRepository
	schedules attendanceScheduleRepository
	settings  attendanceSettingsRepository
	calendar  attendanceCalendarRepository
	cache     summaryCache
	notifier  attendanceNotifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	defaults  AttendanceSettings
	now       func() time.Time
}

// NewAttendanceService constructs an AttendanceService.
func NewAttendanceService(
	repo attendanceRepository,
	students attendanceStudentRepository,
	schedules attendanceScheduleRepository,
	settings attendanceSettingsRepository,
	calendar attendanceCalendarRepository,
	cache summaryCache,
	notifier attendanceNotifier,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	defaults AttendanceSettings,
) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if defaults.DefaultToleranceMin <= 0 {
		defaults.DefaultToleranceMin = 10
	}
	if defaults.EntryWindowStart == "" {
		defaults.EntryWindowStart = "07:00"
	}
	if defaults.EntryWindowEnd == "" {
		defaults.EntryWindowEnd = "08:00"
	}
	if defaults.SummaryCacheTTL <= 0 {
		defaults.SummaryCacheTTL = 5 * time.Minute
	}
	return &AttendanceService{
		repo:      repo,
		students:  students,
		schedules: schedules,
		settings:  settings,
		calendar:  calendar,
		cache:     cache,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		defaults:  defaults,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RegisterEntry records an entry scan. Scans at or before the cutoff
// (first block start plus tolerance) classify as PRESENTE, later scans as
// TARDANZA. The cutoff boundary itself is on time.
func (s *AttendanceService) RegisterEntry(ctx context.Context, req RegisterEntryRequest, registeredBy string) (*models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid entry payload")
	}

	at := s.now()
	if req.At != nil {
		at = req.At.UTC()
	}
	date := dateOnly(at)

	student, err := s.students.FindByQRCode(ctx, req.QRCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown qr code")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve qr code")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student account is inactive")
	}

	if err := s.ensureSchoolDay(ctx, student.SchoolID, date); err != nil {
		return nil, err
	}

	cutoff, err := s.entryCutoff(ctx, student, date)
	if err != nil {
		return nil, err
	}

	status := models.AttendancePresent
	if at.After(cutoff) {
		status = models.AttendanceLate
	}

	existing, err := s.repo.FindByStudentDate(ctx, student.ID, date)
	switch {
	case err == nil:
		if existing.EntryTime != nil {
			return nil, appErrors.Clone(appErrors.ErrConflict, "entry already registered for today")
		}
		// Row pre-created by the absence sweep; the late arrival overwrites it.
		if err := s.repo.UpdateEntry(ctx, existing.ID, status, at, &registeredBy); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update entry")
		}
		existing.Status = status
		existing.EntryTime = &at
		existing.RegisteredBy = &registeredBy
	case errors.Is(err, sql.ErrNoRows):
		existing = &models.Attendance{
			StudentID:    student.ID,
			SchoolID:     student.SchoolID,
			Date:         date,
			Status:       status,
			EntryTime:    &at,
			RegisteredBy: &registeredBy,
		}
		if err := s.repo.CreateEntry(ctx, existing); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrConflict, "entry already registered for today")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register entry")
		}
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}

	s.metrics.RecordRegistration(status)
	s.invalidateSummaries(ctx, student.ID)

	title := "Ingreso registrado"
	message := fmt.Sprintf("%s ingresó a las %s (%s)", student.FullName, at.Format("15:04"), status)
	s.notifier.NotifyGuardians(student.ID, models.NotificationEntry, title, message)

	s.logger.Info("entry registered",
		zap.String("student_id", student.ID),
		zap.String("status", string(status)),
		zap.Time("at", at))

	return existing, nil
}

// RegisterExit records an exit scan against today's existing row.
func (s *AttendanceService) RegisterExit(ctx context.Context, req RegisterExitRequest, registeredBy string) (*models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exit payload")
	}

	at := s.now()
	if req.At != nil {
		at = req.At.UTC()
	}
	date := dateOnly(at)

	student, err := s.students.FindByQRCode(ctx, req.QRCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown qr code")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve qr code")
	}

	record, err := s.repo.FindByStudentDate(ctx, student.ID, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no entry registered for today")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	if record.EntryTime == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no entry registered for today")
	}
	if record.ExitTime != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "exit already registered for today")
	}

	if err := s.repo.SetExit(ctx, record.ID, at); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register exit")
	}
	record.ExitTime = &at

	s.invalidateSummaries(ctx, student.ID)

	message := fmt.Sprintf("%s salió a las %s", student.FullName, at.Format("15:04"))
	s.notifier.NotifyGuardians(student.ID, models.NotificationExit, "Salida registrada", message)

	return record, nil
}

// List returns attendance rows for the filter.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, *models.Pagination, error) {
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	return rows, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Summary returns the per-status counts for a student, served from cache when
// warm. The boolean reports whether the cache answered.
func (s *AttendanceService) Summary(ctx context.Context, studentID string, from, to *time.Time) (*models.AttendanceSummary, bool, error) {
	key := summaryCacheKey(studentID, from, to)

	var cached models.AttendanceSummary
	start := s.now()
	err := s.cache.Get(ctx, key, &cached)
	if err == nil {
		s.metrics.RecordCacheOperation(true, time.Since(start))
		return &cached, true, nil
	}
	if !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("summary cache read failed", zap.Error(err))
	}
	s.metrics.RecordCacheOperation(false, time.Since(start))

	summary, err := s.repo.StudentSummary(ctx, studentID, from, to)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build summary")
	}

	writeStart := s.now()
	if err := s.cache.Set(ctx, key, summary, s.defaults.SummaryCacheTTL); err != nil {
		s.logger.Warn("summary cache write failed", zap.Error(err))
	}
	s.metrics.ObserveCacheWrite(time.Since(writeStart))

	return summary, false, nil
}

// entryCutoff computes the moment after which an entry is late: the first
// scheduled block start plus the effective tolerance. Without a schedule the
// school entry window end is the cutoff.
func (s *AttendanceService) entryCutoff(ctx context.Context, student *models.StudentDetail, date time.Time) (time.Time, error) {
	tolerance := s.defaults.DefaultToleranceMin
	windowEnd := s.defaults.EntryWindowEnd

	settings, err := s.settings.Get(ctx, student.SchoolID)
	if err == nil {
		tolerance = settings.ToleranceMinutes
		if settings.EntryWindowEnd != "" {
			windowEnd = settings.EntryWindowEnd
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school settings")
	}

	block, err := s.schedules.FirstBlockFor(ctx, student.ClassroomID, int(date.Weekday()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			cutoff, parseErr := atClock(date, windowEnd)
			if parseErr != nil {
				return time.Time{}, appErrors.Wrap(parseErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "bad entry window configuration")
			}
			return cutoff, nil
		}
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}

	if block.ToleranceMin != nil {
		tolerance = *block.ToleranceMin
	}

	start, err := atClock(date, block.StartTime)
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "bad schedule start time")
	}
	return start.Add(time.Duration(tolerance) * time.Minute), nil
}

// ensureSchoolDay rejects capture on holidays and vacation ranges.
func (s *AttendanceService) ensureSchoolDay(ctx context.Context, schoolID string, date time.Time) error {
	entry, err := s.calendar.FindForDate(ctx, schoolID, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check calendar")
	}
	if !entry.Type.SchoolDay() {
		return appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("no classes on %s (%s)", date.Format("2006-01-02"), entry.Type))
	}
	return nil
}

func (s *AttendanceService) invalidateSummaries(ctx context.Context, studentID string) {
	if err := s.cache.DeleteByPattern(ctx, "summary:"+studentID+":*"); err != nil {
		s.logger.Warn("failed to invalidate summary cache", zap.String("student_id", studentID), zap.Error(err))
	}
}

func summaryCacheKey(studentID string, from, to *time.Time) string {
	f, t := "-", "-"
	if from != nil {
		f = from.Format("2006-01-02")
	}
	if to != nil {
		t = to.Format("2006-01-02")
	}
	return fmt.Sprintf("summary:%s:%s:%s", studentID, f, t)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// atClock combines a date with an "HH:MM" clock string.
func atClock(date time.Time, clock string) (time.Time, error) {
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse clock %q: %w", clock, err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), parsed.Hour(), parsed.Minute(), 0, 0, time.UTC), nil
}
