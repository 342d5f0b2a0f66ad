package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugestion/asistencia-api/internal/models"
	appErrors "github.com/edugestion/asistencia-api/pkg/errors"
)

type attendanceRepoStub struct {
	rows    map[string]*models.Attendance
	created []*models.Attendance
	updated []models.AttendanceStatus
	exits   []time.Time
}

func attendanceKey(studentID string, date time.Time) string {
	return studentID + "|" + date.Format("2006-01-02")
}

func (s *attendanceRepoStub) FindByStudentDate(ctx context.Context, studentID string, date time.Time) (*models.Attendance, error) {
	if row, ok := s.rows[attendanceKey(studentID, date)]; ok {
		copied := *row
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *attendanceRepoStub) CreateEntry(ctx context.Context, record *models.Attendance) error {
	if s.rows == nil {
		s.rows = make(map[string]*models.Attendance)
	}
	key := attendanceKey(record.StudentID, record.Date)
	if _, ok := s.rows[key]; ok {
		return sql.ErrNoRows
	}
	record.ID = "att-" + record.StudentID
	s.rows[key] = record
	s.created = append(s.created, record)
	return nil
}

func (s *attendanceRepoStub) UpdateEntry(ctx context.Context, id string, status models.AttendanceStatus, entryTime time.Time, registeredBy *string) error {
	for _, row := range s.rows {
		if row.ID == id {
			row.Status = status
			row.EntryTime = &entryTime
			row.RegisteredBy = registeredBy
			s.updated = append(s.updated, status)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *attendanceRepoStub) SetExit(ctx context.Context, id string, exitTime time.Time) error {
	for _, row := range s.rows {
		if row.ID == id {
			row.ExitTime = &exitTime
			s.exits = append(s.exits, exitTime)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *attendanceRepoStub) UpdateStatus(ctx context.Context, id string, status models.AttendanceStatus, notes *string) error {
	for _, row := range s.rows {
		if row.ID == id {
			row.Status = status
			row.Notes = notes
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *attendanceRepoStub) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	return nil, 0, nil
}

func (s *attendanceRepoStub) StudentSummary(ctx context.Context, studentID string, from, to *time.Time) (*models.AttendanceSummary, error) {
	return &models.AttendanceSummary{StudentID: studentID}, nil
}

type studentRepoStub struct {
	students map[string]*models.StudentDetail
}

func (s *studentRepoStub) FindByQRCode(ctx context.Context, qrCode string) (*models.StudentDetail, error) {
	if student, ok := s.students[qrCode]; ok {
		return student, nil
	}
	return nil, sql.ErrNoRows
}

func (s *studentRepoStub) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	for _, student := range s.students {
		if student.ID == id {
			return student, nil
		}
	}
	return nil, sql.ErrNoRows
}

type scheduleRepoStub struct {
	block *models.ClassSchedule
}

func (s *scheduleRepoStub) FirstBlockFor(ctx context.Context, classroomID string, dayOfWeek int) (*models.ClassSchedule, error) {
	if s.block == nil {
		return nil, sql.ErrNoRows
	}
	return s.block, nil
}

type settingsRepoStub struct {
	settings *models.SchoolSettings
}

func (s *settingsRepoStub) Get(ctx context.Context, schoolID string) (*models.SchoolSettings, error) {
	if s.settings == nil {
		return nil, sql.ErrNoRows
	}
	return s.settings, nil
}

type calendarRepoStub struct {
	entry *models.CalendarEntry
}

func (s *calendarRepoStub) FindForDate(ctx context.Context, schoolID string, date time.Time) (*models.CalendarEntry, error) {
	if s.entry == nil {
		return nil, sql.ErrNoRows
	}
	return s.entry, nil
}

// cacheStub behaves like a real cache only when store is non-nil; the zero
// value misses on every read so most fixtures exercise the repository path.
type cacheStub struct {
	store map[string][]byte
}

func (s *cacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (s *cacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if s.store == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = raw
	return nil
}

func (s *cacheStub) DeleteByPattern(ctx context.Context, pattern string) error {
	return nil
}

type notifierStub struct {
	guardianCalls []models.NotificationType
	userCalls     []models.NotificationType
}

func (s *notifierStub) NotifyGuardians(studentID string, nType models.NotificationType, title, message string) {
	s.guardianCalls = append(s.guardianCalls, nType)
}

func (s *notifierStub) NotifyUser(userID string, nType models.NotificationType, title, message string) {
	s.userCalls = append(s.userCalls, nType)
}

func testStudent() *models.StudentDetail {
	return &models.StudentDetail{
		Student: models.Student{
			ID:          "st-1",
			ClassroomID: "aula-1",
			QRCode:      "QR-1",
		},
		FullName: "Ana Torres",
		SchoolID: "ie-1",
		Active:   true,
	}
}

func newAttendanceFixture(repo *attendanceRepoStub, schedules *scheduleRepoStub, calendar *calendarRepoStub, notifier *notifierStub) *AttendanceService {
	students := &studentRepoStub{students: map[string]*models.StudentDetail{"QR-1": testStudent()}}
	return NewAttendanceService(repo, students, schedules, &settingsRepoStub{}, calendar,
		&cacheStub{}, notifier, nil, nil, nil, AttendanceSettings{})
}

func scanAt(hour, minute int) *time.Time {
	at := time.Date(2026, 3, 16, hour, minute, 0, 0, time.UTC) // a Monday
	return &at
}

func TestRegisterEntryOnTimeAtExactCutoff(t *testing.T) {
	repo := &attendanceRepoStub{}
	schedules := &scheduleRepoStub{block: &models.ClassSchedule{StartTime: "08:00"}}
	notifier := &notifierStub{}
	svc := newAttendanceFixture(repo, schedules, &calendarRepoStub{}, notifier)

	// Default tolerance is 10 minutes, so 08:10 is the boundary and still on time.
	record, err := svc.RegisterEntry(context.Background(), RegisterEntryRequest{QRCode: "QR-1", At: scanAt(8, 10)}, "aux-1")
	require.NoError(t, err)
	assert.Equal(t, models.AttendancePresent, record.Status)
	assert.Equal(t, []models.NotificationType{models.NotificationEntry}, notifier.guardianCalls)
}

func TestRegisterEntryLateAfterCutoff(t *testing.T) {
	repo := &attendanceRepoStub{}
	schedules := &scheduleRepoStub{block: &models.ClassSchedule{StartTime: "08:00"}}
	svc := newAttendanceFixture(repo, schedules, &calendarRepoStub{}, &notifierStub{})

	record, err := svc.RegisterEntry(context.Background(), RegisterEntryRequest{QRCode: "QR-1", At: scanAt(8, 11)}, "aux-1")
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceLate, record.Status)
}

func TestRegisterEntryBlockToleranceOverride(t *testing.T) {
	tolerance := 30
	repo := &attendanceRepoStub{}
	schedules := &scheduleRepoStub{block: &models.ClassSchedule{StartTime: "08:00", ToleranceMin: &tolerance}}
	svc := newAttendanceFixture(repo, schedules, &calendarRepoStub{}, &notifierStub{})

	record, err := svc.RegisterEntry(context.Background(), RegisterEntryRequest{QRCode: "QR-1", At: scanAt(8, 25)}, "aux-1")
	require.NoError(t, err)
	assert.Equal(t, models.AttendancePresent, record.Status)
}

func TestRegisterEntryWithoutScheduleUsesEntryWindow(t *testing.T) {
	repo := &attendanceRepoStub{}
	svc := newAttendanceFixture(repo, &scheduleRepoStub{}, &calendarRepoStub{}, &notifierStub{})

	// Default entry window ends at 08:00.
	record, err := svc.RegisterEntry(context.Background(), RegisterEntryRequest{QRCode: "QR-1", At: scanAt(8, 30)}, "aux-1")
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceLate, record.Status)
}

func TestRegisterEntryDuplicateConflict(t *testing.T) {
	repo := &attendanceRepoStub{}
	schedules := &scheduleRepoStub{block: &models.ClassSchedule{StartTime: "08:00"}}
	svc := newAttendanceFixture(repo, schedules, &calendarRepoStub{}, &notifierStub{})

	_, err := svc.RegisterEntry(context.Background(), RegisterEntryRequest{QRCode: "QR-1", At: scanAt(7, 50)}, "aux-1")
	require.NoError(t, err)

	_, err = svc.RegisterEntry(context.Background(), RegisterEntryRequest{QRCode: "QR-1", At: scanAt(7, 55)}, "aux-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRegisterEntryOverwritesSweepAbsence(t *testing.T) {
	date := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	repo := &attendanceRepoStub{rows: map[string]*models.Attendance{
		attendanceKey("st-1", date): {ID: "att-1", StudentID: "st-1", Date: date, Status: models.AttendanceAbsent},
	}}
	schedules := &scheduleRepoStub{block: &models.ClassSchedule{StartTime: "08:00"}}
	svc := newAttendanceFixture(repo, schedules, &calendarRepoStub{}, &notifierStub{})

	record, err := svc.RegisterEntry(context.Background(), RegisterEntryRequest{QRCode: "QR-1", At: scanAt(9, 0)}, "aux-1")
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceLate, record.Status)
	assert.Equal(t, "att-1", record.ID)
	require.NotNil(t, record.EntryTime)
}

func TestRegisterEntryRejectedOnHoliday(t *testing.T) {
	repo := &attendanceRepoStub{}
	calendar := &calendarRepoStub{entry: &models.CalendarEntry{Type: models.CalendarHoliday}}
	svc := newAttendanceFixture(repo, &scheduleRepoStub{}, calendar, &notifierStub{})

	_, err := svc.RegisterEntry(context.Background(), RegisterEntryRequest{QRCode: "QR-1", At: scanAt(8, 0)}, "aux-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.created)
}

func TestRegisterEntryInactiveStudent(t *testing.T) {
	student := testStudent()
	student.Active = false
	students := &studentRepoStub{students: map[string]*models.StudentDetail{"QR-1": student}}
	svc := NewAttendanceService(&attendanceRepoStub{}, students, &scheduleRepoStub{}, &settingsRepoStub{},
		&calendarRepoStub{}, &cacheStub{}, &notifierStub{}, nil, nil, nil, AttendanceSettings{})

	_, err := svc.RegisterEntry(context.Background(), RegisterEntryRequest{QRCode: "QR-1", At: scanAt(8, 0)}, "aux-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestRegisterEntryUnknownQR(t *testing.T) {
	svc := newAttendanceFixture(&attendanceRepoStub{}, &scheduleRepoStub{}, &calendarRepoStub{}, &notifierStub{})

	_, err := svc.RegisterEntry(context.Background(), RegisterEntryRequest{QRCode: "nope", At: scanAt(8, 0)}, "aux-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRegisterExitWithoutEntry(t *testing.T) {
	svc := newAttendanceFixture(&attendanceRepoStub{}, &scheduleRepoStub{}, &calendarRepoStub{}, &notifierStub{})

	_, err := svc.RegisterExit(context.Background(), RegisterExitRequest{QRCode: "QR-1", At: scanAt(13, 0)}, "aux-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestRegisterExitHappyPathAndDuplicate(t *testing.T) {
	repo := &attendanceRepoStub{}
	schedules := &scheduleRepoStub{block: &models.ClassSchedule{StartTime: "08:00"}}
	notifier := &notifierStub{}
	svc := newAttendanceFixture(repo, schedules, &calendarRepoStub{}, notifier)

	_, err := svc.RegisterEntry(context.Background(), RegisterEntryRequest{QRCode: "QR-1", At: scanAt(7, 50)}, "aux-1")
	require.NoError(t, err)

	record, err := svc.RegisterExit(context.Background(), RegisterExitRequest{QRCode: "QR-1", At: scanAt(13, 30)}, "aux-1")
	require.NoError(t, err)
	require.NotNil(t, record.ExitTime)
	assert.Equal(t, models.NotificationExit, notifier.guardianCalls[len(notifier.guardianCalls)-1])

	_, err = svc.RegisterExit(context.Background(), RegisterExitRequest{QRCode: "QR-1", At: scanAt(13, 45)}, "aux-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSummaryFallsBackToRepositoryOnCacheMiss(t *testing.T) {
	svc := newAttendanceFixture(&attendanceRepoStub{}, &scheduleRepoStub{}, &calendarRepoStub{}, &notifierStub{})

	summary, hit, err := svc.Summary(context.Background(), "st-1", nil, nil)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "st-1", summary.StudentID)
}

func TestSummaryReportsCacheHitOnWarmCache(t *testing.T) {
	students := &studentRepoStub{students: map[string]*models.StudentDetail{"QR-1": testStudent()}}
	cache := &cacheStub{store: map[string][]byte{}}
	svc := NewAttendanceService(&attendanceRepoStub{}, students, &scheduleRepoStub{}, &settingsRepoStub{},
		&calendarRepoStub{}, cache, &notifierStub{}, nil, nil, nil, AttendanceSettings{})

	first, hit, err := svc.Summary(context.Background(), "st-1", nil, nil)
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := svc.Summary(context.Background(), "st-1", nil, nil)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first.StudentID, second.StudentID)
}

func TestRegisterRequestsDecodeTimestampKey(t *testing.T) {
	var entry RegisterEntryRequest
	require.NoError(t, json.Unmarshal([]byte(`{"qr_code":"QR-1","timestamp":"2026-03-16T08:05:00Z"}`), &entry))
	require.NotNil(t, entry.At)
	assert.Equal(t, time.Date(2026, 3, 16, 8, 5, 0, 0, time.UTC), entry.At.UTC())

	var exit RegisterExitRequest
	require.NoError(t, json.Unmarshal([]byte(`{"qr_code":"QR-1","timestamp":"2026-03-16T13:30:00Z"}`), &exit))
	require.NotNil(t, exit.At)
	assert.Equal(t, time.Date(2026, 3, 16, 13, 30, 0, 0, time.UTC), exit.At.UTC())
}
