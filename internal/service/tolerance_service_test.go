package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugestion/asistencia-api/internal/models"
	appErrors "github.com/edugestion/asistencia-api/pkg/errors"
)

type toleranceSettingsStub struct {
	settings *models.SchoolSettings
	upserts  int
}

func (s *toleranceSettingsStub) Get(ctx context.Context, schoolID string) (*models.SchoolSettings, error) {
	if s.settings == nil {
		return nil, sql.ErrNoRows
	}
	copied := *s.settings
	return &copied, nil
}

func (s *toleranceSettingsStub) Upsert(ctx context.Context, settings *models.SchoolSettings) error {
	copied := *settings
	s.settings = &copied
	s.upserts++
	return nil
}

type toleranceScheduleStub struct {
	schedules       map[string]*models.ClassSchedule
	schoolUpdates   []int
	selectedUpdates int
}

func (s *toleranceScheduleStub) FindByID(ctx context.Context, id string) (*models.ClassSchedule, error) {
	if schedule, ok := s.schedules[id]; ok {
		copied := *schedule
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *toleranceScheduleStub) Update(ctx context.Context, schedule *models.ClassSchedule) error {
	copied := *schedule
	s.schedules[schedule.ID] = &copied
	return nil
}

func (s *toleranceScheduleStub) SetToleranceForSchool(ctx context.Context, schoolID string, minutes int) (int, error) {
	s.schoolUpdates = append(s.schoolUpdates, minutes)
	for _, schedule := range s.schedules {
		value := minutes
		schedule.ToleranceMin = &value
	}
	return len(s.schedules), nil
}

func (s *toleranceScheduleStub) SetToleranceForIDs(ctx context.Context, ids []string, minutes int) (int, error) {
	updated := 0
	for _, id := range ids {
		if schedule, ok := s.schedules[id]; ok {
			value := minutes
			schedule.ToleranceMin = &value
			updated++
		}
	}
	s.selectedUpdates = updated
	return updated, nil
}

func toleranceFixture(settings *toleranceSettingsStub, schedules *toleranceScheduleStub) *ToleranceService {
	defaults := AttendanceSettings{DefaultToleranceMin: 10, EntryWindowStart: "07:00", EntryWindowEnd: "08:00"}
	return NewToleranceService(settings, schedules, nil, nil, defaults)
}

func TestToleranceGetSynthesizesDefaults(t *testing.T) {
	svc := toleranceFixture(&toleranceSettingsStub{}, &toleranceScheduleStub{})

	settings, err := svc.Get(context.Background(), "ie-1")
	require.NoError(t, err)
	assert.Equal(t, 10, settings.ToleranceMinutes)
	assert.Equal(t, "07:00", settings.EntryWindowStart)
	assert.Equal(t, "08:00", settings.EntryWindowEnd)
}

func TestToleranceSetGlobal(t *testing.T) {
	settings := &toleranceSettingsStub{}
	svc := toleranceFixture(settings, &toleranceScheduleStub{})

	start := "07:30"
	updated, err := svc.SetGlobal(context.Background(), "ie-1", GlobalToleranceRequest{Minutes: 15, EntryWindowStart: &start}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 15, updated.ToleranceMinutes)
	assert.Equal(t, "07:30", updated.EntryWindowStart)
	require.NotNil(t, updated.UpdatedBy)
	assert.Equal(t, "admin-1", *updated.UpdatedBy)
	assert.Equal(t, 1, settings.upserts)
}

func TestToleranceSetGlobalPropagates(t *testing.T) {
	minutes := 5
	schedules := &toleranceScheduleStub{schedules: map[string]*models.ClassSchedule{
		"hor-1": {ID: "hor-1", ToleranceMin: &minutes},
		"hor-2": {ID: "hor-2"},
	}}
	svc := toleranceFixture(&toleranceSettingsStub{}, schedules)

	_, err := svc.SetGlobal(context.Background(), "ie-1", GlobalToleranceRequest{Minutes: 20, Propagate: true}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, []int{20}, schedules.schoolUpdates)
	assert.Equal(t, 20, *schedules.schedules["hor-1"].ToleranceMin)
	assert.Equal(t, 20, *schedules.schedules["hor-2"].ToleranceMin)
}

func TestToleranceRejectsOutOfBounds(t *testing.T) {
	svc := toleranceFixture(&toleranceSettingsStub{}, &toleranceScheduleStub{})

	_, err := svc.SetGlobal(context.Background(), "ie-1", GlobalToleranceRequest{Minutes: 61}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.SetForBlock(context.Background(), "hor-1", BlockToleranceRequest{Minutes: -1})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestToleranceSetForBlock(t *testing.T) {
	schedules := &toleranceScheduleStub{schedules: map[string]*models.ClassSchedule{
		"hor-1": {ID: "hor-1", ClassroomID: "aula-1", DayOfWeek: 1, StartTime: "08:00", EndTime: "09:00"},
	}}
	svc := toleranceFixture(&toleranceSettingsStub{}, schedules)

	schedule, err := svc.SetForBlock(context.Background(), "hor-1", BlockToleranceRequest{Minutes: 25})
	require.NoError(t, err)
	require.NotNil(t, schedule.ToleranceMin)
	assert.Equal(t, 25, *schedule.ToleranceMin)

	_, err = svc.SetForBlock(context.Background(), "hor-missing", BlockToleranceRequest{Minutes: 25})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestToleranceSetForSelectedReportsPartial(t *testing.T) {
	schedules := &toleranceScheduleStub{schedules: map[string]*models.ClassSchedule{
		"hor-1": {ID: "hor-1"},
	}}
	svc := toleranceFixture(&toleranceSettingsStub{}, schedules)

	updated, err := svc.SetForSelected(context.Background(), SelectedToleranceRequest{ScheduleIDs: []string{"hor-1", "hor-missing"}, Minutes: 12})
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
}
