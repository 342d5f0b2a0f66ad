package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugestion/asistencia-api/internal/models"
)

type sweepAttendanceStub struct {
	marked    map[string][]string
	markCalls int
	schools   []string
}

func (s *sweepAttendanceStub) MarkAbsentees(ctx context.Context, schoolID string, date time.Time) ([]string, error) {
	s.markCalls++
	ids := s.marked[schoolID]
	// The set-based insert only touches missing rows, so a second run finds
	// nothing left to mark.
	s.marked[schoolID] = nil
	return ids, nil
}

func (s *sweepAttendanceStub) SweepStats(ctx context.Context, schoolID string, date time.Time) (*models.SweepStats, error) {
	return &models.SweepStats{SchoolID: schoolID, Date: date}, nil
}

func (s *sweepAttendanceStub) SchoolIDs(ctx context.Context) ([]string, error) {
	return s.schools, nil
}

type sweepJustificationStub struct {
	expired []string
	err     error
}

func (s *sweepJustificationStub) ExpireStale(ctx context.Context, now time.Time) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.expired, nil
}

func TestSweepMarksAbsenteesAndNotifies(t *testing.T) {
	attendance := &sweepAttendanceStub{marked: map[string][]string{"ie-1": {"st-1", "st-2"}}}
	notifier := &notifierStub{}
	svc := NewSweepService(attendance, &sweepJustificationStub{expired: []string{"j-1"}}, &calendarRepoStub{}, notifier, nil, nil)

	result, err := svc.Run(context.Background(), "ie-1", time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Marked)
	assert.Equal(t, 1, result.Expired)
	assert.Equal(t, []models.NotificationType{models.NotificationAbsence, models.NotificationAbsence}, notifier.guardianCalls)
}

func TestSweepIsIdempotent(t *testing.T) {
	attendance := &sweepAttendanceStub{marked: map[string][]string{"ie-1": {"st-1"}}}
	notifier := &notifierStub{}
	svc := NewSweepService(attendance, &sweepJustificationStub{}, &calendarRepoStub{}, notifier, nil, nil)

	date := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	first, err := svc.Run(context.Background(), "ie-1", date)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Marked)

	second, err := svc.Run(context.Background(), "ie-1", date)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Marked)
	assert.Len(t, notifier.guardianCalls, 1)
}

func TestSweepSkipsHolidays(t *testing.T) {
	attendance := &sweepAttendanceStub{marked: map[string][]string{"ie-1": {"st-1"}}}
	calendar := &calendarRepoStub{entry: &models.CalendarEntry{Type: models.CalendarVacation}}
	svc := NewSweepService(attendance, &sweepJustificationStub{}, calendar, &notifierStub{}, nil, nil)

	result, err := svc.Run(context.Background(), "ie-1", time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, result.Marked)
	assert.Zero(t, attendance.markCalls)
}

func TestSweepToleratesExpiryFailure(t *testing.T) {
	attendance := &sweepAttendanceStub{marked: map[string][]string{"ie-1": {"st-1"}}}
	justifications := &sweepJustificationStub{err: errors.New("boom")}
	svc := NewSweepService(attendance, justifications, &calendarRepoStub{}, &notifierStub{}, nil, nil)

	result, err := svc.Run(context.Background(), "ie-1", time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Marked)
	assert.Zero(t, result.Expired)
}

func TestSweepRunAllContinuesOnSchoolFailure(t *testing.T) {
	attendance := &sweepAttendanceStub{
		marked:  map[string][]string{"ie-1": {"st-1"}, "ie-2": {"st-2"}},
		schools: []string{"ie-1", "ie-2"},
	}
	svc := NewSweepService(attendance, &sweepJustificationStub{}, &calendarRepoStub{}, &notifierStub{}, nil, nil)

	results, err := svc.RunAll(context.Background(), time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSweepStatsPassThrough(t *testing.T) {
	attendance := &sweepAttendanceStub{marked: map[string][]string{}}
	svc := NewSweepService(attendance, &sweepJustificationStub{}, &calendarRepoStub{}, &notifierStub{}, nil, nil)

	stats, err := svc.Stats(context.Background(), "ie-1", time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "ie-1", stats.SchoolID)
}
