package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugestion/asistencia-api/internal/middleware"
	"github.com/edugestion/asistencia-api/internal/models"
	"github.com/edugestion/asistencia-api/internal/service"
)

type toleranceSettingsMock struct {
	settings *models.SchoolSettings
}

func (m *toleranceSettingsMock) Get(ctx context.Context, schoolID string) (*models.SchoolSettings, error) {
	if m.settings == nil {
		return nil, sql.ErrNoRows
	}
	return m.settings, nil
}

func (m *toleranceSettingsMock) Upsert(ctx context.Context, settings *models.SchoolSettings) error {
	m.settings = settings
	return nil
}

type toleranceScheduleMock struct{}

func (m *toleranceScheduleMock) FindByID(ctx context.Context, id string) (*models.ClassSchedule, error) {
	return nil, sql.ErrNoRows
}

func (m *toleranceScheduleMock) Update(ctx context.Context, schedule *models.ClassSchedule) error {
	return nil
}

func (m *toleranceScheduleMock) SetToleranceForSchool(ctx context.Context, schoolID string, minutes int) (int, error) {
	return 0, nil
}

func (m *toleranceScheduleMock) SetToleranceForIDs(ctx context.Context, ids []string, minutes int) (int, error) {
	return len(ids), nil
}

func newToleranceHandler() *ToleranceHandler {
	svc := service.NewToleranceService(&toleranceSettingsMock{}, &toleranceScheduleMock{}, nil, nil,
		service.AttendanceSettings{DefaultToleranceMin: 10, EntryWindowStart: "07:00", EntryWindowEnd: "08:00"})
	return NewToleranceHandler(svc)
}

func TestToleranceHandlerGet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newToleranceHandler()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/tolerancia", nil)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, SchoolID: "ie-1"})

	handler.Get(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.SchoolSettings `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, 10, envelope.Data.ToleranceMinutes)
}

func TestToleranceHandlerGetRequiresClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newToleranceHandler()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/tolerancia", nil)
	c.Request = req

	handler.Get(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestToleranceHandlerSetGlobalInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newToleranceHandler()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPut, "/tolerancia/global", bytes.NewReader([]byte(`invalid`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, SchoolID: "ie-1"})

	handler.SetGlobal(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestToleranceHandlerSetGlobalPersists(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newToleranceHandler()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(service.GlobalToleranceRequest{Minutes: 20})
	req, _ := http.NewRequest(http.MethodPut, "/tolerancia/global", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, SchoolID: "ie-1"})

	handler.SetGlobal(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.SchoolSettings `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, 20, envelope.Data.ToleranceMinutes)
}
