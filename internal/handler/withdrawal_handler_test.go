package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugestion/asistencia-api/internal/middleware"
	"github.com/edugestion/asistencia-api/internal/models"
	"github.com/edugestion/asistencia-api/internal/service"
)

type withdrawalRepoMock struct {
	row *models.Withdrawal
}

func (m *withdrawalRepoMock) Create(ctx context.Context, withdrawal *models.Withdrawal) error {
	withdrawal.ID = "ret-1"
	m.row = withdrawal
	return nil
}

func (m *withdrawalRepoMock) FindByID(ctx context.Context, id string) (*models.Withdrawal, error) {
	if m.row == nil || m.row.ID != id {
		return nil, sql.ErrNoRows
	}
	copied := *m.row
	return &copied, nil
}

func (m *withdrawalRepoMock) FindDetailByID(ctx context.Context, id string) (*models.WithdrawalDetail, error) {
	row, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.WithdrawalDetail{Withdrawal: *row, StudentName: "Ana Torres"}, nil
}

func (m *withdrawalRepoMock) List(ctx context.Context, filter models.WithdrawalFilter) ([]models.WithdrawalDetail, int, error) {
	return nil, 0, nil
}

func (m *withdrawalRepoMock) ExistsActiveForDate(ctx context.Context, studentID string, date time.Time) (bool, error) {
	return false, nil
}

func (m *withdrawalRepoMock) UpdateStatus(ctx context.Context, id string, status models.WithdrawalStatus, reviewedBy, notes *string) error {
	if m.row == nil || m.row.ID != id {
		return sql.ErrNoRows
	}
	m.row.Status = status
	m.row.ReviewedBy = reviewedBy
	return nil
}

type withdrawalGuardianMock struct{}

func (m *withdrawalGuardianMock) FindByUserID(ctx context.Context, userID string) (*models.Guardian, error) {
	return &models.Guardian{ID: "g-1", UserID: userID}, nil
}

func (m *withdrawalGuardianMock) LinkFor(ctx context.Context, studentID, guardianID string) (*models.GuardianLink, error) {
	return &models.GuardianLink{StudentID: studentID, GuardianID: guardianID, Titular: true}, nil
}

type withdrawalAttendanceMock struct{}

func (m *withdrawalAttendanceMock) FindByStudentDate(ctx context.Context, studentID string, date time.Time) (*models.Attendance, error) {
	return nil, sql.ErrNoRows
}

func (m *withdrawalAttendanceMock) UpdateStatus(ctx context.Context, id string, status models.AttendanceStatus, notes *string) error {
	return nil
}

type withdrawalStudentMock struct{}

func (m *withdrawalStudentMock) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	return nil, sql.ErrNoRows
}

type withdrawalNotifierMock struct{}

func (m *withdrawalNotifierMock) NotifyGuardians(studentID string, nType models.NotificationType, title, message string) {
}

// withdrawalRouter mirrors the production registration: transitions mount as
// PUT, creation as POST.
func withdrawalRouter(repo *withdrawalRepoMock, claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := service.NewWithdrawalService(repo, &withdrawalGuardianMock{}, &withdrawalAttendanceMock{},
		&withdrawalStudentMock{}, &withdrawalNotifierMock{}, nil, nil)
	h := NewWithdrawalHandler(svc)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, claims)
	})
	router.PUT("/retiros/:id/revisar", h.Review)
	router.PUT("/retiros/:id/aprobar", h.Approve)
	router.PUT("/retiros/:id/rechazar", h.Reject)
	return router
}

func TestWithdrawalApproveMountedAsPut(t *testing.T) {
	repo := &withdrawalRepoMock{row: &models.Withdrawal{
		ID:        "ret-1",
		StudentID: "st-1",
		SchoolID:  "ie-1",
		Status:    models.WithdrawalRequested,
	}}
	claims := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, SchoolID: "ie-1"}
	router := withdrawalRouter(repo, claims)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPut, "/retiros/ret-1/aprobar", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.WithdrawalApproved, repo.row.Status)

	var envelope struct {
		Data models.WithdrawalDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, models.WithdrawalApproved, envelope.Data.Status)
}

func TestWithdrawalApproveRejectsPostMethod(t *testing.T) {
	repo := &withdrawalRepoMock{row: &models.Withdrawal{
		ID:        "ret-1",
		StudentID: "st-1",
		SchoolID:  "ie-1",
		Status:    models.WithdrawalRequested,
	}}
	claims := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, SchoolID: "ie-1"}
	router := withdrawalRouter(repo, claims)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/retiros/ret-1/aprobar", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, models.WithdrawalRequested, repo.row.Status)
}
