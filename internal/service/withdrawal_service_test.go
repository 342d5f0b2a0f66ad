package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugestion/asistencia-api/internal/models"
	appErrors "github.com/edugestion/asistencia-api/pkg/errors"
)

type withdrawalRepoStub struct {
	rows   map[string]*models.Withdrawal
	active bool
}

func (s *withdrawalRepoStub) Create(ctx context.Context, withdrawal *models.Withdrawal) error {
	if s.rows == nil {
		s.rows = make(map[string]*models.Withdrawal)
	}
	withdrawal.ID = "ret-1"
	s.rows[withdrawal.ID] = withdrawal
	return nil
}

func (s *withdrawalRepoStub) FindByID(ctx context.Context, id string) (*models.Withdrawal, error) {
	if row, ok := s.rows[id]; ok {
		copied := *row
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *withdrawalRepoStub) FindDetailByID(ctx context.Context, id string) (*models.WithdrawalDetail, error) {
	row, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.WithdrawalDetail{Withdrawal: *row, StudentName: "Ana Torres", StudentDNI: "12345678"}, nil
}

func (s *withdrawalRepoStub) List(ctx context.Context, filter models.WithdrawalFilter) ([]models.WithdrawalDetail, int, error) {
	return nil, 0, nil
}

func (s *withdrawalRepoStub) ExistsActiveForDate(ctx context.Context, studentID string, date time.Time) (bool, error) {
	return s.active, nil
}

func (s *withdrawalRepoStub) UpdateStatus(ctx context.Context, id string, status models.WithdrawalStatus, reviewedBy, notes *string) error {
	row, ok := s.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	row.Status = status
	row.ReviewedBy = reviewedBy
	row.ReviewNotes = notes
	return nil
}

type guardianRepoStub struct {
	guardians map[string]*models.Guardian     // by user id
	links     map[string]*models.GuardianLink // by student|guardian
}

func (s *guardianRepoStub) FindByUserID(ctx context.Context, userID string) (*models.Guardian, error) {
	if guardian, ok := s.guardians[userID]; ok {
		return guardian, nil
	}
	return nil, sql.ErrNoRows
}

func (s *guardianRepoStub) LinkFor(ctx context.Context, studentID, guardianID string) (*models.GuardianLink, error) {
	if link, ok := s.links[studentID+"|"+guardianID]; ok {
		return link, nil
	}
	return nil, sql.ErrNoRows
}

func titularGuardians() *guardianRepoStub {
	return &guardianRepoStub{
		guardians: map[string]*models.Guardian{
			"user-titular": {ID: "g-1", UserID: "user-titular"},
			"user-second":  {ID: "g-2", UserID: "user-second"},
		},
		links: map[string]*models.GuardianLink{
			"st-1|g-1": {StudentID: "st-1", GuardianID: "g-1", Titular: true},
			"st-1|g-2": {StudentID: "st-1", GuardianID: "g-2", Titular: false},
		},
	}
}

func withdrawalFixture(repo *withdrawalRepoStub, guardians *guardianRepoStub, attendance *attendanceRepoStub, notifier *notifierStub) *WithdrawalService {
	students := &studentRepoStub{students: map[string]*models.StudentDetail{"QR-1": testStudent()}}
	return NewWithdrawalService(repo, guardians, attendance, students, notifier, nil, nil)
}

func seedWithdrawal(repo *withdrawalRepoStub, status models.WithdrawalStatus) {
	if repo.rows == nil {
		repo.rows = make(map[string]*models.Withdrawal)
	}
	repo.rows["ret-1"] = &models.Withdrawal{
		ID:          "ret-1",
		StudentID:   "st-1",
		SchoolID:    "ie-1",
		Date:        time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		Type:        models.WithdrawalTypeMedical,
		Reason:      "cita medica",
		Status:      status,
		RequestedBy: "user-titular",
	}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, SchoolID: "ie-1"}
}

func TestWithdrawalCreateByLinkedGuardian(t *testing.T) {
	repo := &withdrawalRepoStub{}
	svc := withdrawalFixture(repo, titularGuardians(), &attendanceRepoStub{}, &notifierStub{})

	req := CreateWithdrawalRequest{StudentID: "st-1", Date: "2026-03-16", Type: "MEDICO", Reason: "cita medica"}
	claims := &models.JWTClaims{UserID: "user-titular", Role: models.RoleGuardian, SchoolID: "ie-1"}

	detail, err := svc.Create(context.Background(), req, claims)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalRequested, detail.Status)
	assert.Equal(t, "user-titular", detail.RequestedBy)
}

func TestWithdrawalCreateRejectsUnlinkedGuardian(t *testing.T) {
	svc := withdrawalFixture(&withdrawalRepoStub{}, titularGuardians(), &attendanceRepoStub{}, &notifierStub{})

	req := CreateWithdrawalRequest{StudentID: "st-1", Date: "2026-03-16", Type: "MEDICO", Reason: "cita medica"}
	claims := &models.JWTClaims{UserID: "user-stranger", Role: models.RoleGuardian, SchoolID: "ie-1"}

	_, err := svc.Create(context.Background(), req, claims)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestWithdrawalCreateRejectsDuplicateActive(t *testing.T) {
	repo := &withdrawalRepoStub{active: true}
	svc := withdrawalFixture(repo, titularGuardians(), &attendanceRepoStub{}, &notifierStub{})

	req := CreateWithdrawalRequest{StudentID: "st-1", Date: "2026-03-16", Type: "MEDICO", Reason: "cita medica"}
	_, err := svc.Create(context.Background(), req, adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestWithdrawalApproveByTitular(t *testing.T) {
	repo := &withdrawalRepoStub{}
	seedWithdrawal(repo, models.WithdrawalRequested)
	svc := withdrawalFixture(repo, titularGuardians(), &attendanceRepoStub{}, &notifierStub{})

	claims := &models.JWTClaims{UserID: "user-titular", Role: models.RoleGuardian, SchoolID: "ie-1"}
	detail, err := svc.Approve(context.Background(), "ret-1", ReviewWithdrawalRequest{}, claims)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalApproved, detail.Status)
	require.NotNil(t, detail.ReviewedBy)
	assert.Equal(t, "user-titular", *detail.ReviewedBy)
}

func TestWithdrawalApproveRejectsNonTitularGuardian(t *testing.T) {
	repo := &withdrawalRepoStub{}
	seedWithdrawal(repo, models.WithdrawalRequested)
	svc := withdrawalFixture(repo, titularGuardians(), &attendanceRepoStub{}, &notifierStub{})

	claims := &models.JWTClaims{UserID: "user-second", Role: models.RoleGuardian, SchoolID: "ie-1"}
	_, err := svc.Approve(context.Background(), "ret-1", ReviewWithdrawalRequest{}, claims)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestWithdrawalFinalStateRejectsAnyMove(t *testing.T) {
	repo := &withdrawalRepoStub{}
	seedWithdrawal(repo, models.WithdrawalCompleted)
	svc := withdrawalFixture(repo, titularGuardians(), &attendanceRepoStub{}, &notifierStub{})

	_, err := svc.Review(context.Background(), "ret-1", adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFinalState.Code, appErrors.FromError(err).Code)
}

func TestWithdrawalIllegalTransition(t *testing.T) {
	repo := &withdrawalRepoStub{}
	seedWithdrawal(repo, models.WithdrawalRequested)
	svc := withdrawalFixture(repo, titularGuardians(), &attendanceRepoStub{}, &notifierStub{})

	// SOLICITADO cannot jump straight to COMPLETADO.
	_, err := svc.Complete(context.Background(), "ret-1", adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrIllegalTransition.Code, appErrors.FromError(err).Code)
}

func TestWithdrawalCompleteMarksAttendanceWithdrawn(t *testing.T) {
	date := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	entry := date.Add(8 * time.Hour)
	attendance := &attendanceRepoStub{rows: map[string]*models.Attendance{
		attendanceKey("st-1", date): {ID: "att-1", StudentID: "st-1", Date: date, Status: models.AttendancePresent, EntryTime: &entry},
	}}
	repo := &withdrawalRepoStub{}
	seedWithdrawal(repo, models.WithdrawalInProgress)
	notifier := &notifierStub{}
	svc := withdrawalFixture(repo, titularGuardians(), attendance, notifier)

	detail, err := svc.Complete(context.Background(), "ret-1", adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCompleted, detail.Status)
	assert.Equal(t, models.AttendanceWithdrawn, attendance.rows[attendanceKey("st-1", date)].Status)
	assert.Equal(t, []models.NotificationType{models.NotificationWithdrawal}, notifier.guardianCalls)
}

func TestWithdrawalCancelOnlyRequesterOrStaff(t *testing.T) {
	repo := &withdrawalRepoStub{}
	seedWithdrawal(repo, models.WithdrawalRequested)
	svc := withdrawalFixture(repo, titularGuardians(), &attendanceRepoStub{}, &notifierStub{})

	stranger := &models.JWTClaims{UserID: "user-other", Role: models.RoleGuardian, SchoolID: "ie-1"}
	_, err := svc.Cancel(context.Background(), "ret-1", stranger)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	requester := &models.JWTClaims{UserID: "user-titular", Role: models.RoleGuardian, SchoolID: "ie-1"}
	detail, err := svc.Cancel(context.Background(), "ret-1", requester)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCancelled, detail.Status)
}
