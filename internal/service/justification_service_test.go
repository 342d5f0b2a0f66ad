package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugestion/asistencia-api/internal/models"
	appErrors "github.com/edugestion/asistencia-api/pkg/errors"
	"github.com/edugestion/asistencia-api/pkg/storage"
)

type justificationRepoStub struct {
	rows      map[string]*models.Justification
	links     map[string][]string
	documents map[string][]models.JustificationDocument
	types     map[string]*models.JustificationType
	deleted   []string
}

func newJustificationRepoStub() *justificationRepoStub {
	return &justificationRepoStub{
		rows:      make(map[string]*models.Justification),
		links:     make(map[string][]string),
		documents: make(map[string][]models.JustificationDocument),
		types: map[string]*models.JustificationType{
			"tipo-med": {ID: "tipo-med", Code: "MEDICA", Name: "Justificación médica", MaxDays: 3},
		},
	}
}

func (s *justificationRepoStub) Create(ctx context.Context, justification *models.Justification, attendanceIDs []string) error {
	justification.ID = "just-1"
	s.rows[justification.ID] = justification
	s.links[justification.ID] = attendanceIDs
	return nil
}

func (s *justificationRepoStub) FindByID(ctx context.Context, id string) (*models.Justification, error) {
	if row, ok := s.rows[id]; ok {
		copied := *row
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *justificationRepoStub) FindDetailByID(ctx context.Context, id string) (*models.JustificationDetail, error) {
	row, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.JustificationDetail{
		Justification: *row,
		TypeCode:      "MEDICA",
		TypeName:      "Justificación médica",
		StudentName:   "Ana Torres",
		AttendanceIDs: s.links[id],
		Documents:     s.documents[id],
	}, nil
}

func (s *justificationRepoStub) List(ctx context.Context, filter models.JustificationFilter) ([]models.JustificationDetail, int, error) {
	return nil, 0, nil
}

func (s *justificationRepoStub) UpdateStatus(ctx context.Context, id string, status models.JustificationStatus, reviewedBy, notes *string) error {
	row, ok := s.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	row.Status = status
	row.ReviewedBy = reviewedBy
	row.ReviewNotes = notes
	return nil
}

func (s *justificationRepoStub) ResetForResubmission(ctx context.Context, id string, reason string) error {
	row, ok := s.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	row.Status = models.JustificationPending
	row.Reason = reason
	row.ReviewedBy = nil
	row.ReviewDate = nil
	row.ReviewNotes = nil
	return nil
}

func (s *justificationRepoStub) Delete(ctx context.Context, id string) error {
	if _, ok := s.rows[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.rows, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *justificationRepoStub) AddDocument(ctx context.Context, document *models.JustificationDocument) error {
	document.ID = "doc-1"
	s.documents[document.JustificationID] = append(s.documents[document.JustificationID], *document)
	return nil
}

func (s *justificationRepoStub) ListDocuments(ctx context.Context, justificationID string) ([]models.JustificationDocument, error) {
	return s.documents[justificationID], nil
}

func (s *justificationRepoStub) FindDocument(ctx context.Context, documentID string) (*models.JustificationDocument, error) {
	for _, docs := range s.documents {
		for _, doc := range docs {
			if doc.ID == documentID {
				copied := doc
				return &copied, nil
			}
		}
	}
	return nil, sql.ErrNoRows
}

func (s *justificationRepoStub) LinkedAttendanceIDs(ctx context.Context, justificationID string) ([]string, error) {
	return s.links[justificationID], nil
}

func (s *justificationRepoStub) FindType(ctx context.Context, typeID string) (*models.JustificationType, error) {
	if jtype, ok := s.types[typeID]; ok {
		return jtype, nil
	}
	return nil, sql.ErrNoRows
}

func (s *justificationRepoStub) ListTypes(ctx context.Context) ([]models.JustificationType, error) {
	return nil, nil
}

func (s *justificationRepoStub) ExpireStale(ctx context.Context, now time.Time) ([]string, error) {
	return nil, nil
}

func (s *justificationRepoStub) seed(status models.JustificationStatus) {
	s.rows["just-1"] = &models.Justification{
		ID:          "just-1",
		StudentID:   "st-1",
		SchoolID:    "ie-1",
		TypeID:      "tipo-med",
		Status:      status,
		Reason:      "reposo medico",
		SubmittedBy: "user-titular",
	}
	s.links["just-1"] = []string{"att-1"}
}

func justificationFixture(t *testing.T, repo *justificationRepoStub, attendance *attendanceRepoStub, notifier *notifierStub) *JustificationService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc := NewJustificationService(repo, attendance, store, notifier, nil, nil, JustificationConfig{})
	svc.now = func() time.Time { return time.Date(2026, 3, 17, 12, 0, 0, 0, time.UTC) }
	return svc
}

func guardianClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-titular", Role: models.RoleGuardian, SchoolID: "ie-1"}
}

func absenceRow(date time.Time) *models.Attendance {
	return &models.Attendance{ID: "att-1", StudentID: "st-1", SchoolID: "ie-1", Date: date, Status: models.AttendanceAbsent}
}

func TestJustificationCreateLinksAbsences(t *testing.T) {
	repo := newJustificationRepoStub()
	date := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	attendance := &attendanceRepoStub{rows: map[string]*models.Attendance{
		attendanceKey("st-1", date): absenceRow(date),
	}}
	svc := justificationFixture(t, repo, attendance, &notifierStub{})

	req := CreateJustificationRequest{StudentID: "st-1", TypeID: "tipo-med", Reason: "reposo medico", Dates: []string{"2026-03-16"}}
	detail, err := svc.Create(context.Background(), req, guardianClaims())
	require.NoError(t, err)
	assert.Equal(t, models.JustificationPending, detail.Status)
	assert.Equal(t, []string{"att-1"}, detail.AttendanceIDs)
}

func TestJustificationCreateRejectsOutsideWindow(t *testing.T) {
	repo := newJustificationRepoStub()
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	attendance := &attendanceRepoStub{rows: map[string]*models.Attendance{
		attendanceKey("st-1", date): absenceRow(date),
	}}
	svc := justificationFixture(t, repo, attendance, &notifierStub{})

	// MaxDays is 3 and "today" is 2026-03-17, so March 10 is out of reach.
	req := CreateJustificationRequest{StudentID: "st-1", TypeID: "tipo-med", Reason: "reposo medico", Dates: []string{"2026-03-10"}}
	_, err := svc.Create(context.Background(), req, guardianClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestJustificationCreateRejectsNonAbsence(t *testing.T) {
	repo := newJustificationRepoStub()
	date := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	row := absenceRow(date)
	row.Status = models.AttendancePresent
	attendance := &attendanceRepoStub{rows: map[string]*models.Attendance{attendanceKey("st-1", date): row}}
	svc := justificationFixture(t, repo, attendance, &notifierStub{})

	req := CreateJustificationRequest{StudentID: "st-1", TypeID: "tipo-med", Reason: "reposo medico", Dates: []string{"2026-03-16"}}
	_, err := svc.Create(context.Background(), req, guardianClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestJustificationApproveFlipsAttendance(t *testing.T) {
	repo := newJustificationRepoStub()
	repo.seed(models.JustificationInReview)
	date := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	attendance := &attendanceRepoStub{rows: map[string]*models.Attendance{
		attendanceKey("st-1", date): absenceRow(date),
	}}
	notifier := &notifierStub{}
	svc := justificationFixture(t, repo, attendance, notifier)

	detail, err := svc.Approve(context.Background(), "just-1", ReviewJustificationRequest{}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.JustificationApproved, detail.Status)
	assert.Equal(t, models.AttendanceJustified, attendance.rows[attendanceKey("st-1", date)].Status)
	assert.Equal(t, []models.NotificationType{models.NotificationJustification}, notifier.userCalls)
}

func TestJustificationApproveRequiresDocumentWhenTypeDemandsIt(t *testing.T) {
	repo := newJustificationRepoStub()
	repo.types["tipo-med"].RequiresDocument = true
	repo.seed(models.JustificationInReview)
	date := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	attendance := &attendanceRepoStub{rows: map[string]*models.Attendance{
		attendanceKey("st-1", date): absenceRow(date),
	}}
	svc := justificationFixture(t, repo, attendance, &notifierStub{})

	// No attachment yet: approval must be blocked and nothing flipped.
	_, err := svc.Approve(context.Background(), "just-1", ReviewJustificationRequest{}, adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.JustificationInReview, repo.rows["just-1"].Status)
	assert.Equal(t, models.AttendanceAbsent, attendance.rows[attendanceKey("st-1", date)].Status)

	upload := DocumentUpload{
		FileName:  "constancia.pdf",
		MIMEType:  "application/pdf",
		SizeBytes: 64,
		Content:   strings.NewReader("%PDF-1.4 test"),
	}
	_, err = svc.AttachDocument(context.Background(), "just-1", upload, guardianClaims())
	require.NoError(t, err)

	detail, err := svc.Approve(context.Background(), "just-1", ReviewJustificationRequest{}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.JustificationApproved, detail.Status)
	assert.Equal(t, models.AttendanceJustified, attendance.rows[attendanceKey("st-1", date)].Status)
}

func TestJustificationFinalStateRejectsReview(t *testing.T) {
	repo := newJustificationRepoStub()
	repo.seed(models.JustificationApproved)
	svc := justificationFixture(t, repo, &attendanceRepoStub{}, &notifierStub{})

	_, err := svc.StartReview(context.Background(), "just-1", adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFinalState.Code, appErrors.FromError(err).Code)
}

func TestJustificationResubmitClearsReviewFields(t *testing.T) {
	repo := newJustificationRepoStub()
	repo.seed(models.JustificationRejected)
	reviewer := "admin-1"
	repo.rows["just-1"].ReviewedBy = &reviewer

	svc := justificationFixture(t, repo, &attendanceRepoStub{}, &notifierStub{})

	detail, err := svc.Resubmit(context.Background(), "just-1", ResubmitJustificationRequest{Reason: "adjunto constancia"}, guardianClaims())
	require.NoError(t, err)
	assert.Equal(t, models.JustificationPending, detail.Status)
	assert.Equal(t, "adjunto constancia", detail.Reason)
	assert.Nil(t, detail.ReviewedBy)
}

func TestJustificationResubmitOnlySubmitter(t *testing.T) {
	repo := newJustificationRepoStub()
	repo.seed(models.JustificationRejected)
	svc := justificationFixture(t, repo, &attendanceRepoStub{}, &notifierStub{})

	other := &models.JWTClaims{UserID: "user-other", Role: models.RoleGuardian, SchoolID: "ie-1"}
	_, err := svc.Resubmit(context.Background(), "just-1", ResubmitJustificationRequest{Reason: "adjunto constancia"}, other)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestJustificationResubmitOnlyFromRejected(t *testing.T) {
	repo := newJustificationRepoStub()
	repo.seed(models.JustificationExpired)
	svc := justificationFixture(t, repo, &attendanceRepoStub{}, &notifierStub{})

	_, err := svc.Resubmit(context.Background(), "just-1", ResubmitJustificationRequest{Reason: "adjunto constancia"}, guardianClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFinalState.Code, appErrors.FromError(err).Code)
}

func TestJustificationDeleteOnlyPending(t *testing.T) {
	repo := newJustificationRepoStub()
	repo.seed(models.JustificationInReview)
	svc := justificationFixture(t, repo, &attendanceRepoStub{}, &notifierStub{})

	err := svc.Delete(context.Background(), "just-1", guardianClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	repo.rows["just-1"].Status = models.JustificationPending
	require.NoError(t, svc.Delete(context.Background(), "just-1", guardianClaims()))
	assert.Equal(t, []string{"just-1"}, repo.deleted)
}

func TestJustificationAttachDocument(t *testing.T) {
	repo := newJustificationRepoStub()
	repo.seed(models.JustificationNeedsDocs)
	svc := justificationFixture(t, repo, &attendanceRepoStub{}, &notifierStub{})

	upload := DocumentUpload{
		FileName:  "constancia.pdf",
		MIMEType:  "application/pdf",
		SizeBytes: 64,
		Content:   strings.NewReader("%PDF-1.4 test"),
	}
	document, err := svc.AttachDocument(context.Background(), "just-1", upload, guardianClaims())
	require.NoError(t, err)
	assert.Equal(t, "constancia.pdf", document.FileName)

	// A documentation request is satisfied by the upload.
	assert.Equal(t, models.JustificationInReview, repo.rows["just-1"].Status)
}

func TestJustificationAttachRejectsBadMIME(t *testing.T) {
	repo := newJustificationRepoStub()
	repo.seed(models.JustificationPending)
	svc := justificationFixture(t, repo, &attendanceRepoStub{}, &notifierStub{})

	upload := DocumentUpload{FileName: "virus.exe", MIMEType: "application/octet-stream", SizeBytes: 10, Content: strings.NewReader("x")}
	_, err := svc.AttachDocument(context.Background(), "just-1", upload, guardianClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestJustificationAttachRejectsClosed(t *testing.T) {
	repo := newJustificationRepoStub()
	repo.seed(models.JustificationApproved)
	svc := justificationFixture(t, repo, &attendanceRepoStub{}, &notifierStub{})

	upload := DocumentUpload{FileName: "constancia.pdf", MIMEType: "application/pdf", SizeBytes: 10, Content: strings.NewReader("x")}
	_, err := svc.AttachDocument(context.Background(), "just-1", upload, guardianClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFinalState.Code, appErrors.FromError(err).Code)
}
