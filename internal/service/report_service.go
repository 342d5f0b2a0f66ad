package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edugestion/asistencia-api/internal/models"
	appErrors "github.com/edugestion/asistencia-api/pkg/errors"
	"github.com/edugestion/asistencia-api/pkg/export"
	"github.com/edugestion/asistencia-api/pkg/storage"
)

type reportAttendanceRepository interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
}

// GenerateReportRequest describes an attendance export.
type GenerateReportRequest struct {
	Format      string `json:"format" validate:"required,oneof=csv pdf"`
	ClassroomID string `json:"classroom_id"`
	StudentID   string `json:"student_id"`
	DateFrom    string `json:"date_from" validate:"required,datetime=2006-01-02"`
	DateTo      string `json:"date_to" validate:"required,datetime=2006-01-02"`
}

// ReportResult points at a generated export.
type ReportResult struct {
	ExportID    string    `json:"export_id"`
	FileName    string    `json:"file_name"`
	Format      string    `json:"format"`
	Rows        int       `json:"rows"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ReportService renders attendance exports to disk and hands out signed
// download tokens; files never stream through an authenticated session twice.
type ReportService struct {
	attendance reportAttendanceRepository
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	store      *storage.LocalStorage
	signer     *storage.SignedURLSigner
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewReportService constructs a ReportService.
func NewReportService(
	attendance reportAttendanceRepository,
	store *storage.LocalStorage,
	signer *storage.SignedURLSigner,
	validate *validator.Validate,
	logger *zap.Logger,
) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ReportService{
		attendance: attendance,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		store:      store,
		signer:     signer,
		validator:  validate,
		logger:     logger,
	}
}

var reportHeaders = []string{"Fecha", "Estudiante", "DNI", "Aula", "Estado", "Ingreso", "Salida"}

// Generate renders the export and returns a signed download reference.
func (s *ReportService) Generate(ctx context.Context, schoolID string, req GenerateReportRequest) (*ReportResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report payload")
	}

	from, err := time.Parse("2006-01-02", req.DateFrom)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date_from")
	}
	to, err := time.Parse("2006-01-02", req.DateTo)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date_to")
	}
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date_to must not precede date_from")
	}

	filter := models.AttendanceFilter{
		SchoolID:    schoolID,
		ClassroomID: req.ClassroomID,
		StudentID:   req.StudentID,
		DateFrom:    &from,
		DateTo:      &to,
		PageSize:    200,
		SortBy:      "date",
		SortOrder:   "ASC",
	}

	rows := make([]map[string]string, 0)
	for page := 1; ; page++ {
		filter.Page = page
		records, total, listErr := s.attendance.List(ctx, filter)
		if listErr != nil {
			return nil, appErrors.Wrap(listErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
		}
		for _, record := range records {
			rows = append(rows, reportRow(record))
		}
		if len(rows) >= total || len(records) == 0 {
			break
		}
	}

	dataset := export.Dataset{Headers: reportHeaders, Rows: rows}
	exportID := uuid.NewString()
	fileName := fmt.Sprintf("asistencia_%s_%s.%s", req.DateFrom, req.DateTo, req.Format)
	relPath := fmt.Sprintf("%s/%s", exportID, fileName)

	var payload []byte
	switch req.Format {
	case "csv":
		payload, err = s.csv.Render(dataset)
	case "pdf":
		subtitle := fmt.Sprintf("Del %s al %s", req.DateFrom, req.DateTo)
		payload, err = s.pdf.Render(dataset, "Reporte de Asistencia", subtitle)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported format")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}

	if _, err := s.store.Save(relPath, payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store report")
	}

	token, expiresAt, err := s.signer.Generate(exportID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download")
	}

	s.logger.Info("report generated",
		zap.String("export_id", exportID),
		zap.String("format", req.Format),
		zap.Int("rows", len(rows)))

	return &ReportResult{
		ExportID:    exportID,
		FileName:    fileName,
		Format:      req.Format,
		Rows:        len(rows),
		DownloadURL: "/reportes/descargar?token=" + token,
		ExpiresAt:   expiresAt,
	}, nil
}

// Open validates the signed token and returns a read handle for the export.
func (s *ReportService) Open(token string) (string, io.ReadCloser, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return "", nil, appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
	}
	name := relPath
	if idx := strings.LastIndexByte(relPath, '/'); idx >= 0 {
		name = relPath[idx+1:]
	}
	return name, file, nil
}

// Cleanup removes exports older than the TTL.
func (s *ReportService) Cleanup(ttl time.Duration) (int, error) {
	deleted, err := s.store.CleanupOlderThan(ttl)
	if err != nil {
		return 0, err
	}
	if len(deleted) > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", len(deleted)))
	}
	return len(deleted), nil
}

func reportRow(record models.AttendanceRecord) map[string]string {
	entry, exit := "", ""
	if record.EntryTime != nil {
		entry = record.EntryTime.Format("15:04")
	}
	if record.ExitTime != nil {
		exit = record.ExitTime.Format("15:04")
	}
	classroom := ""
	if record.ClassroomLabel != nil {
		classroom = *record.ClassroomLabel
	}
	return map[string]string{
		"Fecha":      record.Date.Format("2006-01-02"),
		"Estudiante": record.StudentName,
		"DNI":        record.StudentDNI,
		"Aula":       classroom,
		"Estado":     string(record.Status),
		"Ingreso":    entry,
		"Salida":     exit,
	}
}
