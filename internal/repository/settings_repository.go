package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edugestion/asistencia-api/internal/models"
)

// SettingsRepository persists per-school configuration rows.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository constructs the repository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get fetches the settings row for a school.
func (r *SettingsRepository) Get(ctx context.Context, schoolID string) (*models.SchoolSettings, error) {
	const query = `SELECT school_id, tolerance_minutes, entry_window_start, entry_window_end, updated_by, updated_at
FROM configuracion_ie WHERE school_id = $1`
	var settings models.SchoolSettings
	if err := r.db.GetContext(ctx, &settings, query, schoolID); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Upsert inserts or updates the settings row. Last write wins; there is no
// version check or audit trail.
func (r *SettingsRepository) Upsert(ctx context.Context, settings *models.SchoolSettings) error {
	const query = `INSERT INTO configuracion_ie (school_id, tolerance_minutes, entry_window_start, entry_window_end, updated_by, updated_at)
VALUES (:school_id, :tolerance_minutes, :entry_window_start, :entry_window_end, :updated_by, :updated_at)
ON CONFLICT (school_id)
DO UPDATE SET tolerance_minutes = EXCLUDED.tolerance_minutes, entry_window_start = EXCLUDED.entry_window_start,
              entry_window_end = EXCLUDED.entry_window_end, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`
	settings.UpdatedAt = time.Now().UTC()
	if _, err := r.db.NamedExecContext(ctx, query, settings); err != nil {
		return fmt.Errorf("upsert school settings: %w", err)
	}
	return nil
}
