package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugestion/asistencia-api/internal/models"
)

func TestExpireStaleSkipsUnboundedTypes(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewJustificationRepository(db)

	// Types with max_days <= 0 have no window, so the sweep must filter them
	// out in SQL rather than expire them on sight.
	mock.ExpectQuery(regexp.QuoteMeta("t.max_days > 0")).
		WithArgs(models.JustificationExpired, sqlmock.AnyArg(),
			models.JustificationPending, models.JustificationInReview, models.JustificationNeedsDocs).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("just-1"))

	now := time.Date(2026, 3, 17, 3, 0, 0, 0, time.UTC)
	ids, err := repo.ExpireStale(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []string{"just-1"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireStaleNothingDue(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewJustificationRepository(db)

	mock.ExpectQuery("UPDATE justificaciones").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ids, err := repo.ExpireStale(context.Background(), time.Date(2026, 3, 17, 3, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
