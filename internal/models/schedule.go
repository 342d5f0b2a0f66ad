package models

import "time"

// ClassSchedule is a scheduled class block (horario_clases). ToleranceMin
// overrides the school-wide tolerance when non-null.
type ClassSchedule struct {
	ID           string    `db:"id" json:"id"`
	ClassroomID  string    `db:"classroom_id" json:"classroom_id"`
	DayOfWeek    int       `db:"day_of_week" json:"day_of_week"`
	StartTime    string    `db:"start_time" json:"start_time"`
	EndTime      string    `db:"end_time" json:"end_time"`
	Subject      *string   `db:"subject" json:"subject,omitempty"`
	TeacherID    *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	ToleranceMin *int      `db:"tolerance_min" json:"tolerance_min,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ScheduleFilter scopes schedule listings.
type ScheduleFilter struct {
	ClassroomID string
	DayOfWeek   *int
	TeacherID   string
}

// SchoolSettings is the per-school configuration row (configuracion_ie).
// ToleranceMinutes is the institution-wide grace period; the entry window
// bounds when QR entry capture is accepted.
type SchoolSettings struct {
	SchoolID         string    `db:"school_id" json:"school_id"`
	ToleranceMinutes int       `db:"tolerance_minutes" json:"tolerance_minutes"`
	EntryWindowStart string    `db:"entry_window_start" json:"entry_window_start"`
	EntryWindowEnd   string    `db:"entry_window_end" json:"entry_window_end"`
	UpdatedBy        *string   `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// CalendarDayType classifies calendar override rows.
type CalendarDayType string

const (
	CalendarClasses  CalendarDayType = "CLASES"
	CalendarHoliday  CalendarDayType = "FERIADO"
	CalendarVacation CalendarDayType = "VACACIONES"
	CalendarEvent    CalendarDayType = "EVENTO"
)

// SchoolDay reports whether attendance may be registered on a day of this type.
func (t CalendarDayType) SchoolDay() bool {
	return t != CalendarHoliday && t != CalendarVacation
}

// CalendarEntry is a calendario_escolar date-range override.
type CalendarEntry struct {
	ID          string          `db:"id" json:"id"`
	SchoolID    string          `db:"school_id" json:"school_id"`
	Type        CalendarDayType `db:"type" json:"type"`
	Description *string         `db:"description" json:"description,omitempty"`
	StartDate   time.Time       `db:"start_date" json:"start_date"`
	EndDate     time.Time       `db:"end_date" json:"end_date"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}
