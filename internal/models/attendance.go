package models

import "time"

// AttendanceStatus is the state of a daily attendance row.
type AttendanceStatus string

const (
	AttendancePresent   AttendanceStatus = "PRESENTE"
	AttendanceLate      AttendanceStatus = "TARDANZA"
	AttendanceAbsent    AttendanceStatus = "INASISTENCIA"
	AttendanceWithdrawn AttendanceStatus = "RETIRADO"
	AttendanceJustified AttendanceStatus = "JUSTIFICADA"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceLate, AttendanceAbsent, AttendanceWithdrawn, AttendanceJustified:
		return true
	default:
		return false
	}
}

// Attendance is one row per student per day (asistencias). Uniqueness over
// (student_id, date) is enforced by the database.
type Attendance struct {
	ID           string           `db:"id" json:"id"`
	StudentID    string           `db:"student_id" json:"student_id"`
	SchoolID     string           `db:"school_id" json:"school_id"`
	Date         time.Time        `db:"date" json:"date"`
	Status       AttendanceStatus `db:"status" json:"status"`
	EntryTime    *time.Time       `db:"entry_time" json:"entry_time,omitempty"`
	ExitTime     *time.Time       `db:"exit_time" json:"exit_time,omitempty"`
	RegisteredBy *string          `db:"registered_by" json:"registered_by,omitempty"`
	Notes        *string          `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceRecord extends the row with student metadata for listings.
type AttendanceRecord struct {
	Attendance
	StudentName    string  `db:"student_name" json:"student_name"`
	StudentDNI     string  `db:"student_dni" json:"student_dni"`
	ClassroomID    string  `db:"classroom_id" json:"classroom_id"`
	ClassroomLabel *string `db:"classroom_label" json:"classroom_label,omitempty"`
}

// AttendanceFilter defines query filters for listings.
type AttendanceFilter struct {
	SchoolID    string
	ClassroomID string
	StudentID   string
	Status      *AttendanceStatus
	DateFrom    *time.Time
	DateTo      *time.Time
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// AttendanceSummary aggregates per-status counts for a student.
type AttendanceSummary struct {
	StudentID string  `json:"student_id"`
	Present   int     `json:"present"`
	Late      int     `json:"late"`
	Absent    int     `json:"absent"`
	Withdrawn int     `json:"withdrawn"`
	Justified int     `json:"justified"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}

// SweepResult reports the outcome of an absence sweep run.
type SweepResult struct {
	SchoolID   string    `json:"school_id"`
	Date       time.Time `json:"date"`
	Marked     int       `json:"marked"`
	StudentIDs []string  `json:"student_ids,omitempty"`
	Expired    int       `json:"expired_justifications"`
}

// SweepStats summarises a day's attendance for the sweep status endpoint.
type SweepStats struct {
	SchoolID       string                   `json:"school_id"`
	Date           time.Time                `json:"date"`
	ActiveStudents int                      `json:"active_students"`
	ByStatus       map[AttendanceStatus]int `json:"by_status"`
	Unmarked       int                      `json:"unmarked"`
}
