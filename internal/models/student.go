package models

import "time"

// Classroom is a grade+section unit (grado_secciones).
type Classroom struct {
	ID        string    `db:"id" json:"id"`
	SchoolID  string    `db:"school_id" json:"school_id"`
	Level     string    `db:"level" json:"level"`
	Grade     string    `db:"grade" json:"grade"`
	Section   string    `db:"section" json:"section"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Student extends a user with enrollment data. A student belongs to exactly
// one classroom at a time; QRCode is the attendance capture token.
type Student struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	ClassroomID string    `db:"classroom_id" json:"classroom_id"`
	QRCode      string    `db:"qr_code" json:"qr_code"`
	Code        string    `db:"code" json:"code"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// StudentDetail joins the student with user and classroom metadata.
type StudentDetail struct {
	Student
	FullName       string  `db:"full_name" json:"full_name"`
	DNI            string  `db:"dni" json:"dni"`
	SchoolID       string  `db:"school_id" json:"school_id"`
	Active         bool    `db:"active" json:"active"`
	ClassroomGrade *string `db:"classroom_grade" json:"classroom_grade,omitempty"`
	ClassroomLabel *string `db:"classroom_label" json:"classroom_label,omitempty"`
}

// StudentFilter scopes student listings.
type StudentFilter struct {
	SchoolID    string
	ClassroomID string
	Active      *bool
	Search      string
	Page        int
	PageSize    int
}

// Guardian extends a user with guardian data.
type Guardian struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// GuardianLink is the estudiante_apoderados row tying a guardian to a
// student. Titular marks the primary guardian, the only one allowed to
// approve or reject withdrawals for the student.
type GuardianLink struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	GuardianID string    `db:"guardian_id" json:"guardian_id"`
	Relation   string    `db:"relation" json:"relation"`
	Titular    bool      `db:"titular" json:"titular"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// GuardianContact joins the link with the guardian's user record for
// notification fan-out.
type GuardianContact struct {
	GuardianID string  `db:"guardian_id" json:"guardian_id"`
	UserID     string  `db:"user_id" json:"user_id"`
	FullName   string  `db:"full_name" json:"full_name"`
	Email      string  `db:"email" json:"email"`
	Phone      *string `db:"phone" json:"phone,omitempty"`
	Relation   string  `db:"relation" json:"relation"`
	Titular    bool    `db:"titular" json:"titular"`
}

// TeacherAssignment ties a teacher to a classroom (docente_aulas).
type TeacherAssignment struct {
	ID             string    `db:"id" json:"id"`
	TeacherID      string    `db:"teacher_id" json:"teacher_id"`
	ClassroomID    string    `db:"classroom_id" json:"classroom_id"`
	AssignmentType string    `db:"assignment_type" json:"assignment_type"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Teacher assignment types.
const (
	AssignmentTutor   = "TUTOR"
	AssignmentSubject = "CURSO"
)
