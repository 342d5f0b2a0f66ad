package models

import "time"

// JustificationStatus is the state of an absence justification.
type JustificationStatus string

const (
	JustificationPending   JustificationStatus = "PENDIENTE"
	JustificationInReview  JustificationStatus = "EN_REVISION"
	JustificationApproved  JustificationStatus = "APROBADA"
	JustificationRejected  JustificationStatus = "RECHAZADA"
	JustificationNeedsDocs JustificationStatus = "REQUIERE_DOCUMENTACION"
	JustificationExpired   JustificationStatus = "VENCIDA"
)

// justificationTransitions is the transition table. RECHAZADA -> PENDIENTE is
// the resubmission path, the single re-entry edge in the whole workflow.
var justificationTransitions = map[JustificationStatus][]JustificationStatus{
	JustificationPending:   {JustificationInReview, JustificationApproved, JustificationRejected, JustificationNeedsDocs, JustificationExpired},
	JustificationInReview:  {JustificationApproved, JustificationRejected, JustificationNeedsDocs, JustificationExpired},
	JustificationNeedsDocs: {JustificationInReview, JustificationExpired},
	JustificationRejected:  {JustificationPending},
}

// Valid reports whether the value is a known status.
func (s JustificationStatus) Valid() bool {
	switch s {
	case JustificationPending, JustificationInReview, JustificationApproved,
		JustificationRejected, JustificationNeedsDocs, JustificationExpired:
		return true
	default:
		return false
	}
}

// Final reports whether the status is terminal. RECHAZADA is terminal for
// review purposes; only the explicit resubmission edge leaves it.
func (s JustificationStatus) Final() bool {
	switch s {
	case JustificationApproved, JustificationRejected, JustificationExpired:
		return true
	default:
		return false
	}
}

// CanTransition consults the transition table.
func (s JustificationStatus) CanTransition(to JustificationStatus) bool {
	for _, next := range justificationTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// JustificationType is a tipo_justificaciones catalog row. MaxDays bounds how
// long after the absence a submission is accepted; RequiresDocument demands
// at least one attachment at creation.
type JustificationType struct {
	ID               string `db:"id" json:"id"`
	Code             string `db:"code" json:"code"`
	Name             string `db:"name" json:"name"`
	RequiresDocument bool   `db:"requires_document" json:"requires_document"`
	MaxDays          int    `db:"max_days" json:"max_days"`
}

// Justification is an absence-justification submission.
type Justification struct {
	ID          string              `db:"id" json:"id"`
	StudentID   string              `db:"student_id" json:"student_id"`
	SchoolID    string              `db:"school_id" json:"school_id"`
	TypeID      string              `db:"type_id" json:"type_id"`
	Status      JustificationStatus `db:"status" json:"status"`
	Reason      string              `db:"reason" json:"reason"`
	SubmittedBy string              `db:"submitted_by" json:"submitted_by"`
	ReviewedBy  *string             `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewDate  *time.Time          `db:"review_date" json:"review_date,omitempty"`
	ReviewNotes *string             `db:"review_notes" json:"review_notes,omitempty"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `db:"updated_at" json:"updated_at"`
}

// JustificationDetail joins the submission with type and linked attendance.
type JustificationDetail struct {
	Justification
	TypeCode      string                  `db:"type_code" json:"type_code"`
	TypeName      string                  `db:"type_name" json:"type_name"`
	StudentName   string                  `db:"student_name" json:"student_name"`
	AttendanceIDs []string                `json:"attendance_ids,omitempty"`
	Documents     []JustificationDocument `json:"documents,omitempty"`
}

// JustificationDocument is an uploaded attachment (documento_justificaciones).
type JustificationDocument struct {
	ID              string    `db:"id" json:"id"`
	JustificationID string    `db:"justification_id" json:"justification_id"`
	FileName        string    `db:"file_name" json:"file_name"`
	StoredPath      string    `db:"stored_path" json:"-"`
	MIMEType        string    `db:"mime_type" json:"mime_type"`
	SizeBytes       int64     `db:"size_bytes" json:"size_bytes"`
	UploadedBy      string    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// JustificationFilter scopes listings.
type JustificationFilter struct {
	SchoolID  string
	StudentID string
	Status    *JustificationStatus
	Page      int
	PageSize  int
}
