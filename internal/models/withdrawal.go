package models

import "time"

// WithdrawalStatus is the state of an early-departure request (retiros).
type WithdrawalStatus string

const (
	WithdrawalRequested  WithdrawalStatus = "SOLICITADO"
	WithdrawalInReview   WithdrawalStatus = "EN_REVISION"
	WithdrawalApproved   WithdrawalStatus = "APROBADO"
	WithdrawalRejected   WithdrawalStatus = "RECHAZADO"
	WithdrawalInProgress WithdrawalStatus = "EN_PROCESO"
	WithdrawalCompleted  WithdrawalStatus = "COMPLETADO"
	WithdrawalCancelled  WithdrawalStatus = "CANCELADO"
)

// withdrawalTransitions is the forward-only transition table. Final states
// have no outgoing edges, so any move out of them is rejected.
var withdrawalTransitions = map[WithdrawalStatus][]WithdrawalStatus{
	WithdrawalRequested:  {WithdrawalInReview, WithdrawalApproved, WithdrawalRejected, WithdrawalCancelled},
	WithdrawalInReview:   {WithdrawalApproved, WithdrawalRejected, WithdrawalCancelled},
	WithdrawalApproved:   {WithdrawalInProgress, WithdrawalCancelled},
	WithdrawalInProgress: {WithdrawalCompleted},
}

// Valid reports whether the value is a known status.
func (s WithdrawalStatus) Valid() bool {
	switch s {
	case WithdrawalRequested, WithdrawalInReview, WithdrawalApproved,
		WithdrawalRejected, WithdrawalInProgress, WithdrawalCompleted, WithdrawalCancelled:
		return true
	default:
		return false
	}
}

// Final reports whether the status is terminal.
func (s WithdrawalStatus) Final() bool {
	switch s {
	case WithdrawalRejected, WithdrawalCompleted, WithdrawalCancelled:
		return true
	default:
		return false
	}
}

// CanTransition consults the transition table.
func (s WithdrawalStatus) CanTransition(to WithdrawalStatus) bool {
	for _, next := range withdrawalTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Withdrawal is a guardian- or staff-initiated early-departure request.
type Withdrawal struct {
	ID           string           `db:"id" json:"id"`
	StudentID    string           `db:"student_id" json:"student_id"`
	SchoolID     string           `db:"school_id" json:"school_id"`
	Date         time.Time        `db:"date" json:"date"`
	Type         string           `db:"type" json:"type"`
	Reason       string           `db:"reason" json:"reason"`
	Status       WithdrawalStatus `db:"status" json:"status"`
	RequestedBy  string           `db:"requested_by" json:"requested_by"`
	PickupPerson *string          `db:"pickup_person" json:"pickup_person,omitempty"`
	ReviewedBy   *string          `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewDate   *time.Time       `db:"review_date" json:"review_date,omitempty"`
	ReviewNotes  *string          `db:"review_notes" json:"review_notes,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// WithdrawalDetail joins the request with student metadata.
type WithdrawalDetail struct {
	Withdrawal
	StudentName string `db:"student_name" json:"student_name"`
	StudentDNI  string `db:"student_dni" json:"student_dni"`
}

// WithdrawalFilter scopes withdrawal listings.
type WithdrawalFilter struct {
	SchoolID    string
	StudentID   string
	RequestedBy string
	Status      *WithdrawalStatus
	DateFrom    *time.Time
	DateTo      *time.Time
	Page        int
	PageSize    int
}

// Withdrawal types mirror the original tipo_retiros catalog.
const (
	WithdrawalTypeMedical  = "MEDICO"
	WithdrawalTypeFamily   = "FAMILIAR"
	WithdrawalTypePersonal = "PERSONAL"
	WithdrawalTypeOther    = "OTRO"
)
