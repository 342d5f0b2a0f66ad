package models

import "time"

// UserRole represents the role catalog used by the RBAC system. Values match
// the `roles.codigo` column.
type UserRole string

const (
	RoleAdmin     UserRole = "ADMINISTRATIVO"
	RoleAuxiliary UserRole = "AUXILIAR"
	RoleTeacher   UserRole = "DOCENTE"
	RoleGuardian  UserRole = "APODERADO"
	RoleStudent   UserRole = "ESTUDIANTE"
)

// Valid reports whether the role is part of the catalog.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleAuxiliary, RoleTeacher, RoleGuardian, RoleStudent:
		return true
	default:
		return false
	}
}

// User represents a person stored in the usuarios table. Users are never
// hard-deleted; deactivation flips Active.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	DNI          string     `db:"dni" json:"dni"`
	Phone        *string    `db:"phone" json:"phone,omitempty"`
	SchoolID     string     `db:"school_id" json:"school_id"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserWithRoles bundles a user with its assigned roles.
type UserWithRoles struct {
	User
	Roles []UserRole `json:"roles"`
}

// PrimaryRole picks the role carried in JWT claims. Administrative roles win
// over guardian/student so staff accounts keep their permissions when they
// are also registered as guardians.
func (u UserWithRoles) PrimaryRole() UserRole {
	order := []UserRole{RoleAdmin, RoleAuxiliary, RoleTeacher, RoleGuardian, RoleStudent}
	for _, role := range order {
		for _, assigned := range u.Roles {
			if assigned == role {
				return role
			}
		}
	}
	if len(u.Roles) > 0 {
		return u.Roles[0]
	}
	return RoleStudent
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	SchoolID  string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
