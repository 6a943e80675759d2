package auth

import (
	"strings"
	"time"
)

// Role is the fixed access level of an identity.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
	RoleAdmin   Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	default:
		return false
	}
}

// Authority returns the authority string derived from the role, e.g. "ROLE_ADMIN".
func (r Role) Authority() string {
	return "ROLE_" + string(r)
}

// ParseRole accepts a role name in any case.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !r.Valid() {
		return "", false
	}
	return r, true
}

// Identity is a stored account record.
type Identity struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile carries the role-specific detail of an identity. Exactly one of Student or
// Teacher is set for those roles; admins have neither.
type Profile struct {
	IdentityID int64           `json:"-"`
	FirstName  string          `json:"first_name"`
	LastName   string          `json:"last_name"`
	Student    *StudentProfile `json:"student,omitempty"`
	Teacher    *TeacherProfile `json:"teacher,omitempty"`
}

type StudentProfile struct {
	StudentNumber string     `json:"student_number"`
	Address       string     `json:"address,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	DateOfBirth   *time.Time `json:"date_of_birth,omitempty"`
}

type TeacherProfile struct {
	EmployeeNumber string     `json:"employee_number"`
	Address        string     `json:"address,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	DateOfBirth    *time.Time `json:"date_of_birth,omitempty"`
	Department     string     `json:"department,omitempty"`
	Specialization string     `json:"specialization,omitempty"`
}

// NormalizeEmail is the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
