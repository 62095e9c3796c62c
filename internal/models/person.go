package models

import "strconv"

// Role classifies a person in the roster.
type Role string

const (
	RoleStudent  Role = "student"
	RoleEmployee Role = "employee"
)

// Person is a fixed-shape identity record. Optional attributes are plain
// empty-able fields; presentation goes through the Display* helpers instead
// of callers probing for attributes.
type Person struct {
	ID               int64  `json:"id"`
	Username         string `json:"username"`
	FullName         string `json:"full_name,omitempty"`
	Role             Role   `json:"role"`
	StudentIDNumber  string `json:"student_id_number,omitempty"`
	EmployeeIDNumber string `json:"employee_id_number,omitempty"`
}

// DisplayName prefers the full name and falls back to the username.
func (p Person) DisplayName() string {
	if p.FullName != "" {
		return p.FullName
	}
	return p.Username
}

// DisplayRole returns a human label for the person's role.
func (p Person) DisplayRole() string {
	switch p.Role {
	case RoleStudent:
		return "Student"
	case RoleEmployee:
		return "Employee"
	default:
		return "Unknown"
	}
}

// DisplayID returns the most specific identifier available: student number,
// then employee number, then the numeric database id.
func (p Person) DisplayID() string {
	if p.StudentIDNumber != "" {
		return p.StudentIDNumber
	}
	if p.EmployeeIDNumber != "" {
		return p.EmployeeIDNumber
	}
	return strconv.FormatInt(p.ID, 10)
}
