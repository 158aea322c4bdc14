package models

import "time"

// UserRole represents the closed set of roles known to the system.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTeacher UserRole = "TEACHER"
	RoleStudent UserRole = "STUDENT"
	RoleParent  UserRole = "PARENT"
)

// Valid reports whether the role is one of the known values.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent, RoleParent:
		return true
	}
	return false
}

// User represents an application user stored in the users table. Super marks
// the single protected administrator account; it is a flag, not a role, so a
// super user still carries a regular role tag.
type User struct {
	ID           string        `db:"id" json:"id"`
	Email        string        `db:"email" json:"email"`
	PasswordHash string        `db:"password_hash" json:"-"`
	FullName     string        `db:"full_name" json:"full_name"`
	Role         UserRole      `db:"role" json:"role"`
	Active       bool          `db:"active" json:"active"`
	Super        bool          `db:"super" json:"super"`
	Permissions  PermissionSet `db:"permissions" json:"permissions"`
	LastLogin    *time.Time    `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// Can reports whether the user holds the given permission. A super user
// implicitly holds every permission regardless of the stored set.
func (u *User) Can(p Permission) bool {
	if u.Super {
		return true
	}
	return u.Permissions.Has(p)
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
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
