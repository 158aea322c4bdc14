package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Permission names one capability flag. The vocabulary is closed: adding a
// permission means adding a struct field, a constant and a case below.
type Permission string

const (
	PermCreateUsers      Permission = "can_create_users"
	PermUpdateUsers      Permission = "can_update_users"
	PermDeleteUsers      Permission = "can_delete_users"
	PermDelegateAccess   Permission = "can_delegate_access"
	PermManageFinances   Permission = "can_manage_finances"
	PermManageGrades     Permission = "can_manage_grades"
	PermManageAttendance Permission = "can_manage_attendance"
	PermViewAuditLogs    Permission = "can_view_audit_logs"
)

// PermissionSet is a fixed set of capability flags stored per user as JSONB.
type PermissionSet struct {
	CanCreateUsers      bool `json:"can_create_users"`
	CanUpdateUsers      bool `json:"can_update_users"`
	CanDeleteUsers      bool `json:"can_delete_users"`
	CanDelegateAccess   bool `json:"can_delegate_access"`
	CanManageFinances   bool `json:"can_manage_finances"`
	CanManageGrades     bool `json:"can_manage_grades"`
	CanManageAttendance bool `json:"can_manage_attendance"`
	CanViewAuditLogs    bool `json:"can_view_audit_logs"`
}

// Has reports whether the named flag is set.
func (p PermissionSet) Has(perm Permission) bool {
	switch perm {
	case PermCreateUsers:
		return p.CanCreateUsers
	case PermUpdateUsers:
		return p.CanUpdateUsers
	case PermDeleteUsers:
		return p.CanDeleteUsers
	case PermDelegateAccess:
		return p.CanDelegateAccess
	case PermManageFinances:
		return p.CanManageFinances
	case PermManageGrades:
		return p.CanManageGrades
	case PermManageAttendance:
		return p.CanManageAttendance
	case PermViewAuditLogs:
		return p.CanViewAuditLogs
	}
	return false
}

// Merge returns the union of both sets. Used when an explicit override is
// supplied at creation time on top of role defaults.
func (p PermissionSet) Merge(other PermissionSet) PermissionSet {
	return PermissionSet{
		CanCreateUsers:      p.CanCreateUsers || other.CanCreateUsers,
		CanUpdateUsers:      p.CanUpdateUsers || other.CanUpdateUsers,
		CanDeleteUsers:      p.CanDeleteUsers || other.CanDeleteUsers,
		CanDelegateAccess:   p.CanDelegateAccess || other.CanDelegateAccess,
		CanManageFinances:   p.CanManageFinances || other.CanManageFinances,
		CanManageGrades:     p.CanManageGrades || other.CanManageGrades,
		CanManageAttendance: p.CanManageAttendance || other.CanManageAttendance,
		CanViewAuditLogs:    p.CanViewAuditLogs || other.CanViewAuditLogs,
	}
}

// DefaultPermissions returns the role-derived defaults. The switch is
// exhaustive over the closed role set; an unknown role gets no permissions.
func DefaultPermissions(role UserRole) PermissionSet {
	switch role {
	case RoleAdmin:
		return PermissionSet{
			CanCreateUsers:      true,
			CanUpdateUsers:      true,
			CanManageFinances:   true,
			CanManageGrades:     true,
			CanManageAttendance: true,
			CanViewAuditLogs:    true,
		}
	case RoleTeacher:
		return PermissionSet{
			CanManageGrades:     true,
			CanManageAttendance: true,
		}
	case RoleStudent:
		return PermissionSet{}
	case RoleParent:
		return PermissionSet{}
	}
	return PermissionSet{}
}

// Value implements driver.Valuer so the set round-trips through a JSONB column.
func (p PermissionSet) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *PermissionSet) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*p = PermissionSet{}
		return nil
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	}
	return fmt.Errorf("unsupported permission set source type %T", src)
}
