package model

import (
	"github.com/google/uuid"
)

// Role enumerates the caller roles supplied by the identity context.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Principal is the authenticated caller attached to every request.
type Principal struct {
	ID    uuid.UUID  `json:"id"`
	Role  Role       `json:"role"`
	OrgID *uuid.UUID `json:"org_id,omitempty"`
}

// IsStaff reports whether the principal holds a teacher or admin role.
func (p Principal) IsStaff() bool {
	return p.Role == RoleTeacher || p.Role == RoleAdmin
}

// SameOrg reports whether the principal and the given organization overlap.
// A nil on either side means unscoped and matches everything.
func (p Principal) SameOrg(orgID *uuid.UUID) bool {
	if p.OrgID == nil || orgID == nil {
		return true
	}
	return *p.OrgID == *orgID
}
