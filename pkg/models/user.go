package models

import (
	"time"

	"github.com/google/uuid"
)

// UserRole identifies which pipeline stage a user works on.
type UserRole string

const (
	RoleAdmin           UserRole = "ADMIN"
	RoleOCREditor       UserRole = "OCR_EDITOR"
	RoleOCRReviewer     UserRole = "OCR_REVIEWER"
	RoleRewriteEditor   UserRole = "REWRITE_EDITOR"
	RoleRewriteReviewer UserRole = "REWRITE_REVIEWER"
)

// ValidUserRoles contains all valid user role values.
var ValidUserRoles = []UserRole{
	RoleAdmin,
	RoleOCREditor,
	RoleOCRReviewer,
	RoleRewriteEditor,
	RoleRewriteReviewer,
}

// IsValidUserRole checks if the given role is valid.
func IsValidUserRole(r UserRole) bool {
	for _, v := range ValidUserRoles {
		if v == r {
			return true
		}
	}
	return false
}

// User is a read-only projection of the identity collaborator's user record.
// The engine only consults users for role-based auto-assignment.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Role      UserRole  `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
