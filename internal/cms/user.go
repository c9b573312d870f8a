package cms

import (
	"fmt"
	"strings"
	"time"
)

// Role is a user's editorial role.
type Role string

const (
	RoleAdministrator Role = "Administrator"
	RoleEditor        Role = "Editor"
)

// ParseRole accepts the role name case-insensitively.
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "administrator", "admin":
		return RoleAdministrator, nil
	case "editor", "":
		return RoleEditor, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
	}
}

// User is a team member. It doubles as the resolved caller identity that the
// authentication middleware hands to every operation.
type User struct {
	Email            string
	Role             Role
	CanDelete        bool
	CanEditPublished bool
	PasswordHash     string
	JoinedAt         time.Time
}

// IsAdmin reports whether the user is an Administrator.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdministrator
}

// ID returns the normalized identity used for ownership checks and keys.
func (u *User) ID() string {
	if u == nil {
		return ""
	}
	return NormalizeAuthor(u.Email)
}

// MayDelete reports the effective delete capability.
func (u *User) MayDelete() bool {
	return u.IsAdmin() || (u != nil && u.CanDelete)
}

// MayEditPublished reports the effective publish-without-review capability.
func (u *User) MayEditPublished() bool {
	return u.IsAdmin() || (u != nil && u.CanEditPublished)
}

// RequireReview is editorial policy read by clients to choose between
// "submit for review" and "publish". The gate does not consult it.
func (u *User) RequireReview() bool {
	return !u.IsAdmin()
}
