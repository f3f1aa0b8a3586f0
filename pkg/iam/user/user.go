package user

import (
	"net/http"
	"strings"
	"time"

	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/kernel"
)

// Role is a user's role within its organization.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDeveloper Role = "developer"
	RoleViewer    Role = "viewer"
)

// IsValid reports whether the role is known.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleDeveloper, RoleViewer:
		return true
	default:
		return false
	}
}

// User belongs to exactly one organization; its email domain must match the
// organization's domain.
type User struct {
	ID          kernel.UserID `db:"id" json:"id"`
	OrgID       kernel.OrgID  `db:"org_id" json:"org_id"`
	Email       string        `db:"email" json:"email"`
	Name        string        `db:"name" json:"name"`
	Role        Role          `db:"role" json:"role"`
	Active      bool          `db:"is_active" json:"is_active"`
	LastLoginAt *time.Time    `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// BelongsToDomain reports whether the user's email is under the given
// lowercase domain.
func (u *User) BelongsToDomain(domain string) bool {
	at := strings.LastIndex(u.Email, "@")
	if at < 0 {
		return false
	}
	return strings.ToLower(u.Email[at+1:]) == domain
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("USER")

var (
	CodeUserNotFound   = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "User not found")
	CodeDomainMismatch = ErrRegistry.Register("DOMAIN_MISMATCH", errx.TypeValidation, http.StatusBadRequest, "User email domain does not match the organization")
	CodeInvalidRole    = ErrRegistry.Register("INVALID_ROLE", errx.TypeValidation, http.StatusBadRequest, "Invalid role")
)

func ErrUserNotFound() *errx.Error {
	return ErrRegistry.New(CodeUserNotFound)
}

func ErrDomainMismatch() *errx.Error {
	return ErrRegistry.New(CodeDomainMismatch)
}

func ErrInvalidRole() *errx.Error {
	return ErrRegistry.New(CodeInvalidRole)
}
