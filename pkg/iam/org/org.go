package org

import (
	"net/http"
	"time"

	"github.com/gridworks/gridcore/pkg/catalog"
	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/iam"
	"github.com/gridworks/gridcore/pkg/kernel"
)

// ============================================================================
// Domain Model
// ============================================================================

// AuthPolicy binds an organization to a single sign-in provider.
type AuthPolicy struct {
	Provider iam.Provider `db:"auth_provider" json:"provider"`
	Enabled  bool         `db:"auth_enabled" json:"enabled"`
}

// SecurityPolicy is the organization's network and credential policy.
type SecurityPolicy struct {
	IPAllowlist     []string `json:"ip_allowlist"`      // CIDR entries; empty means no restriction
	MFARequired     bool     `json:"mfa_required"`
	KeyRotationDays int      `json:"key_rotation_days"`
}

// Organization is the billing- and policy-owning tenant. Its domain is
// globally unique (stored lowercase) and determines at most one organization.
type Organization struct {
	ID             kernel.OrgID     `db:"id" json:"id"`
	Name           string           `db:"name" json:"name"`
	Domain         string           `db:"domain" json:"domain"`
	Plan           catalog.PlanTier `db:"plan" json:"plan"`
	AuthPolicy     AuthPolicy       `json:"auth_policy"`
	SecurityPolicy SecurityPolicy   `json:"security_policy"`
	Active         bool             `db:"is_active" json:"is_active"`
	SuspendReason  string           `db:"suspend_reason" json:"suspend_reason,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// IsActive reports whether the organization may sign in and issue credentials.
func (o *Organization) IsActive() bool {
	return o.Active
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("ORG")

var (
	CodeOrgNotFound  = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Organization not found")
	CodeInvalidEmail = ErrRegistry.Register("INVALID_EMAIL", errx.TypeValidation, http.StatusBadRequest, "Email address has no resolvable domain")
	CodeSuspended    = ErrRegistry.Register("SUSPENDED", errx.TypeBusiness, http.StatusForbidden, "Organization is suspended")
	CodeDomainTaken  = ErrRegistry.Register("DOMAIN_TAKEN", errx.TypeConflict, http.StatusConflict, "Domain already belongs to another organization")
)

func ErrOrgNotFound() *errx.Error {
	return ErrRegistry.New(CodeOrgNotFound)
}

func ErrInvalidEmail() *errx.Error {
	return ErrRegistry.New(CodeInvalidEmail)
}

func ErrOrgSuspended() *errx.Error {
	return ErrRegistry.New(CodeSuspended)
}

func ErrDomainTaken() *errx.Error {
	return ErrRegistry.New(CodeDomainTaken)
}
