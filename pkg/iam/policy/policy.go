package policy

import (
	"net/http"
	"time"

	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/iam"
	"github.com/gridworks/gridcore/pkg/kernel"
)

// ============================================================================
// Decisions
// ============================================================================

// DenyReason is the stable, UX-facing reason code of a denied sign-in.
type DenyReason string

const (
	DenyPolicyDisabled   DenyReason = "POLICY_DISABLED"
	DenyProviderMismatch DenyReason = "PROVIDER_MISMATCH"
	DenyIPRejected       DenyReason = "IP_REJECTED"
	DenyMFARequired      DenyReason = "MFA_REQUIRED"
)

// Decision is the outcome of a sign-in authorization check.
type Decision struct {
	Allowed bool       `json:"allowed"`
	Reason  DenyReason `json:"reason,omitempty"`
}

// Allow is the positive decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny builds a negative decision with a reason.
func Deny(reason DenyReason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// MFAAssertion is the result of a completed multi-factor challenge, produced
// by the external identity provider and passed through opaquely.
type MFAAssertion struct {
	Method     string    `json:"method"`
	VerifiedAt time.Time `json:"verified_at"`
	Verified   bool      `json:"verified"`
}

// Satisfied reports whether the assertion proves a completed challenge.
func (a *MFAAssertion) Satisfied() bool {
	return a != nil && a.Verified
}

// ============================================================================
// Audit
// ============================================================================

// AuditRecord is one append-only entry in the sign-in audit log. Records are
// written once and never mutated.
type AuditRecord struct {
	ID        string        `db:"id" json:"id"`
	OrgID     kernel.OrgID  `db:"org_id" json:"org_id"`
	UserID    kernel.UserID `db:"user_id" json:"user_id"`
	Provider  iam.Provider  `db:"provider" json:"provider"`
	ClientIP  string        `db:"client_ip" json:"client_ip"`
	Allowed   bool          `db:"allowed" json:"allowed"`
	Reason    string        `db:"reason" json:"reason,omitempty"`
	Timestamp time.Time     `db:"created_at" json:"timestamp"`
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("POLICY")

var (
	CodeDenied = ErrRegistry.Register("DENIED", errx.TypeAuthorization, http.StatusForbidden, "Sign-in denied by organization policy")
)

// ErrPolicyDenied wraps a deny decision as a transportable error carrying the
// stable reason code.
func ErrPolicyDenied(reason DenyReason) *errx.Error {
	return ErrRegistry.New(CodeDenied).WithDetail("reason", string(reason))
}
