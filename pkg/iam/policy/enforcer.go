package policy

import (
	"context"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/gridworks/gridcore/pkg/iam"
	"github.com/gridworks/gridcore/pkg/iam/org"
	"github.com/gridworks/gridcore/pkg/iam/user"
)

// Enforcer validates sign-in attempts against an organization's
// authentication and security policy.
type Enforcer struct {
	audit AuditService
}

// NewEnforcer creates a policy enforcer. The audit service is required; every
// decision, allow or deny, is recorded.
func NewEnforcer(audit AuditService) *Enforcer {
	return &Enforcer{audit: audit}
}

// AuthorizeSignIn checks a sign-in attempt. The checks run in a fixed order
// and short-circuit on the first failure, so the outcome is deterministic
// even when several checks would fail:
//
//  1. the organization's authentication policy must be enabled
//  2. the attempted provider must match the configured provider
//  3. the client IP must match the allowlist, when one is configured
//  4. a verified MFA assertion must be present, when MFA is required
func (e *Enforcer) AuthorizeSignIn(
	ctx context.Context,
	u *user.User,
	o *org.Organization,
	attempted iam.Provider,
	clientIP string,
	mfa *MFAAssertion,
) Decision {
	decision := e.evaluate(o, attempted, clientIP, mfa)

	e.audit.RecordDecision(ctx, AuditRecord{
		ID:        uuid.NewString(),
		OrgID:     o.ID,
		UserID:    u.ID,
		Provider:  attempted,
		ClientIP:  clientIP,
		Allowed:   decision.Allowed,
		Reason:    string(decision.Reason),
		Timestamp: time.Now().UTC(),
	})

	return decision
}

func (e *Enforcer) evaluate(o *org.Organization, attempted iam.Provider, clientIP string, mfa *MFAAssertion) Decision {
	if !o.AuthPolicy.Enabled || !o.IsActive() {
		return Deny(DenyPolicyDisabled)
	}

	if !providerMatches(o.AuthPolicy.Provider, attempted) {
		return Deny(DenyProviderMismatch)
	}

	if len(o.SecurityPolicy.IPAllowlist) > 0 && !ipAllowed(clientIP, o.SecurityPolicy.IPAllowlist) {
		return Deny(DenyIPRejected)
	}

	if o.SecurityPolicy.MFARequired && !mfa.Satisfied() {
		return Deny(DenyMFARequired)
	}

	return Allow()
}

// providerMatches compares the configured provider against the attempted one,
// exhaustively over the closed provider set. An unknown configured provider
// matches nothing.
func providerMatches(configured, attempted iam.Provider) bool {
	switch configured {
	case iam.ProviderGoogle:
		return attempted == iam.ProviderGoogle
	case iam.ProviderMicrosoft:
		return attempted == iam.ProviderMicrosoft
	case iam.ProviderOkta:
		return attempted == iam.ProviderOkta
	case iam.ProviderSAML:
		return attempted == iam.ProviderSAML
	default:
		return false
	}
}

// ipAllowed reports whether clientIP matches at least one allowlist entry.
// Entries may be CIDR prefixes or single addresses. Unparseable entries or
// client addresses never match.
func ipAllowed(clientIP string, allowlist []string) bool {
	addr, err := netip.ParseAddr(clientIP)
	if err != nil {
		return false
	}

	for _, entry := range allowlist {
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			if prefix.Contains(addr) {
				return true
			}
			continue
		}
		if single, err := netip.ParseAddr(entry); err == nil && single == addr {
			return true
		}
	}
	return false
}
