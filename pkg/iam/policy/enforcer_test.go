package policy_test

import (
	"context"
	"testing"

	"github.com/gridworks/gridcore/pkg/iam"
	"github.com/gridworks/gridcore/pkg/iam/org"
	"github.com/gridworks/gridcore/pkg/iam/policy"
	"github.com/gridworks/gridcore/pkg/iam/user"
	"github.com/gridworks/gridcore/pkg/kernel"
)

// recordingAudit captures every decision passed to it.
type recordingAudit struct {
	records []policy.AuditRecord
}

func (a *recordingAudit) RecordDecision(_ context.Context, record policy.AuditRecord) {
	a.records = append(a.records, record)
}

func testOrg() *org.Organization {
	return &org.Organization{
		ID:     kernel.NewOrgID("org-test"),
		Name:   "Test Org",
		Domain: "test.example",
		AuthPolicy: org.AuthPolicy{
			Provider: iam.ProviderGoogle,
			Enabled:  true,
		},
		Active: true,
	}
}

func testUser() *user.User {
	return &user.User{
		ID:     kernel.NewUserID("user-test"),
		OrgID:  kernel.NewOrgID("org-test"),
		Email:  "alice@test.example",
		Role:   user.RoleDeveloper,
		Active: true,
	}
}

func TestAuthorizeSignIn_Allows(t *testing.T) {
	audit := &recordingAudit{}
	e := policy.NewEnforcer(audit)

	d := e.AuthorizeSignIn(context.Background(), testUser(), testOrg(), iam.ProviderGoogle, "198.51.100.7", nil)
	if !d.Allowed {
		t.Fatalf("expected allow, got deny(%s)", d.Reason)
	}
	if len(audit.records) != 1 || !audit.records[0].Allowed {
		t.Fatalf("allow decision not audited: %+v", audit.records)
	}
}

func TestAuthorizeSignIn_DisabledPolicy(t *testing.T) {
	o := testOrg()
	o.AuthPolicy.Enabled = false

	d := policy.NewEnforcer(&recordingAudit{}).
		AuthorizeSignIn(context.Background(), testUser(), o, iam.ProviderGoogle, "198.51.100.7", nil)
	if d.Allowed || d.Reason != policy.DenyPolicyDisabled {
		t.Fatalf("expected POLICY_DISABLED, got %+v", d)
	}
}

func TestAuthorizeSignIn_ProviderMismatch(t *testing.T) {
	d := policy.NewEnforcer(&recordingAudit{}).
		AuthorizeSignIn(context.Background(), testUser(), testOrg(), iam.ProviderOkta, "198.51.100.7", nil)
	if d.Allowed || d.Reason != policy.DenyProviderMismatch {
		t.Fatalf("expected PROVIDER_MISMATCH, got %+v", d)
	}
}

func TestAuthorizeSignIn_IPRejected(t *testing.T) {
	o := testOrg()
	o.SecurityPolicy.IPAllowlist = []string{"203.0.113.0/24", "198.51.100.50"}

	e := policy.NewEnforcer(&recordingAudit{})

	// In range.
	if d := e.AuthorizeSignIn(context.Background(), testUser(), o, iam.ProviderGoogle, "203.0.113.9", nil); !d.Allowed {
		t.Fatalf("in-range IP denied: %+v", d)
	}
	// Exact single-address entry.
	if d := e.AuthorizeSignIn(context.Background(), testUser(), o, iam.ProviderGoogle, "198.51.100.50", nil); !d.Allowed {
		t.Fatalf("single-address entry denied: %+v", d)
	}
	// Outside.
	d := e.AuthorizeSignIn(context.Background(), testUser(), o, iam.ProviderGoogle, "192.0.2.1", nil)
	if d.Allowed || d.Reason != policy.DenyIPRejected {
		t.Fatalf("expected IP_REJECTED, got %+v", d)
	}
	// Garbage client address never matches.
	d = e.AuthorizeSignIn(context.Background(), testUser(), o, iam.ProviderGoogle, "not-an-ip", nil)
	if d.Allowed || d.Reason != policy.DenyIPRejected {
		t.Fatalf("expected IP_REJECTED for unparseable address, got %+v", d)
	}
}

func TestAuthorizeSignIn_MFARequired(t *testing.T) {
	o := testOrg()
	o.SecurityPolicy.MFARequired = true

	e := policy.NewEnforcer(&recordingAudit{})

	d := e.AuthorizeSignIn(context.Background(), testUser(), o, iam.ProviderGoogle, "198.51.100.7", nil)
	if d.Allowed || d.Reason != policy.DenyMFARequired {
		t.Fatalf("expected MFA_REQUIRED without assertion, got %+v", d)
	}

	d = e.AuthorizeSignIn(context.Background(), testUser(), o, iam.ProviderGoogle, "198.51.100.7",
		&policy.MFAAssertion{Method: "totp", Verified: true})
	if !d.Allowed {
		t.Fatalf("verified assertion still denied: %+v", d)
	}

	// Unverified assertion does not satisfy the requirement.
	d = e.AuthorizeSignIn(context.Background(), testUser(), o, iam.ProviderGoogle, "198.51.100.7",
		&policy.MFAAssertion{Method: "totp"})
	if d.Allowed || d.Reason != policy.DenyMFARequired {
		t.Fatalf("expected MFA_REQUIRED for unverified assertion, got %+v", d)
	}
}

func TestAuthorizeSignIn_FixedCheckOrder(t *testing.T) {
	// All four checks would fail. The first one in order wins.
	o := testOrg()
	o.AuthPolicy.Enabled = false
	o.SecurityPolicy.IPAllowlist = []string{"203.0.113.0/24"}
	o.SecurityPolicy.MFARequired = true

	d := policy.NewEnforcer(&recordingAudit{}).
		AuthorizeSignIn(context.Background(), testUser(), o, iam.ProviderSAML, "192.0.2.1", nil)
	if d.Reason != policy.DenyPolicyDisabled {
		t.Fatalf("expected first failing check to win, got %s", d.Reason)
	}
}

func TestAuthorizeSignIn_DeniesAreAudited(t *testing.T) {
	audit := &recordingAudit{}
	e := policy.NewEnforcer(audit)

	e.AuthorizeSignIn(context.Background(), testUser(), testOrg(), iam.ProviderSAML, "198.51.100.7", nil)

	if len(audit.records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(audit.records))
	}
	r := audit.records[0]
	if r.Allowed || r.Reason != string(policy.DenyProviderMismatch) {
		t.Fatalf("audit record does not match decision: %+v", r)
	}
	if r.ID == "" || r.OrgID == "" || r.UserID == "" {
		t.Fatalf("audit record missing identity fields: %+v", r)
	}
}
