package iamsrv_test

import (
	"context"
	"testing"
	"time"

	"github.com/gridworks/gridcore/pkg/iam"
	"github.com/gridworks/gridcore/pkg/iam/iamsrv"
	"github.com/gridworks/gridcore/pkg/iam/org/orginfra"
	"github.com/gridworks/gridcore/pkg/iam/org/orgsrv"
	"github.com/gridworks/gridcore/pkg/iam/policy"
	"github.com/gridworks/gridcore/pkg/iam/policy/policyinfra"
	"github.com/gridworks/gridcore/pkg/iam/session"
	"github.com/gridworks/gridcore/pkg/iam/session/sessioninfra"
	"github.com/gridworks/gridcore/pkg/iam/user/userinfra"
	"github.com/gridworks/gridcore/pkg/kernel"
	"github.com/gridworks/gridcore/pkg/subscription"
	"github.com/gridworks/gridcore/pkg/subscription/subinfra"
)

func newSignInService(t *testing.T) (*iamsrv.SignInService, *subinfra.MemorySubscriptionRepository) {
	t.Helper()
	subRepo := subinfra.NewMemorySubscriptionRepository()
	sessions := session.NewJWTService("test-secret", time.Hour, "",
		sessioninfra.NewLRURevocationList(128, time.Hour))
	svc := iamsrv.NewSignInService(
		orgsrv.NewResolver(orginfra.NewSeededOrgRepository()),
		userinfra.NewSeededUserRepository(),
		policy.NewEnforcer(policyinfra.NewLogxAuditService()),
		sessions,
		subRepo,
	)
	return svc, subRepo
}

func TestSignIn(t *testing.T) {
	svc, subRepo := newSignInService(t)
	ctx := context.Background()

	// Acme has an active subscription covering two services.
	now := time.Now().UTC()
	subRepo.Save(ctx, subscription.Subscription{
		ID:          kernel.NewSubscriptionID("sub-acme"),
		ProviderRef: "psub_acme",
		OrgID:       kernel.NewOrgID("org-acme"),
		Status:      subscription.StatusActive,
		ServiceIDs:  []string{"trading", "banking"},
		CreatedAt:   now,
		UpdatedAt:   now,
	})

	result, err := svc.SignIn(ctx, "dana@acmefintech.dev", iam.ProviderGoogle, "198.51.100.7", nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Token == "" {
		t.Fatal("sign-in returned empty token")
	}
	if result.Claims.OrgID != kernel.NewOrgID("org-acme") {
		t.Fatalf("claims org = %s", result.Claims.OrgID)
	}
	if len(result.Claims.Services) != 2 {
		t.Fatalf("services claim = %v, want the active subscription's services", result.Claims.Services)
	}

	// The issued token verifies and the claims round-trip.
	claims, err := svc.Verify(ctx, result.Token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Email != "dana@acmefintech.dev" {
		t.Fatalf("verified email = %s", claims.Email)
	}
}

func TestSignIn_NoSubscriptionMeansNoServices(t *testing.T) {
	svc, _ := newSignInService(t)

	result, err := svc.SignIn(context.Background(), "dana@acmefintech.dev", iam.ProviderGoogle, "198.51.100.7", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Claims.Services) != 0 {
		t.Fatalf("services claim = %v, want empty without an active subscription", result.Claims.Services)
	}
}

func TestSignIn_UnknownDomain(t *testing.T) {
	svc, _ := newSignInService(t)

	_, err := svc.SignIn(context.Background(), "nobody@unknown.example", iam.ProviderGoogle, "198.51.100.7", nil)
	if err == nil {
		t.Fatal("expected org-not-found error")
	}
}

func TestSignIn_PolicyDenied(t *testing.T) {
	svc, _ := newSignInService(t)
	ctx := context.Background()

	// HDFC requires microsoft; a google attempt is denied.
	if _, err := svc.SignIn(ctx, "priya.sharma@hdfcsec.com", iam.ProviderGoogle, "203.0.113.9", nil); err == nil {
		t.Fatal("expected provider-mismatch denial")
	}

	// Right provider, IP outside the allowlist.
	mfa := &policy.MFAAssertion{Method: "totp", Verified: true}
	if _, err := svc.SignIn(ctx, "priya.sharma@hdfcsec.com", iam.ProviderMicrosoft, "192.0.2.1", mfa); err == nil {
		t.Fatal("expected IP denial")
	}

	// All policy gates satisfied.
	if _, err := svc.SignIn(ctx, "priya.sharma@hdfcsec.com", iam.ProviderMicrosoft, "203.0.113.9", mfa); err != nil {
		t.Fatalf("compliant sign-in denied: %v", err)
	}
}

func TestSignOut_RevokesSession(t *testing.T) {
	svc, _ := newSignInService(t)
	ctx := context.Background()

	result, err := svc.SignIn(ctx, "dana@acmefintech.dev", iam.ProviderGoogle, "198.51.100.7", nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.SignOut(ctx, result.Token); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Verify(ctx, result.Token); err == nil {
		t.Fatal("signed-out token still verifies")
	}
}
