package apikeysrv_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gridworks/gridcore/pkg/catalog/cataloginfra"
	"github.com/gridworks/gridcore/pkg/config"
	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/iam/apikey"
	"github.com/gridworks/gridcore/pkg/iam/apikey/apikeyinfra"
	"github.com/gridworks/gridcore/pkg/iam/apikey/apikeysrv"
	"github.com/gridworks/gridcore/pkg/iam/org/orginfra"
	"github.com/gridworks/gridcore/pkg/kernel"
)

var testQuotas = config.QuotaConfig{
	SandboxLimit:    100,
	ProductionLimit: 10_000,
	Window:          time.Hour,
}

func newTestService() *apikeysrv.APIKeyService {
	return apikeysrv.NewAPIKeyService(
		apikeyinfra.NewMemoryKeyRepository(),
		apikeyinfra.NewMemoryUsageStore(),
		nil,
		orginfra.NewSeededOrgRepository(),
		cataloginfra.NewSeededCatalogRepository(),
		nil,
		testQuotas,
	)
}

var testOrgID = kernel.NewOrgID("org-hdfc")

func issueTestKey(t *testing.T, svc *apikeysrv.APIKeyService) *apikeysrv.IssueResponse {
	t.Helper()
	resp, err := svc.IssueKey(context.Background(), testOrgID, apikeysrv.IssueRequest{
		Name:        "ci-pipeline",
		Services:    []string{"trading"},
		Environment: apikey.EnvironmentSandbox,
	})
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

// --- Issue tests ---

func TestIssueKey(t *testing.T) {
	svc := newTestService()
	resp := issueTestKey(t, svc)

	if !strings.HasPrefix(resp.Secret, apikey.KeyPrefix) {
		t.Fatalf("secret %q missing %q prefix", resp.Secret, apikey.KeyPrefix)
	}
	if resp.Key.SecretHash == resp.Secret {
		t.Fatal("secret stored in plaintext")
	}
	if resp.Key.UsageLimit != testQuotas.SandboxLimit {
		t.Fatalf("sandbox limit = %d, want %d", resp.Key.UsageLimit, testQuotas.SandboxLimit)
	}
	if !resp.Key.Active {
		t.Fatal("new key not active")
	}
	if !strings.HasPrefix(resp.Secret, strings.TrimSuffix(resp.Key.DisplayPrefix, "...")) {
		t.Fatalf("display prefix %q does not match secret", resp.Key.DisplayPrefix)
	}
}

func TestIssueKey_UnknownService(t *testing.T) {
	svc := newTestService()
	_, err := svc.IssueKey(context.Background(), testOrgID, apikeysrv.IssueRequest{
		Name:        "bad",
		Services:    []string{"does-not-exist"},
		Environment: apikey.EnvironmentSandbox,
	})
	if err == nil {
		t.Fatal("expected error for unknown service id")
	}
}

func TestIssueKey_BadEnvironment(t *testing.T) {
	svc := newTestService()
	_, err := svc.IssueKey(context.Background(), testOrgID, apikeysrv.IssueRequest{
		Name:        "bad",
		Services:    []string{"trading"},
		Environment: apikey.Environment("staging"),
	})
	if err == nil {
		t.Fatal("expected error for unknown environment")
	}
}

func TestIssueKey_PlanOverrideWinsOverDefault(t *testing.T) {
	quotas := testQuotas
	quotas.PlanOverrides = map[string]config.PlanQuota{
		"enterprise": {SandboxLimit: 500, ProductionLimit: 50_000},
	}
	svc := apikeysrv.NewAPIKeyService(
		apikeyinfra.NewMemoryKeyRepository(),
		apikeyinfra.NewMemoryUsageStore(),
		nil,
		orginfra.NewSeededOrgRepository(),
		cataloginfra.NewSeededCatalogRepository(),
		nil,
		quotas,
	)
	ctx := context.Background()

	// org-hdfc is on the enterprise plan and gets the override.
	prod, err := svc.IssueKey(ctx, testOrgID, apikeysrv.IssueRequest{
		Name:        "prod-gateway",
		Services:    []string{"trading"},
		Environment: apikey.EnvironmentProduction,
	})
	if err != nil {
		t.Fatal(err)
	}
	if prod.Key.UsageLimit != 50_000 {
		t.Fatalf("enterprise production limit = %d, want 50000", prod.Key.UsageLimit)
	}

	sandbox, err := svc.IssueKey(ctx, testOrgID, apikeysrv.IssueRequest{
		Name:        "ci-pipeline",
		Services:    []string{"trading"},
		Environment: apikey.EnvironmentSandbox,
	})
	if err != nil {
		t.Fatal(err)
	}
	if sandbox.Key.UsageLimit != 500 {
		t.Fatalf("enterprise sandbox limit = %d, want 500", sandbox.Key.UsageLimit)
	}

	// org-acme is professional with no override and keeps the default.
	acme, err := svc.IssueKey(ctx, kernel.NewOrgID("org-acme"), apikeysrv.IssueRequest{
		Name:        "ci-pipeline",
		Services:    []string{"trading"},
		Environment: apikey.EnvironmentSandbox,
	})
	if err != nil {
		t.Fatal(err)
	}
	if acme.Key.UsageLimit != testQuotas.SandboxLimit {
		t.Fatalf("professional sandbox limit = %d, want %d", acme.Key.UsageLimit, testQuotas.SandboxLimit)
	}
}

// --- Validate tests ---

func TestValidateKey(t *testing.T) {
	svc := newTestService()
	resp := issueTestKey(t, svc)

	key, err := svc.ValidateKey(context.Background(), resp.Secret)
	if err != nil {
		t.Fatal(err)
	}
	if key.ID != resp.Key.ID {
		t.Fatalf("validated key id = %s, want %s", key.ID, resp.Key.ID)
	}

	if _, err := svc.ValidateKey(context.Background(), "gw_not-a-real-secret"); err == nil {
		t.Fatal("expected error for unknown secret")
	}
	if _, err := svc.ValidateKey(context.Background(), "sk_wrong-prefix"); err == nil {
		t.Fatal("expected error for wrong prefix")
	}
}

// --- Revoke tests ---

func TestRevokeKey_Terminal(t *testing.T) {
	svc := newTestService()
	resp := issueTestKey(t, svc)
	ctx := context.Background()

	if err := svc.RevokeKey(ctx, resp.Key.ID, testOrgID); err != nil {
		t.Fatal(err)
	}
	// Idempotent.
	if err := svc.RevokeKey(ctx, resp.Key.ID, testOrgID); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ValidateKey(ctx, resp.Secret); err == nil {
		t.Fatal("revoked key still validates")
	}
	if _, err := svc.RecordUsage(ctx, resp.Key.ID, testOrgID, 1); err == nil {
		t.Fatal("revoked key still accepts usage")
	}
}

// --- Rotate tests ---

func TestRotate(t *testing.T) {
	svc := newTestService()
	old := issueTestKey(t, svc)
	ctx := context.Background()

	rotated, err := svc.Rotate(ctx, old.Key.ID, testOrgID)
	if err != nil {
		t.Fatal(err)
	}
	if rotated.Key.ID == old.Key.ID {
		t.Fatal("rotation reused the key id")
	}
	if rotated.Key.Name != old.Key.Name || rotated.Key.Environment != old.Key.Environment {
		t.Fatalf("rotation changed metadata: %+v", rotated.Key)
	}

	// Old secret dead, new secret live.
	if _, err := svc.ValidateKey(ctx, old.Secret); err == nil {
		t.Fatal("old secret still validates after rotation")
	}
	if _, err := svc.ValidateKey(ctx, rotated.Secret); err != nil {
		t.Fatalf("new secret does not validate: %v", err)
	}

	// A revoked key cannot be rotated.
	if _, err := svc.Rotate(ctx, old.Key.ID, testOrgID); err == nil {
		t.Fatal("expected error rotating a revoked key")
	}
}

// --- Usage tests ---

func TestRecordUsage_QuotaEnforced(t *testing.T) {
	svc := newTestService()
	resp := issueTestKey(t, svc)
	ctx := context.Background()

	usage, err := svc.RecordUsage(ctx, resp.Key.ID, testOrgID, 99)
	if err != nil {
		t.Fatal(err)
	}
	if usage.Count != 99 || usage.Remaining() != 1 {
		t.Fatalf("usage = %d, remaining = %d", usage.Count, usage.Remaining())
	}

	if _, err := svc.RecordUsage(ctx, resp.Key.ID, testOrgID, 2); err == nil {
		t.Fatal("expected quota error")
	}

	// The rejected increment must not have consumed anything.
	usage, err = svc.GetUsage(ctx, resp.Key.ID, testOrgID)
	if err != nil {
		t.Fatal(err)
	}
	if usage.Count != 99 {
		t.Fatalf("rejected increment changed counter: %d", usage.Count)
	}

	// The last unit is still available.
	if _, err := svc.RecordUsage(ctx, resp.Key.ID, testOrgID, 1); err != nil {
		t.Fatalf("last unit rejected: %v", err)
	}

	_, err = svc.RecordUsage(ctx, resp.Key.ID, testOrgID, 1)
	var appErr *errx.Error
	if !errors.As(err, &appErr) || appErr.Code != apikey.ErrCodeQuotaExceeded.Code {
		t.Fatalf("expected QUOTA_EXCEEDED, got %v", err)
	}
}
