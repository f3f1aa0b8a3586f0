package orgsrv_test

import (
	"context"
	"testing"

	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/iam/org/orginfra"
	"github.com/gridworks/gridcore/pkg/iam/org/orgsrv"
)

// --- DomainOf tests ---

func TestDomainOf(t *testing.T) {
	cases := []struct {
		email string
		want  string
	}{
		{"advisor@hdfcsec.com", "hdfcsec.com"},
		{"Advisor@HDFCSEC.COM", "hdfcsec.com"},
		{`"odd@local"@acmefintech.dev`, "acmefintech.dev"},
	}
	for _, tc := range cases {
		got, err := orgsrv.DomainOf(tc.email)
		if err != nil {
			t.Fatalf("DomainOf(%q): %v", tc.email, err)
		}
		if got != tc.want {
			t.Fatalf("DomainOf(%q) = %q, want %q", tc.email, got, tc.want)
		}
	}
}

func TestDomainOf_Invalid(t *testing.T) {
	for _, email := range []string{"", "no-at-sign", "trailing@"} {
		if _, err := orgsrv.DomainOf(email); err == nil {
			t.Fatalf("DomainOf(%q): expected error", email)
		}
	}
}

// --- Resolver tests ---

func TestResolveOrganization(t *testing.T) {
	resolver := orgsrv.NewResolver(orginfra.NewSeededOrgRepository())

	o, err := resolver.ResolveOrganization(context.Background(), "advisor@hdfcsec.com")
	if err != nil {
		t.Fatal(err)
	}
	if o.Name != "HDFC Securities" {
		t.Fatalf("resolved %q, want HDFC Securities", o.Name)
	}
}

func TestResolveOrganization_CaseInsensitive(t *testing.T) {
	resolver := orgsrv.NewResolver(orginfra.NewSeededOrgRepository())

	lower, err := resolver.ResolveOrganization(context.Background(), "ops@meridianwealth.in")
	if err != nil {
		t.Fatal(err)
	}
	upper, err := resolver.ResolveOrganization(context.Background(), "ops@MeridianWealth.IN")
	if err != nil {
		t.Fatal(err)
	}
	if lower.ID != upper.ID {
		t.Fatalf("case variants resolved to different orgs: %s vs %s", lower.ID, upper.ID)
	}
}

func TestResolveOrganization_UnknownDomain(t *testing.T) {
	resolver := orgsrv.NewResolver(orginfra.NewSeededOrgRepository())

	_, err := resolver.ResolveOrganization(context.Background(), "nobody@unknown.example")
	if err == nil {
		t.Fatal("expected not-found error")
	}
	if !errx.IsType(err, errx.TypeNotFound) {
		t.Fatalf("expected not-found type, got %v", err)
	}
}
