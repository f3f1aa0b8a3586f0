package orgsrv

import (
	"context"
	"strings"

	"github.com/gridworks/gridcore/pkg/iam/org"
	"github.com/gridworks/gridcore/pkg/kernel"
)

// Resolver maps caller email addresses to their owning organization.
type Resolver struct {
	orgRepo org.Repository
}

// NewResolver creates a new identity resolver.
func NewResolver(orgRepo org.Repository) *Resolver {
	return &Resolver{orgRepo: orgRepo}
}

// ResolveOrganization resolves the organization owning the domain portion of
// an email address. The lookup is case-insensitive on the domain and has no
// side effects.
func (r *Resolver) ResolveOrganization(ctx context.Context, email string) (*org.Organization, error) {
	domain, err := DomainOf(email)
	if err != nil {
		return nil, err
	}
	return r.orgRepo.FindByDomain(ctx, domain)
}

// OrgByID looks an organization up by its ID.
func (r *Resolver) OrgByID(ctx context.Context, id kernel.OrgID) (*org.Organization, error) {
	return r.orgRepo.FindByID(ctx, id)
}

// DomainOf extracts and normalizes the domain portion of an email address.
// Addresses with quoted local parts may contain '@', so the split happens at
// the last one.
func DomainOf(email string) (string, error) {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return "", org.ErrInvalidEmail().WithDetail("email", email)
	}
	return strings.ToLower(email[at+1:]), nil
}
