package orginfra

import (
	"context"
	"sync"
	"time"

	"github.com/gridworks/gridcore/pkg/catalog"
	"github.com/gridworks/gridcore/pkg/iam"
	"github.com/gridworks/gridcore/pkg/iam/org"
	"github.com/gridworks/gridcore/pkg/kernel"
)

// MemoryOrgRepository is an in-memory org.Repository for tests and fixture
// deployments.
type MemoryOrgRepository struct {
	mu       sync.RWMutex
	byID     map[kernel.OrgID]org.Organization
	byDomain map[string]kernel.OrgID
}

// NewMemoryOrgRepository creates an empty in-memory repository.
func NewMemoryOrgRepository() *MemoryOrgRepository {
	return &MemoryOrgRepository{
		byID:     make(map[kernel.OrgID]org.Organization),
		byDomain: make(map[string]kernel.OrgID),
	}
}

// NewSeededOrgRepository creates an in-memory repository pre-loaded with
// fixture organizations.
func NewSeededOrgRepository() *MemoryOrgRepository {
	r := NewMemoryOrgRepository()
	now := time.Now().UTC()
	for _, o := range []org.Organization{
		{
			ID:     kernel.NewOrgID("org-hdfc"),
			Name:   "HDFC Securities",
			Domain: "hdfcsec.com",
			Plan:   catalog.PlanEnterprise,
			AuthPolicy: org.AuthPolicy{
				Provider: iam.ProviderMicrosoft,
				Enabled:  true,
			},
			SecurityPolicy: org.SecurityPolicy{
				IPAllowlist:     []string{"203.0.113.0/24"},
				MFARequired:     true,
				KeyRotationDays: 90,
			},
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:     kernel.NewOrgID("org-meridian"),
			Name:   "Meridian Wealth",
			Domain: "meridianwealth.in",
			Plan:   catalog.PlanUHNW,
			AuthPolicy: org.AuthPolicy{
				Provider: iam.ProviderOkta,
				Enabled:  true,
			},
			SecurityPolicy: org.SecurityPolicy{
				MFARequired:     true,
				KeyRotationDays: 30,
			},
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:     kernel.NewOrgID("org-acme"),
			Name:   "Acme Fintech",
			Domain: "acmefintech.dev",
			Plan:   catalog.PlanProfessional,
			AuthPolicy: org.AuthPolicy{
				Provider: iam.ProviderGoogle,
				Enabled:  true,
			},
			SecurityPolicy: org.SecurityPolicy{
				KeyRotationDays: 180,
			},
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		},
	} {
		if err := r.Save(context.Background(), o); err != nil {
			panic(err)
		}
	}
	return r
}

// Save inserts or updates an organization, enforcing domain uniqueness.
func (r *MemoryOrgRepository) Save(_ context.Context, o org.Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, taken := r.byDomain[o.Domain]; taken && owner != o.ID {
		return org.ErrDomainTaken().WithDetail("domain", o.Domain)
	}

	if prev, ok := r.byID[o.ID]; ok && prev.Domain != o.Domain {
		delete(r.byDomain, prev.Domain)
	}
	r.byID[o.ID] = o
	r.byDomain[o.Domain] = o.ID
	return nil
}

// FindByID looks up an organization by id.
func (r *MemoryOrgRepository) FindByID(_ context.Context, id kernel.OrgID) (*org.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.byID[id]
	if !ok {
		return nil, org.ErrOrgNotFound()
	}
	return &o, nil
}

// FindByDomain looks up the single organization owning a lowercase domain.
func (r *MemoryOrgRepository) FindByDomain(_ context.Context, domain string) (*org.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byDomain[domain]
	if !ok {
		return nil, org.ErrOrgNotFound().WithDetail("domain", domain)
	}
	o := r.byID[id]
	return &o, nil
}
