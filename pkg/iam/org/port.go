package org

import (
	"context"

	"github.com/gridworks/gridcore/pkg/kernel"
)

// Repository defines the contract for organization persistence.
type Repository interface {
	Save(ctx context.Context, o Organization) error
	FindByID(ctx context.Context, id kernel.OrgID) (*Organization, error)

	// FindByDomain looks up the single organization owning a domain.
	// The domain argument must already be lowercase.
	FindByDomain(ctx context.Context, domain string) (*Organization, error)
}
