package user

import (
	"context"

	"github.com/gridworks/gridcore/pkg/kernel"
)

// Repository defines the contract for user persistence.
type Repository interface {
	Save(ctx context.Context, u User) error
	FindByID(ctx context.Context, id kernel.UserID, orgID kernel.OrgID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByOrg(ctx context.Context, orgID kernel.OrgID) ([]*User, error)
	TouchLastLogin(ctx context.Context, id kernel.UserID) error
}
