package userinfra

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gridworks/gridcore/pkg/iam/user"
	"github.com/gridworks/gridcore/pkg/kernel"
)

// MemoryUserRepository is an in-memory user.Repository for tests and fixture
// deployments.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[kernel.UserID]user.User
	byEmail map[string]kernel.UserID
}

// NewMemoryUserRepository creates an empty in-memory repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[kernel.UserID]user.User),
		byEmail: make(map[string]kernel.UserID),
	}
}

// NewSeededUserRepository creates an in-memory repository pre-loaded with
// fixture users matching the seeded organizations.
func NewSeededUserRepository() *MemoryUserRepository {
	r := NewMemoryUserRepository()
	now := time.Now().UTC()
	for _, u := range []user.User{
		{
			ID:        kernel.NewUserID("user-priya"),
			OrgID:     kernel.NewOrgID("org-hdfc"),
			Email:     "priya.sharma@hdfcsec.com",
			Name:      "Priya Sharma",
			Role:      user.RoleAdmin,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:        kernel.NewUserID("user-arjun"),
			OrgID:     kernel.NewOrgID("org-hdfc"),
			Email:     "arjun.mehta@hdfcsec.com",
			Name:      "Arjun Mehta",
			Role:      user.RoleDeveloper,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:        kernel.NewUserID("user-dana"),
			OrgID:     kernel.NewOrgID("org-acme"),
			Email:     "dana@acmefintech.dev",
			Name:      "Dana Kapoor",
			Role:      user.RoleAdmin,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		},
	} {
		_ = r.Save(context.Background(), u)
	}
	return r
}

// Save inserts or updates a user.
func (r *MemoryUserRepository) Save(_ context.Context, u user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u.Email = strings.ToLower(u.Email)
	if prev, ok := r.byID[u.ID]; ok && prev.Email != u.Email {
		delete(r.byEmail, prev.Email)
	}
	r.byID[u.ID] = u
	r.byEmail[u.Email] = u.ID
	return nil
}

// FindByID looks up a user scoped to its organization.
func (r *MemoryUserRepository) FindByID(_ context.Context, id kernel.UserID, orgID kernel.OrgID) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok || u.OrgID != orgID {
		return nil, user.ErrUserNotFound()
	}
	return &u, nil
}

// FindByEmail looks up a user by email, case-insensitively.
func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, user.ErrUserNotFound()
	}
	u := r.byID[id]
	return &u, nil
}

// FindByOrg lists the users of an organization.
func (r *MemoryUserRepository) FindByOrg(_ context.Context, orgID kernel.OrgID) ([]*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var users []*user.User
	for _, u := range r.byID {
		if u.OrgID == orgID {
			u := u
			users = append(users, &u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// TouchLastLogin records a successful sign-in.
func (r *MemoryUserRepository) TouchLastLogin(_ context.Context, id kernel.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return user.ErrUserNotFound()
	}
	now := time.Now().UTC()
	u.LastLoginAt = &now
	u.UpdatedAt = now
	r.byID[id] = u
	return nil
}
