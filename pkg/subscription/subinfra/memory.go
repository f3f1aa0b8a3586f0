package subinfra

import (
	"context"
	"sync"

	"github.com/gridworks/gridcore/pkg/kernel"
	"github.com/gridworks/gridcore/pkg/subscription"
)

// MemorySubscriptionRepository is an in-memory subscription.Repository for
// fixture mode and tests.
type MemorySubscriptionRepository struct {
	mu    sync.RWMutex
	byID  map[kernel.SubscriptionID]subscription.Subscription
	byRef map[string]kernel.SubscriptionID
}

func NewMemorySubscriptionRepository() *MemorySubscriptionRepository {
	return &MemorySubscriptionRepository{
		byID:  make(map[kernel.SubscriptionID]subscription.Subscription),
		byRef: make(map[string]kernel.SubscriptionID),
	}
}

func (r *MemorySubscriptionRepository) Save(_ context.Context, sub subscription.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// One live subscription per org, matching the partial unique index the
	// Postgres repository surfaces as a 23505.
	if !sub.Status.IsTerminal() {
		for id, existing := range r.byID {
			if id != sub.ID && existing.OrgID == sub.OrgID && !existing.Status.IsTerminal() {
				return subscription.ErrAlreadyExists().WithDetail("org_id", sub.OrgID.String())
			}
		}
	}

	r.byID[sub.ID] = sub
	r.byRef[sub.ProviderRef] = sub.ID
	return nil
}

func (r *MemorySubscriptionRepository) FindByID(_ context.Context, id kernel.SubscriptionID) (*subscription.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.byID[id]
	if !ok {
		return nil, subscription.ErrSubscriptionNotFound()
	}
	copied := sub
	copied.ServiceIDs = append([]string(nil), sub.ServiceIDs...)
	return &copied, nil
}

func (r *MemorySubscriptionRepository) FindByOrg(_ context.Context, orgID kernel.OrgID) (*subscription.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *subscription.Subscription
	for _, sub := range r.byID {
		if sub.OrgID != orgID {
			continue
		}
		if latest == nil || sub.CreatedAt.After(latest.CreatedAt) {
			copied := sub
			copied.ServiceIDs = append([]string(nil), sub.ServiceIDs...)
			latest = &copied
		}
	}
	if latest == nil {
		return nil, subscription.ErrSubscriptionNotFound()
	}
	return latest, nil
}

func (r *MemorySubscriptionRepository) FindByProviderRef(_ context.Context, providerRef string) (*subscription.Subscription, error) {
	r.mu.RLock()
	id, ok := r.byRef[providerRef]
	r.mu.RUnlock()

	if !ok {
		return nil, subscription.ErrSubscriptionNotFound()
	}
	return r.FindByID(context.Background(), id)
}

// MemoryEventStore is an in-memory subscription.ProcessedEventStore.
type MemoryEventStore struct {
	mu        sync.Mutex
	processed map[string]bool
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{processed: make(map[string]bool)}
}

func (s *MemoryEventStore) MarkProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processed[eventID] {
		return false, nil
	}
	s.processed[eventID] = true
	return true, nil
}
