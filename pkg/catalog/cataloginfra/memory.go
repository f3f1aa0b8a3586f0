package cataloginfra

import (
	"context"
	"sort"
	"sync"

	"github.com/gridworks/gridcore/pkg/catalog"
)

// MemoryCatalogRepository holds catalog reference data in memory. It backs
// tests and fixture deployments through the same catalog.Repository contract
// as the Postgres implementation.
type MemoryCatalogRepository struct {
	mu      sync.RWMutex
	entries map[string]catalog.Entry
}

// NewMemoryCatalogRepository creates an empty in-memory repository.
func NewMemoryCatalogRepository() *MemoryCatalogRepository {
	return &MemoryCatalogRepository{entries: make(map[string]catalog.Entry)}
}

// NewSeededCatalogRepository creates an in-memory repository pre-loaded with
// the standard service catalog.
func NewSeededCatalogRepository() *MemoryCatalogRepository {
	r := NewMemoryCatalogRepository()
	for _, e := range SeedEntries() {
		r.Put(e)
	}
	return r
}

// SeedEntries returns the standard fixture catalog.
func SeedEntries() []catalog.Entry {
	return []catalog.Entry{
		{
			ID:          "ai-suite",
			Name:        "AI Suite",
			BasePrice:   15_000,
			Features:    []string{"support-engine", "intelligence-engine", "moderation"},
			ProviderRef: "price_ai_suite_monthly",
			Active:      true,
		},
		{
			ID:          "trading",
			Name:        "Trading-as-a-Service",
			BasePrice:   25_000,
			Features:    []string{"order-routing", "positions", "market-data"},
			ProviderRef: "price_trading_monthly",
			Active:      true,
		},
		{
			ID:          "banking",
			Name:        "Banking-as-a-Service",
			BasePrice:   30_000,
			Features:    []string{"accounts", "payments", "compliance"},
			ProviderRef: "price_banking_monthly",
			Active:      true,
		},
		{
			ID:          "anonymous",
			Name:        "Anonymous Services",
			BasePrice:   40_000,
			Features:    []string{"portfolio", "communication", "verification"},
			ProviderRef: "price_anonymous_monthly",
			Active:      true,
		},
	}
}

// Put inserts or replaces an entry.
func (r *MemoryCatalogRepository) Put(e catalog.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.ID] = e
}

// FindByID looks up one catalog entry.
func (r *MemoryCatalogRepository) FindByID(_ context.Context, id string) (*catalog.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, catalog.ErrUnknownService(id)
	}
	return &e, nil
}

// FindActive lists all active entries sorted by id.
func (r *MemoryCatalogRepository) FindActive(_ context.Context) ([]catalog.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]catalog.Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Active {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

// Snapshot materializes the active catalog into an immutable view.
func (r *MemoryCatalogRepository) Snapshot(ctx context.Context) (catalog.Snapshot, error) {
	entries, err := r.FindActive(ctx)
	if err != nil {
		return nil, err
	}

	snap := make(catalog.Snapshot, len(entries))
	for _, e := range entries {
		snap[e.ID] = e
	}
	return snap, nil
}
