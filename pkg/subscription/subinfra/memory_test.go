package subinfra_test

import (
	"context"
	"testing"
	"time"

	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/kernel"
	"github.com/gridworks/gridcore/pkg/subscription"
	"github.com/gridworks/gridcore/pkg/subscription/subinfra"
)

func memorySub(id string, status subscription.Status) subscription.Subscription {
	now := time.Now().UTC()
	return subscription.Subscription{
		ID:          kernel.NewSubscriptionID(id),
		ProviderRef: "psub_" + id,
		OrgID:       kernel.NewOrgID("org-hdfc"),
		Status:      status,
		ServiceIDs:  []string{"trading"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// --- MemorySubscriptionRepository tests ---

func TestMemoryRepo_OneLiveSubscriptionPerOrg(t *testing.T) {
	repo := subinfra.NewMemorySubscriptionRepository()
	ctx := context.Background()

	if err := repo.Save(ctx, memorySub("sub-1", subscription.StatusActive)); err != nil {
		t.Fatal(err)
	}

	err := repo.Save(ctx, memorySub("sub-2", subscription.StatusActive))
	if err == nil {
		t.Fatal("second live subscription for the org was accepted")
	}
	if !errx.IsType(err, errx.TypeConflict) {
		t.Fatalf("got %v, want conflict", err)
	}

	// Re-saving the existing subscription is not a conflict.
	updated := memorySub("sub-1", subscription.StatusPastDue)
	if err := repo.Save(ctx, updated); err != nil {
		t.Fatal(err)
	}
}

func TestMemoryRepo_TerminalSubscriptionFreesTheOrg(t *testing.T) {
	repo := subinfra.NewMemorySubscriptionRepository()
	ctx := context.Background()

	if err := repo.Save(ctx, memorySub("sub-1", subscription.StatusCanceled)); err != nil {
		t.Fatal(err)
	}
	if err := repo.Save(ctx, memorySub("sub-2", subscription.StatusActive)); err != nil {
		t.Fatalf("canceled subscription still blocks the org: %v", err)
	}
}
