// Package pricing computes service cost quotes from a plan tier and a set of
// selected catalog add-ons. ComputeQuote is a pure function: identical inputs
// always produce an identical Quote, which both the dashboard cache and the
// billing reconciliation path rely on.
package pricing

import (
	"sort"

	"github.com/gridworks/gridcore/pkg/catalog"
)

// volumeDiscountBps is the flat volume discount applied once three or more
// distinct services are selected. The rate does not increase further for
// larger selections.
const volumeDiscountBps int64 = 1000

// volumeDiscountThreshold is the minimum distinct-service count for the
// volume discount.
const volumeDiscountThreshold = 3

// LineItem is one priced component of a quote.
type LineItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Kind      string `json:"kind"` // "plan" or "service"
}

// Quote is the derived cost breakdown for a plan and service selection.
// Amounts are whole rupees per month. Quotes are never persisted.
type Quote struct {
	Plan           catalog.PlanTier `json:"plan"`
	ServiceIDs     []string         `json:"service_ids"`
	LineItems      []LineItem       `json:"line_items"`
	BaseTotal      int64            `json:"base_total"`
	PlanDiscount   int64            `json:"plan_discount"`
	VolumeDiscount int64            `json:"volume_discount"`
	FinalTotal     int64            `json:"final_total"`
}

// ComputeQuote prices a plan tier plus selected service add-ons against a
// catalog snapshot.
//
// Selected ids are deduplicated; unknown ids are rejected. The plan discount
// and the volume discount are summed, not compounded, and both apply to the
// full base total. The final total never goes below zero.
func ComputeQuote(plan catalog.PlanTier, selectedServiceIDs []string, snap catalog.Snapshot) (*Quote, error) {
	if !plan.IsValid() {
		return nil, catalog.ErrUnknownPlan(string(plan))
	}

	// Deduplicate into a sorted set so the output is independent of input
	// order and repetition.
	set := make(map[string]struct{}, len(selectedServiceIDs))
	for _, id := range selectedServiceIDs {
		set[id] = struct{}{}
	}
	serviceIDs := make([]string, 0, len(set))
	for id := range set {
		serviceIDs = append(serviceIDs, id)
	}
	sort.Strings(serviceIDs)

	lineItems := make([]LineItem, 0, len(serviceIDs)+1)
	lineItems = append(lineItems, LineItem{
		ID:        string(plan),
		Name:      "Plan " + string(plan),
		UnitPrice: plan.BasePrice(),
		Kind:      "plan",
	})

	baseTotal := plan.BasePrice()
	for _, id := range serviceIDs {
		entry, ok := snap.Lookup(id)
		if !ok {
			return nil, catalog.ErrUnknownService(id)
		}
		baseTotal += entry.BasePrice
		lineItems = append(lineItems, LineItem{
			ID:        entry.ID,
			Name:      entry.Name,
			UnitPrice: entry.BasePrice,
			Kind:      "service",
		})
	}

	planBps := plan.DiscountBps()
	volumeBps := int64(0)
	if len(serviceIDs) >= volumeDiscountThreshold {
		volumeBps = volumeDiscountBps
	}

	// Integer basis-point arithmetic keeps the computation bit-for-bit
	// reproducible across platforms.
	planDiscount := baseTotal * planBps / 10_000
	volumeDiscount := baseTotal * volumeBps / 10_000

	finalTotal := baseTotal - planDiscount - volumeDiscount
	if finalTotal < 0 {
		finalTotal = 0
	}

	return &Quote{
		Plan:           plan,
		ServiceIDs:     serviceIDs,
		LineItems:      lineItems,
		BaseTotal:      baseTotal,
		PlanDiscount:   planDiscount,
		VolumeDiscount: volumeDiscount,
		FinalTotal:     finalTotal,
	}, nil
}
