package pricing_test

import (
	"reflect"
	"testing"

	"github.com/gridworks/gridcore/pkg/catalog"
	"github.com/gridworks/gridcore/pkg/pricing"
)

func testSnapshot() catalog.Snapshot {
	return catalog.Snapshot{
		"portfolio-analytics": {ID: "portfolio-analytics", Name: "Portfolio Analytics", BasePrice: 30_000, Active: true},
		"tax-advisory":        {ID: "tax-advisory", Name: "Tax Advisory", BasePrice: 25_000, Active: true},
		"estate-planning":     {ID: "estate-planning", Name: "Estate Planning", BasePrice: 15_000, Active: true},
		"concierge-desk":      {ID: "concierge-desk", Name: "Concierge Desk", BasePrice: 10_000, Active: true},
	}
}

func TestComputeQuote_EnterpriseThreeServices(t *testing.T) {
	snap := testSnapshot()

	q, err := pricing.ComputeQuote(catalog.PlanEnterprise,
		[]string{"portfolio-analytics", "tax-advisory", "estate-planning"}, snap)
	if err != nil {
		t.Fatal(err)
	}

	// base: 50,000 plan + 30,000 + 25,000 + 15,000 = 120,000
	if q.BaseTotal != 120_000 {
		t.Fatalf("base total = %d, want 120000", q.BaseTotal)
	}
	// enterprise discount is 15%
	if q.PlanDiscount != 18_000 {
		t.Fatalf("plan discount = %d, want 18000", q.PlanDiscount)
	}
	// three services triggers the 10% volume discount
	if q.VolumeDiscount != 12_000 {
		t.Fatalf("volume discount = %d, want 12000", q.VolumeDiscount)
	}
	if q.FinalTotal != 90_000 {
		t.Fatalf("final total = %d, want 90000", q.FinalTotal)
	}
	if len(q.LineItems) != 4 {
		t.Fatalf("expected 4 line items, got %d", len(q.LineItems))
	}
	if q.LineItems[0].Kind != "plan" {
		t.Fatalf("first line item should be the plan, got %q", q.LineItems[0].Kind)
	}
}

func TestComputeQuote_NoVolumeDiscountUnderThreshold(t *testing.T) {
	snap := testSnapshot()

	q, err := pricing.ComputeQuote(catalog.PlanProfessional,
		[]string{"tax-advisory", "estate-planning"}, snap)
	if err != nil {
		t.Fatal(err)
	}
	if q.VolumeDiscount != 0 {
		t.Fatalf("volume discount = %d, want 0 for two services", q.VolumeDiscount)
	}
	// professional has no plan discount
	if q.PlanDiscount != 0 {
		t.Fatalf("plan discount = %d, want 0 for professional", q.PlanDiscount)
	}
	if q.FinalTotal != q.BaseTotal {
		t.Fatalf("final %d should equal base %d with no discounts", q.FinalTotal, q.BaseTotal)
	}
}

func TestComputeQuote_DiscountsSumNotCompound(t *testing.T) {
	snap := testSnapshot()

	q, err := pricing.ComputeQuote(catalog.PlanUHNW,
		[]string{"portfolio-analytics", "tax-advisory", "estate-planning", "concierge-desk"}, snap)
	if err != nil {
		t.Fatal(err)
	}

	// base: 100,000 + 80,000 = 180,000; both discounts apply to the full base
	if q.BaseTotal != 180_000 {
		t.Fatalf("base total = %d, want 180000", q.BaseTotal)
	}
	wantPlan := q.BaseTotal * 2500 / 10_000
	wantVolume := q.BaseTotal * 1000 / 10_000
	if q.PlanDiscount != wantPlan || q.VolumeDiscount != wantVolume {
		t.Fatalf("discounts = %d/%d, want %d/%d", q.PlanDiscount, q.VolumeDiscount, wantPlan, wantVolume)
	}
	if q.FinalTotal != q.BaseTotal-wantPlan-wantVolume {
		t.Fatalf("final total = %d, discounts must sum not compound", q.FinalTotal)
	}
}

func TestComputeQuote_Deterministic(t *testing.T) {
	snap := testSnapshot()

	// Duplicates and ordering must not affect the result.
	q1, err := pricing.ComputeQuote(catalog.PlanEnterprise,
		[]string{"tax-advisory", "portfolio-analytics", "estate-planning"}, snap)
	if err != nil {
		t.Fatal(err)
	}
	q2, err := pricing.ComputeQuote(catalog.PlanEnterprise,
		[]string{"estate-planning", "tax-advisory", "portfolio-analytics", "tax-advisory"}, snap)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(q1, q2) {
		t.Fatalf("quotes differ for equivalent inputs:\n%+v\n%+v", q1, q2)
	}
}

func TestComputeQuote_UnknownService(t *testing.T) {
	snap := testSnapshot()

	_, err := pricing.ComputeQuote(catalog.PlanEnterprise, []string{"time-travel"}, snap)
	if err == nil {
		t.Fatal("expected error for unknown service id")
	}
}

func TestComputeQuote_UnknownPlan(t *testing.T) {
	_, err := pricing.ComputeQuote(catalog.PlanTier("platinum"), nil, testSnapshot())
	if err == nil {
		t.Fatal("expected error for unknown plan tier")
	}
}

func TestComputeQuote_PlanOnly(t *testing.T) {
	q, err := pricing.ComputeQuote(catalog.PlanProfessional, nil, testSnapshot())
	if err != nil {
		t.Fatal(err)
	}
	if q.BaseTotal != 20_000 || q.FinalTotal != 20_000 {
		t.Fatalf("plan-only quote = %d/%d, want 20000/20000", q.BaseTotal, q.FinalTotal)
	}
	if len(q.LineItems) != 1 {
		t.Fatalf("expected only the plan line item, got %d", len(q.LineItems))
	}
}
