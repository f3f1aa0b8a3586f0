package catalog

import (
	"net/http"

	"github.com/gridworks/gridcore/pkg/errx"
)

// ============================================================================
// Plan Tiers
// ============================================================================

// PlanTier is the base subscription level of an organization.
type PlanTier string

const (
	PlanProfessional PlanTier = "professional"
	PlanEnterprise   PlanTier = "enterprise"
	PlanUHNW         PlanTier = "uhnw"
)

// IsValid reports whether the tier is a known plan.
func (p PlanTier) IsValid() bool {
	switch p {
	case PlanProfessional, PlanEnterprise, PlanUHNW:
		return true
	default:
		return false
	}
}

// BasePrice returns the monthly base price of the plan in whole rupees.
func (p PlanTier) BasePrice() int64 {
	switch p {
	case PlanProfessional:
		return 20_000
	case PlanEnterprise:
		return 50_000
	case PlanUHNW:
		return 100_000
	default:
		return 0
	}
}

// DiscountBps returns the plan discount rate in basis points.
func (p PlanTier) DiscountBps() int64 {
	switch p {
	case PlanEnterprise:
		return 1500
	case PlanUHNW:
		return 2500
	default:
		return 0
	}
}

// ============================================================================
// Service Catalog
// ============================================================================

// Entry is one selectable service add-on. Entries are reference data and
// treated as immutable within a pricing computation.
type Entry struct {
	ID          string   `db:"id" json:"id"`
	Name        string   `db:"name" json:"name"`
	BasePrice   int64    `db:"base_price" json:"base_price"`
	Features    []string `db:"features" json:"features"`
	ProviderRef string   `db:"provider_ref" json:"provider_ref"`
	Active      bool     `db:"is_active" json:"is_active"`
}

// Snapshot is a point-in-time view of the catalog keyed by service id.
// Pricing computations operate on a snapshot so concurrent catalog updates
// cannot change a quote mid-computation.
type Snapshot map[string]Entry

// Lookup returns the entry for a service id.
func (s Snapshot) Lookup(id string) (Entry, bool) {
	e, ok := s[id]
	return e, ok
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("CATALOG")

var (
	CodeUnknownService = ErrRegistry.Register("UNKNOWN_SERVICE", errx.TypeValidation, http.StatusBadRequest, "Unknown service id")
	CodeUnknownPlan    = ErrRegistry.Register("UNKNOWN_PLAN", errx.TypeValidation, http.StatusBadRequest, "Unknown plan tier")
)

func ErrUnknownService(id string) *errx.Error {
	return ErrRegistry.New(CodeUnknownService).WithDetail("service_id", id)
}

func ErrUnknownPlan(plan string) *errx.Error {
	return ErrRegistry.New(CodeUnknownPlan).WithDetail("plan", plan)
}
