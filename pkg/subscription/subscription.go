package subscription

import (
	"time"

	"github.com/gridworks/gridcore/pkg/catalog"
	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/kernel"
)

// Status is a subscription's lifecycle state. Transitions follow a fixed
// graph; anything off-graph is rejected.
type Status string

const (
	StatusIncomplete Status = "incomplete"
	StatusTrialing   Status = "trialing"
	StatusActive     Status = "active"
	StatusPastDue    Status = "past_due"
	StatusCanceled   Status = "canceled"
	StatusUnpaid     Status = "unpaid"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusIncomplete, StatusTrialing, StatusActive, StatusPastDue, StatusCanceled, StatusUnpaid:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCanceled || s == StatusUnpaid
}

// transitions is the allowed state graph.
var transitions = map[Status][]Status{
	StatusIncomplete: {StatusTrialing, StatusActive},
	StatusTrialing:   {StatusActive, StatusCanceled, StatusUnpaid},
	StatusActive:     {StatusPastDue, StatusCanceled, StatusUnpaid},
	StatusPastDue:    {StatusActive, StatusCanceled, StatusUnpaid},
	StatusCanceled:   {},
	StatusUnpaid:     {},
}

// CanTransition reports whether moving from s to target is on the graph.
// Self-transitions are allowed; webhook replays land on the current status.
func (s Status) CanTransition(target Status) bool {
	if s == target {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Subscription mirrors the billing provider's view of an organization's
// plan. Local state only changes after the provider confirms.
type Subscription struct {
	ID                 kernel.SubscriptionID `json:"id" db:"id"`
	ProviderRef        string                `json:"provider_ref" db:"provider_ref"`
	OrgID              kernel.OrgID          `json:"org_id" db:"org_id"`
	Status             Status                `json:"status" db:"status"`
	Plan               catalog.PlanTier      `json:"plan" db:"plan"`
	ServiceIDs         []string              `json:"service_ids" db:"service_ids"`
	CurrentPeriodStart time.Time             `json:"current_period_start" db:"current_period_start"`
	CurrentPeriodEnd   time.Time             `json:"current_period_end" db:"current_period_end"`
	CancelAtPeriodEnd  bool                  `json:"cancel_at_period_end" db:"cancel_at_period_end"`
	SyncDegraded       bool                  `json:"sync_degraded" db:"sync_degraded"`
	CreatedAt          time.Time             `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at" db:"updated_at"`
}

// TransitionTo moves the subscription to a new status, enforcing the graph.
func (s *Subscription) TransitionTo(target Status) error {
	if !target.IsValid() {
		return ErrInvalidTransition(s.Status, target)
	}
	if !s.Status.CanTransition(target) {
		return ErrInvalidTransition(s.Status, target)
	}
	s.Status = target
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// HasService reports whether a service ID is part of the subscription.
func (s *Subscription) HasService(serviceID string) bool {
	for _, id := range s.ServiceIDs {
		if id == serviceID {
			return true
		}
	}
	return false
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("SUB")

var (
	ErrCodeNotFound          = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, 404, "Subscription not found")
	ErrCodeInvalidTransition = ErrRegistry.Register("INVALID_TRANSITION", errx.TypeConflict, 409, "Subscription status transition not allowed")
	ErrCodeProviderSync      = ErrRegistry.Register("PROVIDER_SYNC", errx.TypeExternal, 502, "Billing provider could not confirm the change")
	ErrCodeAlreadyExists     = ErrRegistry.Register("ALREADY_EXISTS", errx.TypeConflict, 409, "Organization already has a subscription")
	ErrCodeTerminal          = ErrRegistry.Register("TERMINAL", errx.TypeConflict, 409, "Subscription is in a terminal state")
)

func ErrSubscriptionNotFound() *errx.Error { return ErrRegistry.New(ErrCodeNotFound) }
func ErrAlreadyExists() *errx.Error        { return ErrRegistry.New(ErrCodeAlreadyExists) }
func ErrTerminal() *errx.Error             { return ErrRegistry.New(ErrCodeTerminal) }

func ErrInvalidTransition(from, to Status) *errx.Error {
	return ErrRegistry.New(ErrCodeInvalidTransition).
		WithDetail("from", string(from)).
		WithDetail("to", string(to))
}

func ErrProviderSync(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(ErrCodeProviderSync, cause)
}
