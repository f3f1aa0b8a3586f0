package subscription

import "time"

// EventType classifies a billing provider webhook event.
type EventType string

const (
	EventSubscriptionUpdated EventType = "subscription.updated"
	EventSubscriptionDeleted EventType = "subscription.deleted"
	EventPaymentSucceeded    EventType = "payment.succeeded"
	EventPaymentFailed       EventType = "payment.failed"
)

// Event is a provider webhook delivery. Deliveries can arrive more than
// once; the event ID is the deduplication handle.
type Event struct {
	ID          string    `json:"id" validate:"required"`
	Type        EventType `json:"type" validate:"required"`
	ProviderRef string    `json:"provider_ref" validate:"required"`
	Status      Status    `json:"status,omitempty"`
	PeriodStart time.Time `json:"period_start,omitempty"`
	PeriodEnd   time.Time `json:"period_end,omitempty"`
}

// ImpliedStatus maps an event to the status it implies. Update events carry
// an explicit status; payment events imply one.
func (e Event) ImpliedStatus() (Status, bool) {
	switch e.Type {
	case EventSubscriptionUpdated:
		if e.Status.IsValid() {
			return e.Status, true
		}
		return "", false
	case EventSubscriptionDeleted:
		return StatusCanceled, true
	case EventPaymentSucceeded:
		return StatusActive, true
	case EventPaymentFailed:
		return StatusPastDue, true
	default:
		return "", false
	}
}
