package policy

import "context"

// AuditService records sign-in decisions. Implementations must be append-only:
// a recorded decision is never updated or deleted.
type AuditService interface {
	RecordDecision(ctx context.Context, record AuditRecord)
}
