package policyinfra

import (
	"context"

	"github.com/gridworks/gridcore/pkg/iam/policy"
	"github.com/gridworks/gridcore/pkg/logx"
)

// LogxAuditService implements policy.AuditService using structured logx
// logging. The log stream is the append-only record.
type LogxAuditService struct{}

func NewLogxAuditService() *LogxAuditService {
	return &LogxAuditService{}
}

func (s *LogxAuditService) RecordDecision(_ context.Context, r policy.AuditRecord) {
	logx.WithFields(logx.Fields{
		"audit_event": "signin_decision",
		"audit_id":    r.ID,
		"org_id":      r.OrgID,
		"user_id":     r.UserID,
		"provider":    r.Provider,
		"client_ip":   r.ClientIP,
		"allowed":     r.Allowed,
		"reason":      r.Reason,
		"timestamp":   r.Timestamp,
	}).Info("Audit: sign-in decision")
}
