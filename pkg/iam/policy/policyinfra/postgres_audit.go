package policyinfra

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/gridworks/gridcore/pkg/iam/policy"
	"github.com/gridworks/gridcore/pkg/logx"
)

// PostgresAuditService persists sign-in decisions to the audit_logs table.
// The table is insert-only; there is no update or delete path.
type PostgresAuditService struct {
	db *sqlx.DB
}

func NewPostgresAuditService(db *sqlx.DB) *PostgresAuditService {
	return &PostgresAuditService{db: db}
}

func (s *PostgresAuditService) RecordDecision(ctx context.Context, r policy.AuditRecord) {
	query := `
		INSERT INTO audit_logs (id, org_id, user_id, provider, client_ip, allowed, reason, created_at)
		VALUES (:id, :org_id, :user_id, :provider, :client_ip, :allowed, :reason, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, query, r); err != nil {
		// An audit write failure must not block the sign-in path, but it is
		// never silent.
		logx.WithError(err).WithFields(logx.Fields{
			"audit_id": r.ID,
			"org_id":   r.OrgID,
			"user_id":  r.UserID,
		}).Error("Failed to persist audit record")
	}
}
