package database

import (
	"context"
	"fmt"
	"time"

	"github.com/travelhub/booking-backend/internal/models"
)

// AuditRepository stores audit events in the audit_logs table
type AuditRepository struct {
	db DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert writes one audit entry. Details must be a JSON document.
func (r *AuditRepository) Insert(ctx context.Context, entry *models.AuditLog) error {
	details := entry.Details
	if details == "" {
		details = "{}"
	}

	query := `
		INSERT INTO audit_logs (user_id, action, entity_type, entity_id, ip_address, user_agent, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
		RETURNING id, created_at`

	err := r.db.QueryRowxContext(ctx, query,
		entry.UserID, entry.Action, entry.EntityType, entry.EntityID,
		entry.IPAddress, entry.UserAgent, details,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to log audit event: %w", err)
	}
	return nil
}

// DeleteOlderThan removes entries created before the cutoff
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old audit logs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}
