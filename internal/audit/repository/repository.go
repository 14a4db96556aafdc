package repository

import (
	"context"

	"github.com/xboybx/Authentication-System/internal/audit/domain"
)

// Repository defines persistence for audit logs. Entries are append-only.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// ListByUser returns the user's most recent entries, newest first. limit <= 0 means 50.
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.AuditLog, error)
}
