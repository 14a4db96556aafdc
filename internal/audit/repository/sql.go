package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/xboybx/Authentication-System/internal/audit/domain"
)

const defaultListLimit = 50

type auditRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Action    string    `db:"action"`
	Resource  string    `db:"resource"`
	IP        string    `db:"ip"`
	Metadata  string    `db:"metadata"`
	CreatedAt time.Time `db:"created_at"`
}

// SQLRepository stores audit logs in the audit_logs table.
type SQLRepository struct {
	db *sqlx.DB
}

// NewSQLRepository returns an audit repository backed by db.
func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// Create inserts one entry. The entry must have ID set.
func (r *SQLRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO audit_logs (id, user_id, action, resource, ip, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.UserID, a.Action, a.Resource, a.IP, a.Metadata, a.CreatedAt.UTC())
	return err
}

func (r *SQLRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.AuditLog, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var rows []auditRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`SELECT id, user_id, action, resource, ip, metadata, created_at
		FROM audit_logs WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ?`), userID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.AuditLog, len(rows))
	for i := range rows {
		out[i] = &domain.AuditLog{
			ID:        rows[i].ID,
			UserID:    rows[i].UserID,
			Action:    rows[i].Action,
			Resource:  rows[i].Resource,
			IP:        rows[i].IP,
			Metadata:  rows[i].Metadata,
			CreatedAt: rows[i].CreatedAt.UTC(),
		}
	}
	return out, nil
}
