package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/xboybx/Authentication-System/internal/security"
	"github.com/xboybx/Authentication-System/internal/session/domain"
)

const sessionColumns = `id, user_id, token_hash, expires_at, created_by_ip, user_agent, active, replaced_by_hash, created_at, updated_at`

type sessionRow struct {
	ID             string    `db:"id"`
	UserID         string    `db:"user_id"`
	TokenHash      string    `db:"token_hash"`
	ExpiresAt      time.Time `db:"expires_at"`
	CreatedByIP    string    `db:"created_by_ip"`
	UserAgent      string    `db:"user_agent"`
	Active         bool      `db:"active"`
	ReplacedByHash string    `db:"replaced_by_hash"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// SQLRepository stores refresh sessions in the refresh_sessions table (Postgres or SQLite).
type SQLRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLRepository returns a session repository backed by db.
func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db, now: time.Now}
}

// Create hashes p.RawToken and inserts an active record. Returns ErrDuplicateCredential if the hash exists.
func (r *SQLRepository) Create(ctx context.Context, p domain.CreateParams) (*domain.Session, error) {
	if p.RawToken == "" || p.UserID == "" {
		return nil, errors.New("session repository: token and user are required")
	}
	now := r.now().UTC()
	s := &domain.Session{
		ID:             uuid.New().String(),
		UserID:         p.UserID,
		TokenHash:      security.HashRefreshToken(p.RawToken),
		ExpiresAt:      p.ExpiresAt.UTC(),
		CreatedByIP:    p.IP,
		UserAgent:      p.UserAgent,
		Active:         true,
		ReplacedByHash: p.PredecessorHash,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO refresh_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (token_hash) DO NOTHING`),
		s.ID, s.UserID, s.TokenHash, s.ExpiresAt, s.CreatedByIP, s.UserAgent, s.Active, s.ReplacedByHash, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("session repository: create: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("session repository: create: %w", err)
	}
	if n == 0 {
		return nil, ErrDuplicateCredential
	}
	return s, nil
}

// FindByToken returns the record for the hash of rawToken, or nil if not found.
func (r *SQLRepository) FindByToken(ctx context.Context, rawToken string) (*domain.Session, error) {
	if rawToken == "" {
		return nil, nil
	}
	return r.GetByHash(ctx, security.HashRefreshToken(rawToken))
}

// GetByHash returns the record with tokenHash, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *SQLRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	var row sessionRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+sessionColumns+` FROM refresh_sessions WHERE token_hash = ?`), tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rowToDomain(&row), nil
}

// ListByUser returns all records for userID, newest first.
func (r *SQLRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	var rows []sessionRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`SELECT `+sessionColumns+` FROM refresh_sessions
		WHERE user_id = ? ORDER BY created_at DESC`), userID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Session, len(rows))
	for i := range rows {
		out[i] = rowToDomain(&rows[i])
	}
	return out, nil
}

// Revoke sets s inactive. A nil or already inactive session is a no-op.
func (r *SQLRepository) Revoke(ctx context.Context, s *domain.Session) error {
	if s == nil {
		return nil
	}
	_, err := r.RevokeIfActive(ctx, s.TokenHash)
	if err != nil {
		return err
	}
	s.Active = false
	return nil
}

// RevokeIfActive is a single conditional UPDATE; the row count tells the caller whether it won.
func (r *SQLRepository) RevokeIfActive(ctx context.Context, tokenHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE refresh_sessions SET active = FALSE, updated_at = ?
		WHERE token_hash = ? AND active = TRUE`), r.now().UTC(), tokenHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RevokeAllForUser sets every active record of userID inactive.
func (r *SQLRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE refresh_sessions SET active = FALSE, updated_at = ?
		WHERE user_id = ? AND active = TRUE`), r.now().UTC(), userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PurgeExpiredOrInactive deletes records past expiry at now or no longer active.
// Survivors that point at a purged predecessor keep their ReplacedByHash.
func (r *SQLRepository) PurgeExpiredOrInactive(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM refresh_sessions WHERE expires_at < ? OR active = FALSE`), now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func rowToDomain(r *sessionRow) *domain.Session {
	return &domain.Session{
		ID:             r.ID,
		UserID:         r.UserID,
		TokenHash:      r.TokenHash,
		ExpiresAt:      r.ExpiresAt.UTC(),
		CreatedByIP:    r.CreatedByIP,
		UserAgent:      r.UserAgent,
		Active:         r.Active,
		ReplacedByHash: r.ReplacedByHash,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}
