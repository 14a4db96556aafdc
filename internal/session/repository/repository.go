package repository

import (
	"context"
	"errors"
	"time"

	"github.com/xboybx/Authentication-System/internal/session/domain"
)

// ErrDuplicateCredential is returned by Create when a record with the same token hash already exists.
var ErrDuplicateCredential = errors.New("duplicate refresh credential")

// Repository persists refresh session records. Records are looked up only by the hash of a presented
// token; raw tokens are hashed on the way in and never stored.
type Repository interface {
	// Create hashes p.RawToken and stores a new active record. Returns ErrDuplicateCredential if the hash exists.
	Create(ctx context.Context, p domain.CreateParams) (*domain.Session, error)
	// FindByToken returns the record for the hash of rawToken whether or not it is still usable,
	// or (nil, nil) if there is none.
	FindByToken(ctx context.Context, rawToken string) (*domain.Session, error)
	// GetByHash returns the record with the given token hash, or (nil, nil) if there is none.
	GetByHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	// ListByUser returns all records for the user, newest first.
	ListByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	// Revoke sets the record inactive. Revoking an inactive or missing record is not an error.
	Revoke(ctx context.Context, s *domain.Session) error
	// RevokeIfActive flips the record with tokenHash from active to inactive and reports whether this
	// call made the change. Concurrent callers for the same hash see true at most once.
	RevokeIfActive(ctx context.Context, tokenHash string) (bool, error)
	// RevokeAllForUser sets every active record of the user inactive and returns how many changed.
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
	// PurgeExpiredOrInactive deletes records with ExpiresAt before now or Active false and returns the count.
	PurgeExpiredOrInactive(ctx context.Context, now time.Time) (int64, error)
}
