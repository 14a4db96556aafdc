package domain

import "time"

// Session is one issued refresh credential. Only the SHA-256 hash of the credential is kept.
// A record is written once at mint time and afterwards only ever flips Active to false.
type Session struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	// CreatedByIP and UserAgent record where the credential was issued; immutable.
	CreatedByIP string
	UserAgent   string
	Active      bool
	// ReplacedByHash is the hash of the predecessor this record superseded through rotation.
	// Empty for records created at login. The predecessor may already have been purged.
	ReplacedByHash string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsUsable reports whether the session is active and not past ExpiresAt at now.
func (s *Session) IsUsable(now time.Time) bool {
	return s != nil && s.Active && now.Before(s.ExpiresAt)
}

// CreateParams is the input for creating a session record from a freshly minted refresh token.
type CreateParams struct {
	RawToken  string
	UserID    string
	ExpiresAt time.Time
	IP        string
	UserAgent string
	// PredecessorHash is the hash of the record this one replaces; empty at login.
	PredecessorHash string
}
