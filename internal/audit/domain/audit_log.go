package domain

import "time"

// Audit actions recorded by the auth service.
const (
	ActionRegister        = "register"
	ActionLoginSuccess    = "login_success"
	ActionLoginFailure    = "login_failure"
	ActionTokenRefreshed  = "token_refreshed"
	ActionRefreshRejected = "refresh_rejected"
	ActionLogout          = "logout"
	ActionSessionsPurged  = "sessions_purged"
)

// Audit resources.
const (
	ResourceUser    = "user"
	ResourceSession = "session"
)

// AuditLog represents an audit event.
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
