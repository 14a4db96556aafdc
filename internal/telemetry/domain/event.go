package domain

import "time"

// Event types emitted by the auth service.
const (
	EventUserRegistered  = "user_registered"
	EventLoginSuccess    = "login_success"
	EventLoginFailure    = "login_failure"
	EventTokenRefreshed  = "token_refreshed"
	EventRefreshRejected = "refresh_rejected"
	EventLogout          = "logout"
	EventSessionsPurged  = "sessions_purged"
)

// Event is one session lifecycle event. It is serialized as JSON for Kafka and Loki and
// converted to an OTel log record for the collector. It never carries tokens or passwords.
type Event struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId,omitempty"`
	EventType string            `json:"eventType"`
	Source    string            `json:"source"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"userAgent,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}
