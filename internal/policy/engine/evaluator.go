package engine

import "context"

// Actions checked by the admin authorization middleware.
const (
	ActionPurgeSessions = "sessions:purge"
	ActionReadProfile   = "profile:read"
	ActionListSessions  = "sessions:list"
)

// Evaluator decides whether a role may perform an action.
type Evaluator interface {
	// Allow reports whether role may perform action. An error means the decision could not be made;
	// callers must treat it as a denial.
	Allow(ctx context.Context, role, action string) (bool, error)
}
