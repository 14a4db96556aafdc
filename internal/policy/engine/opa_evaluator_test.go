package engine

import (
	"context"
	"testing"
)

func TestOPAEvaluator_DefaultPolicy(t *testing.T) {
	ctx := context.Background()
	e, err := NewOPAEvaluator(ctx, "")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	tests := []struct {
		role, action string
		want         bool
	}{
		{"admin", ActionPurgeSessions, true},
		{"admin", ActionReadProfile, true},
		{"user", ActionReadProfile, true},
		{"user", ActionListSessions, true},
		{"user", ActionPurgeSessions, false},
		{"", ActionReadProfile, false},
		{"guest", ActionListSessions, false},
	}
	for _, tt := range tests {
		got, err := e.Allow(ctx, tt.role, tt.action)
		if err != nil {
			t.Fatalf("Allow(%q, %q): %v", tt.role, tt.action, err)
		}
		if got != tt.want {
			t.Errorf("Allow(%q, %q) = %v, want %v", tt.role, tt.action, got, tt.want)
		}
	}
	if err := e.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}

func TestOPAEvaluator_CustomPolicy(t *testing.T) {
	const policy = `package auth.authz

allow if {
	input.action == "sessions:purge"
	input.role == "operator"
}
`
	ctx := context.Background()
	e, err := NewOPAEvaluator(ctx, policy)
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	if ok, _ := e.Allow(ctx, "operator", ActionPurgeSessions); !ok {
		t.Error("operator should be allowed to purge")
	}
	// allow is undefined for admin here, which is a denial.
	if ok, err := e.Allow(ctx, "admin", ActionPurgeSessions); ok || err != nil {
		t.Errorf("Allow(admin) = %v, %v; want false, nil", ok, err)
	}
}

func TestOPAEvaluator_InvalidPolicy(t *testing.T) {
	if _, err := NewOPAEvaluator(context.Background(), "package broken\n\nallow if {"); err == nil {
		t.Error("NewOPAEvaluator should reject a policy that does not compile")
	}
}
