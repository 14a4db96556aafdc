package domain

import (
	"testing"
	"time"
)

func TestSession_IsUsable(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		s    *Session
		want bool
	}{
		{"active unexpired", &Session{Active: true, ExpiresAt: now.Add(time.Minute)}, true},
		{"inactive", &Session{Active: false, ExpiresAt: now.Add(time.Minute)}, false},
		{"expired", &Session{Active: true, ExpiresAt: now.Add(-time.Second)}, false},
		{"expires exactly now", &Session{Active: true, ExpiresAt: now}, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.IsUsable(now); got != tt.want {
				t.Errorf("IsUsable = %v, want %v", got, tt.want)
			}
		})
	}
}
