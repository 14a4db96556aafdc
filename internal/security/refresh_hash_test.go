package security

import (
	"strings"
	"testing"
)

func TestHashRefreshToken_Deterministic(t *testing.T) {
	h1 := HashRefreshToken("refresh-token-1")
	h2 := HashRefreshToken("refresh-token-1")
	if h1 != h2 {
		t.Errorf("HashRefreshToken not deterministic: %q vs %q", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("len(hash) = %d, want 64", len(h1))
	}
	if strings.Contains(h1, "refresh-token-1") {
		t.Error("hash contains raw token")
	}
}

func TestHashRefreshToken_DistinctTokens(t *testing.T) {
	if HashRefreshToken("token-1") == HashRefreshToken("token-2") {
		t.Error("distinct tokens hashed to the same value")
	}
}

func TestRefreshTokenHashEqual(t *testing.T) {
	stored := HashRefreshToken("correct-token")
	flipped := []byte(stored)
	if flipped[0] == '0' {
		flipped[0] = '1'
	} else {
		flipped[0] = '0'
	}

	tests := []struct {
		name   string
		token  string
		stored string
		want   bool
	}{
		{"match", "correct-token", stored, true},
		{"wrong token", "wrong-token", stored, false},
		{"empty token", "", HashRefreshToken(""), false},
		{"longer hash", "correct-token", "a" + stored, false},
		{"one char differs", "correct-token", string(flipped), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RefreshTokenHashEqual(tt.token, tt.stored); got != tt.want {
				t.Errorf("RefreshTokenHashEqual = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHashPrefix(t *testing.T) {
	h := HashRefreshToken("x")
	if got := HashPrefix(h); got != h[:12] {
		t.Errorf("HashPrefix = %q, want %q", got, h[:12])
	}
	if got := HashPrefix("abc"); got != "abc" {
		t.Errorf("HashPrefix(short) = %q, want abc", got)
	}
}
