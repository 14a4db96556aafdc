package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.pingErr
}

// mockPolicyChecker implements PolicyChecker for tests.
type mockPolicyChecker struct {
	healthErr error
}

func (m *mockPolicyChecker) HealthCheck(context.Context) error {
	return m.healthErr
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name   string
		db     Pinger
		policy PolicyChecker
		want   healthpb.HealthCheckResponse_ServingStatus
	}{
		{"no dependencies", nil, nil, healthpb.HealthCheckResponse_SERVING},
		{"all healthy", &mockPinger{}, &mockPolicyChecker{}, healthpb.HealthCheckResponse_SERVING},
		{"db down", &mockPinger{pingErr: errors.New("connection refused")}, &mockPolicyChecker{}, healthpb.HealthCheckResponse_NOT_SERVING},
		{"policy broken", &mockPinger{}, &mockPolicyChecker{healthErr: errors.New("rego compile failed")}, healthpb.HealthCheckResponse_NOT_SERVING},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := NewServer(tt.db, tt.policy).Check(context.Background(), &healthpb.HealthCheckRequest{})
			if err != nil {
				t.Fatalf("Check must not return an RPC error: %v", err)
			}
			if resp.GetStatus() != tt.want {
				t.Errorf("status = %v, want %v", resp.GetStatus(), tt.want)
			}
		})
	}
}

func TestAddCheck(t *testing.T) {
	srv := NewServer(&mockPinger{}, nil).
		AddCheck("redis", PingerFunc(func(context.Context) error { return errors.New("redis down") })).
		AddCheck("ignored", nil)
	res := srv.Run(context.Background())
	if res.Healthy {
		t.Error("Run should be unhealthy when redis fails")
	}
	if res.Checks["database"] != "ok" || res.Checks["redis"] != "redis down" {
		t.Errorf("checks = %v", res.Checks)
	}
	if _, ok := res.Checks["ignored"]; ok {
		t.Error("nil check should not be registered")
	}
}

func TestServeHTTP(t *testing.T) {
	for _, tc := range []struct {
		name     string
		db       Pinger
		wantCode int
		status   string
	}{
		{"healthy", &mockPinger{}, http.StatusOK, "ok"},
		{"degraded", &mockPinger{pingErr: errors.New("down")}, http.StatusServiceUnavailable, "degraded"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewServer(tc.db, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Code != tc.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tc.wantCode)
			}
			var body healthResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tc.status || body.Checks["database"] == "" {
				t.Errorf("body = %+v", body)
			}
		})
	}
}
