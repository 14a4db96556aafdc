// Package handler serves readiness over HTTP (/health) and the standard gRPC health protocol.
package handler

import (
	"context"
	"sort"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const checkTimeout = 2 * time.Second

// Pinger checks a backing store (e.g. *sqlx.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger, e.g. a Redis client's Ping.
type PingerFunc func(ctx context.Context) error

// PingContext calls f.
func (f PingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

// PolicyChecker verifies the policy engine can evaluate (e.g. *engine.OPAEvaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server implements the gRPC health service and the HTTP readiness endpoint from the same checks.
// Nil dependencies are skipped.
type Server struct {
	healthpb.UnimplementedHealthServer

	checks map[string]Pinger
}

// NewServer returns a health server that pings db and checks policy.
func NewServer(db Pinger, policy PolicyChecker) *Server {
	s := &Server{checks: map[string]Pinger{}}
	if db != nil {
		s.checks["database"] = db
	}
	if policy != nil {
		s.checks["policy"] = PingerFunc(policy.HealthCheck)
	}
	return s
}

// AddCheck registers another named dependency, e.g. the Redis session store.
func (s *Server) AddCheck(name string, p Pinger) *Server {
	if p != nil {
		s.checks[name] = p
	}
	return s
}

// Result is the outcome of one readiness run.
type Result struct {
	Healthy bool
	// Checks maps dependency name to "ok" or its error text.
	Checks map[string]string
}

// Run executes every check with a short timeout.
func (s *Server) Run(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	res := Result{Healthy: true, Checks: make(map[string]string, len(s.checks))}
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.checks[name].PingContext(ctx); err != nil {
			res.Healthy = false
			res.Checks[name] = err.Error()
			continue
		}
		res.Checks[name] = "ok"
	}
	return res
}

// Check implements grpc.health.v1.Health/Check. Failed dependencies report NOT_SERVING, never an RPC error.
func (s *Server) Check(ctx context.Context, _ *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	status := healthpb.HealthCheckResponse_SERVING
	if !s.Run(ctx).Healthy {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	return &healthpb.HealthCheckResponse{Status: status}, nil
}
