package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthhandler "github.com/xboybx/Authentication-System/internal/health/handler"
)

// NewGRPCServer returns a gRPC server instrumented with OpenTelemetry and with every service registered.
func NewGRPCServer(health *healthhandler.Server) *grpc.Server {
	s := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	RegisterServices(s, health)
	return s
}

// RegisterServices registers the gRPC services with s. Only the standard health protocol is served;
// the auth API itself is HTTP.
func RegisterServices(s grpc.ServiceRegistrar, health *healthhandler.Server) {
	if health != nil {
		healthpb.RegisterHealthServer(s, health)
	}
}
