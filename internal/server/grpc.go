package server

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// NewHealthServer starts out NOT_SERVING; Run flips it once the listeners
// are up.
func NewHealthServer() *health.Server {
	h := health.NewServer()
	h.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return h
}

// NewGRPCServer returns a gRPC server exposing the standard health service,
// which Consul uses to check the engine.
func NewGRPCServer(healthServer *health.Server) *grpc.Server {
	srv := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, healthServer)
	return srv
}
