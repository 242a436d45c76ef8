package main

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// healthService is the service name reported alongside the overall ("") status.
const healthService = "wattcast.Forecaster"

// grpcHealth serves the standard gRPC health protocol for orchestrators
// that probe over gRPC.
type grpcHealth struct {
	server *grpc.Server
	health *health.Server
	lis    net.Listener
	logger *slog.Logger
}

func newGRPCHealth(addr string, logger *slog.Logger) (*grpcHealth, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	server := grpc.NewServer()
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, hs)
	reflection.Register(server)

	return &grpcHealth{server: server, health: hs, lis: lis, logger: logger}, nil
}

// SetServing reports SERVING when serving is true, NOT_SERVING otherwise.
func (g *grpcHealth) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(healthService, status)
}

// Serve blocks until Stop is called.
func (g *grpcHealth) Serve() error {
	g.logger.Info("grpc health server listening", "address", g.lis.Addr().String())
	return g.server.Serve(g.lis)
}

// Stop marks every service NOT_SERVING and drains connections.
func (g *grpcHealth) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}
