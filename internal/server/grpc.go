package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"SwapLedger/internal/observability"
)

// GRPCServer exposes the standard gRPC health service plus reflection
// for grpcurl and load balancer probes. The query and admin surfaces
// live on the HTTP server.
type GRPCServer struct {
	grpcServer    *grpc.Server
	healthServer  *health.Server
	addr          string
	healthChecker *observability.HealthChecker
}

func NewGRPCServer(addr string, healthChecker *observability.HealthChecker) *GRPCServer {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	reflection.Register(grpcServer)

	return &GRPCServer{
		grpcServer:    grpcServer,
		healthServer:  healthServer,
		addr:          addr,
		healthChecker: healthChecker,
	}
}

// Start runs the gRPC server until ctx is cancelled (blocking). The
// health status tracks the node readiness flag.
func (s *GRPCServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go s.trackReadiness(ctx)

	go func() {
		<-ctx.Done()
		log.Println("INFO: gRPC server shutting down...")
		s.grpcServer.GracefulStop()
	}()

	log.Printf("INFO: gRPC server listening on %s", s.addr)
	return s.grpcServer.Serve(lis)
}

func (s *GRPCServer) trackReadiness(ctx context.Context) {
	if s.healthChecker == nil {
		s.healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := healthpb.HealthCheckResponse_NOT_SERVING
			if s.healthChecker.IsReady() {
				status = healthpb.HealthCheckResponse_SERVING
			}
			s.healthServer.SetServingStatus("", status)
		}
	}
}
