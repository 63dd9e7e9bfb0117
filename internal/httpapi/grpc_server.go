package httpapi

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"conselho.org/internal/obs"
)

type readinessChecker interface {
	Check(ctx context.Context) error
}

// GRPCServer exposes the standard gRPC health service backed by the same
// readiness probe as the HTTP /readyz endpoint.
type GRPCServer struct {
	server    *grpc.Server
	health    *health.Server
	readiness readinessChecker
	done      chan struct{}
}

// NewGRPCServer creates the gRPC service wrapper.
func NewGRPCServer(rp readinessChecker) *GRPCServer {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &GRPCServer{
		server:    srv,
		health:    hs,
		readiness: rp,
		done:      make(chan struct{}),
	}
}

// Refresh re-evaluates readiness and updates the advertised health status.
func (s *GRPCServer) Refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	ready := true
	if err := s.readiness.Check(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		ready = false
	}
	obs.SetReady(ready)
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(serviceName, status)
}

// Serve refreshes health periodically and blocks serving the listener.
func (s *GRPCServer) Serve(lis net.Listener) error {
	s.Refresh(context.Background())
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.Refresh(context.Background())
			}
		}
	}()
	return s.server.Serve(lis)
}

// Stop gracefully stops the server.
func (s *GRPCServer) Stop() {
	close(s.done)
	s.health.Shutdown()
	s.server.GracefulStop()
}
