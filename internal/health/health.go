// Package health exposes the standard gRPC health service. The "tracker"
// service reports SERVING only while a tracking session runs.
package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/marker.tracker/internal/lifecycle"
	"github.com/banshee-data/marker.tracker/internal/monitoring"
)

// ServiceName is the health service name for the tracking loop.
const ServiceName = "tracker"

var logf = monitoring.Prefixed("health")

// Server wraps a grpc.Server carrying only the health service.
type Server struct {
	addr   string
	health *grpchealth.Server
	server *grpc.Server

	mu  sync.Mutex
	lis net.Listener
}

// NewServer returns a server for addr with the tracker NOT_SERVING.
func NewServer(addr string) *Server {
	s := &Server{
		addr:   addr,
		health: grpchealth.NewServer(),
		server: grpc.NewServer(),
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	s.SetServing(false)
	return s
}

// SetServing flips the tracker and overall status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus("", status)
}

// OnTransition is a lifecycle listener.
func (s *Server) OnTransition(t lifecycle.Transition) {
	s.SetServing(t.To == lifecycle.Running)
}

// Check answers a health check without going over the network.
func (s *Server) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Addr returns the bound address once Run is listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return nil
	}
	return s.lis.Addr()
}

// Run listens and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("health: listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.lis = lis
	s.mu.Unlock()

	errc := make(chan error, 1)
	go func() {
		logf("gRPC health listening on %s", lis.Addr())
		errc <- s.server.Serve(lis)
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("health: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	s.health.Shutdown()
	s.server.GracefulStop()
	<-errc
	logf("stopped")
	return nil
}
