package database

import (
	"context"
	"net"
	"time"

	"quickchat/pkg/logger"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger a dependency that can report reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapt a function to Pinger
type PingFunc func(ctx context.Context) error

// Ping call f
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthServer grpc.health.v1 server for the chat service
type HealthServer struct {
	Server *grpc.Server
	Health *health.Server
	lis    net.Listener
}

// NewHealthServer listen on addr (":0" picks a free port)
func NewHealthServer(addr string) (*HealthServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &HealthServer{Server: srv, Health: hs, lis: lis}, nil
}

// Addr listening address
func (h *HealthServer) Addr() string {
	return h.lis.Addr().String()
}

// Serve block until Stop
func (h *HealthServer) Serve() error {
	return h.Server.Serve(h.lis)
}

// Stop mark not serving and stop
func (h *HealthServer) Stop() {
	h.Health.Shutdown()
	h.Server.GracefulStop()
}

// Watch ping every dependency on interval and flip the serving status of service.
// Returns when ctx is done.
func (h *HealthServer) Watch(ctx context.Context, service string, interval time.Duration, deps map[string]Pinger) {
	check := func() {
		status := healthpb.HealthCheckResponse_SERVING
		for name, dep := range deps {
			pctx, cancel := context.WithTimeout(ctx, interval)
			err := dep.Ping(pctx)
			cancel()
			if err != nil {
				logger.Log.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
		}
		h.Health.SetServingStatus(service, status)
		h.Health.SetServingStatus("", status)
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
