// Package health serves the gRPC health protocol for the honeypot's dependencies.
package health

import (
	"context"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"honeypot-lab/pkg/logger"
)

// ServiceName is the service reported next to the overall ("") status
const ServiceName = "honeypot.v1.Honeypot"

const pingTimeout = 2 * time.Second

// Pinger is any dependency that can report its own reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker periodically pings dependencies and publishes the result
// through the standard gRPC health service
type Checker struct {
	server   *grpchealth.Server
	deps     map[string]Pinger
	interval time.Duration
	logger   *logger.Logger
}

// NewChecker creates a checker. Nil dependencies are ignored.
func NewChecker(deps map[string]Pinger, interval time.Duration, log *logger.Logger) *Checker {
	live := make(map[string]Pinger, len(deps))
	for name, p := range deps {
		if p != nil {
			live[name] = p
		}
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}

	srv := grpchealth.NewServer()
	srv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	srv.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &Checker{
		server:   srv,
		deps:     live,
		interval: interval,
		logger:   log.WithComponent("grpc-health"),
	}
}

// Register registers the health service on grpcServer
func (c *Checker) Register(grpcServer *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(grpcServer, c.server)
}

// Server exposes the underlying health server
func (c *Checker) Server() *grpchealth.Server {
	return c.server
}

// Run checks dependencies every interval until ctx is done
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check pings every dependency once, updates the serving status and
// reports whether all of them answered
func (c *Checker) Check(ctx context.Context) bool {
	healthy := true
	for name, dep := range c.deps {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := dep.Ping(pingCtx)
		cancel()
		if err != nil {
			healthy = false
			c.logger.Warn().Err(err).Str("dependency", name).Msg("health check failed")
		}
	}

	status := grpc_health_v1.HealthCheckResponse_SERVING
	if !healthy {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	c.server.SetServingStatus("", status)
	c.server.SetServingStatus(ServiceName, status)
	return healthy
}

// Shutdown marks every service as not serving
func (c *Checker) Shutdown() {
	c.server.Shutdown()
}
