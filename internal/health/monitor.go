// Package health exposes dependency reachability through the gRPC health protocol.
package health

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Probe reports whether a dependency is reachable.
type Probe func(ctx context.Context) error

// Monitor runs probes on an interval and publishes one serving status per
// probe, plus the overall status under the empty service name.
type Monitor struct {
	srv      *health.Server
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	probes map[string]Probe
	last   map[string]bool
}

func NewMonitor(interval, timeout time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return &Monitor{
		srv:      srv,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		probes:   map[string]Probe{},
		last:     map[string]bool{},
	}
}

// Add registers a probe under a service name such as "orders.store".
func (m *Monitor) Add(service string, p Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[service] = p
	m.srv.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
}

// Register attaches the health service (and reflection, for grpcurl) to s.
func (m *Monitor) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, m.srv)
	reflection.Register(s)
}

// Server is the underlying health service.
func (m *Monitor) Server() healthpb.HealthServer { return m.srv }

// Check runs every probe once and updates the published statuses.
// It returns true when all probes passed.
func (m *Monitor) Check(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.probes))
	for name := range m.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	all := true
	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, m.timeout)
		err := m.probes[name](pctx)
		cancel()

		ok := err == nil
		if prev, seen := m.last[name]; !seen || prev != ok {
			if ok {
				m.logger.Info("dependency healthy", "service", name)
			} else {
				m.logger.Warn("dependency unhealthy", "service", name, "error", err)
			}
		}
		m.last[name] = ok
		m.srv.SetServingStatus(name, status(ok))
		all = all && ok
	}
	m.srv.SetServingStatus("", status(all))
	return all
}

// Run checks immediately and then every interval until ctx is done, after
// which every service reports NOT_SERVING.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		m.Check(ctx)
		select {
		case <-ctx.Done():
			m.srv.Shutdown()
			return nil
		case <-ticker.C:
		}
	}
}

func status(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
