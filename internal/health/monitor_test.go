package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func statusOf(t *testing.T, m *Monitor, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := m.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.GetStatus()
}

func TestMonitorCheck(t *testing.T) {
	var redisDown atomic.Bool
	m := NewMonitor(time.Hour, time.Second, discard)
	m.Add("orders.store", func(context.Context) error { return nil })
	m.Add("orders.push", func(context.Context) error {
		if redisDown.Load() {
			return errors.New("connection refused")
		}
		return nil
	})

	if got := statusOf(t, m, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status before first check = %v", got)
	}

	if !m.Check(context.Background()) {
		t.Fatal("Check reported unhealthy with all probes passing")
	}
	if got := statusOf(t, m, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("overall = %v", got)
	}

	redisDown.Store(true)
	if m.Check(context.Background()) {
		t.Fatal("Check reported healthy with a failing probe")
	}
	if got := statusOf(t, m, "orders.push"); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("orders.push = %v", got)
	}
	if got := statusOf(t, m, "orders.store"); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("orders.store = %v", got)
	}
	if got := statusOf(t, m, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("overall = %v", got)
	}
}

func TestMonitorProbeTimeout(t *testing.T) {
	m := NewMonitor(time.Hour, 20*time.Millisecond, discard)
	m.Add("orders.store", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	start := time.Now()
	if m.Check(context.Background()) {
		t.Fatal("hung probe reported healthy")
	}
	if time.Since(start) > time.Second {
		t.Fatal("probe timeout not applied")
	}
}

func TestMonitorOverGRPC(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	m := NewMonitor(10*time.Millisecond, time.Second, discard)
	m.Add("orders.store", func(context.Context) error { return nil })
	m.Register(srv)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
		if err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("never SERVING: %v, %v", resp, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("after shutdown = %v, %v", resp, err)
	}
}
