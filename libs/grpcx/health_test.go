package grpcx

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthChecker(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("geofence.v1.Sync", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	go func() {
		_ = srv.Serve(lis)
	}()
	defer srv.Stop()

	conn, err := NewClient(lis.Addr().String(), DialOptions{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	checker := NewHealthChecker(conn, "geofence.v1.Sync")
	defer checker.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := checker.Check(ctx); err != nil {
		t.Fatalf("expected serving, got %v", err)
	}

	hs.SetServingStatus("geofence.v1.Sync", healthpb.HealthCheckResponse_NOT_SERVING)
	if err := checker.Check(ctx); err == nil {
		t.Fatalf("expected not serving error")
	}
}
