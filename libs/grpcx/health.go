package grpcx

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthChecker checks a remote service through the standard gRPC health protocol.
type HealthChecker struct {
	conn    *grpc.ClientConn
	client  healthpb.HealthClient
	service string
}

func NewHealthChecker(conn *grpc.ClientConn, service string) *HealthChecker {
	return &HealthChecker{conn: conn, client: healthpb.NewHealthClient(conn), service: service}
}

func (p *HealthChecker) Check(ctx context.Context) error {
	resp, err := p.client.Check(ctx, &healthpb.HealthCheckRequest{Service: p.service})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("service %q is %s", p.service, resp.GetStatus())
	}
	return nil
}

func (p *HealthChecker) Close() error {
	return p.conn.Close()
}
