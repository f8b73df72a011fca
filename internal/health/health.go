// Package health exposes per-device serving status over the standard gRPC
// health protocol (grpc.health.v1.Health).
package health

import (
	"context"
	"errors"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Reporter implements service.HealthReporter. The empty service name reports
// the process itself and is SERVING for as long as the server is up.
type Reporter struct {
	srv    *grpchealth.Server
	logger *zap.Logger
}

func New(logger *zap.Logger, services ...string) *Reporter {
	r := &Reporter{srv: grpchealth.NewServer(), logger: logger}
	r.srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, s := range services {
		r.srv.SetServingStatus(s, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return r
}

func (r *Reporter) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	r.srv.SetServingStatus(service, status)
}

// Serving reports the last status set for service.
func (r *Reporter) Serving(service string) bool {
	resp, err := r.srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
}

// Snapshot returns serving status for each named service.
func (r *Reporter) Snapshot(services ...string) map[string]bool {
	out := make(map[string]bool, len(services))
	for _, s := range services {
		out[s] = r.Serving(s)
	}
	return out
}

func (r *Reporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, r.srv)
}

// Serve runs a gRPC server carrying only the health service until ctx ends.
func (r *Reporter) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s := grpc.NewServer()
	r.Register(s)

	go func() {
		<-ctx.Done()
		r.srv.Shutdown()
		s.GracefulStop()
	}()

	r.logger.Info("grpc health listening", zap.String("addr", lis.Addr().String()))
	if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
