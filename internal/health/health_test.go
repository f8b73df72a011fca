package health_test

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/BrandonDHaskell/Cerberus/server/internal/health"
)

func TestReporter_StartsNotServing(t *testing.T) {
	r := health.New(zap.NewNop(), "camera", "lock")
	require.False(t, r.Serving("camera"))
	require.False(t, r.Serving("lock"))
	require.True(t, r.Serving(""))
}

func TestReporter_SetServing(t *testing.T) {
	r := health.New(zap.NewNop(), "camera")
	r.SetServing("camera", true)
	require.Equal(t, map[string]bool{"camera": true}, r.Snapshot("camera"))

	r.SetServing("camera", false)
	require.False(t, r.Serving("camera"))
}

func TestReporter_OverGRPC(t *testing.T) {
	r := health.New(zap.NewNop(), "fingerprint")
	r.SetServing("fingerprint", true)

	lis := bufconn.Listen(1 << 16)
	s := grpc.NewServer()
	r.Register(s)
	go func() { _ = s.Serve(lis) }()
	defer s.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: "fingerprint"})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
