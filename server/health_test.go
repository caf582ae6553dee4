package server

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/PavelAgarkov/lease-lock/leasestore"
	"github.com/PavelAgarkov/lease-lock/leasestore/mocks"
	"github.com/PavelAgarkov/lease-lock/readiness_barrier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func servingStatus(t *testing.T, hs *health.Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthProbe(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	pinger := mocks.NewMockPinger(ctrl)

	barrier := readiness_barrier.NewReadinessBarrier(ctx, readiness_barrier.ReadinessBarrierConfig{Name: "lease-store"})
	barrier.Start()
	defer barrier.Stop()

	hs := health.NewServer()
	RegisterHealth(hs)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, hs, ""))

	probe := NewHealthProbe(pinger, barrier, hs, "inventory")

	pinger.EXPECT().Ping(gomock.Any()).Return(nil)
	require.NoError(t, probe.Check(ctx))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, hs, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, hs, "inventory"))
	assert.Eventually(t, barrier.IsReady, time.Second, 5*time.Millisecond)

	down := errors.Join(leasestore.ErrBackendUnavailable, errors.New("connection refused"))
	pinger.EXPECT().Ping(gomock.Any()).Return(down)
	assert.ErrorIs(t, probe.Check(ctx), leasestore.ErrBackendUnavailable)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, hs, ""))
	assert.Eventually(t, func() bool { return !barrier.IsReady() }, time.Second, 5*time.Millisecond)
}

func TestGRPCHealthOverBufconn(t *testing.T) {
	ctx := context.Background()
	lis := bufconn.Listen(1 << 20)

	hs := health.NewServer()
	s := newGRPCServer(Configs{})
	s.serve(ctx, lis, RegisterHealth(hs), grpc.ChainUnaryInterceptor(
		EnforceMaxSendSize(1<<10),
		RecoverUnaryInterceptor(),
		TimeoutUnaryInterceptor(time.Second),
	))
	defer s.shutdown()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestUnaryInterceptors(t *testing.T) {
	ctx := context.Background()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	t.Run("recover", func(t *testing.T) {
		_, err := RecoverUnaryInterceptor()(ctx, nil, info, func(context.Context, any) (any, error) {
			panic("handler")
		})
		assert.Equal(t, codes.Internal, status.Code(err))
	})

	t.Run("max send size", func(t *testing.T) {
		resp := &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}
		handler := func(context.Context, any) (any, error) { return resp, nil }

		got, err := EnforceMaxSendSize(1<<10)(ctx, nil, info, handler)
		require.NoError(t, err)
		assert.Same(t, resp, got)

		_, err = EnforceMaxSendSize(1)(ctx, nil, info, handler)
		assert.Equal(t, codes.ResourceExhausted, status.Code(err))
	})

	t.Run("timeout", func(t *testing.T) {
		_, err := TimeoutUnaryInterceptor(10*time.Millisecond)(ctx, nil, info, func(ctx context.Context, _ any) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
