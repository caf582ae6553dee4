package server

import (
	"context"
	"fmt"
	"net"
	"runtime/debug"
	"time"

	"github.com/PavelAgarkov/lease-lock/logger"
	logger "github.com/PavelAgarkov/lease-lock/logger/zap_engine"
	"github.com/PavelAgarkov/lease-lock/utils"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

type Configs struct {
	Port       string
	Network    string
	Reflection bool
}

type GRPCServer struct {
	configs Configs
	server  *grpc.Server
}

func newGRPCServer(configs Configs) *GRPCServer {
	if configs.Network == "" {
		configs.Network = "tcp"
	}
	return &GRPCServer{
		configs: configs,
	}
}

func (s *GRPCServer) Start(ctx context.Context, registerServices func(*grpc.Server), serverOptions ...grpc.ServerOption) (func(), error) {
	listener, err := net.Listen(s.configs.Network, s.configs.Port)
	if err != nil {
		return nil, fmt.Errorf("grpc: listen on %s: %w", s.configs.Port, err)
	}
	s.serve(ctx, listener, registerServices, serverOptions...)
	return s.shutdown, nil
}

func (s *GRPCServer) serve(ctx context.Context, listener net.Listener, registerServices func(*grpc.Server), serverOptions ...grpc.ServerOption) {
	s.server = grpc.NewServer(serverOptions...)
	registerServices(s.server)
	if s.configs.Reflection {
		reflection.Register(s.server)
	}

	utils.GoRecover(ctx, func(ctx context.Context) {
		logger.WriteInfoLog(ctx, &logger_wrapper.LogEntry{
			Msg:       fmt.Sprintf("gRPC server is started on %s", listener.Addr()),
			Args:      s.configs,
			Component: "GRPCServer",
			Method:    "Start",
		})
		if err := s.server.Serve(listener); err != nil {
			panic(fmt.Sprintf("Server gRPC stopped by error: %v", err))
		}
	})
}

func (s *GRPCServer) shutdown() {
	logCtx := context.Background()
	logger.WriteInfoLog(logCtx, &logger_wrapper.LogEntry{
		Msg:       "Shutting down gRPC server",
		Component: "GRPCServer",
		Method:    "shutdown",
	})

	timeoutCtx, cancel := context.WithTimeout(logCtx, 5*time.Second)
	defer cancel()

	done := make(chan struct{})

	utils.GoRecover(timeoutCtx, func(ctx context.Context) {
		s.server.GracefulStop()
		close(done)
	})

	select {
	case <-done:
		logger.WriteInfoLog(logCtx, &logger_wrapper.LogEntry{
			Msg:       "gRPC server has gracefully stopped.",
			Component: "GRPCServer",
			Method:    "shutdown",
		})
	case <-timeoutCtx.Done():
		logger.WriteWarnLog(logCtx, &logger_wrapper.LogEntry{
			Msg:       "Graceful shutdown timed out, forcing stop.",
			Component: "GRPCServer",
			Method:    "shutdown",
		})
		s.server.Stop()
	}
}

func CreateGRPCServer(ctx context.Context, registerServices func(*grpc.Server), configs Configs, serverOptions ...grpc.ServerOption) (func(), error) {
	return newGRPCServer(configs).Start(ctx, registerServices, serverOptions...)
}

// RegisterHealth вешает grpc.health.v1 на сервер. Пока проба не отработала, статус NOT_SERVING.
func RegisterHealth(hs *health.Server) func(*grpc.Server) {
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return func(s *grpc.Server) {
		healthpb.RegisterHealthServer(s, hs)
	}
}

func PanicHandler(ctx context.Context, p interface{}) error {
	fullMethod := "unknown"
	if ts := grpc.ServerTransportStreamFromContext(ctx); ts != nil {
		fullMethod = ts.Method()
	}
	stack := string(debug.Stack())

	logger.WriteErrorLog(ctx, &logger_wrapper.LogEntry{
		Msg:       "panic in gRPC handler",
		Component: "GRPCServer",
		Method:    fullMethod,
		Error:     utils.PanicError(p),
		Args:      stack,
	})

	return status.Errorf(codes.Internal, "internal server error (%s)", fullMethod)
}

func RecoverUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				resp, err = nil, PanicHandler(ctx, r)
			}
		}()
		return handler(ctx, req)
	}
}

// EnforceMaxSendSize режет ответы больше max, иначе сервер копит их в памяти.
// Ставить первым в цепочке. max лучше брать с запасом, около 0.9 от лимита клиента.
func EnforceMaxSendSize(max int) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		resp, err = handler(ctx, req)
		if err != nil || resp == nil {
			return resp, err
		}
		if m, ok := resp.(proto.Message); ok {
			if size := proto.Size(m); size > max {
				return nil, status.Errorf(codes.ResourceExhausted,
					"response too large: %d > %d; use paging/streaming", size, max)
			}
		}
		return resp, nil
	}
}

func TimeoutUnaryInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		c, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(c, req)
	}
}
