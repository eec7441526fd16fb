package grpcapi

import (
	"context"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"meter-reader/internal/auth"
	"meter-reader/internal/meterrpc"
)

// NewServer builds a gRPC server with logging and auth interceptors and the
// meter service registered.
func NewServer(svc *MeterService, interceptor *auth.Interceptor, logger *log.Logger, opts ...grpc.ServerOption) *grpc.Server {
	if logger == nil {
		logger = log.Default()
	}
	base := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(unaryLogging(logger), interceptor.Unary()),
		grpc.ChainStreamInterceptor(streamLogging(logger), interceptor.Stream()),
	}
	server := grpc.NewServer(append(base, opts...)...)
	meterrpc.RegisterServer(server, svc)
	return server
}

func unaryLogging(logger *log.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Printf("grpc %s %s %s", info.FullMethod, status.Code(err), time.Since(start))
		return resp, err
	}
}

func streamLogging(logger *log.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logger.Printf("grpc %s %s %s", info.FullMethod, status.Code(err), time.Since(start))
		return err
	}
}
