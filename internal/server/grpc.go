package server

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	healthhandler "workforce-auth/internal/health/handler"
)

// healthCheckMethods are probed constantly by load balancers and are not logged.
var healthCheckMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_Watch_FullMethodName: true,
}

// NewGRPCServer returns a gRPC server carrying the standard health service, traced with OpenTelemetry.
func NewGRPCServer(health *healthhandler.Server, logger *zap.Logger) *grpc.Server {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(LoggingUnary(logger, healthCheckMethods)),
	)
	RegisterServices(s, health)
	return s
}

// RegisterServices registers the gRPC services with s.
func RegisterServices(s grpc.ServiceRegistrar, health *healthhandler.Server) {
	healthpb.RegisterHealthServer(s, health.GRPC())
}

// LoggingUnary returns a unary server interceptor that logs each RPC with its status and duration.
// skipMethods is the set of full method names not to log.
func LoggingUnary(logger *zap.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		fields := []zap.Field{
			zap.String("full_method", info.FullMethod),
			zap.String("status_code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			logger.Warn("grpc request", append(fields, zap.Error(err))...)
		} else {
			logger.Info("grpc request", fields...)
		}
		return resp, err
	}
}
