package server

import (
	"context"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ptcgai/referee-server-go/internal/metrics"
	"github.com/ptcgai/referee-server-go/internal/tracing"
)

// ChainUnaryInterceptors runs interceptors in order, the first one outermost.
func ChainUnaryInterceptors(interceptors ...grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		next := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			interceptor, inner := interceptors[i], next
			next = func(ctx context.Context, req any) (any, error) {
				return interceptor(ctx, req, info, inner)
			}
		}
		return next(ctx, req)
	}
}

// RecoveryInterceptor turns a panicking handler into an Internal error.
func RecoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in grpc handler",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				err = status.Errorf(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// LoggingInterceptor logs every call with its duration and status code.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
			zap.String("code", status.Code(err).String()),
		}
		if matchID := matchIDOf(req); matchID != "" {
			fields = append(fields, zap.String("match_id", matchID))
		}
		if err != nil {
			logger.Warn("grpc request failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("grpc request", fields...)
		}
		return resp, err
	}
}

// MetricsInterceptor records request counts and latencies.
func MetricsInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		m.RecordRPC(info.FullMethod, status.Code(err).String(), time.Since(start))
		return resp, err
	}
}

// TracingInterceptor wraps every call in a span.
func TracingInterceptor(t *tracing.Tracer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		attrs := []attribute.KeyValue{attribute.String("rpc.method", info.FullMethod)}
		if matchID := matchIDOf(req); matchID != "" {
			attrs = append(attrs, attribute.String("match.id", matchID))
		}
		if action := stringField(req, "action"); action != "" {
			attrs = append(attrs, attribute.String("referee.action", action))
		}
		ctx, span := t.Start(ctx, info.FullMethod, attrs...)
		defer span.End()

		resp, err := handler(ctx, req)
		if err != nil {
			tracing.RecordError(span, err)
		} else if out, ok := resp.(*structpb.Struct); ok {
			if v, ok := out.GetFields()["success"]; ok {
				span.SetAttributes(attribute.Bool("referee.success", v.GetBoolValue()))
			}
		}
		return resp, err
	}
}

func matchIDOf(req any) string {
	return stringField(req, "match_id")
}

func stringField(req any, key string) string {
	in, ok := req.(*structpb.Struct)
	if !ok {
		return ""
	}
	return in.GetFields()[key].GetStringValue()
}
