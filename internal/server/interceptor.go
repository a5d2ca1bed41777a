package server

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/bills-assistant/internal/common"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "x-request-id"

// UnaryInterceptor tags each call with a request id, logs it and converts application
// errors into gRPC statuses.
func UnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		reqID := incomingRequestID(ctx)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx = common.WithRequestID(ctx, reqID)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, reqID))

		resp, err := handler(ctx, req)
		log := common.LoggerFrom(ctx, logger)
		if err != nil {
			st := common.ToStatus(err)
			log.Warn("grpc.call.failed",
				"method", info.FullMethod,
				"grpc_code", status.Code(st).String(),
				"error", err,
				"elapsed_ms", common.ElapsedMS(start),
			)
			return nil, st
		}
		log.Info("grpc.call.ok", "method", info.FullMethod, "elapsed_ms", common.ElapsedMS(start))
		return resp, nil
	}
}

func incomingRequestID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(RequestIDHeader); len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}
