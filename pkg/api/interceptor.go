package api

import (
	"context"

	"github.com/cloudevy/downtime-scheduler/pkg/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// MetricsInterceptor records gRPC calls in the API request metrics, labelled
// by full method name and status code
func MetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		timer := metrics.NewTimer()
		resp, err := handler(ctx, req)

		timer.ObserveDurationVec(metrics.APIRequestDuration, info.FullMethod)
		metrics.APIRequestsTotal.WithLabelValues(info.FullMethod, grpcCode(err)).Inc()
		return resp, err
	}
}

// grpcCode returns the status code name of err, "OK" for nil
func grpcCode(err error) string {
	return status.Code(err).String()
}
