package api

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cloudevy/downtime-scheduler/pkg/log"
	"github.com/cloudevy/downtime-scheduler/pkg/metrics"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name mirrored alongside "" (overall)
const ServiceName = "downtime.Scheduler"

// HealthServer exposes readiness over the standard gRPC health protocol
type HealthServer struct {
	grpc     *grpc.Server
	health   *grpchealth.Server
	interval time.Duration
	ready    func() bool
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   zerolog.Logger
}

// NewHealthServer creates a gRPC server whose SERVING status follows
// metrics.GetReadiness, refreshed every interval
func NewHealthServer(interval time.Duration) *HealthServer {
	hs := &HealthServer{
		grpc:     grpc.NewServer(grpc.UnaryInterceptor(MetricsInterceptor())),
		health:   grpchealth.NewServer(),
		interval: interval,
		ready:    func() bool { return metrics.GetReadiness().Status == metrics.StatusReady },
		stopCh:   make(chan struct{}),
		logger:   log.WithComponent("grpc"),
	}
	grpc_health_v1.RegisterHealthServer(hs.grpc, hs.health)
	hs.sync()
	return hs
}

// sync copies readiness into the health service
func (hs *HealthServer) sync() {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if hs.ready() {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	hs.health.SetServingStatus("", status)
	hs.health.SetServingStatus(ServiceName, status)
}

// Start serves on addr until Stop
func (hs *HealthServer) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return hs.Serve(lis)
}

// Serve serves on an existing listener until Stop
func (hs *HealthServer) Serve(lis net.Listener) error {
	go hs.watch()
	hs.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health listening")
	return hs.grpc.Serve(lis)
}

func (hs *HealthServer) watch() {
	ticker := time.NewTicker(hs.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			hs.sync()
		case <-hs.stopCh:
			return
		}
	}
}

// Stop marks every service NOT_SERVING and stops the server gracefully
func (hs *HealthServer) Stop() {
	hs.stopOnce.Do(func() {
		close(hs.stopCh)
		hs.health.Shutdown()
		hs.grpc.GracefulStop()
	})
}
