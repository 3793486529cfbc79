package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudevy/downtime-scheduler/pkg/api"
	"github.com/cloudevy/downtime-scheduler/pkg/cloud"
	"github.com/cloudevy/downtime-scheduler/pkg/events"
	"github.com/cloudevy/downtime-scheduler/pkg/executor"
	"github.com/cloudevy/downtime-scheduler/pkg/health"
	"github.com/cloudevy/downtime-scheduler/pkg/log"
	"github.com/cloudevy/downtime-scheduler/pkg/metrics"
	"github.com/cloudevy/downtime-scheduler/pkg/rules"
	"github.com/cloudevy/downtime-scheduler/pkg/scheduler"
	"github.com/cloudevy/downtime-scheduler/pkg/schedules"
	"github.com/cloudevy/downtime-scheduler/pkg/storage"
	"github.com/cloudevy/downtime-scheduler/pkg/tracing"
	"github.com/cloudevy/downtime-scheduler/pkg/traffic"
	"github.com/spf13/cobra"
)

const serviceName = "downtime-scheduler"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler loop and the HTTP API",
	Long: `Run the scheduler loop together with the HTTP API, the gRPC health
service and the metrics collector until interrupted.

With --api-only the loop is not started; use this to run additional API
replicas next to a single scheduler process.`,
	RunE: runServe,
}

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Run a single scheduler tick and wait for its executions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		sched, err := newScheduler(store, nil)
		if err != nil {
			return err
		}

		dispatched := sched.Tick(ctx, time.Now())
		sched.Wait()
		fmt.Printf("Dispatched %d schedule(s)\n", dispatched)
		return nil
	},
}

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Probe the readiness endpoint of a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		res := health.NewHTTPChecker(url).WithTimeout(timeout).Check(cmd.Context())
		if !res.Healthy {
			return fmt.Errorf("unhealthy: %s", res.Message)
		}
		fmt.Println(res.Message)
		return nil
	},
}

func init() {
	serveCmd.Flags().Bool("api-only", false, "Serve the API without running the scheduler loop")
	serveCmd.Flags().String("http-addr", "", "HTTP listen address (overrides config and PORT)")
	serveCmd.Flags().String("grpc-addr", "", "gRPC health listen address")

	healthcheckCmd.Flags().String("url", "http://127.0.0.1:8003/ready", "Readiness URL")
	healthcheckCmd.Flags().Duration("timeout", 5*time.Second, "Request timeout")
}

// newScheduler wires the executor and loop on top of store
func newScheduler(store storage.Store, publisher events.Publisher) (*scheduler.Scheduler, error) {
	creds, err := credentialManager()
	if err != nil {
		return nil, err
	}

	exec := executor.New(cloud.NewResolver(creds), store,
		executor.WithStateTimeout(cfg.Scheduler.StateTimeout))

	var opts []scheduler.Option
	if publisher != nil {
		opts = append(opts, scheduler.WithEvents(publisher))
	}
	return scheduler.NewScheduler(store, exec, rules.New(), cfg.Scheduler.Loop(), opts...), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	apiOnly, _ := cmd.Flags().GetBool("api-only")
	if addr, _ := cmd.Flags().GetString("http-addr"); addr != "" {
		cfg.HTTP.Addr = addr
	}
	if addr, _ := cmd.Flags().GetString("grpc-addr"); addr != "" {
		cfg.GRPC.Addr = addr
	}

	logger := log.WithComponent("serve")
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, serviceName, Version, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	metrics.SetVersion(Version)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	go logEvents(broker.Subscribe())

	monitor := health.NewMonitor(cfg.Health.Checks())
	monitor.Register("store", health.NewStoreChecker(store))

	var sched *scheduler.Scheduler
	if apiOnly {
		metrics.SetCriticalComponents("store")
	} else {
		sched, err = newScheduler(store, broker)
		if err != nil {
			return err
		}
		sched.Start(ctx)
		monitor.Register("scheduler", health.NewSchedulerChecker(sched, 3*cfg.Scheduler.PollInterval))
	}
	monitor.Start(ctx)
	defer monitor.Stop()

	collector := metrics.NewCollector(store)
	collector.Start()
	defer collector.Stop()

	loc, err := rules.LoadLocation(cfg.Traffic.Timezone)
	if err != nil {
		return err
	}
	engine := rules.New()
	svc := schedules.NewService(store, engine, schedules.WithEvents(broker))
	apiServer := api.NewServer(svc, store, engine, traffic.New(traffic.WithLocation(loc)))

	errCh := make(chan error, 2)
	go func() {
		if err := apiServer.Start(cfg.HTTP.Addr); err != nil {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	var grpcServer *api.HealthServer
	if cfg.GRPC.Enabled {
		grpcServer = api.NewHealthServer(cfg.Health.Interval)
		go func() {
			if err := grpcServer.Start(cfg.GRPC.Addr); err != nil {
				errCh <- fmt.Errorf("gRPC server error: %w", err)
			}
		}()
	}

	logger.Info().
		Str("version", Version).
		Str("store", cfg.Store.Driver).
		Bool("scheduler", !apiOnly).
		Msg("Downtime scheduler running")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("Server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.GracePeriod+5*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	if grpcServer != nil {
		grpcServer.Stop()
	}
	if sched != nil {
		sched.Stop(shutdownCtx)
	}

	logger.Info().Msg("Shutdown complete")
	return runErr
}

// logEvents writes every broker event to the log until the channel closes
func logEvents(sub events.Subscriber) {
	logger := log.WithComponent("events")
	for e := range sub {
		evt := logger.Info()
		if e.Type == events.EventScheduleFailed {
			evt = logger.Warn()
		}
		evt = evt.Str("type", string(e.Type))
		for k, v := range e.Metadata {
			evt = evt.Str(k, v)
		}
		evt.Msg(e.Message)
	}
}
