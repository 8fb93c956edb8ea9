package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	dockerclient "github.com/docker/docker/client"
	"github.com/go-chi/chi"
	"github.com/go-chi/cors"
	"github.com/jimmicro/grace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coralcp/dbaas/api"
	"github.com/coralcp/dbaas/config"
	"github.com/coralcp/dbaas/container"
	"github.com/coralcp/dbaas/db"
	"github.com/coralcp/dbaas/eventbus"
	"github.com/coralcp/dbaas/health"
	"github.com/coralcp/dbaas/hostinfo"
	"github.com/coralcp/dbaas/instance"
	"github.com/coralcp/dbaas/logging"
	"github.com/coralcp/dbaas/metrics"
	"github.com/coralcp/dbaas/migrations"
	"github.com/coralcp/dbaas/permission"
	"github.com/coralcp/dbaas/snapshot"
	"github.com/coralcp/dbaas/util"
	"github.com/coralcp/dbaas/vnetalloc"
	"github.com/coralcp/dbaas/volume"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

// httpService adapts an *http.Server to the Name()/Run(ctx) shape the rest
// of the daemon's long-running components already satisfy, so it can sit
// in the same Shepherd alongside the Health Monitor and Metrics Sampler.
type httpService struct {
	name   string
	server *http.Server
}

func (h *httpService) Name() string { return h.name }

// Shutdown is a no-op: Run already performs the graceful HTTP shutdown
// itself once ctx is cancelled.
func (h *httpService) Shutdown(ctx context.Context) error { return nil }

// zapGraceLogger adapts *zap.Logger to grace.Logger.
type zapGraceLogger struct{ logger *zap.Logger }

func (l zapGraceLogger) Info(msg string, args ...interface{}) {
	l.logger.Sugar().Infof(msg, args...)
}

func (l zapGraceLogger) Error(msg string, args ...interface{}) {
	l.logger.Sugar().Errorf(msg, args...)
}

func (h *httpService) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return h.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	gdb, err := db.New(logger, cfg.DataRoot+"/instances.db")
	if err != nil {
		return fmt.Errorf("opening instances database: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	if err := migrations.Up(sqlDB, logger); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	dockerCli, err := dockerclient.NewClientWithOpts(dockerclient.WithHost(cfg.RuntimeSocket), dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("connecting to container runtime: %w", err)
	}
	containers, err := container.NewClient(container.Options{Docker: dockerCli, Logger: logger})
	if err != nil {
		return err
	}

	volumes := volume.New(cfg.DataRoot + "/volumes")
	vnet, err := vnetalloc.New("10.200.0.0/24")
	if err != nil {
		return fmt.Errorf("initializing vnet pool: %w", err)
	}

	var bus eventbus.Bus
	if cfg.EventBusAMQPURI != "" {
		bus, err = eventbus.NewAMQPBus(cfg.EventBusAMQPURI)
		if err != nil {
			return fmt.Errorf("connecting to event bus: %w", err)
		}
	} else {
		bus = eventbus.NewMemoryBus()
	}

	snapshots := &snapshot.Service{DB: gdb, Containers: containers, Logger: logger, Root: cfg.DataRoot + "/snapshots"}

	manager := instance.NewManager(logger, gdb)
	lifecycle := instance.NewLifecycle(manager, instance.LifecycleOptions{
		Containers:  containers,
		Volumes:     volumes,
		VNet:        vnet,
		Snapshots:   snapshots,
		Logger:      logger,
		TLSRoot:     cfg.DataRoot + "/tls",
		PortReserve: util.GetFreeTCPPort,
		PortRelease: func(int) {}, // ports are not tracked for reuse across restarts; the OS reclaims them
	})
	instSvc := &instance.Service{Manager: manager, Lifecycle: lifecycle, Containers: containers}

	reconciler := instance.NewReconciler(manager, lifecycle, containers, logger)
	if err := reconciler.Run(context.Background()); err != nil {
		logger.Error("startup reconciliation failed", zap.Error(err))
	}

	healthMonitor := health.New(health.Options{
		DB:         gdb,
		Containers: containers,
		Bus:        bus,
		Logger:     logger,
		Interval:   time.Duration(cfg.HealthIntervalS) * time.Second,
	})
	metricsSampler := metrics.New(metrics.Options{
		DB:            gdb,
		Containers:    containers,
		Logger:        logger,
		Registerer:    prometheus.DefaultRegisterer,
		Interval:      time.Duration(cfg.MetricsIntervalS) * time.Second,
		RetentionDays: cfg.MetricsRetentionDays,
	})
	reporter := &hostinfo.Reporter{Containers: containers, VNet: vnet}

	apiSvc, err := api.NewService(api.Options{
		Instances:  instSvc,
		Health:     healthMonitor,
		Metrics:    metricsSampler,
		Snapshots:  snapshots,
		HostInfo:   reporter,
		Permission: permission.AllowAll,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("building API service: %w", err)
	}

	root := chi.NewRouter()
	root.Use(cors.Handler(cors.Options{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET", "POST", "DELETE"}}))
	root.Mount("/dbaas", apiSvc.Router())

	httpSrv := &httpService{name: "api-server", server: &http.Server{Addr: cfg.APIListenAddr, Handler: root}}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shepherd := grace.NewShepherd([]grace.Grace{healthMonitor, metricsSampler, httpSrv}, grace.WithLogger(zapGraceLogger{logger: logger}))

	logger.Info("dbaasd starting", zap.String("listen_addr", cfg.APIListenAddr))
	return shepherd.StartErr(ctx)
}
