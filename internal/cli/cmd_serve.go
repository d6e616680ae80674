package cli

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mahavishnu/mahavishnu/internal/api"
	"github.com/mahavishnu/mahavishnu/internal/config"
	"github.com/mahavishnu/mahavishnu/internal/deps"
	"github.com/mahavishnu/mahavishnu/internal/dlq"
	"github.com/mahavishnu/mahavishnu/internal/events"
	"github.com/mahavishnu/mahavishnu/internal/ordering"
	"github.com/mahavishnu/mahavishnu/internal/orchestrator"
	"github.com/mahavishnu/mahavishnu/internal/pool"
	"github.com/mahavishnu/mahavishnu/internal/storage"
)

// newServeCmd creates the serve command: the orchestrator control loop
// plus the websocket subscription gateway in one process.
func newServeCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator and subscription gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.Server.ListenAddr = listenAddr
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "gateway listen address (overrides config)")
	return cmd
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFile(cfgFile)
	}
	return config.Load()
}

func runServe(parent context.Context, cfg *config.Config) error {
	logger := setupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus(events.WithQueueSize(cfg.Subscription.DeliveryQueueSize))
	defer bus.Close()

	registry := pool.NewRegistry(bus, pool.WithLogger(logger))
	for _, pc := range cfg.Pools {
		if _, err := registry.Register(pc.ID, pc.Type, pc.MinWorkers, pc.MaxWorkers); err != nil {
			return err
		}
		for i := 0; i < pc.MinWorkers; i++ {
			if err := registry.AddWorker(pc.ID, fmt.Sprintf("%s-w%d", pc.ID, i)); err != nil {
				return err
			}
		}
		if err := registry.SetStatus(pc.ID, pool.StatusRunning); err != nil {
			return err
		}
	}

	queueOpts := []dlq.QueueOption{dlq.WithCapacity(cfg.DLQ.MaxSize)}
	if cfg.DLQ.PersistencePath != "" {
		store, err := storage.OpenSQLite(cfg.DLQ.PersistencePath)
		if err != nil {
			return err
		}
		defer store.Close()
		queueOpts = append(queueOpts, dlq.WithStore(store))
	}
	queue := dlq.NewQueue(queueOpts...)

	depMgr := deps.NewManager(logger)
	engine := ordering.NewEngine(ordering.WithTunables(ordering.Tunables{
		UrgentDeadlineDays:      cfg.Ordering.UrgentDeadlineDays,
		ApproachingDeadlineDays: cfg.Ordering.ApproachingDeadlineDays,
		ParallelismFactor:       ordering.DefaultTunables().ParallelismFactor,
	}))

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.Strategy = ordering.Strategy(cfg.Ordering.DefaultStrategy)
	orchCfg.RetryPolicy = dlq.RetryPolicy(cfg.DLQ.DefaultRetryPolicy)
	orchCfg.MaxRetries = cfg.DLQ.DefaultMaxRetries

	orch := orchestrator.New(orchCfg, depMgr, engine, registry, queue, newLogExecutor(logger),
		orchestrator.WithLogger(logger))
	if err := orch.Start(ctx); err != nil {
		return err
	}
	defer orch.Stop()

	if cfg.DLQ.Enabled && cfg.DLQ.RetryProcessorEnabled {
		queue.StartRetryProcessor(orch.Resubmit,
			time.Duration(cfg.DLQ.RetryIntervalSeconds)*time.Second)
		defer queue.StopRetryProcessor()
	}

	gateway := api.NewGateway(bus, registry, queue, depMgr,
		api.WithLogger(logger),
		api.WithPingInterval(time.Duration(cfg.Subscription.PingIntervalSeconds)*time.Second),
		api.WithRequestTimeout(time.Duration(cfg.Subscription.RequestTimeoutSeconds)*time.Second))

	mux := http.NewServeMux()
	mux.Handle("/ws", gateway)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gateway listening", "addr", cfg.Server.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		gateway.Shutdown(shutdownCtx)
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
