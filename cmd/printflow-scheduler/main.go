// Printflow Scheduler — создаёт jobs по расписаниям из конфигурации.
//
// Несколько экземпляров могут работать одновременно: тики выполняет
// только лидер, владеющий advisory lock в PostgreSQL. Повторное создание
// одного и того же запуска отсекается ключом идемпотентности.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Printflow/internal/config"
	"github.com/shaiso/Printflow/internal/mq"
	"github.com/shaiso/Printflow/internal/repo"
	"github.com/shaiso/Printflow/internal/scheduler"
	"github.com/shaiso/Printflow/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting printflow-scheduler")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repo.Migrate(ctx, pool); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}
	logger.Info("db connected")

	schedCfg := scheduler.Config{
		Schedules: cfg.Schedules,
		Jobs:      repo.NewJobRepo(pool),
		Logger:    logger,
	}

	// RabbitMQ: без него воркеры найдут jobs через polling
	mqConn, err := mq.NewConnection(cfg.RabbitMQ.URL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, jobs will be picked up by polling", "error", err)
	} else {
		defer mqConn.Close()

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		} else {
			logger.Debug("topology ready", "topology", mq.TopologyInfo())
		}
		schedCfg.Publisher = mq.NewPublisher(mqConn, logger)
	}

	sched, err := scheduler.New(schedCfg, time.Now())
	if err != nil {
		logger.Error("invalid schedules", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", telemetry.MetricsHandler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Scheduler.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lock := repo.NewAdvisoryLock(pool, cfg.Scheduler.LockKey)
		return sched.Run(gctx, cfg.Scheduler.TickInterval, lock)
	})

	g.Go(func() error {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	logger.Info("printflow-scheduler stopped")
}
