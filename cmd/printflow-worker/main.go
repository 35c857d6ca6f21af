// Printflow Worker — выполняет jobs печати.
//
// Worker:
//   - Получает job.pending из RabbitMQ (и находит PENDING jobs через polling)
//   - Прогоняет документ через цепочку функций печати
//   - Пишет журнал этапов и прогресс в PostgreSQL
//   - Публикует события jobs и этапов
//   - Отменяет свои jobs по команде из control exchange
//
// Workers масштабируются горизонтально.
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
	"github.com/shaiso/Printflow/internal/telemetry"
	"github.com/shaiso/Printflow/internal/worker"
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
	logger.Info("starting printflow-worker")

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
	logger.Info("database connected")

	session, errs := cfg.Session(telemetry.NewMetricsObserver(), logger)
	for _, e := range errs {
		logger.Warn("function unavailable", "error", e)
	}

	workerCfg := worker.Config{
		ID:           cfg.Worker.ID,
		Jobs:         repo.NewJobRepo(pool),
		Stages:       repo.NewStageRepo(pool),
		Session:      session,
		PollInterval: cfg.Worker.PollInterval,
		BatchSize:    cfg.Worker.BatchSize,
		Concurrency:  cfg.Worker.Concurrency,
		Logger:       logger,
	}

	// RabbitMQ
	mqConn, err := mq.NewConnection(cfg.RabbitMQ.URL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		} else {
			logger.Debug("topology ready", "topology", mq.TopologyInfo())
		}

		workerCfg.Conn = mqConn
		workerCfg.Publisher = mq.NewPublisher(mqConn, logger)
	}

	w := worker.New(workerCfg)
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		fmt.Fprintf(rw, "ok active=%d mq=%t", w.ActiveJobs(), mqConn != nil && mqConn.IsConnected())
	})
	mux.Handle("/metrics", telemetry.MetricsHandler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		// Активные jobs завершатся как CANCELLED до закрытия HTTP
		w.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("worker error", "error", err)
		os.Exit(1)
	}

	logger.Info("printflow-worker stopped")
}
