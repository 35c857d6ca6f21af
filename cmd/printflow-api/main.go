// Printflow API — HTTP API для отправки документов на печать.
//
// API:
//   - Создаёт jobs и публикует job.pending в RabbitMQ
//   - Отдаёт состояние jobs и журнал этапов
//   - Отменяет jobs (PENDING — сразу, RUNNING — через control exchange)
//
// Конфигурация: printflow.yaml (или --config), переменные PRINTFLOW_*, .env.
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

	"github.com/shaiso/Printflow/internal/api"
	"github.com/shaiso/Printflow/internal/config"
	"github.com/shaiso/Printflow/internal/mq"
	"github.com/shaiso/Printflow/internal/repo"
	"github.com/shaiso/Printflow/internal/telemetry"
)

var startTime = time.Now()

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// .env необязателен
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting printflow-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
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
	logger.Info("connected to database")

	// Реестр функций нужен для проверки отбора функций при создании job
	session, errs := cfg.Session(nil, logger)
	for _, e := range errs {
		logger.Warn("function unavailable", "error", e)
	}

	handlerCfg := api.Config{
		Jobs:    repo.NewJobRepo(pool),
		Stages:  repo.NewStageRepo(pool),
		Planner: session,
		Logger:  logger,
	}

	// RabbitMQ
	mqConn, err := mq.NewConnection(cfg.RabbitMQ.URL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, workers will pick up jobs by polling", "error", err)
	} else {
		defer mqConn.Close()

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		} else {
			logger.Debug("topology ready", "topology", mq.TopologyInfo())
		}
		handlerCfg.Publisher = mq.NewPublisher(mqConn, logger)
	}

	handler := api.NewHandler(handlerCfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime).Truncate(time.Second))
	})
	mux.Handle("/metrics", telemetry.MetricsHandler())
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
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
		logger.Info("shutting down")

		// Graceful shutdown с таймаутом 10 секунд
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("stopped")
}
