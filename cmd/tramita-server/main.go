// Tramita Server — оркестратор задач автоматизации.
//
// Server:
//   - Принимает задачи через HTTP API
//   - Держит пул воркер-процессов и FIFO-очередь допуска
//   - Транслирует события воркеров подписчикам (SSE, RabbitMQ)
//   - Убирает журналы по сроку хранения
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dgarciamx/Tramita/internal/api"
	"github.com/dgarciamx/Tramita/internal/auth"
	"github.com/dgarciamx/Tramita/internal/dispatch"
	"github.com/dgarciamx/Tramita/internal/gateway"
	"github.com/dgarciamx/Tramita/internal/janitor"
	"github.com/dgarciamx/Tramita/internal/mq"
	"github.com/dgarciamx/Tramita/internal/repo"
	"github.com/dgarciamx/Tramita/internal/store"
	"github.com/dgarciamx/Tramita/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting tramita-server")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Хранилище: Postgres при заданном DB_URL, иначе in-memory.
	var (
		taskStore store.Store
		profiles  dispatch.ProfileSource
	)
	if os.Getenv("DB_URL") != "" {
		pool, err := repo.NewPool(ctx)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		logger.Info("database connected")

		taskStore = repo.NewTaskStore(pool)
		profiles = repo.NewProfileRepo(pool)
	} else {
		logger.Warn("DB_URL not set, using in-memory store")
		taskStore = store.NewMemStore()
	}

	// RabbitMQ — опциональный. Без него события расходятся только
	// внутренним подписчикам (SSE).
	var fanout gateway.Fanout
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	mqConn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, events stay internal", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		fanout = mq.NewPublisher(mqConn, logger)
	}

	gw := gateway.New(fanout, logger)

	// Пул воркеров
	workerBin := os.Getenv("WORKER_BIN")
	if workerBin == "" {
		workerBin = "tramita-worker"
	}

	dispatcher := dispatch.New(dispatch.Config{
		Store:    taskStore,
		Gateway:  gw,
		Profiles: profiles,
		Spawner: &dispatch.ProcessSpawner{
			Bin:            workerBin,
			SessionTimeout: envDuration("SESSION_TIMEOUT_SEC", 0),
			Logger:         logger,
		},
		PoolSize:            envInt("POOL_SIZE", 0),
		InterventionTimeout: envDuration("INTERVENTION_TIMEOUT_SEC", 0),
		Logger:              logger,
	})
	if err := dispatcher.Start(ctx); err != nil {
		logger.Error("failed to start dispatcher", "error", err)
		os.Exit(1)
	}

	// Уборка журналов
	jan, err := janitor.New(janitor.Config{
		Store:     taskStore,
		Logger:    logger,
		Retention: envDuration("RETENTION_SEC", 0),
		Schedule:  os.Getenv("JANITOR_CRON"),
	})
	if err != nil {
		logger.Error("failed to create janitor", "error", err)
		os.Exit(1)
	}
	if err := jan.Start(ctx); err != nil {
		logger.Error("failed to start janitor", "error", err)
		os.Exit(1)
	}

	// Identity: внешний сервис при заданном AUTH_URL, иначе статический
	// verifier для локальной разработки.
	var verifier auth.Verifier
	if authURL := os.Getenv("AUTH_URL"); authURL != "" {
		verifier = auth.NewClient(authURL)
	} else {
		logger.Warn("AUTH_URL not set, using static token verifier")
		admins := make(map[string]bool)
		for _, tok := range strings.Split(os.Getenv("ADMIN_TOKENS"), ",") {
			if tok = strings.TrimSpace(tok); tok != "" {
				admins[tok] = true
			}
		}
		verifier = &auth.StaticVerifier{AdminTokens: admins}
	}

	// HTTP API
	handler := api.NewHandler(api.Config{
		Store:      taskStore,
		Dispatcher: dispatcher,
		Gateway:    gw,
		Logger:     logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, verifier)
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Сначала перестаём принимать запросы, потом гасим пул.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	jan.Stop()
	dispatcher.Stop()
	logger.Info("stopped")
}

// envInt читает целое из переменной окружения, 0 — значение по умолчанию.
func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// envDuration читает секунды из переменной окружения.
func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
