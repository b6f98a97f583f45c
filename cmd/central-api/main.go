package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/goriiin/go-config-service/internal/config"
	"github.com/goriiin/go-config-service/internal/delivery"
	"github.com/goriiin/go-config-service/internal/logging"
	"github.com/goriiin/go-config-service/internal/platform/database"
)

func main() {
	cfg, err := config.Load(os.Getenv("RC_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("FATAL: Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresConnection(ctx, cfg.DB.ConnectionString())
	if err != nil {
		logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer dbPool.Close()

	repo := database.NewRepository(dbPool)
	handler := delivery.NewNamespaceHandler(repo, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Route("/v1/namespaces", func(r chi.Router) {
		r.Get("/", handler.ListNamespaces)
		r.Post("/{namespace}", handler.CreateNamespace)
		r.Get("/{namespace}", handler.GetNamespace)
		r.Put("/{namespace}", handler.UpdateNamespace)
		r.Delete("/{namespace}", handler.DeleteNamespace)
	})

	r.Post("/v1/config/fetch", handler.FetchConfig)

	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: cfg.API.ListenAddr, Handler: r}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("starting central API service", zap.String("addr", cfg.API.ListenAddr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	logger.Info("central API service stopped")
}
