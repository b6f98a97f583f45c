// File: cmd/outbox-worker/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/goriiin/go-config-service/internal/config"
	"github.com/goriiin/go-config-service/internal/logging"
	"github.com/goriiin/go-config-service/internal/platform/database"
	"github.com/goriiin/go-config-service/internal/platform/queue"
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

	store := database.NewOutboxStore(dbPool)

	producer := queue.NewProducer(cfg.Kafka.BrokerList(), cfg.Kafka.DeltasTopic)
	defer producer.Close()

	logger.Info("outbox worker started",
		zap.String("topic", cfg.Kafka.DeltasTopic),
		zap.Duration("poll_interval", cfg.Outbox.PollInterval),
		zap.Int("batch_size", cfg.Outbox.BatchSize))

	ticker := time.NewTicker(cfg.Outbox.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("outbox worker stopped")
			return
		case <-ticker.C:
			processEvents(ctx, store, producer, logger, cfg.Outbox.BatchSize)
		}
	}
}

// processEvents публикует одну порцию событий. Каждое событие сначала
// захватывается, чтобы параллельные воркеры не опубликовали его дважды;
// после неудачной публикации захват снимается.
func processEvents(ctx context.Context, store *database.OutboxStore, producer *queue.Producer, logger *zap.Logger, batchSize int) {
	events, err := store.FetchPending(ctx, batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Error("failed to fetch pending events", zap.Error(err))
		return
	}

	for _, event := range events {
		claimed, err := store.ClaimEvent(ctx, event.EventID)
		if err != nil {
			logger.Error("failed to claim event",
				zap.String("event_id", event.EventID.String()), zap.Error(err))
			continue
		}

		if !claimed {
			logger.Debug("event already claimed by another worker",
				zap.String("event_id", event.EventID.String()))
			continue
		}

		if err := producer.Publish(ctx, []byte(event.AggregateID), event.Payload); err != nil {
			logger.Error("failed to publish event, releasing claim",
				zap.String("event_id", event.EventID.String()), zap.Error(err))

			if relErr := store.ReleaseEvent(ctx, event.EventID); relErr != nil {
				logger.Error("failed to release claimed event",
					zap.String("event_id", event.EventID.String()), zap.Error(relErr))
			}
			continue
		}

		if err := store.DeleteEvent(ctx, event.EventID); err != nil {
			logger.Error("failed to delete published event, manual cleanup required",
				zap.String("event_id", event.EventID.String()), zap.Error(err))
			continue
		}

		logger.Info("published outbox event",
			zap.String("event_id", event.EventID.String()),
			zap.String("aggregate_id", event.AggregateID),
			zap.String("event_type", event.EventType))
	}
}
