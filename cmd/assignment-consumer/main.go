package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/goriiin/go-config-service/internal/config"
	"github.com/goriiin/go-config-service/internal/logging"
	"github.com/goriiin/go-config-service/internal/platform/database"
	"github.com/goriiin/go-config-service/pkg/rc_types"
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

	groupID := cfg.Kafka.GroupID
	if groupID == "" {
		groupID = "assignment-consumer-group"
	}

	session, err := database.NewCassandraSession(cfg.Cassandra.HostList(), cfg.Cassandra.Keyspace)
	if err != nil {
		logger.Fatal("failed to connect to Cassandra", zap.Error(err))
	}
	defer session.Close()

	sink := database.NewAssignmentSink(session)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Kafka.BrokerList(),
		GroupID:  groupID,
		Topic:    cfg.Kafka.ExposuresTopic,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("assignment consumer started",
		zap.String("topic", cfg.Kafka.ExposuresTopic),
		zap.String("group_id", groupID))

	for {
		// Смещение коммитится только после успешной записи в Cassandra:
		// доставка как минимум один раз, сток идемпотентен.
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				break
			}

			logger.Error("could not fetch message", zap.Error(err))
			continue
		}

		var event rc_types.ExposureEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Warn("skipping malformed exposure event",
				zap.Int64("offset", msg.Offset), zap.Error(err))

			if err := reader.CommitMessages(ctx, msg); err != nil {
				logger.Error("failed to commit skipped message", zap.Error(err))
			}
			continue
		}

		if err := sink.InsertAssignment(ctx, event); err != nil {
			logger.Error("failed to store assignment, message will be redelivered",
				zap.String("user_id", event.UserID),
				zap.String("experiment_id", event.ExperimentID),
				zap.Error(err))
			continue
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Error("failed to commit message", zap.Error(err))
			continue
		}

		logger.Debug("assignment stored",
			zap.String("user_id", event.UserID),
			zap.String("experiment_id", event.ExperimentID),
			zap.String("variant_id", event.VariantID))
	}

	logger.Info("assignment consumer stopped")
}
