package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"

	"github.com/goriiin/go-config-service/internal/config"
	"github.com/goriiin/go-config-service/internal/logging"
)

// Оперативный "хвост" топика конфигурационных дельт: печатает каждое
// изменение, долетевшее из outbox. Инструмент дежурного, не часть пайплайна.
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
		groupID = "config-deltas-tail"
	}

	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Kafka.Brokers,
		"group.id":          groupID,
		"auto.offset.reset": "earliest",
	})
	if err != nil {
		logger.Fatal("failed to create kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	if err := consumer.Subscribe(cfg.Kafka.DeltasTopic, nil); err != nil {
		logger.Fatal("failed to subscribe to topic",
			zap.String("topic", cfg.Kafka.DeltasTopic), zap.Error(err))
	}

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("listening for config deltas", zap.String("topic", cfg.Kafka.DeltasTopic))

	run := true
	for run {
		select {
		case sig := <-sigchan:
			logger.Info("shutdown signal received", zap.String("signal", sig.String()))
			run = false
		default:
			msg, err := consumer.ReadMessage(time.Second)
			if err != nil {
				if kerr, ok := err.(kafka.Error); ok && kerr.Code() == kafka.ErrTimedOut {
					continue
				}

				logger.Error("consumer error", zap.Error(err))
				continue
			}

			logger.Info("config delta received",
				zap.String("namespace", string(msg.Key)),
				zap.String("partition", msg.TopicPartition.String()),
				zap.ByteString("payload", msg.Value))
		}
	}

	logger.Info("event consumer stopped")
}
