package main

import (
	"bytes"
	"context"
	"fmt"
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
	"github.com/goriiin/go-config-service/internal/platform/storage"
	"github.com/goriiin/go-config-service/pkg/rc_types"
)

// Генератор - разовая задача (запускается кроном или вручную после
// публикаций): выгружает действующие документы всех пространств имён в
// объектное хранилище и анонсирует каждую выгрузку в Kafka.
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

	// 1. Инициализация зависимостей
	dbPool, err := database.NewPostgresConnection(ctx, cfg.DB.ConnectionString())
	if err != nil {
		logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer dbPool.Close()

	repo := database.NewRepository(dbPool)

	minioClient, err := storage.NewMinIOClient(cfg.MinIO.Endpoint, cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, cfg.MinIO.UseSSL)
	if err != nil {
		logger.Fatal("failed to connect to MinIO", zap.Error(err))
	}

	if err := minioClient.EnsureBucket(ctx, cfg.MinIO.Bucket); err != nil {
		logger.Fatal("failed to ensure snapshot bucket", zap.Error(err))
	}

	producer := queue.NewProducer(cfg.Kafka.BrokerList(), cfg.Kafka.MetaTopic)
	defer producer.Close()

	logger.Info("starting snapshot generation")

	// 2. Получение действующих документов
	configs, err := repo.ListNamespaces(ctx)
	if err != nil {
		logger.Fatal("failed to list namespaces", zap.Error(err))
	}

	if len(configs) == 0 {
		logger.Info("no namespaces found, nothing to generate")
		return
	}

	// 3. Выгрузка снапшотов и анонсы
	published := 0
	for _, nsCfg := range configs {
		if err := publishSnapshot(ctx, minioClient, producer, cfg.MinIO.Bucket, nsCfg); err != nil {
			logger.Error("failed to publish snapshot",
				zap.String("namespace", nsCfg.Namespace), zap.Error(err))
			continue
		}

		logger.Info("snapshot published",
			zap.String("namespace", nsCfg.Namespace),
			zap.String("version", nsCfg.Version))
		published++
	}

	logger.Info("snapshot generation completed",
		zap.Int("published", published),
		zap.Int("total", len(configs)))

	if published < len(configs) {
		os.Exit(1)
	}
}

// publishSnapshot заливает документ в бакет и анонсирует его в Kafka.
// Имя объекта содержит версию (UUIDv7), поэтому самый свежий снапшот
// находится лексикографической сортировкой ключей.
func publishSnapshot(ctx context.Context, minioClient *storage.MinIOClient, producer *queue.Producer, bucket string, nsCfg rc_types.NamespaceConfig) error {
	objectName := fmt.Sprintf("ns/%s/snapshot-%s.json", nsCfg.Namespace, nsCfg.Version)

	_, err := minioClient.Upload(ctx, bucket, objectName, "application/json",
		bytes.NewReader(nsCfg.Payload), int64(len(nsCfg.Payload)))
	if err != nil {
		return fmt.Errorf("upload to object store: %w", err)
	}

	meta := rc_types.SnapshotMeta{
		Namespace: nsCfg.Namespace,
		Version:   nsCfg.Version,
		Path:      objectName,
		CreatedAt: time.Now().UTC(),
	}

	if err := producer.PublishJSON(ctx, nsCfg.Namespace, meta); err != nil {
		return fmt.Errorf("publish snapshot meta: %w", err)
	}

	return nil
}
