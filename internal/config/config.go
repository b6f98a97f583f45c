package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envPrefix - общий префикс переменных окружения всех сервисов платформы.
const envPrefix = "RC_"

// Config - полная конфигурация платформенных сервисов. Каждый бинарник
// использует свои секции; остальные остаются со значениями по умолчанию.
type Config struct {
	Logging   LoggingConfig   `koanf:"logging"`
	API       APIConfig       `koanf:"api"`
	DB        DBConfig        `koanf:"db"`
	Kafka     KafkaConfig     `koanf:"kafka"`
	MinIO     MinIOConfig     `koanf:"minio"`
	Cassandra CassandraConfig `koanf:"cassandra"`
	Outbox    OutboxConfig    `koanf:"outbox"`
}

// LoggingConfig задаёт уровень и формат вывода логов.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// APIConfig - параметры HTTP-сервера central-api.
type APIConfig struct {
	ListenAddr string `koanf:"listen_addr"`
}

// KafkaConfig - адреса брокеров и имена топиков платформы.
type KafkaConfig struct {
	Brokers        string `koanf:"brokers"` // список через запятую
	DeltasTopic    string `koanf:"deltas_topic"`
	MetaTopic      string `koanf:"meta_topic"`
	ExposuresTopic string `koanf:"exposures_topic"`
	GroupID        string `koanf:"group_id"`
}

// BrokerList разбирает строку brokers в срез адресов.
func (k KafkaConfig) BrokerList() []string {
	return splitList(k.Brokers)
}

// MinIOConfig - доступ к объектному хранилищу снапшотов.
type MinIOConfig struct {
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	UseSSL    bool   `koanf:"use_ssl"`
	Bucket    string `koanf:"bucket"`
}

// CassandraConfig - кластер для аналитического стока назначений.
type CassandraConfig struct {
	Hosts    string `koanf:"hosts"` // список через запятую
	Keyspace string `koanf:"keyspace"`
}

// HostList разбирает строку hosts в срез адресов.
func (c CassandraConfig) HostList() []string {
	return splitList(c.Hosts)
}

// OutboxConfig - параметры цикла публикации outbox-воркера.
type OutboxConfig struct {
	PollInterval time.Duration `koanf:"poll_interval"`
	BatchSize    int           `koanf:"batch_size"`
}

// Load читает конфигурацию: YAML-файл (если путь задан), затем переменные
// окружения с префиксом RC_. Переменные всегда перекрывают файл.
//
//	RC_DB_SSL_MODE      -> db.ssl_mode
//	RC_KAFKA_BROKERS    -> kafka.brokers
//	RC_LOGGING_LEVEL    -> logging.level
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envToKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// envToKey переводит имя переменной окружения в путь koanf: первый сегмент
// после префикса - секция, остальное - имя поля (подчёркивания сохраняются).
func envToKey(s string) string {
	trimmed := strings.ToLower(strings.TrimPrefix(s, envPrefix))

	parts := strings.SplitN(trimmed, "_", 2)
	if len(parts) == 1 {
		return parts[0]
	}

	return parts[0] + "." + parts[1]
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.API.ListenAddr == "" {
		cfg.API.ListenAddr = ":8080"
	}

	if cfg.DB.Host == "" {
		cfg.DB.Host = "postgres"
	}
	if cfg.DB.Port == "" {
		cfg.DB.Port = "5432"
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "user"
	}
	if cfg.DB.Password == "" {
		cfg.DB.Password = "password"
	}
	if cfg.DB.DBName == "" {
		cfg.DB.DBName = "rc_platform"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}

	if cfg.Kafka.Brokers == "" {
		cfg.Kafka.Brokers = "kafka:9092"
	}
	if cfg.Kafka.DeltasTopic == "" {
		cfg.Kafka.DeltasTopic = "rc_config_deltas"
	}
	if cfg.Kafka.MetaTopic == "" {
		cfg.Kafka.MetaTopic = "rc_snapshots_meta"
	}
	if cfg.Kafka.ExposuresTopic == "" {
		cfg.Kafka.ExposuresTopic = "rc_exposure_events"
	}

	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = "minio:9000"
	}
	if cfg.MinIO.AccessKey == "" {
		cfg.MinIO.AccessKey = "minioadmin"
	}
	if cfg.MinIO.SecretKey == "" {
		cfg.MinIO.SecretKey = "minioadmin"
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "rc-snapshots"
	}

	if cfg.Cassandra.Hosts == "" {
		cfg.Cassandra.Hosts = "cassandra:9042"
	}
	if cfg.Cassandra.Keyspace == "" {
		cfg.Cassandra.Keyspace = "rc_analytics"
	}

	if cfg.Outbox.PollInterval <= 0 {
		cfg.Outbox.PollInterval = 5 * time.Second
	}
	if cfg.Outbox.BatchSize <= 0 {
		cfg.Outbox.BatchSize = 10
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}
