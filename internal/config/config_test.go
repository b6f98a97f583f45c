package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, ":8080", cfg.API.ListenAddr)

	assert.Equal(t, "postgres", cfg.DB.Host)
	assert.Equal(t, "rc_platform", cfg.DB.DBName)
	assert.Equal(t, "disable", cfg.DB.SSLMode)

	assert.Equal(t, []string{"kafka:9092"}, cfg.Kafka.BrokerList())
	assert.Equal(t, "rc_config_deltas", cfg.Kafka.DeltasTopic)
	assert.Equal(t, "rc_snapshots_meta", cfg.Kafka.MetaTopic)
	assert.Equal(t, "rc_exposure_events", cfg.Kafka.ExposuresTopic)

	assert.Equal(t, "rc-snapshots", cfg.MinIO.Bucket)
	assert.False(t, cfg.MinIO.UseSSL)

	assert.Equal(t, []string{"cassandra:9042"}, cfg.Cassandra.HostList())
	assert.Equal(t, "rc_analytics", cfg.Cassandra.Keyspace)

	assert.Equal(t, 5*time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, 10, cfg.Outbox.BatchSize)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("RC_DB_HOST", "db.internal")
	t.Setenv("RC_DB_SSL_MODE", "require")
	t.Setenv("RC_KAFKA_BROKERS", "broker-1:9092, broker-2:9092")
	t.Setenv("RC_LOGGING_LEVEL", "debug")
	t.Setenv("RC_OUTBOX_POLL_INTERVAL", "30s")
	t.Setenv("RC_MINIO_USE_SSL", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, "require", cfg.DB.SSLMode)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.BrokerList())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 30*time.Second, cfg.Outbox.PollInterval)
	assert.True(t, cfg.MinIO.UseSSL)
}

func TestLoadYAMLFileWithEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
logging:
  level: warn
db:
  host: yaml-host
  name: yaml_db
kafka:
  deltas_topic: yaml_deltas
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	// Переменная окружения должна победить значение из файла.
	t.Setenv("RC_DB_HOST", "env-host")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-host", cfg.DB.Host)
	assert.Equal(t, "yaml_db", cfg.DB.DBName)
	assert.Equal(t, "yaml_deltas", cfg.Kafka.DeltasTopic)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format, "untouched fields keep defaults")
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestConnectionString(t *testing.T) {
	cfg := DBConfig{
		Host:     "db",
		Port:     "5433",
		User:     "rc",
		Password: "secret",
		DBName:   "rc_platform",
		SSLMode:  "disable",
	}

	assert.Equal(t, "postgres://rc:secret@db:5433/rc_platform?sslmode=disable", cfg.ConnectionString())
}

func TestBrokerListSkipsEmptyEntries(t *testing.T) {
	k := KafkaConfig{Brokers: "a:9092,, b:9092 ,"}
	assert.Equal(t, []string{"a:9092", "b:9092"}, k.BrokerList())
}
