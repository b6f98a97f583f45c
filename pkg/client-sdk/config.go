package client_sdk

import (
	"fmt"
	"time"

	"github.com/goriiin/go-config-service/pkg/rc_types"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Config содержит все параметры, необходимые для инициализации и работы
// клиентской библиотеки. Обязательны только Namespace, Attributes и один
// из источников конфигурации (Endpoint или Fetcher).
type Config struct {
	// Namespace - логическое пространство конфигурации ("production",
	// "staging", ...). Ключ записи кеша и поле запроса к серверу.
	Namespace string

	// Attributes - поставщик идентичности и атрибутов пользователя.
	Attributes AttributeProvider

	// Endpoint - URL эндпоинта выдачи конфигурации. Используется, если
	// Fetcher не задан.
	Endpoint string

	// Fetcher - кастомный транспорт получения конфигурации.
	// Имеет приоритет над Endpoint.
	Fetcher RemoteFetcher

	// CacheDir - каталог локального кеша. Используется, если Store не задан.
	CacheDir string

	// Store - кастомное хранилище кеша.
	Store ConfigStore

	// Defaults - вшитая конфигурация последней надежды. nil означает,
	// что дефолтов нет: без сети и кеша клиент перейдет в Degraded.
	Defaults *rc_types.Snapshot

	// FetchTimeout ограничивает один сетевой запрос.
	FetchTimeout time.Duration

	// RefreshInterval - период фонового обновления.
	RefreshInterval time.Duration

	// CacheTTL - мягкий порог устаревания кеша: старше - используем,
	// но помечаем устаревшим и сразу обновляемся.
	CacheTTL time.Duration

	// MaxCacheAge - жесткий потолок возраста кеша: старше - запись
	// считается непригодной.
	MaxCacheAge time.Duration

	// ForegroundRefreshThreshold - если приложение вернулось из фона,
	// пробыв там дольше порога, запускается внеплановое обновление.
	ForegroundRefreshThreshold time.Duration

	// Lifecycle - источник событий фон/активность приложения (опционально).
	Lifecycle LifecycleNotifier

	// ForceRefreshInterval / ForceRefreshBurst - лимитер принудительных
	// обновлений, защищает бэкенд от агрессивных вызовов ForceRefresh.
	ForceRefreshInterval time.Duration
	ForceRefreshBurst    int

	// Kafka configuration for receiving snapshot announcements (optional).
	// Пустой список брокеров отключает push-канал.
	KafkaBrokers      []string
	KafkaGroupID      string // Уникальный ID для группы потребителей
	SnapshotMetaTopic string

	// ExposureTopic - топик событий первого попадания в эксперимент.
	// Используется, если Exposures не задан и брокеры указаны.
	ExposureTopic string

	// Exposures - кастомный издатель exposure-событий.
	Exposures ExposurePublisher

	// KillSwitchFilePath - путь к JSON-файлу административных рубильников,
	// отслеживается на лету. Пустой - файловый источник выключен.
	KillSwitchFilePath string

	// Logger - nil заменяется на zap.NewNop().
	Logger *zap.Logger

	// Registerer для метрик. nil - изолированный реестр, чтобы несколько
	// клиентов в одном процессе не конфликтовали регистрацией.
	Registerer prometheus.Registerer
}

const (
	defaultFetchTimeout        = 10 * time.Second
	defaultRefreshInterval     = 5 * time.Minute
	defaultCacheTTL            = time.Hour
	defaultMaxCacheAge         = 7 * 24 * time.Hour
	defaultForegroundThreshold = 5 * time.Minute
	defaultForceInterval       = 30 * time.Second
	defaultForceBurst          = 2
	defaultSnapshotMetaTopic   = "rc_snapshots_meta"
	defaultExposureTopic       = "rc_exposure_events"
)

// applyDefaults заполняет незаданные параметры значениями по умолчанию.
func (c *Config) applyDefaults() {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = defaultFetchTimeout
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = defaultRefreshInterval
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = defaultCacheTTL
	}
	if c.MaxCacheAge <= 0 {
		c.MaxCacheAge = defaultMaxCacheAge
	}
	if c.ForegroundRefreshThreshold <= 0 {
		c.ForegroundRefreshThreshold = defaultForegroundThreshold
	}
	if c.ForceRefreshInterval <= 0 {
		c.ForceRefreshInterval = defaultForceInterval
	}
	if c.ForceRefreshBurst <= 0 {
		c.ForceRefreshBurst = defaultForceBurst
	}
	if c.SnapshotMetaTopic == "" {
		c.SnapshotMetaTopic = defaultSnapshotMetaTopic
	}
	if c.ExposureTopic == "" {
		c.ExposureTopic = defaultExposureTopic
	}
	if c.KafkaGroupID == "" && c.Namespace != "" {
		c.KafkaGroupID = "rc-client-" + c.Namespace
	}
}

// validate проверяет минимально необходимую комплектацию конфига.
func (c *Config) validate() error {
	if c.Namespace == "" {
		return fmt.Errorf("config namespace is required")
	}
	if c.Attributes == nil {
		return fmt.Errorf("attribute provider is required")
	}
	if c.Fetcher == nil && c.Endpoint == "" {
		return fmt.Errorf("either Fetcher or Endpoint must be set")
	}
	if c.Store == nil && c.CacheDir == "" {
		return fmt.Errorf("either Store or CacheDir must be set")
	}
	return nil
}
