package client_sdk

import (
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/goriiin/go-config-service/pkg/rc_types"
)

type sdkMetrics struct {
	configVersion prometheus.Gauge
	activeSource  *prometheus.GaugeVec
	fetches       *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	errors        *prometheus.CounterVec
}

// registerMetrics регистрирует метрики клиента в переданном реестре.
// nil означает собственный изолированный реестр: так несколько клиентов
// в одном процессе не падают на повторной регистрации.
func registerMetrics(reg prometheus.Registerer) *sdkMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &sdkMetrics{
		configVersion: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rc_client_config_version_timestamp_ms",
			Help: "The timestamp (in milliseconds) of the latest config version applied by the client.",
		}),
		activeSource: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rc_client_active_source",
			Help: "Which source the active snapshot came from (1 for the active one).",
		}, []string{"source"}),
		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rc_client_fetches_total",
			Help: "Total number of remote fetch attempts, partitioned by result.",
		}, []string{"result"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rc_client_decisions_total",
			Help: "Total number of experiment decisions made, partitioned by experiment and variant.",
		}, []string{"experiment_id", "variant_id"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rc_client_errors_total",
			Help: "Total number of errors encountered by the client.",
		}, []string{"type"}),
	}
}

// setVersionMetric безопасно парсит UUIDv7 и выставляет метрику.
func (m *sdkMetrics) setVersionMetric(versionStr string) {
	ver, err := uuid.Parse(versionStr)
	if err != nil || ver.Version() != 7 {
		return // Не UUIDv7 - таймстемп извлечь нельзя, метрику не трогаем
	}
	sec, nsec := ver.Time().UnixTime()
	m.configVersion.Set(float64(sec*1000 + nsec/1e6))
}

// setSourceMetric выставляет 1 активному источнику и 0 остальным.
func (m *sdkMetrics) setSourceMetric(active rc_types.Source) {
	for _, src := range []rc_types.Source{rc_types.SourceRemote, rc_types.SourceCache, rc_types.SourceDefault} {
		val := 0.0
		if src == active {
			val = 1.0
		}
		m.activeSource.WithLabelValues(string(src)).Set(val)
	}
}
