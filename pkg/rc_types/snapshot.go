package rc_types

import "time"

// Source указывает происхождение активного снапшота конфигурации.
type Source string

const (
	SourceRemote  Source = "remote"
	SourceCache   Source = "cache"
	SourceDefault Source = "default"
)

// SectionName - имя логической секции снапшота.
type SectionName string

const (
	SectionBalance      SectionName = "balance"
	SectionMonetization SectionName = "monetization"
	SectionPerformance  SectionName = "performance"
	SectionDebug        SectionName = "debug"
	SectionFeatures     SectionName = "features"
	SectionExperiments  SectionName = "experiments"
	SectionLiveOps      SectionName = "live_ops"
)

// ValueSections перечисляет секции со скалярными значениями в порядке
// поиска ключей.
var ValueSections = []SectionName{SectionBalance, SectionMonetization, SectionPerformance, SectionDebug}

// FeatureFlag описывает один флаг функциональности.
type FeatureFlag struct {
	// Enabled - флаг включен. При false остальные поля игнорируются.
	Enabled bool `json:"enabled"`

	// RolloutPercentage - процент постепенной раскатки [0, 100].
	// nil означает раскатку на всех (эквивалент 100 без хеширования).
	RolloutPercentage *int `json:"rollout_percentage,omitempty"`

	// Variant - вариант оформления фичи (например, "blue_button").
	Variant string `json:"variant,omitempty"`
}

// FeatureFlagSet - набор флагов, ключ - имя фичи.
type FeatureFlagSet map[string]FeatureFlag

// LiveEvent - временное внутриигровое событие.
type LiveEvent struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`

	// Enabled позволяет выключить событие, не удаляя его из конфигурации.
	Enabled bool `json:"enabled"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// Params - параметры события (множители наград и т.п.).
	Params ValueMap `json:"params,omitempty"`
}

// ActiveAt сообщает, идет ли событие в момент now. Нулевая граница
// означает отсутствие ограничения с этой стороны.
func (e LiveEvent) ActiveAt(now time.Time) bool {
	if !e.Enabled {
		return false
	}
	if !e.StartTime.IsZero() && now.Before(e.StartTime) {
		return false
	}
	if !e.EndTime.IsZero() && now.After(e.EndTime) {
		return false
	}
	return true
}

// LiveMessage - сообщение игрокам (новости, анонсы, предупреждения).
type LiveMessage struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Priority  int       `json:"priority,omitempty"`
	StartTime time.Time `json:"start_time,omitempty"`
	EndTime   time.Time `json:"end_time,omitempty"`
}

// ActiveAt сообщает, показывается ли сообщение в момент now.
func (m LiveMessage) ActiveAt(now time.Time) bool {
	if !m.StartTime.IsZero() && now.Before(m.StartTime) {
		return false
	}
	if !m.EndTime.IsZero() && now.After(m.EndTime) {
		return false
	}
	return true
}

// LiveOpsSection группирует событийный контент снапшота.
type LiveOpsSection struct {
	Events   []LiveEvent   `json:"events,omitempty"`
	Messages []LiveMessage `json:"messages,omitempty"`
}

// Snapshot - полная интерпретированная конфигурация приложения.
// После публикации снапшот неизменяем: обновление - это замена указателя
// на новый снапшот целиком, поэтому читатели не требуют синхронизации.
type Snapshot struct {
	// Version - версия конфигурации (UUIDv7), обеспечивает хронологический порядок.
	Version string `json:"version"`

	// Source - откуда получен снапшот: сеть, локальный кеш или дефолты.
	Source Source `json:"source"`

	// FetchedAt - момент получения снапшота клиентом.
	FetchedAt time.Time `json:"fetched_at"`

	// Секции скалярных значений.
	Balance      ValueMap `json:"balance,omitempty"`
	Monetization ValueMap `json:"monetization,omitempty"`
	Performance  ValueMap `json:"performance,omitempty"`
	Debug        ValueMap `json:"debug,omitempty"`

	// Features - флаги функциональности.
	Features FeatureFlagSet `json:"features,omitempty"`

	// Experiments - активные определения экспериментов. Порядок объявления
	// значим: он задает приоритет при выборе "основной" группы игрока.
	Experiments []Experiment `json:"experiments,omitempty"`

	// LiveOps - событийный контент.
	LiveOps LiveOpsSection `json:"live_ops,omitempty"`
}

// ValueSection возвращает скалярную секцию по имени.
func (s *Snapshot) ValueSection(name SectionName) (ValueMap, bool) {
	switch name {
	case SectionBalance:
		return s.Balance, true
	case SectionMonetization:
		return s.Monetization, true
	case SectionPerformance:
		return s.Performance, true
	case SectionDebug:
		return s.Debug, true
	}
	return nil, false
}

// Lookup ищет скалярное значение по ключу во всех секциях в порядке
// ValueSections. Первое совпадение выигрывает.
func (s *Snapshot) Lookup(key string) (Value, bool) {
	for _, name := range ValueSections {
		section, _ := s.ValueSection(name)
		if v, ok := section[key]; ok {
			return v, true
		}
	}
	return Value{}, false
}

// ExperimentByID находит определение эксперимента в снапшоте.
func (s *Snapshot) ExperimentByID(id string) (*Experiment, bool) {
	for i := range s.Experiments {
		if s.Experiments[i].ID == id {
			return &s.Experiments[i], true
		}
	}
	return nil, false
}

// CacheEntry - запись локального кеша: снапшот плюс момент сохранения.
// Момент сохранения дублирует метаданные хранилища на случай, если
// файловая система их не переживет.
type CacheEntry struct {
	SavedAt  time.Time `json:"saved_at"`
	Snapshot *Snapshot `json:"snapshot"`
}
