// File: pkg/rc_types/experiment.go

package rc_types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Operator определяет операторы, используемые в правилах таргетинга.
type Operator string

const (
	// Строковые операторы
	OpEquals      Operator = "EQUALS"
	OpNotEquals   Operator = "NOT_EQUALS"
	OpContains    Operator = "CONTAINS"
	OpNotContains Operator = "NOT_CONTAINS"

	// Числовые операторы
	OpGreaterThan        Operator = "GREATER_THAN"
	OpLessThan           Operator = "LESS_THAN"
	OpGreaterThanOrEqual Operator = "GREATER_THAN_OR_EQUAL"
	OpLessThanOrEqual    Operator = "LESS_THAN_OR_EQUAL"

	// Операторы для семантических версий (SemVer)
	OpVersionGreaterThan Operator = "VERSION_GREATER_THAN"
	OpVersionLessThan    Operator = "VERSION_LESS_THAN"
	OpVersionEquals      Operator = "VERSION_EQUALS"

	// Операторы для списков/массивов
	OpInList    Operator = "IN_LIST"
	OpNotInList Operator = "NOT_IN_LIST"
)

// Experiment представляет полную конфигурацию A/B-эксперимента.
// Эта структура является основным контрактом данных в системе.
type Experiment struct {
	// ID - уникальный, неизменяемый идентификатор эксперимента.
	ID string `json:"id"`

	// Salt - уникальная строка для хеширования, обеспечивает статистическую
	// независимость экспериментов. Пустая - в качестве соли используется ID.
	Salt string `json:"salt,omitempty"`

	// IsActive - эксперимент принимает новые назначения.
	IsActive bool `json:"is_active"`

	// StartTime / EndTime - окно действия эксперимента (границы опциональны).
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// TargetingRules - массив правил для выборки аудитории.
	// Пользователь должен удовлетворять ВСЕМ правилам.
	TargetingRules []TargetingRule `json:"targeting_rules,omitempty"`

	// OverrideLists - списки для ручного включения или исключения пользователей.
	OverrideLists OverrideLists `json:"override_lists,omitempty"`

	// Variants - массив вариантов теста. Порядок объявления задает порядок
	// обхода при бакетировании, поэтому он значим и должен быть стабилен.
	Variants []Variant `json:"variants"`
}

// TargetingRule определяет одно правило для таргетинга.
type TargetingRule struct {
	// Attribute - атрибут пользователя для проверки (например, "country", "app_version").
	Attribute string `json:"attribute"`
	// Operator - операция для сравнения.
	Operator Operator `json:"operator"`
	// Value - значение, с которым сравнивается атрибут пользователя.
	Value any `json:"value"`
}

// OverrideLists содержит списки пользователей для принудительного включения/исключения.
type OverrideLists struct {
	// ForceInclude - список ID пользователей для принудительного включения.
	// Эти пользователи пропускают проверку правил таргетинга и сразу
	// переходят к бакетированию.
	ForceInclude []string `json:"force_include,omitempty"`

	// ForceExclude - список ID пользователей для принудительного исключения.
	// Исключение имеет приоритет над включением.
	ForceExclude []string `json:"force_exclude,omitempty"`
}

// Variant определяет один из вариантов в эксперименте (контрольный или тестовый).
type Variant struct {
	// ID - уникальное в рамках эксперимента имя варианта (например, "control", "treatment_A").
	ID string `json:"id"`

	// TrafficAllocation - доля трафика варианта в процентах [0, 100].
	// Сумма по всем вариантам не превышает 100; остаток трафика
	// не попадает ни в один вариант.
	TrafficAllocation int `json:"traffic_allocation"`

	// Params - параметры конфигурации, которые получает участник варианта.
	Params ValueMap `json:"params,omitempty"`
}

// Assignment фиксирует попадание пользователя в вариант эксперимента.
// Назначение детерминировано, но кешируется и переживает рестарты, чтобы
// пользователь не мигрировал между группами, пока определение эксперимента
// не изменилось.
type Assignment struct {
	ExperimentID string    `json:"experiment_id"`
	VariantID    string    `json:"variant_id"`
	AssignedAt   time.Time `json:"assigned_at"`

	// Fingerprint - хеш определения эксперимента на момент назначения.
	// Расхождение с текущим определением инвалидирует назначение.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// BucketKey возвращает строку, подмешиваемую в хеш при бакетировании.
func (e *Experiment) BucketKey() string {
	if e.Salt != "" {
		return e.Salt
	}
	return e.ID
}

// ActiveAt сообщает, принимает ли эксперимент назначения в момент now.
func (e *Experiment) ActiveAt(now time.Time) bool {
	if !e.IsActive {
		return false
	}
	if e.StartTime != nil && now.Before(*e.StartTime) {
		return false
	}
	if e.EndTime != nil && now.After(*e.EndTime) {
		return false
	}
	return true
}

// TotalAllocation возвращает суммарную долю трафика всех вариантов.
func (e *Experiment) TotalAllocation() int {
	total := 0
	for _, v := range e.Variants {
		total += v.TrafficAllocation
	}
	return total
}

// Validate проверяет инварианты определения эксперимента.
func (e *Experiment) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("experiment id is required")
	}
	if len(e.Variants) == 0 {
		return fmt.Errorf("experiment %q has no variants", e.ID)
	}

	seen := make(map[string]struct{}, len(e.Variants))
	total := 0
	for _, v := range e.Variants {
		if v.ID == "" {
			return fmt.Errorf("experiment %q has a variant without id", e.ID)
		}
		if _, dup := seen[v.ID]; dup {
			return fmt.Errorf("experiment %q has duplicate variant %q", e.ID, v.ID)
		}
		seen[v.ID] = struct{}{}

		if v.TrafficAllocation < 0 || v.TrafficAllocation > 100 {
			return fmt.Errorf("experiment %q variant %q: traffic allocation %d out of range [0, 100]", e.ID, v.ID, v.TrafficAllocation)
		}
		total += v.TrafficAllocation
	}
	if total > 100 {
		return fmt.Errorf("experiment %q: total traffic allocation %d exceeds 100", e.ID, total)
	}

	if e.StartTime != nil && e.EndTime != nil && e.EndTime.Before(*e.StartTime) {
		return fmt.Errorf("experiment %q: end_time is before start_time", e.ID)
	}
	return nil
}

// Fingerprint возвращает стабильный хеш определения эксперимента.
// Используется для инвалидации закешированных назначений при изменении
// определения. encoding/json сортирует ключи карт, поэтому хеш детерминирован.
func (e *Experiment) Fingerprint() string {
	data, err := json.Marshal(e)
	if err != nil {
		// Experiment состоит из сериализуемых полей; сюда попасть нельзя.
		return "fp-error"
	}
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}
