package client_sdk

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/go-version"
	"go.uber.org/zap"

	"github.com/goriiin/go-config-service/pkg/rc_types"
)

// ExperimentAssigner решает, попадает ли пользователь в эксперимент и в
// какой вариант. Решение - чистая функция от (идентификатор, определение,
// атрибуты, время): никакого состояния и никаких побочных эффектов,
// кеширование назначений - забота Manager.
type ExperimentAssigner struct {
	rollout RolloutEngine
	logger  *zap.Logger
}

func NewExperimentAssigner(logger *zap.Logger) *ExperimentAssigner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExperimentAssigner{logger: logger}
}

// Assign выполняет полную проверку одного эксперимента для пользователя.
func (a *ExperimentAssigner) Assign(stableID string, exp *rc_types.Experiment, attrs rc_types.ValueMap, now time.Time) (rc_types.Assignment, bool) {
	if stableID == "" {
		return rc_types.Assignment{}, false
	}

	// 1. Предварительная фильтрация: эксперимент неактивен или вне окна.
	if !exp.ActiveAt(now) {
		return rc_types.Assignment{}, false
	}

	// 2. Ручные исключения. Исключение приоритетнее включения.
	if slices.Contains(exp.OverrideLists.ForceExclude, stableID) {
		return rc_types.Assignment{}, false
	}

	// 3. Принудительное включение означает 100% участие: таргетинг
	// пропускается, бакет растягивается на выделенный трафик.
	forced := slices.Contains(exp.OverrideLists.ForceInclude, stableID)

	// 4. Проверка правил таргетинга: пользователь должен соответствовать ВСЕМ.
	if !forced && !a.matchesRules(attrs, exp.TargetingRules) {
		return rc_types.Assignment{}, false
	}

	// 5. Финальное распределение (бакетирование).
	variantID, ok := a.pickVariant(stableID, exp, forced)
	if !ok {
		return rc_types.Assignment{}, false
	}

	return rc_types.Assignment{
		ExperimentID: exp.ID,
		VariantID:    variantID,
		AssignedAt:   now.UTC(),
		Fingerprint:  exp.Fingerprint(),
	}, true
}

// pickVariant вычисляет бакет и проходит варианты в порядке объявления,
// накапливая доли трафика. Бакет за пределами суммарной доли оставляет
// пользователя вне эксперимента - это осознанный способ раскатить тест
// лишь на часть аудитории.
func (a *ExperimentAssigner) pickVariant(stableID string, exp *rc_types.Experiment, forced bool) (string, bool) {
	bucket := a.rollout.Bucket(stableID, exp.BucketKey())

	if forced {
		total := exp.TotalAllocation()
		if total <= 0 {
			return "", false
		}
		bucket %= total
	}

	cumulative := 0
	for _, variant := range exp.Variants {
		cumulative += variant.TrafficAllocation
		if bucket < cumulative {
			return variant.ID, true
		}
	}
	return "", false
}

// matchesRules проверяет, удовлетворяет ли пользователь ВСЕМ правилам таргетинга.
func (a *ExperimentAssigner) matchesRules(attrs rc_types.ValueMap, rules []rc_types.TargetingRule) bool {
	for i := range rules {
		if !a.evaluateRule(attrs, &rules[i]) {
			return false
		}
	}
	return true
}

// evaluateRule вычисляет одно правило. Отсутствующий атрибут не проходит
// ни одно правило, включая отрицательные операторы.
func (a *ExperimentAssigner) evaluateRule(attrs rc_types.ValueMap, rule *rc_types.TargetingRule) bool {
	attrValue, ok := attrs[rule.Attribute]
	if !ok {
		return false
	}
	attrStr := fmt.Sprintf("%v", attrValue.Any())

	switch rule.Operator {
	case rc_types.OpEquals:
		return attrStr == fmt.Sprintf("%v", rule.Value)
	case rc_types.OpNotEquals:
		return attrStr != fmt.Sprintf("%v", rule.Value)
	case rc_types.OpContains:
		ruleStr, ok := rc_types.ToString(rule.Value)
		return ok && strings.Contains(attrStr, ruleStr)
	case rc_types.OpNotContains:
		ruleStr, ok := rc_types.ToString(rule.Value)
		return ok && !strings.Contains(attrStr, ruleStr)

	case rc_types.OpGreaterThan, rc_types.OpLessThan, rc_types.OpGreaterThanOrEqual, rc_types.OpLessThanOrEqual:
		attrNum, ok1 := attrValue.AsFloat()
		ruleNum, ok2 := rc_types.ToFloat64(rule.Value)
		if !ok1 || !ok2 {
			return false
		}
		switch rule.Operator {
		case rc_types.OpGreaterThan:
			return attrNum > ruleNum
		case rc_types.OpLessThan:
			return attrNum < ruleNum
		case rc_types.OpGreaterThanOrEqual:
			return attrNum >= ruleNum
		default:
			return attrNum <= ruleNum
		}

	case rc_types.OpVersionGreaterThan, rc_types.OpVersionLessThan, rc_types.OpVersionEquals:
		attrVerStr, ok1 := attrValue.AsString()
		ruleVerStr, ok2 := rc_types.ToString(rule.Value)
		if !ok1 || !ok2 {
			return false
		}
		attrVer, err1 := version.NewVersion(attrVerStr)
		ruleVer, err2 := version.NewVersion(ruleVerStr)
		if err1 != nil || err2 != nil {
			return false
		}
		switch rule.Operator {
		case rc_types.OpVersionGreaterThan:
			return attrVer.GreaterThan(ruleVer)
		case rc_types.OpVersionLessThan:
			return attrVer.LessThan(ruleVer)
		default:
			return attrVer.Equal(ruleVer)
		}

	case rc_types.OpInList:
		return ruleListContains(rule.Value, attrStr)
	case rc_types.OpNotInList:
		ruleList, ok := rule.Value.([]any)
		return ok && !ruleListContains(ruleList, attrStr)

	default:
		a.logger.Warn("unknown targeting operator", zap.String("operator", string(rule.Operator)))
		return false
	}
}

func ruleListContains(ruleValue any, attrStr string) bool {
	ruleList, ok := ruleValue.([]any)
	if !ok {
		return false
	}
	for _, item := range ruleList {
		if fmt.Sprintf("%v", item) == attrStr {
			return true
		}
	}
	return false
}
