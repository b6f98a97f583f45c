package rc_types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ValueKind определяет тип значения конфигурации.
type ValueKind string

const (
	KindInt     ValueKind = "INT"
	KindFloat   ValueKind = "FLOAT"
	KindBool    ValueKind = "BOOL"
	KindString  ValueKind = "STRING"
	KindInvalid ValueKind = "INVALID"
)

// Value - типизированное скалярное значение конфигурации.
// Сериализуется в JSON как нативный скаляр, тип восстанавливается при чтении.
type Value struct {
	kind ValueKind
	i    int64
	f    float64
	b    bool
	s    string
}

// IntValue создает целочисленное значение.
func IntValue(v int64) Value { return Value{kind: KindInt, i: v} }

// FloatValue создает вещественное значение.
func FloatValue(v float64) Value { return Value{kind: KindFloat, f: v} }

// BoolValue создает булево значение.
func BoolValue(v bool) Value { return Value{kind: KindBool, b: v} }

// StringValue создает строковое значение.
func StringValue(v string) Value { return Value{kind: KindString, s: v} }

// Kind возвращает тип значения.
func (v Value) Kind() ValueKind {
	if v.kind == "" {
		return KindInvalid
	}
	return v.kind
}

// AsInt возвращает значение как int64. Вещественные числа без дробной
// части и числовые строки приводятся, остальные типы - отказ.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindFloat:
		if v.f == math.Trunc(v.f) {
			return int64(v.f), true
		}
	case KindString:
		if n, err := strconv.ParseInt(v.s, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// AsFloat возвращает значение как float64. Целые и числовые строки приводятся.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	case KindString:
		if f, err := strconv.ParseFloat(v.s, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// AsBool возвращает булево значение. Строки "true"/"false" приводятся.
func (v Value) AsBool() (bool, bool) {
	switch v.kind {
	case KindBool:
		return v.b, true
	case KindString:
		if b, err := strconv.ParseBool(v.s); err == nil {
			return b, true
		}
	}
	return false, false
}

// AsString возвращает строковое значение. Другие типы не приводятся:
// неявная конвертация чисел в строки маскирует ошибки конфигурации.
func (v Value) AsString() (string, bool) {
	if v.kind == KindString {
		return v.s, true
	}
	return "", false
}

// Any возвращает значение как нетипизированный интерфейс.
func (v Value) Any() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindString:
		return v.s
	}
	return nil
}

// Equal сравнивает два значения по типу и содержимому.
func (v Value) Equal(other Value) bool {
	return v.Kind() == other.Kind() && v.i == other.i && v.f == other.f && v.b == other.b && v.s == other.s
}

// MarshalJSON сериализует значение как нативный JSON-скаляр.
func (v Value) MarshalJSON() ([]byte, error) {
	val := v.Any()
	if val == nil {
		return nil, fmt.Errorf("cannot marshal invalid value")
	}
	return json.Marshal(val)
}

// UnmarshalJSON восстанавливает тип значения из JSON-скаляра.
// Числа без дробной части и экспоненты считаются целыми.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := unmarshalNumberPreserving(data, &raw); err != nil {
		return fmt.Errorf("decode config value: %w", err)
	}

	parsed, ok := FromAny(raw)
	if !ok {
		return fmt.Errorf("unsupported config value type %T", raw)
	}

	*v = parsed
	return nil
}

// FromAny строит Value из произвольного скаляра (результата json.Unmarshal
// или литерала в коде). Композитные типы и nil - отказ.
func FromAny(raw any) (Value, bool) {
	switch val := raw.(type) {
	case bool:
		return BoolValue(val), true
	case string:
		return StringValue(val), true
	case int:
		return IntValue(int64(val)), true
	case int64:
		return IntValue(val), true
	case float64:
		// encoding/json отдает все числа как float64: целые восстанавливаем.
		if val == math.Trunc(val) && math.Abs(val) < float64(math.MaxInt64) {
			return IntValue(int64(val)), true
		}
		return FloatValue(val), true
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return IntValue(n), true
		}
		if f, err := val.Float64(); err == nil {
			return FloatValue(f), true
		}
	}
	return Value{}, false
}

// ValueMap - именованный набор скалярных значений (секция конфигурации
// или параметры варианта эксперимента).
type ValueMap map[string]Value

// ToFloat64 приводит произвольный скаляр к float64.
// Используется при сравнении атрибутов в правилах таргетинга.
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f, true
		}
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, true
		}
	case Value:
		return val.AsFloat()
	}
	return 0, false
}

// ToString приводит произвольный скаляр к строке для строковых операторов.
func ToString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case fmt.Stringer:
		return val.String(), true
	case Value:
		return val.AsString()
	}
	return "", false
}

// unmarshalNumberPreserving декодирует JSON, сохраняя числа как json.Number,
// чтобы отличать целые от вещественных.
func unmarshalNumberPreserving(data []byte, dst *any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(dst)
}
