package rc_types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RawSnapshot - сырой ответ сервера конфигурации: валидный JSON-объект,
// еще не прошедший интерпретацию схемы. Доступ к полям - по ключам с
// точечной нотацией ("balance.difficultyMultiplier").
type RawSnapshot struct {
	data []byte
	root map[string]any
}

// NewRawSnapshot разбирает тело ответа. Ошибка, если это не JSON-объект.
func NewRawSnapshot(data []byte) (RawSnapshot, error) {
	var root map[string]any
	if err := json.Unmarshal(data, &root); err != nil {
		return RawSnapshot{}, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	return RawSnapshot{data: data, root: root}, nil
}

// Bytes возвращает исходное тело ответа.
func (r RawSnapshot) Bytes() []byte { return r.data }

// IsZero сообщает, что снапшот пуст (не был получен).
func (r RawSnapshot) IsZero() bool { return r.root == nil }

// Lookup находит значение по пути вида "section.key". Возвращает лист
// дерева как есть; вложенные объекты тоже доступны.
func (r RawSnapshot) Lookup(path string) (any, bool) {
	if r.root == nil {
		return nil, false
	}

	var cur any = r.root
	for _, part := range strings.Split(path, ".") {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = node[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Section возвращает вложенный объект верхнего уровня.
func (r RawSnapshot) Section(name string) (map[string]any, bool) {
	raw, ok := r.Lookup(name)
	if !ok {
		return nil, false
	}
	section, ok := raw.(map[string]any)
	return section, ok
}

// GetInt возвращает целое по пути или fallback, если ключ отсутствует
// или значение не приводится к целому.
func (r RawSnapshot) GetInt(path string, fallback int64) int64 {
	raw, ok := r.Lookup(path)
	if !ok {
		return fallback
	}
	v, ok := FromAny(raw)
	if !ok {
		return fallback
	}
	if n, ok := v.AsInt(); ok {
		return n
	}
	return fallback
}

// GetFloat возвращает вещественное по пути или fallback.
func (r RawSnapshot) GetFloat(path string, fallback float64) float64 {
	raw, ok := r.Lookup(path)
	if !ok {
		return fallback
	}
	if f, ok := ToFloat64(raw); ok {
		return f
	}
	return fallback
}

// GetBool возвращает булево по пути или fallback.
func (r RawSnapshot) GetBool(path string, fallback bool) bool {
	raw, ok := r.Lookup(path)
	if !ok {
		return fallback
	}
	v, ok := FromAny(raw)
	if !ok {
		return fallback
	}
	if b, ok := v.AsBool(); ok {
		return b
	}
	return fallback
}

// GetString возвращает строку по пути или fallback.
func (r RawSnapshot) GetString(path string, fallback string) string {
	raw, ok := r.Lookup(path)
	if !ok {
		return fallback
	}
	if s, ok := raw.(string); ok {
		return s
	}
	return fallback
}
