package client_sdk

import "github.com/cespare/xxhash/v2"

// bucketCount - число бакетов раскатки. Проценты сравниваются с бакетом
// напрямую: бакет < pct означает попадание.
const bucketCount = 100

// RolloutEngine детерминированно распределяет пользователей по бакетам.
// Никакого состояния: одинаковые входы дают одинаковый бакет на любом
// устройстве и после любого рестарта.
type RolloutEngine struct{}

// Bucket вычисляет бакет [0, 100) для пары (пользователь, имя).
// Имя фичи или соль эксперимента подмешивается в хеш, чтобы у каждой
// фичи было собственное независимое распределение: иначе одни и те же
// 30% пользователей получали бы все частичные раскатки сразу.
func (RolloutEngine) Bucket(stableID, name string) int {
	// Используем xxhash для максимальной производительности
	return int(xxhash.Sum64String(stableID+":"+name) % bucketCount)
}

// IsInRollout сообщает, попадает ли пользователь в раскатку фичи на pct
// процентов. Краевые значения решаются без хеширования: pct <= 0 - никто,
// pct >= 100 - все, включая пользователей с пустым идентификатором.
func (e RolloutEngine) IsInRollout(stableID, feature string, pct int) bool {
	if pct <= 0 {
		return false
	}
	if pct >= bucketCount {
		return true
	}
	return e.Bucket(stableID, feature) < pct
}
