package rc_types

import "time"

// ExposureEvent фиксирует факт первого попадания пользователя в вариант
// эксперимента. Публикуется клиентом в аналитический контур ровно один раз
// на пару (пользователь, эксперимент), пока определение эксперимента
// не изменилось.
type ExposureEvent struct {
	UserID        string    `json:"user_id"`
	Namespace     string    `json:"namespace"`
	ExperimentID  string    `json:"experiment_id"`
	VariantID     string    `json:"variant_id"`
	ConfigVersion string    `json:"config_version,omitempty"`
	AssignedAt    time.Time `json:"assigned_at"`
}

// SnapshotMeta - анонс публикации нового снапшота в объектное хранилище.
// Клиенты используют его как сигнал к внеплановому обновлению.
type SnapshotMeta struct {
	Namespace string    `json:"namespace"`
	Version   string    `json:"version"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}
