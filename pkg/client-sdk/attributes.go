package client_sdk

import "github.com/goriiin/go-config-service/pkg/rc_types"

// AttributeProvider отдает идентичность и атрибуты текущего пользователя.
// Реализация на стороне приложения; все методы должны быть дешевыми и
// безопасными для конкурентных вызовов - клиент дергает их на каждом
// запросе конфигурации и при каждом вычислении раскатки.
type AttributeProvider interface {
	// StableID - стабильный идентификатор установки или пользователя.
	// От его стабильности зависит детерминизм раскаток и экспериментов.
	StableID() string

	// UserAttributes - атрибуты пользователя (страна, уровень, платящий...).
	UserAttributes() rc_types.ValueMap

	// AppAttributes - атрибуты приложения (версия, платформа, билд...).
	AppAttributes() rc_types.ValueMap
}

// StaticAttributes - простейший AttributeProvider с фиксированными
// значениями. Подходит для серверных приложений и тестов.
type StaticAttributes struct {
	ID   string
	User rc_types.ValueMap
	App  rc_types.ValueMap
}

func (s StaticAttributes) StableID() string { return s.ID }

func (s StaticAttributes) UserAttributes() rc_types.ValueMap { return s.User }

func (s StaticAttributes) AppAttributes() rc_types.ValueMap { return s.App }

// mergedAttributes объединяет атрибуты приложения и пользователя в один
// набор для правил таргетинга. Пользовательские атрибуты приоритетнее.
func mergedAttributes(provider AttributeProvider) rc_types.ValueMap {
	user := provider.UserAttributes()
	app := provider.AppAttributes()

	merged := make(rc_types.ValueMap, len(user)+len(app))
	for k, v := range app {
		merged[k] = v
	}
	for k, v := range user {
		merged[k] = v
	}
	return merged
}
