package rc_types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// NamespaceConfig - авторская запись конфигурации одного пространства имён.
// Payload хранит публикуемый документ как есть: сервер не навязывает ему
// схему сверх валидного JSON-объекта, интерпретация целиком на клиенте.
type NamespaceConfig struct {
	Namespace string          `json:"namespace"`
	Version   string          `json:"version"`
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Validate проверяет запись перед сохранением.
func (n *NamespaceConfig) Validate() error {
	if n.Namespace == "" {
		return errors.New("namespace must not be empty")
	}

	if len(n.Payload) == 0 {
		return errors.New("payload must not be empty")
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(n.Payload, &probe); err != nil {
		return fmt.Errorf("payload must be a JSON object: %w", err)
	}

	return nil
}

// StampVersion проставляет новую версию и в запись, и в ключ "version" самого
// документа: клиент должен видеть версию внутри полученного снапшота.
// Остальные значения документа переносятся без перекодирования.
func (n *NamespaceConfig) StampVersion(version string) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(n.Payload, &doc); err != nil {
		return fmt.Errorf("payload must be a JSON object: %w", err)
	}
	if doc == nil {
		doc = make(map[string]json.RawMessage)
	}

	versionRaw, err := json.Marshal(version)
	if err != nil {
		return fmt.Errorf("failed to encode version: %w", err)
	}
	doc["version"] = versionRaw

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to re-encode payload: %w", err)
	}

	n.Payload = payload
	n.Version = version

	return nil
}
