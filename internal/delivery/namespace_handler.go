package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goriiin/go-config-service/internal/platform/database"
	"github.com/goriiin/go-config-service/pkg/rc_types"
)

// maxDocumentSize ограничивает размер авторского документа. Симметричен
// лимиту на стороне клиентского SDK.
const maxDocumentSize = 4 << 20 // 4MB

// NamespaceStore - операции хранилища, нужные HTTP-слою. Интерфейс позволяет
// тестировать обработчики без настоящей базы.
type NamespaceStore interface {
	CreateNamespace(ctx context.Context, cfg *rc_types.NamespaceConfig) error
	FindNamespace(ctx context.Context, namespace string) (*rc_types.NamespaceConfig, error)
	ListNamespaces(ctx context.Context) ([]rc_types.NamespaceConfig, error)
	UpdateNamespace(ctx context.Context, cfg *rc_types.NamespaceConfig) error
	DeleteNamespace(ctx context.Context, namespace string) error
}

type NamespaceHandler struct {
	store  NamespaceStore
	logger *zap.Logger
}

func NewNamespaceHandler(store NamespaceStore, logger *zap.Logger) *NamespaceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NamespaceHandler{store: store, logger: logger}
}

// CreateNamespace обрабатывает создание пространства имён. Тело запроса -
// сам публикуемый документ; версию генерирует сервер.
func (h *NamespaceHandler) CreateNamespace(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")

	payload, ok := h.readDocument(w, r)
	if !ok {
		return
	}

	cfg := rc_types.NamespaceConfig{
		Namespace: namespace,
		Payload:   payload,
		UpdatedAt: time.Now().UTC(),
	}
	if err := cfg.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// UUIDv7 гарантирует уникальность и хронологический порядок версий
	if err := cfg.StampVersion(newVersion()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.store.CreateNamespace(r.Context(), &cfg); err != nil {
		if errors.Is(err, database.ErrNamespaceExists) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}

		h.logger.Error("failed to create namespace",
			zap.String("namespace", namespace), zap.Error(err))
		http.Error(w, "Failed to create namespace in database", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, cfg)
}

// GetNamespace возвращает текущую запись пространства имён вместе с метаданными.
func (h *NamespaceHandler) GetNamespace(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")

	cfg, err := h.store.FindNamespace(r.Context(), namespace)
	if err != nil {
		if errors.Is(err, database.ErrNamespaceNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		h.logger.Error("failed to retrieve namespace",
			zap.String("namespace", namespace), zap.Error(err))
		http.Error(w, "Failed to retrieve namespace", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// ListNamespaces возвращает все пространства имён.
func (h *NamespaceHandler) ListNamespaces(w http.ResponseWriter, r *http.Request) {
	configs, err := h.store.ListNamespaces(r.Context())
	if err != nil {
		h.logger.Error("failed to list namespaces", zap.Error(err))
		http.Error(w, "Failed to list namespaces", http.StatusInternalServerError)
		return
	}

	if configs == nil {
		configs = []rc_types.NamespaceConfig{}
	}

	writeJSON(w, http.StatusOK, configs)
}

// UpdateNamespace публикует новый документ для существующего пространства имён.
func (h *NamespaceHandler) UpdateNamespace(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")

	payload, ok := h.readDocument(w, r)
	if !ok {
		return
	}

	cfg := rc_types.NamespaceConfig{
		Namespace: namespace,
		Payload:   payload,
		UpdatedAt: time.Now().UTC(),
	}
	if err := cfg.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Каждая публикация получает новую версию
	if err := cfg.StampVersion(newVersion()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.store.UpdateNamespace(r.Context(), &cfg); err != nil {
		if errors.Is(err, database.ErrNamespaceNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		h.logger.Error("failed to update namespace",
			zap.String("namespace", namespace), zap.Error(err))
		http.Error(w, "Failed to update namespace in database", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// DeleteNamespace снимает пространство имён с публикации.
func (h *NamespaceHandler) DeleteNamespace(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")

	if err := h.store.DeleteNamespace(r.Context(), namespace); err != nil {
		if errors.Is(err, database.ErrNamespaceNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		h.logger.Error("failed to delete namespace",
			zap.String("namespace", namespace), zap.Error(err))
		http.Error(w, "Failed to delete namespace from database", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// fetchConfigRequest - тело запроса клиентского SDK за конфигурацией.
type fetchConfigRequest struct {
	Namespace      string         `json:"namespace"`
	UserAttributes map[string]any `json:"user_attributes,omitempty"`
	AppAttributes  map[string]any `json:"app_attributes,omitempty"`
}

// FetchConfig отдает действующий документ пространства имён клиентскому SDK.
// Атрибуты запроса принимаются ради диагностики и совместимости: документ
// общий для всех, правила применяет клиент.
func (h *NamespaceHandler) FetchConfig(w http.ResponseWriter, r *http.Request) {
	var req fetchConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Namespace == "" {
		http.Error(w, "Namespace is required", http.StatusBadRequest)
		return
	}

	cfg, err := h.store.FindNamespace(r.Context(), req.Namespace)
	if err != nil {
		if errors.Is(err, database.ErrNamespaceNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		h.logger.Error("failed to fetch namespace config",
			zap.String("namespace", req.Namespace), zap.Error(err))
		http.Error(w, "Failed to retrieve config", http.StatusInternalServerError)
		return
	}

	h.logger.Debug("served config snapshot",
		zap.String("namespace", req.Namespace),
		zap.String("version", cfg.Version),
		zap.Int("user_attributes", len(req.UserAttributes)))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(cfg.Payload)
}

// readDocument вычитывает тело запроса с ограничением размера. При ошибке
// сам пишет ответ и возвращает false.
func (h *NamespaceHandler) readDocument(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentSize+1))
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return nil, false
	}

	if len(payload) > maxDocumentSize {
		http.Error(w, "Document too large", http.StatusRequestEntityTooLarge)
		return nil, false
	}

	return payload, true
}

func newVersion() string {
	return uuid.Must(uuid.NewV7()).String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
