package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goriiin/go-config-service/internal/platform/database"
	client_sdk "github.com/goriiin/go-config-service/pkg/client-sdk"
	"github.com/goriiin/go-config-service/pkg/rc_types"
)

// fakeStore - хранилище в памяти с семантикой ошибок настоящего репозитория.
type fakeStore struct {
	mu      sync.Mutex
	configs map[string]rc_types.NamespaceConfig
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{configs: make(map[string]rc_types.NamespaceConfig)}
}

func (s *fakeStore) CreateNamespace(_ context.Context, cfg *rc_types.NamespaceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, exists := s.configs[cfg.Namespace]; exists {
		return fmt.Errorf("namespace %s: %w", cfg.Namespace, database.ErrNamespaceExists)
	}
	s.configs[cfg.Namespace] = *cfg
	return nil
}

func (s *fakeStore) FindNamespace(_ context.Context, namespace string) (*rc_types.NamespaceConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	cfg, exists := s.configs[namespace]
	if !exists {
		return nil, fmt.Errorf("namespace %s: %w", namespace, database.ErrNamespaceNotFound)
	}
	return &cfg, nil
}

func (s *fakeStore) ListNamespaces(_ context.Context) ([]rc_types.NamespaceConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var configs []rc_types.NamespaceConfig
	for _, cfg := range s.configs {
		configs = append(configs, cfg)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Namespace < configs[j].Namespace })
	return configs, nil
}

func (s *fakeStore) UpdateNamespace(_ context.Context, cfg *rc_types.NamespaceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, exists := s.configs[cfg.Namespace]; !exists {
		return fmt.Errorf("namespace %s: %w", cfg.Namespace, database.ErrNamespaceNotFound)
	}
	s.configs[cfg.Namespace] = *cfg
	return nil
}

func (s *fakeStore) DeleteNamespace(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, exists := s.configs[namespace]; !exists {
		return fmt.Errorf("namespace %s: %w", namespace, database.ErrNamespaceNotFound)
	}
	delete(s.configs, namespace)
	return nil
}

// newTestRouter повторяет раскладку маршрутов central-api.
func newTestRouter(store NamespaceStore) http.Handler {
	h := NewNamespaceHandler(store, zap.NewNop())

	r := chi.NewRouter()
	r.Route("/v1/namespaces", func(r chi.Router) {
		r.Get("/", h.ListNamespaces)
		r.Post("/{namespace}", h.CreateNamespace)
		r.Get("/{namespace}", h.GetNamespace)
		r.Put("/{namespace}", h.UpdateNamespace)
		r.Delete("/{namespace}", h.DeleteNamespace)
	})
	r.Post("/v1/config/fetch", h.FetchConfig)

	return r
}

func seedNamespace(t *testing.T, store *fakeStore, namespace, payload string) rc_types.NamespaceConfig {
	t.Helper()

	cfg := rc_types.NamespaceConfig{
		Namespace: namespace,
		Payload:   json.RawMessage(payload),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, cfg.StampVersion("v-seed"))
	store.configs[namespace] = cfg

	return cfg
}

func TestCreateNamespaceStampsVersion(t *testing.T) {
	store := newFakeStore()
	router := newTestRouter(store)

	body := strings.NewReader(`{"balance":{"startingCoins":800}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/namespaces/production", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var created rc_types.NamespaceConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "production", created.Namespace)
	assert.NotEmpty(t, created.Version)

	// Версия должна быть проставлена и внутрь документа.
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(created.Payload, &doc))
	assert.JSONEq(t, fmt.Sprintf("%q", created.Version), string(doc["version"]))

	stored, exists := store.configs["production"]
	require.True(t, exists)
	assert.Equal(t, created.Version, stored.Version)
}

func TestCreateNamespaceConflict(t *testing.T) {
	store := newFakeStore()
	seedNamespace(t, store, "production", `{"features":{}}`)
	router := newTestRouter(store)

	req := httptest.NewRequest(http.MethodPost, "/v1/namespaces/production", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateNamespaceRejectsNonObjectBody(t *testing.T) {
	store := newFakeStore()
	router := newTestRouter(store)

	req := httptest.NewRequest(http.MethodPost, "/v1/namespaces/production", strings.NewReader(`[1,2,3]`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.configs)
}

func TestGetNamespace(t *testing.T) {
	store := newFakeStore()
	seeded := seedNamespace(t, store, "production", `{"balance":{"maxEnergy":120}}`)
	router := newTestRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/v1/namespaces/production", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got rc_types.NamespaceConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, seeded.Version, got.Version)
	assert.JSONEq(t, string(seeded.Payload), string(got.Payload))
}

func TestGetNamespaceNotFound(t *testing.T) {
	router := newTestRouter(newFakeStore())

	req := httptest.NewRequest(http.MethodGet, "/v1/namespaces/ghost", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListNamespacesEmptyIsArray(t *testing.T) {
	router := newTestRouter(newFakeStore())

	req := httptest.NewRequest(http.MethodGet, "/v1/namespaces/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String(), "empty list must serialize as [], not null")
}

func TestListNamespaces(t *testing.T) {
	store := newFakeStore()
	seedNamespace(t, store, "staging", `{}`)
	seedNamespace(t, store, "production", `{}`)
	router := newTestRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/v1/namespaces/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got []rc_types.NamespaceConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "production", got[0].Namespace)
	assert.Equal(t, "staging", got[1].Namespace)
}

func TestListNamespacesStorageFailure(t *testing.T) {
	store := newFakeStore()
	store.err = fmt.Errorf("connection refused")
	router := newTestRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/v1/namespaces/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestUpdateNamespaceBumpsVersion(t *testing.T) {
	store := newFakeStore()
	seeded := seedNamespace(t, store, "production", `{"features":{"multiplayer":{"enabled":false}}}`)
	router := newTestRouter(store)

	body := strings.NewReader(`{"features":{"multiplayer":{"enabled":true}}}`)
	req := httptest.NewRequest(http.MethodPut, "/v1/namespaces/production", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var updated rc_types.NamespaceConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.NotEqual(t, seeded.Version, updated.Version, "every publish gets a fresh version")

	stored := store.configs["production"]
	assert.Equal(t, updated.Version, stored.Version)
}

func TestUpdateNamespaceNotFound(t *testing.T) {
	router := newTestRouter(newFakeStore())

	req := httptest.NewRequest(http.MethodPut, "/v1/namespaces/ghost", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteNamespace(t *testing.T) {
	store := newFakeStore()
	seedNamespace(t, store, "production", `{}`)
	router := newTestRouter(store)

	req := httptest.NewRequest(http.MethodDelete, "/v1/namespaces/production", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, store.configs)

	req = httptest.NewRequest(http.MethodDelete, "/v1/namespaces/production", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFetchConfigServesRawDocument(t *testing.T) {
	store := newFakeStore()
	seeded := seedNamespace(t, store, "production", `{"balance":{"startingCoins":800},"features":{}}`)
	router := newTestRouter(store)

	body := strings.NewReader(`{"namespace":"production","user_attributes":{"id":"device-1"}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/config/fetch", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, string(seeded.Payload), rec.Body.String())
}

func TestFetchConfigValidation(t *testing.T) {
	router := newTestRouter(newFakeStore())

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{namespace`, http.StatusBadRequest},
		{"missing namespace", `{"user_attributes":{}}`, http.StatusBadRequest},
		{"unknown namespace", `{"namespace":"ghost"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/config/fetch", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

// Сквозная проверка совместимости: настоящий HTTPFetcher клиентского SDK
// ходит в этот обработчик и получает рабочий снапшот.
func TestFetchConfigCompatibleWithClientFetcher(t *testing.T) {
	store := newFakeStore()
	seedNamespace(t, store, "production",
		`{"balance":{"startingCoins":800,"difficultyMultiplier":1.5},"features":{"multiplayer":{"enabled":true}}}`)

	server := httptest.NewServer(newTestRouter(store))
	defer server.Close()

	fetcher := client_sdk.NewHTTPFetcher(server.URL+"/v1/config/fetch", "production", 5*time.Second, zap.NewNop())

	raw, err := fetcher.Fetch(context.Background(),
		rc_types.ValueMap{"id": rc_types.StringValue("device-1")}, nil)
	require.NoError(t, err)

	assert.EqualValues(t, 800, raw.GetInt("balance.startingCoins", 0))
	assert.InDelta(t, 1.5, raw.GetFloat("balance.difficultyMultiplier", 0), 1e-9)
	assert.True(t, raw.GetBool("features.multiplayer.enabled", false))
	assert.Equal(t, "v-seed", raw.GetString("version", ""))
}
