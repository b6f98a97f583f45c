package client_sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/goriiin/go-config-service/pkg/rc_types"
)

// RemoteFetcher получает сырую конфигурацию с сервера. Одна попытка на
// вызов, без внутренних ретраев и без побочных эффектов: политика повторов
// целиком на стороне Manager.
type RemoteFetcher interface {
	Fetch(ctx context.Context, user, app rc_types.ValueMap) (rc_types.RawSnapshot, error)
}

// maxResponseSize ограничивает тело ответа, чтобы сбоящий сервер не
// заставил клиента аллоцировать гигабайты.
const maxResponseSize = 4 << 20 // 4MB

// fetchRequest - тело запроса к эндпоинту выдачи конфигурации.
type fetchRequest struct {
	Namespace      string           `json:"namespace"`
	UserAttributes rc_types.ValueMap `json:"user_attributes,omitempty"`
	AppAttributes  rc_types.ValueMap `json:"app_attributes,omitempty"`
}

// HTTPFetcher запрашивает конфигурацию по HTTP: POST с атрибутами
// пользователя, в ответе - JSON-объект снапшота.
type HTTPFetcher struct {
	endpoint  string
	namespace string
	client    *http.Client
	logger    *zap.Logger
}

// NewHTTPFetcher создает транспорт с собственным таймаутом. Таймаут
// запроса дополнительно ограничивается контекстом вызова.
func NewHTTPFetcher(endpoint, namespace string, timeout time.Duration, logger *zap.Logger) *HTTPFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPFetcher{
		endpoint:  endpoint,
		namespace: namespace,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// Fetch выполняет один запрос и классифицирует исход.
func (f *HTTPFetcher) Fetch(ctx context.Context, user, app rc_types.ValueMap) (rc_types.RawSnapshot, error) {
	body, err := json.Marshal(fetchRequest{
		Namespace:      f.namespace,
		UserAttributes: user,
		AppAttributes:  app,
	})
	if err != nil {
		return rc_types.RawSnapshot{}, fmt.Errorf("failed to marshal fetch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return rc_types.RawSnapshot{}, fmt.Errorf("failed to build fetch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return rc_types.RawSnapshot{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return rc_types.RawSnapshot{}, classifyTransportError(err)
	}
	if len(data) > maxResponseSize {
		return rc_types.RawSnapshot{}, newFetchError(FetchMalformedResponse, resp.StatusCode,
			fmt.Errorf("response exceeds %d bytes", maxResponseSize))
	}

	if resp.StatusCode != http.StatusOK {
		return rc_types.RawSnapshot{}, newFetchError(FetchServerRejected, resp.StatusCode,
			fmt.Errorf("unexpected status %s", resp.Status))
	}

	raw, err := rc_types.NewRawSnapshot(data)
	if err != nil {
		return rc_types.RawSnapshot{}, newFetchError(FetchMalformedResponse, resp.StatusCode, err)
	}

	f.logger.Debug("fetched remote config",
		zap.String("namespace", f.namespace),
		zap.Int("bytes", len(data)))
	return raw, nil
}

// classifyTransportError переводит сетевые ошибки в типизированные классы.
// Отмена контекста (остановка клиента) не маскируется под сетевой сбой.
func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("fetch canceled: %w", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newFetchError(FetchTimeout, 0, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newFetchError(FetchTimeout, 0, err)
	}
	return newFetchError(FetchNetworkUnavailable, 0, err)
}
