package client_sdk

import (
	"errors"
	"fmt"
)

// ErrNoConfigAvailable возвращается из Initialize, когда не удалось получить
// конфигурацию ни из сети, ни из кеша, ни из дефолтов. Клиент при этом
// находится в состоянии Degraded и продолжает фоновые попытки.
var ErrNoConfigAvailable = errors.New("no configuration available: remote fetch failed, no usable cache, no defaults")

// ErrClosed возвращается при обращении к остановленному клиенту.
var ErrClosed = errors.New("config client is closed")

// Сентинелы классов сетевых ошибок. Сопоставляются через errors.Is
// с конкретной ошибкой FetchError.
var (
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrFetchTimeout       = errors.New("fetch timed out")
	ErrServerRejected     = errors.New("server rejected request")
	ErrMalformedResponse  = errors.New("malformed server response")
)

// FetchErrorKind классифицирует причину неудачного запроса конфигурации.
type FetchErrorKind string

const (
	FetchNetworkUnavailable FetchErrorKind = "network_unavailable"
	FetchTimeout            FetchErrorKind = "timeout"
	FetchServerRejected     FetchErrorKind = "server_rejected"
	FetchMalformedResponse  FetchErrorKind = "malformed_response"
)

// FetchError - типизированная ошибка получения конфигурации с сервера.
// Ретраев внутри нет: решение о повторе принимает вызывающая сторона.
type FetchError struct {
	Kind FetchErrorKind
	// Status - HTTP-статус ответа, если сервер ответил.
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("config fetch failed (%s, status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("config fetch failed (%s): %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is сопоставляет ошибку с сентинелом ее класса.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrNetworkUnavailable:
		return e.Kind == FetchNetworkUnavailable
	case ErrFetchTimeout:
		return e.Kind == FetchTimeout
	case ErrServerRejected:
		return e.Kind == FetchServerRejected
	case ErrMalformedResponse:
		return e.Kind == FetchMalformedResponse
	}
	return false
}

func newFetchError(kind FetchErrorKind, status int, err error) *FetchError {
	return &FetchError{Kind: kind, Status: status, Err: err}
}

// ParseError - ответ сервера не удалось интерпретировать даже частично.
// Отдельные битые поля до ParseError не дотягивают: они деградируют
// до значений по умолчанию при разборе.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("config parse failed: %v", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// CacheError - сбой локального кеша. Никогда не фатален: кеш - это
// ускорение холодного старта, а не источник истины.
type CacheError struct {
	// Op - операция: "load", "save", "decode".
	Op  string
	Err error
}

func (e *CacheError) Error() string { return fmt.Sprintf("config cache %s failed: %v", e.Op, e.Err) }
func (e *CacheError) Unwrap() error { return e.Err }
