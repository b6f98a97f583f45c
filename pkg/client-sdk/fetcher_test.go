package client_sdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goriiin/go-config-service/pkg/rc_types"
)

func TestHTTPFetcherSendsAttributes(t *testing.T) {
	var captured fetchRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"version": "v1", "balance": {"startingCoins": 700}}`))
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(server.URL, "production", 5*time.Second, testLogger())

	user := rc_types.ValueMap{"country": rc_types.StringValue("US")}
	app := rc_types.ValueMap{"app_version": rc_types.StringValue("2.1.0")}

	raw, err := fetcher.Fetch(context.Background(), user, app)
	require.NoError(t, err)

	assert.Equal(t, "production", captured.Namespace)
	country, _ := captured.UserAttributes["country"].AsString()
	assert.Equal(t, "US", country)
	appVer, _ := captured.AppAttributes["app_version"].AsString()
	assert.Equal(t, "2.1.0", appVer)

	assert.Equal(t, int64(700), raw.GetInt("balance.startingCoins", 0))
}

func TestHTTPFetcherServerRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(server.URL, "production", 5*time.Second, testLogger())

	_, err := fetcher.Fetch(context.Background(), nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerRejected)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusInternalServerError, fetchErr.Status)
}

func TestHTTPFetcherMalformedBody(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", "definitely not json"},
		{"json array", "[1, 2, 3]"},
		{"json scalar", `"string"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			fetcher := NewHTTPFetcher(server.URL, "production", 5*time.Second, testLogger())

			_, err := fetcher.Fetch(context.Background(), nil, nil)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestHTTPFetcherOversizedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"padding": "`))
		_, _ = w.Write([]byte(strings.Repeat("x", maxResponseSize)))
		_, _ = w.Write([]byte(`"}`))
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(server.URL, "production", 5*time.Second, testLogger())

	_, err := fetcher.Fetch(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestHTTPFetcherNetworkDown(t *testing.T) {
	// Сервер закрыт до запроса: соединение гарантированно не установится.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	fetcher := NewHTTPFetcher(url, "production", time.Second, testLogger())

	_, err := fetcher.Fetch(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNetworkUnavailable)
}

func TestHTTPFetcherTimeout(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		server.Close()
	}()

	fetcher := NewHTTPFetcher(server.URL, "production", 50*time.Millisecond, testLogger())

	_, err := fetcher.Fetch(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrFetchTimeout)
}

func TestHTTPFetcherContextCancelIsNotANetworkError(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		server.Close()
	}()

	fetcher := NewHTTPFetcher(server.URL, "production", 5*time.Second, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := fetcher.Fetch(ctx, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrNetworkUnavailable,
		"client shutdown must not look like a network outage")
	assert.NotErrorIs(t, err, ErrFetchTimeout)
}
