package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	client_sdk "github.com/goriiin/go-config-service/pkg/client-sdk"
	"github.com/goriiin/go-config-service/pkg/rc_types"
)

// Демонстрационный игровой бэкенд: один процесс ведет себя как игровой
// клиент с фиксированной идентичностью устройства и показывает по HTTP,
// какую конфигурацию он видит прямо сейчас.
func main() {
	namespace := envOr("RC_NAMESPACE", "production")
	endpoint := envOr("RC_ENDPOINT", "http://central-api:8080/v1/config/fetch")
	deviceID := envOr("RC_DEVICE_ID", "demo-device-001")

	sdkConfig := client_sdk.Config{
		Namespace: namespace,
		Attributes: client_sdk.StaticAttributes{
			ID: deviceID,
			User: rc_types.ValueMap{
				"country": rc_types.StringValue("US"),
				"level":   rc_types.IntValue(12),
			},
			App: rc_types.ValueMap{
				"app_version": rc_types.StringValue("2.5.1"),
				"platform":    rc_types.StringValue("demo"),
			},
		},
		Endpoint:        endpoint,
		CacheDir:        envOr("RC_CACHE_DIR", "/tmp/rc_cache"),
		Defaults:        rc_types.DefaultSnapshot(),
		RefreshInterval: time.Minute,
		KafkaBrokers:    brokerList(os.Getenv("RC_KAFKA_BROKERS")),
	}

	client, err := client_sdk.NewManager(sdkConfig)
	if err != nil {
		log.Fatalf("FATAL: Failed to build config client: %v", err)
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := client.Initialize(initCtx); err != nil {
		log.Fatalf("FATAL: Failed to initialize config client: %v", err)
	}
	defer client.Close()

	http.HandleFunc("/session", sessionHandler(client, deviceID))
	http.HandleFunc("/admin/killswitch", killSwitchHandler(client))
	http.HandleFunc("/admin/refresh", refreshHandler(client))

	log.Println("INFO: Demo game backend is listening on :8081")
	log.Fatal(http.ListenAndServe(":8081", nil))
}

type sessionResponse struct {
	PlayerID      string `json:"player_id"`
	ClientState   string `json:"client_state"`
	ConfigSource  string `json:"config_source"`
	ConfigVersion string `json:"config_version"`

	DifficultyMultiplier float64 `json:"difficulty_multiplier"`
	StartingCoins        int64   `json:"starting_coins"`
	MaxEnergy            int64   `json:"max_energy"`
	AdsEnabled           bool    `json:"ads_enabled"`

	MultiplayerEnabled bool `json:"multiplayer_enabled"`
	CloudSaveEnabled   bool `json:"cloud_save_enabled"`

	ExperimentGroup      string `json:"experiment_group,omitempty"`
	StarterPackPriceTier string `json:"starter_pack_price_tier"`

	ActiveEvents []string `json:"active_events"`
	Messages     []string `json:"messages"`
}

// sessionHandler собирает стартовое состояние игровой сессии из текущего
// снапшота конфигурации.
func sessionHandler(client *client_sdk.Manager, playerID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version := ""
		if snap := client.Snapshot(); snap != nil {
			version = snap.Version
		}

		resp := sessionResponse{
			PlayerID:      playerID,
			ClientState:   string(client.State()),
			ConfigSource:  string(client.Source()),
			ConfigVersion: version,

			DifficultyMultiplier: client.GetFloat("difficultyMultiplier", 1.0),
			StartingCoins:        client.GetInt("startingCoins", 500),
			MaxEnergy:            client.GetInt("maxEnergy", 100),
			AdsEnabled:           client.GetBool("adsEnabled", true),

			MultiplayerEnabled: client.IsFeatureEnabled("multiplayer"),
			CloudSaveEnabled:   client.IsFeatureEnabled("cloud_save"),

			ExperimentGroup: client.ExperimentGroup(),

			// Параметр эксперимента перекрывает базовую монетизацию.
			StarterPackPriceTier: client.ExperimentString("starterPackPriceTier",
				client.GetString("starterPackPriceTier", "tier_4_99")),

			ActiveEvents: []string{},
			Messages:     []string{},
		}

		for _, event := range client.ActiveLiveEvents() {
			resp.ActiveEvents = append(resp.ActiveEvents, event.ID)
		}
		for _, msg := range client.ActiveLiveMessages() {
			resp.Messages = append(resp.Messages, msg.Title)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

type killSwitchRequest struct {
	Feature string `json:"feature"`
	Action  string `json:"action"` // force_off | force_on | clear
}

// killSwitchHandler - админский рубильник поверх конфигурации.
func killSwitchHandler(client *client_sdk.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req killSwitchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Feature == "" {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		switch req.Action {
		case "force_off":
			client.SetKillSwitch(req.Feature, false)
		case "force_on":
			client.SetKillSwitch(req.Feature, true)
		case "clear":
			client.ClearKillSwitch(req.Feature)
		default:
			http.Error(w, "Unknown action", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"overrides": client.KillSwitchOverrides()})
	}
}

// refreshHandler дергает внеплановое обновление конфигурации.
func refreshHandler(client *client_sdk.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := client.ForceRefresh(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		version := ""
		if snap := client.Snapshot(); snap != nil {
			version = snap.Version
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"state":   string(client.State()),
			"source":  string(client.Source()),
			"version": version,
		})
	}
}

func envOr(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func brokerList(raw string) []string {
	if raw == "" {
		return nil
	}

	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}
