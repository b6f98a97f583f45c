package rc_types

import "time"

// DefaultSnapshot возвращает вшитую конфигурацию последней надежды.
// Она применяется, когда нет ни сети, ни локального кеша, и одновременно
// служит базой для подстановки значений по умолчанию при разборе ответа
// сервера: отсутствующее или битое поле сохраняет значение отсюда.
//
// Значения консервативны: новая функциональность выключена, баланс
// соответствует базовой сложности.
func DefaultSnapshot() *Snapshot {
	return &Snapshot{
		Source:    SourceDefault,
		FetchedAt: time.Now(),
		Balance: ValueMap{
			"difficultyMultiplier": FloatValue(1.0),
			"startingCoins":        IntValue(500),
			"maxEnergy":            IntValue(100),
			"energyRegenSeconds":   IntValue(300),
		},
		Monetization: ValueMap{
			"adsEnabled":                 BoolValue(true),
			"interstitialCooldownSecs":   IntValue(180),
			"starterPackPriceTier":       StringValue("tier_4_99"),
			"doubleCoinsOfferMultiplier": FloatValue(2.0),
		},
		Performance: ValueMap{
			"targetFrameRate": IntValue(60),
			"textureQuality":  StringValue("high"),
			"particleBudget":  IntValue(512),
		},
		Debug: ValueMap{
			"verboseLogging": BoolValue(false),
			"showFPS":        BoolValue(false),
		},
		Features: FeatureFlagSet{
			"multiplayer": {Enabled: true},
			"cloud_save":  {Enabled: false},
			"daily_quests": {
				Enabled: true,
			},
		},
	}
}
