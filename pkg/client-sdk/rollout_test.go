package client_sdk

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketIsDeterministic(t *testing.T) {
	var engine RolloutEngine

	first := engine.Bucket("device-42", "new_shop")
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, engine.Bucket("device-42", "new_shop"))
	}
}

func TestBucketRange(t *testing.T) {
	var engine RolloutEngine

	for i := 0; i < 10_000; i++ {
		b := engine.Bucket(fmt.Sprintf("user-%d", i), "some_feature")
		require.GreaterOrEqual(t, b, 0)
		require.Less(t, b, 100)
	}
}

// Разные имена фич должны давать независимые распределения: один и тот же
// пользователь не обязан попадать в одинаковые бакеты всех раскаток.
func TestBucketIndependentPerName(t *testing.T) {
	var engine RolloutEngine

	same := 0
	const users = 1000
	for i := 0; i < users; i++ {
		id := fmt.Sprintf("user-%d", i)
		if engine.Bucket(id, "feature_a") == engine.Bucket(id, "feature_b") {
			same++
		}
	}
	// При независимом хешировании совпадает ~1% бакетов, никак не все.
	assert.Less(t, same, users/2, "feature name must participate in the hash")
}

func TestIsInRolloutBoundaries(t *testing.T) {
	var engine RolloutEngine

	cases := []struct {
		name string
		pct  int
		want bool
	}{
		{"zero percent excludes everyone", 0, false},
		{"negative percent excludes everyone", -5, false},
		{"hundred percent includes everyone", 100, true},
		{"over hundred includes everyone", 150, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for i := 0; i < 50; i++ {
				got := engine.IsInRollout(fmt.Sprintf("user-%d", i), "checkout_v2", tc.pct)
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

// Попадание в раскатку определяется исключительно сравнением бакета с
// процентом: пользователь с бакетом 17 входит в 30%-раскатку, с бакетом 55 - нет.
func TestIsInRolloutMatchesBucket(t *testing.T) {
	var engine RolloutEngine

	for i := 0; i < 500; i++ {
		id := fmt.Sprintf("device-%d", i)
		bucket := engine.Bucket(id, "new_shop")
		assert.Equal(t, bucket < 30, engine.IsInRollout(id, "new_shop", 30))
		assert.Equal(t, bucket < 55, engine.IsInRollout(id, "new_shop", 55))
	}
}

// Увеличение процента раскатки не должно выкидывать уже включенных
// пользователей: множества при 10% и 50% вложены друг в друга.
func TestIsInRolloutMonotonic(t *testing.T) {
	var engine RolloutEngine

	for i := 0; i < 2000; i++ {
		id := fmt.Sprintf("player-%d", i)
		for pct := 10; pct < 100; pct += 30 {
			if engine.IsInRollout(id, "new_tutorial", pct) {
				assert.True(t, engine.IsInRollout(id, "new_tutorial", pct+10),
					"user %s lost at %d%% -> %d%%", id, pct, pct+10)
			}
		}
	}
}

func TestIsInRolloutFraction(t *testing.T) {
	var engine RolloutEngine

	const users = 10_000
	const pct = 30

	included := 0
	for i := 0; i < users; i++ {
		if engine.IsInRollout(fmt.Sprintf("install-%d", i), "holiday_skin", pct) {
			included++
		}
	}

	// xxhash дает равномерное распределение: 30% +- 3 п.п. на 10k выборке.
	assert.InDelta(t, users*pct/100, included, users*3/100,
		"rollout fraction drifted too far from the configured percentage")
}
