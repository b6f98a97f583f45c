package rc_types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotLookupOrder(t *testing.T) {
	snap := &Snapshot{
		Balance: ValueMap{"shared": IntValue(1), "coins": IntValue(500)},
		Debug:   ValueMap{"shared": IntValue(2)},
	}

	v, ok := snap.Lookup("shared")
	require.True(t, ok)
	n, _ := v.AsInt()
	assert.Equal(t, int64(1), n, "balance section wins over debug")

	_, ok = snap.Lookup("missing")
	assert.False(t, ok)
}

func TestSnapshotExperimentByID(t *testing.T) {
	snap := &Snapshot{Experiments: []Experiment{{ID: "a"}, {ID: "b"}}}

	exp, ok := snap.ExperimentByID("b")
	require.True(t, ok)
	assert.Equal(t, "b", exp.ID)

	_, ok = snap.ExperimentByID("c")
	assert.False(t, ok)
}

func TestCacheEntryRoundTrip(t *testing.T) {
	now := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	thirty := 30

	snap := &Snapshot{
		Version:   "0198a7b0-0000-7000-8000-000000000001",
		Source:    SourceRemote,
		FetchedAt: now,
		Balance:   ValueMap{"difficultyMultiplier": FloatValue(1.5), "startingCoins": IntValue(750)},
		Debug:     ValueMap{"showFPS": BoolValue(true)},
		Features: FeatureFlagSet{
			"multiplayer": {Enabled: true},
			"new_feature": {Enabled: true, RolloutPercentage: &thirty, Variant: "blue"},
		},
		Experiments: []Experiment{{
			ID:       "exp1",
			Salt:     "s1",
			IsActive: true,
			TargetingRules: []TargetingRule{
				{Attribute: "country", Operator: OpEquals, Value: "DE"},
			},
			OverrideLists: OverrideLists{ForceInclude: []string{"qa-1"}},
			Variants: []Variant{
				{ID: "A", TrafficAllocation: 50, Params: ValueMap{"speed": FloatValue(1.1)}},
				{ID: "B", TrafficAllocation: 50},
			},
		}},
		LiveOps: LiveOpsSection{
			Events: []LiveEvent{{
				ID:        "summer_fest",
				Enabled:   true,
				StartTime: now,
				EndTime:   now.Add(48 * time.Hour),
				Params:    ValueMap{"xpMultiplier": FloatValue(2.5)},
			}},
			Messages: []LiveMessage{{ID: "m1", Title: "Patch notes", Priority: 5}},
		},
	}

	data, err := json.Marshal(CacheEntry{SavedAt: now, Snapshot: snap})
	require.NoError(t, err)

	var back CacheEntry
	require.NoError(t, json.Unmarshal(data, &back))
	require.NotNil(t, back.Snapshot)

	assert.True(t, now.Equal(back.SavedAt))
	assert.Equal(t, snap.Version, back.Snapshot.Version)
	assert.Equal(t, snap.Balance, back.Snapshot.Balance)
	assert.Equal(t, snap.Features, back.Snapshot.Features)
	assert.Equal(t, snap.Experiments, back.Snapshot.Experiments)
	assert.Equal(t, snap.LiveOps.Events[0].Params, back.Snapshot.LiveOps.Events[0].Params)
	assert.Equal(t, snap.LiveOps.Messages, back.Snapshot.LiveOps.Messages)
}

func TestLiveContentWindows(t *testing.T) {
	now := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)

	ev := LiveEvent{Enabled: true, StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour)}
	assert.True(t, ev.ActiveAt(now))
	assert.False(t, ev.ActiveAt(now.Add(2*time.Hour)))
	assert.False(t, ev.ActiveAt(now.Add(-2*time.Hour)))

	ev.Enabled = false
	assert.False(t, ev.ActiveAt(now), "disabled event is never active")

	// Нулевые границы означают "без ограничения".
	assert.True(t, LiveEvent{Enabled: true}.ActiveAt(now))
	assert.True(t, LiveMessage{}.ActiveAt(now))

	msg := LiveMessage{EndTime: now.Add(-time.Minute)}
	assert.False(t, msg.ActiveAt(now))
}

func TestDefaultSnapshotDocumentedValues(t *testing.T) {
	snap := DefaultSnapshot()

	assert.Equal(t, SourceDefault, snap.Source)
	assert.Empty(t, snap.Version)

	v, ok := snap.Lookup("difficultyMultiplier")
	require.True(t, ok)
	f, _ := v.AsFloat()
	assert.Equal(t, 1.0, f)

	flag, ok := snap.Features["multiplayer"]
	require.True(t, ok)
	assert.True(t, flag.Enabled)

	assert.Empty(t, snap.Experiments, "defaults must not carry experiments")
}
