package rc_types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueJSONRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		val  Value
		want string
	}{
		{"int", IntValue(42), "42"},
		{"negative int", IntValue(-7), "-7"},
		{"float", FloatValue(1.5), "1.5"},
		{"bool", BoolValue(true), "true"},
		{"string", StringValue("high"), `"high"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.val)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(data))

			var back Value
			require.NoError(t, json.Unmarshal(data, &back))
			assert.True(t, tc.val.Equal(back), "round trip changed value: %v -> %v", tc.val, back)
			assert.Equal(t, tc.val.Kind(), back.Kind())
		})
	}
}

func TestValueUnmarshalDistinguishesIntFromFloat(t *testing.T) {
	var v Value
	require.NoError(t, json.Unmarshal([]byte("10"), &v))
	assert.Equal(t, KindInt, v.Kind())

	require.NoError(t, json.Unmarshal([]byte("10.25"), &v))
	assert.Equal(t, KindFloat, v.Kind())
}

func TestValueUnmarshalRejectsComposites(t *testing.T) {
	for _, raw := range []string{`[1,2]`, `{"a":1}`, `null`} {
		var v Value
		assert.Error(t, json.Unmarshal([]byte(raw), &v), "raw=%s", raw)
	}
}

func TestValueCoercions(t *testing.T) {
	n, ok := FloatValue(3.0).AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(3), n)

	_, ok = FloatValue(3.5).AsInt()
	assert.False(t, ok, "non-integral float must not coerce to int")

	f, ok := IntValue(3).AsFloat()
	require.True(t, ok)
	assert.Equal(t, 3.0, f)

	f, ok = StringValue("2.5").AsFloat()
	require.True(t, ok)
	assert.Equal(t, 2.5, f)

	b, ok := StringValue("true").AsBool()
	require.True(t, ok)
	assert.True(t, b)

	_, ok = IntValue(1).AsBool()
	assert.False(t, ok, "numbers must not coerce to bool")

	_, ok = IntValue(1).AsString()
	assert.False(t, ok, "numbers must not coerce to string")
}

func TestFromAny(t *testing.T) {
	v, ok := FromAny(float64(5))
	require.True(t, ok)
	assert.Equal(t, KindInt, v.Kind(), "integral float64 from json decodes as int")

	v, ok = FromAny(5.5)
	require.True(t, ok)
	assert.Equal(t, KindFloat, v.Kind())

	v, ok = FromAny(json.Number("12"))
	require.True(t, ok)
	assert.Equal(t, KindInt, v.Kind())

	_, ok = FromAny([]any{1, 2})
	assert.False(t, ok)

	_, ok = FromAny(nil)
	assert.False(t, ok)
}

func TestToFloat64(t *testing.T) {
	for _, tc := range []struct {
		in   any
		want float64
		ok   bool
	}{
		{3, 3, true},
		{int64(4), 4, true},
		{2.5, 2.5, true},
		{"1.25", 1.25, true},
		{json.Number("7"), 7, true},
		{FloatValue(9.5), 9.5, true},
		{"abc", 0, false},
		{true, 0, false},
	} {
		got, ok := ToFloat64(tc.in)
		assert.Equal(t, tc.ok, ok, "in=%v", tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got, "in=%v", tc.in)
		}
	}
}
