package models

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreatment_Time(t *testing.T) {
	tests := []struct {
		name      string
		treatment Treatment
		expected  time.Time
	}{
		{"mills wins", Treatment{Mills: 2000, Date: 1000}, time.UnixMilli(2000)},
		{"date fallback", Treatment{Date: 1000}, time.UnixMilli(1000)},
		{"created_at fallback", Treatment{CreatedAt: "2024-03-01T10:00:00Z"}, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"nothing usable", Treatment{CreatedAt: "yesterday"}, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.expected.Equal(tt.treatment.Time()), "Time() = %v, want %v", tt.treatment.Time(), tt.expected)
		})
	}
}

func TestTreatment_DecodeKeepsExplicitZero(t *testing.T) {
	var tr Treatment
	require.NoError(t, json.Unmarshal([]byte(`{"eventType":"Temp Basal","mills":1,"duration":30,"absolute":0}`), &tr))

	require.NotNil(t, tr.Absolute)
	assert.Equal(t, 0.0, *tr.Absolute)
	assert.Nil(t, tr.Percent)
}

func TestSplitOverlays(t *testing.T) {
	treatments := []Treatment{
		{EventType: "Temp Basal", Mills: 3000, Duration: 30, Percent: Float(50)},
		{EventType: "Profile Switch", Mills: 2000, Profile: "Exercise"},
		{EventType: "Profile Switch", Mills: 1000, Profile: "Default"},
		{EventType: "Profile Switch", Mills: 1500},
		{EventType: "Combo Bolus", Mills: 4000, Duration: 60, Relative: Float(1.2)},
		{EventType: "Combo Bolus", Mills: 4500, Duration: 60},
		{EventType: "Meal Bolus", Mills: 5000, Insulin: 3},
		{EventType: "Temp Basal", Duration: 30, Absolute: Float(0)},
	}

	out := SplitOverlays(treatments)

	require.Len(t, out.Switches, 2)
	assert.Equal(t, "Default", out.Switches[0].Profile)
	assert.Equal(t, "Exercise", out.Switches[1].Profile)

	require.Len(t, out.Temps, 1)
	assert.Equal(t, int64(3000), out.Temps[0].Mills)
	assert.Equal(t, 50.0, *out.Temps[0].Percent)

	require.Len(t, out.Additives, 1)
	assert.Equal(t, 1.2, out.Additives[0].Relative)
}

func TestOverrideWindow(t *testing.T) {
	ev := TempOverrideEvent{Mills: 0, Duration: 30}
	minute := int64(time.Minute / time.Millisecond)

	assert.True(t, ev.Contains(0))
	assert.True(t, ev.Contains(29*minute))
	assert.False(t, ev.Contains(30*minute))
	assert.False(t, ev.Contains(-1))

	zero := AdditiveOverrideEvent{Mills: 0, Duration: 0}
	assert.False(t, zero.Contains(0))
}
