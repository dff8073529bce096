package profile

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/mrcode/nightscout-profiles/internal/models"
)

var testDay = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return testDay.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func entry(timeOfDay string, value any) map[string]any {
	return map[string]any{"time": timeOfDay, "value": value}
}

func testDocument() models.RawDocument {
	return models.RawDocument{
		"_id":            "doc-1",
		"defaultProfile": "Default",
		"startDate":      "2024-01-01T00:00:00.000Z",
		"store": map[string]any{
			"Default": map[string]any{
				"units":    "mg/dl",
				"timezone": "UTC",
				"dia":      4.0,
				"basal": []any{
					entry("00:00", "0.5"),
					entry("06:00", "0.8"),
					entry("12:00", 1.0),
				},
				"sens":        []any{entry("00:00", 50.0), entry("18:00", 40.0)},
				"carbratio":   []any{entry("00:00", 10.0)},
				"carbs_hr":    "20",
				"target_low":  []any{entry("00:00", 90.0)},
				"target_high": []any{entry("00:00", 120.0)},
			},
			"Exercise": map[string]any{
				"units":    "mg/dl",
				"timezone": "UTC",
				"dia":      4.0,
				"basal":    []any{entry("00:00", 0.3)},
			},
		},
	}
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	all := append([]Option{
		WithFallbackLocation(time.UTC),
		WithClock(func() time.Time { return at(10, 0) }),
	}, opts...)
	e := New(all...)
	t.Cleanup(e.Close)
	return e
}

func loadedEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e := newTestEngine(t, opts...)
	if err := e.Load([]models.RawDocument{testDocument()}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return e
}
