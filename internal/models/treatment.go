// Package models contains data structures used throughout the application
package models

import (
	"sort"
	"time"
)

// Treatment represents a treatment entry from Nightscout. Only the fields that
// feed the overlay timelines are decoded.
type Treatment struct {
	ID        string  `json:"_id"`
	EventType string  `json:"eventType"`
	Mills     int64   `json:"mills"` // Unix timestamp in milliseconds, set by the server
	Date      int64   `json:"date"`  // Unix timestamp in milliseconds, set by uploaders
	CreatedAt string  `json:"created_at"`
	Duration  float64 `json:"duration"` // Duration in minutes
	Insulin   float64 `json:"insulin"`
	Notes     string  `json:"notes"`
	EnteredBy string  `json:"enteredBy"`

	// Pointers so that an explicit zero survives decoding.
	Percent  *float64 `json:"percent"`  // Basal change in percent
	Absolute *float64 `json:"absolute"` // Basal rate in U/h
	Relative *float64 `json:"relative"` // Extended combo bolus rate in U/h

	// For profile switches
	Profile string `json:"profile"`
}

// Time returns the time of the treatment
func (t *Treatment) Time() time.Time {
	if t.Mills > 0 {
		return time.UnixMilli(t.Mills)
	}
	if t.Date > 0 {
		return time.UnixMilli(t.Date)
	}
	// Fallback to created_at
	parsed, err := time.Parse(time.RFC3339, t.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

// TreatmentEventTypes contains the Nightscout event types that act as overlays
var TreatmentEventTypes = struct {
	ProfileSwitch string
	TempBasal     string
	ComboBolus    string
}{
	ProfileSwitch: "Profile Switch",
	TempBasal:     "Temp Basal",
	ComboBolus:    "Combo Bolus",
}

// Overlays holds the three overlay timelines derived from treatments
type Overlays struct {
	Switches  []ProfileSwitchEvent
	Temps     []TempOverrideEvent
	Additives []AdditiveOverrideEvent
}

// SplitOverlays sorts treatments into the three overlay timelines, each
// ascending by time. Treatments without a usable timestamp are dropped.
func SplitOverlays(treatments []Treatment) Overlays {
	var out Overlays
	for i := range treatments {
		t := &treatments[i]
		ts := t.Time()
		if ts.IsZero() {
			continue
		}
		ms := ts.UnixMilli()

		switch t.EventType {
		case TreatmentEventTypes.ProfileSwitch:
			if t.Profile == "" {
				continue
			}
			out.Switches = append(out.Switches, ProfileSwitchEvent{Mills: ms, Profile: t.Profile})
		case TreatmentEventTypes.TempBasal:
			out.Temps = append(out.Temps, TempOverrideEvent{
				Mills:    ms,
				Duration: t.Duration,
				Absolute: t.Absolute,
				Percent:  t.Percent,
			})
		case TreatmentEventTypes.ComboBolus:
			if t.Relative == nil {
				continue
			}
			out.Additives = append(out.Additives, AdditiveOverrideEvent{
				Mills:    ms,
				Duration: t.Duration,
				Relative: *t.Relative,
			})
		}
	}

	sort.SliceStable(out.Switches, func(i, j int) bool { return out.Switches[i].Mills < out.Switches[j].Mills })
	sort.SliceStable(out.Temps, func(i, j int) bool { return out.Temps[i].Mills < out.Temps[j].Mills })
	sort.SliceStable(out.Additives, func(i, j int) bool { return out.Additives[i].Mills < out.Additives[j].Mills })
	return out
}
