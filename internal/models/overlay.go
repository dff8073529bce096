package models

import "time"

// ProfileSwitchEvent redirects the active profile from Mills onwards until superseded
type ProfileSwitchEvent struct {
	Mills   int64  `json:"mills"`
	Profile string `json:"profile"`
}

// Time returns the event timestamp
func (e ProfileSwitchEvent) Time() time.Time { return time.UnixMilli(e.Mills) }

// TempOverrideEvent is a temporary basal override. Absolute wins over Percent.
type TempOverrideEvent struct {
	Mills    int64    `json:"mills"`
	Duration float64  `json:"duration"` // minutes
	Absolute *float64 `json:"absolute,omitempty"`
	Percent  *float64 `json:"percent,omitempty"`
}

// Time returns the event timestamp
func (e TempOverrideEvent) Time() time.Time { return time.UnixMilli(e.Mills) }

// Clone returns a copy that shares no memory with e
func (e TempOverrideEvent) Clone() TempOverrideEvent {
	if e.Absolute != nil {
		e.Absolute = Float(*e.Absolute)
	}
	if e.Percent != nil {
		e.Percent = Float(*e.Percent)
	}
	return e
}

// Contains reports whether ms falls inside [Mills, Mills+Duration)
func (e TempOverrideEvent) Contains(ms int64) bool {
	return windowContains(e.Mills, e.Duration, ms)
}

// AdditiveOverrideEvent adds Relative on top of the adjusted basal (combo bolus extended part)
type AdditiveOverrideEvent struct {
	Mills    int64   `json:"mills"`
	Duration float64 `json:"duration"` // minutes
	Relative float64 `json:"relative"`
}

// Time returns the event timestamp
func (e AdditiveOverrideEvent) Time() time.Time { return time.UnixMilli(e.Mills) }

// Contains reports whether ms falls inside [Mills, Mills+Duration)
func (e AdditiveOverrideEvent) Contains(ms int64) bool {
	return windowContains(e.Mills, e.Duration, ms)
}

func windowContains(start int64, durationMinutes float64, ms int64) bool {
	if durationMinutes <= 0 {
		return false
	}
	end := start + int64(durationMinutes*float64(time.Minute/time.Millisecond))
	return ms >= start && ms < end
}

// Float returns a pointer to f, for optional event fields
func Float(f float64) *float64 { return &f }
