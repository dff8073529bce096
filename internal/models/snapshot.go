package models

import "time"

// Snapshot is the resolved therapy state at one instant, as published to
// consumers after each refresh
type Snapshot struct {
	Time          time.Time `json:"time"`
	ActiveProfile string    `json:"activeProfile"`
	Units         string    `json:"units"`

	BasalBase      Value   `json:"basalBase"`
	BasalAdjusted  Value   `json:"basalAdjusted"`
	BasalAdditive  float64 `json:"basalAdditive"`
	EffectiveBasal Value   `json:"effectiveBasal"`
	TempActive     bool    `json:"tempActive"`
	AdditiveActive bool    `json:"additiveActive"`

	Sensitivity Value `json:"sensitivity"`
	CarbRatio   Value `json:"carbRatio"`
	TargetLow   Value `json:"targetLow"`
	TargetHigh  Value `json:"targetHigh"`

	// Set when the latest refresh failed and this snapshot was carried over
	IsStale      bool `json:"isStale"`
	StaleMinutes int  `json:"staleMinutes"`
}
