package profile

import (
	"time"

	"github.com/mrcode/nightscout-profiles/internal/models"
)

// BasalResult records how the effective basal was derived
type BasalResult struct {
	Base             models.Value                  `json:"base"`
	TempOverride     *models.TempOverrideEvent     `json:"tempOverride,omitempty"`
	AdditiveOverride *models.AdditiveOverrideEvent `json:"additiveOverride,omitempty"`
	Adjusted         models.Value                  `json:"adjusted"`
	Additive         float64                       `json:"additive"`
	Total            models.Value                  `json:"total"`
}

// Clone returns a copy whose override events share no memory with r
func (r BasalResult) Clone() BasalResult {
	if r.TempOverride != nil {
		temp := r.TempOverride.Clone()
		r.TempOverride = &temp
	}
	if r.AdditiveOverride != nil {
		additive := *r.AdditiveOverride
		r.AdditiveOverride = &additive
	}
	return r
}

// BasalCompositor overlays temp and additive overrides on the scheduled basal
type BasalCompositor struct {
	resolver ScheduleResolver
}

// NewBasalCompositor creates a compositor reading base rates through resolver
func NewBasalCompositor(resolver ScheduleResolver) BasalCompositor {
	return BasalCompositor{resolver: resolver}
}

// EffectiveBasal resolves the scheduled basal of profile at instant and
// composes it with the overrides active in tl.
func (c BasalCompositor) EffectiveBasal(profile ResolvedProfile, tl *Timeline, instant time.Time) BasalResult {
	base := c.resolver.ResolveValue(profile, models.ParamBasal, instant)

	var temp *models.TempOverrideEvent
	if ev, ok := tl.ActiveTempOverride(instant); ok {
		temp = &ev
	}
	var additive *models.AdditiveOverrideEvent
	if ev, ok := tl.ActiveAdditiveOverride(instant); ok {
		additive = &ev
	}
	return ComposeBasal(base, temp, additive)
}

// ComposeBasal applies the composition rule. An absolute override with a
// positive duration wins, including an override to zero; otherwise a percent
// override scales the base; otherwise the base stands. The additive rate is
// added last.
func ComposeBasal(base models.Value, temp *models.TempOverrideEvent, additive *models.AdditiveOverrideEvent) BasalResult {
	res := BasalResult{
		Base:             base,
		TempOverride:     temp,
		AdditiveOverride: additive,
		Adjusted:         base,
	}

	switch {
	case temp != nil && temp.Absolute != nil && temp.Duration > 0:
		res.Adjusted = models.Some(*temp.Absolute)
	case temp != nil && temp.Percent != nil:
		if b, ok := base.Get(); ok {
			res.Adjusted = models.Some(b * (100 + *temp.Percent) / 100)
		} else {
			res.Adjusted = models.Missing
		}
	}

	if additive != nil {
		res.Additive = additive.Relative
	}

	if adjusted, ok := res.Adjusted.Get(); ok {
		res.Total = models.Some(adjusted + res.Additive)
	}
	return res
}
