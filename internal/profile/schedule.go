package profile

import (
	"time"

	"github.com/mrcode/nightscout-profiles/internal/models"
)

// ScheduleResolver evaluates a single profile parameter at an instant
type ScheduleResolver struct {
	// Fallback is used when a profile declares no timezone. Results then
	// depend on the zone chosen here, so it is configured explicitly.
	Fallback *time.Location
}

// NewScheduleResolver creates a resolver; nil fallback means time.Local
func NewScheduleResolver(fallback *time.Location) ScheduleResolver {
	if fallback == nil {
		fallback = time.Local
	}
	return ScheduleResolver{Fallback: fallback}
}

// SecondsFromMidnight returns the wall-clock offset of instant in loc. On DST
// transition days this is the clock reading, not the elapsed time since
// midnight, so schedule entries keep their printed meaning.
func SecondsFromMidnight(instant time.Time, loc *time.Location) int {
	t := instant.In(loc)
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// ResolveValue returns the value of parameter at instant. Schedules yield the
// last entry at or before the time of day; scalars yield their number. Any
// other shape, an absent parameter, or an instant before the first entry
// yields models.Missing. Text scalars (units, timezone) are not numbers and
// also yield models.Missing; ProfileDefinition exposes them as strings.
func (r ScheduleResolver) ResolveValue(profile ResolvedProfile, parameter string, instant time.Time) models.Value {
	node, ok := profile.Definition.Parameter(parameter)
	if !ok {
		return models.Missing
	}

	switch node.Kind {
	case models.NodeScalar:
		n, err := models.ParseNumber(node.Text)
		if err != nil {
			return models.Missing
		}
		return models.Some(n)
	case models.NodeList:
		if !node.IsSchedule() {
			return models.Missing
		}
		return r.scan(node.List, SecondsFromMidnight(instant, r.location(profile)))
	default:
		return models.Missing
	}
}

func (r ScheduleResolver) location(profile ResolvedProfile) *time.Location {
	if profile.Location != nil {
		return profile.Location
	}
	if r.Fallback != nil {
		return r.Fallback
	}
	return time.Local
}

// scan walks entries sorted ascending. Entries with an unparseable time are
// skipped; an entry whose value did not parse propagates as missing.
func (r ScheduleResolver) scan(entries []models.Node, target int) models.Value {
	result := models.Missing
	for _, item := range entries {
		if item.Kind != models.NodeEntry || !item.Entry.SecondsValid {
			continue
		}
		if item.Entry.Seconds <= target {
			result = item.Entry.Value
		}
	}
	return result
}
