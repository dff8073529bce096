package profile

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/mrcode/nightscout-profiles/internal/models"
)

// Keys stripped from a legacy document when it is moved into the store
var legacyEnvelopeKeys = map[string]bool{
	"_id":        true,
	"startDate":  true,
	"created_at": true,
}

// MigrateDocument wraps a legacy single-profile document into the
// multi-profile shape. Documents that already carry a defaultProfile or
// store marker are returned unchanged, so the migration is idempotent. The
// input is never modified.
func MigrateDocument(raw models.RawDocument) (models.RawDocument, bool) {
	_, hasDefault := raw["defaultProfile"]
	_, hasStore := raw["store"]
	if hasDefault || hasStore {
		return raw, false
	}

	inner := make(map[string]any, len(raw))
	for k, v := range raw {
		if legacyEnvelopeKeys[k] {
			continue
		}
		inner[k] = v
	}

	out := models.RawDocument{
		"defaultProfile": models.DefaultProfileName,
		"store":          map[string]any{models.DefaultProfileName: inner},
	}
	if v, ok := raw["startDate"]; ok {
		out["startDate"] = v
	}
	if v, ok := raw["_id"]; ok {
		out["_id"] = v
	}
	return out, true
}

// decodeDocument converts a migrated raw document into its typed form and
// preprocesses every schedule it contains.
func decodeDocument(raw models.RawDocument, logger *slog.Logger) (models.ProfileDocument, error) {
	doc := models.ProfileDocument{
		ID:                 scalarText(raw["_id"]),
		DefaultProfileName: scalarText(raw["defaultProfile"]),
		StartDate:          scalarText(raw["startDate"]),
	}

	store, ok := asMap(raw["store"])
	if !ok {
		return doc, fmt.Errorf("%w: store is not an object", ErrInvalidDocument)
	}

	doc.Store = make(map[string]models.ProfileDefinition, len(store))
	var skipped []string
	for name, rawDef := range store {
		node := models.NodeFromAny(rawDef)
		if node.Kind != models.NodeMap {
			skipped = append(skipped, name)
			continue
		}
		for field, child := range node.Map {
			preprocessNode(&child, logger, name+"."+field)
			node.Map[field] = child
		}
		doc.Store[name] = models.ProfileDefinition{Fields: node.Map}
	}

	if len(skipped) > 0 {
		sort.Strings(skipped)
		return doc, fmt.Errorf("%w: profiles %s are not objects", ErrInvalidDocument, strings.Join(skipped, ", "))
	}
	return doc, nil
}

// preprocessNode walks the typed tree, deriving seconds-from-midnight and the
// parsed value for every schedule entry, and sorting schedules by time.
func preprocessNode(n *models.Node, logger *slog.Logger, path string) {
	switch n.Kind {
	case models.NodeEntry:
		preprocessEntry(n.Entry)
	case models.NodeList:
		for i := range n.List {
			preprocessNode(&n.List[i], logger, path)
		}
		if sortSchedule(n.List) {
			logger.Warn("schedule entries were not in time order, sorted", slog.String("schedule", path))
		}
	case models.NodeMap:
		for k, child := range n.Map {
			preprocessNode(&child, logger, path+"."+k)
			n.Map[k] = child
		}
	}
}

func preprocessEntry(e *models.ScheduleEntry) {
	if secs, err := parseTimeOfDay(e.Time); err == nil {
		e.Seconds = secs
		e.SecondsValid = true
	}
	// A preset timeAsSeconds is kept when the time string is unusable.

	e.Value = models.Missing
	if e.Raw.Kind == models.NodeScalar {
		if n, err := models.ParseNumber(e.Raw.Text); err == nil {
			e.Value = models.Some(n)
		}
	}
}

// sortSchedule orders a list made only of entries ascending by seconds;
// entries without a valid time go last. Reports whether anything moved.
func sortSchedule(items []models.Node) bool {
	if len(items) < 2 {
		return false
	}
	for _, item := range items {
		if item.Kind != models.NodeEntry {
			return false
		}
	}
	less := func(i, j int) bool {
		a, b := items[i].Entry, items[j].Entry
		if a.SecondsValid != b.SecondsValid {
			return a.SecondsValid
		}
		return a.SecondsValid && a.Seconds < b.Seconds
	}
	if sort.SliceIsSorted(items, less) {
		return false
	}
	sort.SliceStable(items, less)
	return true
}

// parseTimeOfDay parses "HH:MM" (seconds optional) into seconds from midnight
func parseTimeOfDay(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("time of day %q: %w", s, models.ErrNotANumber)
	}
	limits := []int{24, 60, 60}
	total := 0
	scale := []int{3600, 60, 1}
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 || v >= limits[i] {
			return 0, fmt.Errorf("time of day %q: %w", s, models.ErrNotANumber)
		}
		total += v * scale[i]
	}
	return total, nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case models.RawDocument:
		return m, true
	default:
		return nil, false
	}
}

func scalarText(v any) string {
	if v == nil {
		return ""
	}
	return models.NodeFromAny(v).Text
}
