package profile

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	json "github.com/goccy/go-json"

	"github.com/mrcode/nightscout-profiles/internal/models"
)

// Fingerprints holds one content hash per overlay sequence
type Fingerprints struct {
	Switches  uint64 `json:"switches"`
	Temps     uint64 `json:"temps"`
	Additives uint64 `json:"additives"`
}

// Timeline is an immutable view of the three overlay sequences, each sorted
// ascending by timestamp.
type Timeline struct {
	switches  []models.ProfileSwitchEvent
	temps     []models.TempOverrideEvent
	additives []models.AdditiveOverrideEvent
	fp        Fingerprints
}

var emptyTimeline = mustTimeline(nil, nil, nil)

func mustTimeline(s []models.ProfileSwitchEvent, t []models.TempOverrideEvent, a []models.AdditiveOverrideEvent) *Timeline {
	tl, err := newTimeline(s, t, a, slog.Default())
	if err != nil {
		panic(err)
	}
	return tl
}

func newTimeline(
	switches []models.ProfileSwitchEvent,
	temps []models.TempOverrideEvent,
	additives []models.AdditiveOverrideEvent,
	logger *slog.Logger,
) (*Timeline, error) {
	if err := checkFinite(temps, additives); err != nil {
		return nil, err
	}

	tl := &Timeline{
		switches:  sortedCopy(switches, func(e models.ProfileSwitchEvent) int64 { return e.Mills }, logger, "profile switches"),
		temps:     sortedCopy(temps, func(e models.TempOverrideEvent) int64 { return e.Mills }, logger, "temp overrides"),
		additives: sortedCopy(additives, func(e models.AdditiveOverrideEvent) int64 { return e.Mills }, logger, "additive overrides"),
	}
	// the optional temp fields are pointers; detach them from the caller
	for i := range tl.temps {
		tl.temps[i] = tl.temps[i].Clone()
	}

	var err error
	if tl.fp.Switches, err = Fingerprint(tl.switches); err != nil {
		return nil, err
	}
	if tl.fp.Temps, err = Fingerprint(tl.temps); err != nil {
		return nil, err
	}
	if tl.fp.Additives, err = Fingerprint(tl.additives); err != nil {
		return nil, err
	}
	return tl, nil
}

// Fingerprint hashes the canonical JSON encoding of a sequence. Nil and
// empty sequences hash identically.
func Fingerprint[T any](events []T) (uint64, error) {
	if events == nil {
		events = []T{}
	}
	b, err := json.Marshal(events)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnserializable, err)
	}
	return xxhash.Sum64(b), nil
}

// combineFingerprints folds several hashes into one cache key component
func combineFingerprints(fps ...uint64) uint64 {
	h := xxhash.New()
	var buf [8]byte
	for _, fp := range fps {
		binary.LittleEndian.PutUint64(buf[:], fp)
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}

func checkFinite(temps []models.TempOverrideEvent, additives []models.AdditiveOverrideEvent) error {
	bad := func(f float64) bool { return math.IsNaN(f) || math.IsInf(f, 0) }
	for i, e := range temps {
		if bad(e.Duration) || (e.Absolute != nil && bad(*e.Absolute)) || (e.Percent != nil && bad(*e.Percent)) {
			return fmt.Errorf("%w: temp override %d has a non-finite number", ErrUnserializable, i)
		}
	}
	for i, e := range additives {
		if bad(e.Duration) || bad(e.Relative) {
			return fmt.Errorf("%w: additive override %d has a non-finite number", ErrUnserializable, i)
		}
	}
	return nil
}

func sortedCopy[T any](in []T, mills func(T) int64, logger *slog.Logger, name string) []T {
	out := make([]T, len(in))
	copy(out, in)
	less := func(i, j int) bool { return mills(out[i]) < mills(out[j]) }
	if !sort.SliceIsSorted(out, less) {
		logger.Warn("overlay events were not in time order, sorted", slog.String("sequence", name), slog.Int("count", len(out)))
		sort.SliceStable(out, less)
	}
	return out
}

// Fingerprints returns the content hashes of the three sequences
func (tl *Timeline) Fingerprints() Fingerprints { return tl.fp }

// ActiveProfileSwitch returns the latest switch strictly before instant
func (tl *Timeline) ActiveProfileSwitch(instant time.Time) (models.ProfileSwitchEvent, bool) {
	ms := instant.UnixMilli()
	idx := sort.Search(len(tl.switches), func(i int) bool { return tl.switches[i].Mills >= ms })
	if idx == 0 {
		return models.ProfileSwitchEvent{}, false
	}
	return tl.switches[idx-1], true
}

// ActiveTempOverride returns the temp override whose window contains instant
func (tl *Timeline) ActiveTempOverride(instant time.Time) (models.TempOverrideEvent, bool) {
	return latestContaining(tl.temps, instant.UnixMilli(),
		func(e models.TempOverrideEvent) int64 { return e.Mills },
		models.TempOverrideEvent.Contains)
}

// ActiveAdditiveOverride returns the additive override whose window contains instant
func (tl *Timeline) ActiveAdditiveOverride(instant time.Time) (models.AdditiveOverrideEvent, bool) {
	return latestContaining(tl.additives, instant.UnixMilli(),
		func(e models.AdditiveOverrideEvent) int64 { return e.Mills },
		models.AdditiveOverrideEvent.Contains)
}

// latestContaining scans backwards from the last event starting at or before
// ms and returns the first whose window holds ms.
func latestContaining[T any](events []T, ms int64, mills func(T) int64, contains func(T, int64) bool) (T, bool) {
	idx := sort.Search(len(events), func(i int) bool { return mills(events[i]) > ms })
	for i := idx - 1; i >= 0; i-- {
		if contains(events[i], ms) {
			return events[i], true
		}
	}
	var zero T
	return zero, false
}

// OverlayTimeline holds the current Timeline and swaps it atomically on Update
type OverlayTimeline struct {
	current atomic.Pointer[Timeline]
	logger  *slog.Logger
}

// NewOverlayTimeline creates a timeline with three empty sequences
func NewOverlayTimeline(logger *slog.Logger) *OverlayTimeline {
	if logger == nil {
		logger = slog.Default()
	}
	t := &OverlayTimeline{logger: logger}
	t.current.Store(emptyTimeline)
	return t
}

// Update replaces all three sequences wholesale and recomputes fingerprints.
// On error the previous sequences stay in place.
func (t *OverlayTimeline) Update(
	switches []models.ProfileSwitchEvent,
	temps []models.TempOverrideEvent,
	additives []models.AdditiveOverrideEvent,
) error {
	tl, err := newTimeline(switches, temps, additives, t.logger)
	if err != nil {
		return err
	}
	t.current.Store(tl)
	return nil
}

// Current returns the timeline in effect
func (t *OverlayTimeline) Current() *Timeline {
	return t.current.Load()
}

// Fingerprints returns the fingerprints of the current sequences
func (t *OverlayTimeline) Fingerprints() Fingerprints {
	return t.Current().Fingerprints()
}

// ActiveProfileSwitch looks up the latest switch before instant
func (t *OverlayTimeline) ActiveProfileSwitch(instant time.Time) (models.ProfileSwitchEvent, bool) {
	return t.Current().ActiveProfileSwitch(instant)
}

// ActiveTempOverride looks up the temp override active at instant
func (t *OverlayTimeline) ActiveTempOverride(instant time.Time) (models.TempOverrideEvent, bool) {
	return t.Current().ActiveTempOverride(instant)
}

// ActiveAdditiveOverride looks up the additive override active at instant
func (t *OverlayTimeline) ActiveAdditiveOverride(instant time.Time) (models.AdditiveOverrideEvent, bool) {
	return t.Current().ActiveAdditiveOverride(instant)
}
