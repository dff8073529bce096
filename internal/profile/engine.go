// Package profile resolves effective Nightscout profile values at an instant:
// the scheduled value of the active profile, overlaid with profile switches,
// temp basals and combo bolus extended rates, memoized per minute.
package profile

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mrcode/nightscout-profiles/internal/models"
)

// Cache parameter names for answers that are not a plain profile parameter
const (
	paramActiveName = "@active-profile"
	paramComposite  = "@effective-basal"
)

// Engine answers profile queries over the loaded documents and overlays.
// All queries are safe for concurrent use with Load and Update.
type Engine struct {
	store      *ProfileStore
	timeline   *OverlayTimeline
	resolver   ScheduleResolver
	compositor BasalCompositor

	values *TemporalCache[models.Value]
	basals *TemporalCache[BasalResult]
	names  *TemporalCache[string]

	now    func() time.Time
	logger *slog.Logger

	closeOnce sync.Once
}

type engineOptions struct {
	ttl      time.Duration
	capacity uint64
	fallback *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures an Engine
type Option func(*engineOptions)

// WithCacheTTL sets how long memoized answers live
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *engineOptions) { o.ttl = ttl }
}

// WithCacheCapacity bounds the number of memoized answers per cache
func WithCacheCapacity(n uint64) Option {
	return func(o *engineOptions) { o.capacity = n }
}

// WithFallbackLocation sets the zone used for profiles without a timezone
func WithFallbackLocation(loc *time.Location) Option {
	return func(o *engineOptions) { o.fallback = loc }
}

// WithClock replaces time.Now for queries that default to the current time
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) { o.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) { o.logger = logger }
}

// New creates an engine and starts cache eviction. Call Close to stop it.
func New(opts ...Option) *Engine {
	o := engineOptions{
		ttl:    DefaultCacheTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	timeline := NewOverlayTimeline(o.logger)
	resolver := NewScheduleResolver(o.fallback)
	e := &Engine{
		store:      NewProfileStore(timeline, o.logger),
		timeline:   timeline,
		resolver:   resolver,
		compositor: NewBasalCompositor(resolver),
		values:     NewTemporalCache[models.Value](o.ttl, o.capacity),
		basals:     NewTemporalCache[BasalResult](o.ttl, o.capacity),
		names:      NewTemporalCache[string](o.ttl, o.capacity),
		now:        o.now,
		logger:     o.logger,
	}

	go e.values.Start()
	go e.basals.Start()
	go e.names.Start()
	return e
}

// Close stops cache eviction
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.values.Stop()
		e.basals.Stop()
		e.names.Stop()
	})
}

// Load replaces the profile store. See ProfileStore.Load.
func (e *Engine) Load(docs []models.RawDocument) error {
	return e.store.Load(docs)
}

// Update replaces the three overlay sequences. See OverlayTimeline.Update.
func (e *Engine) Update(
	switches []models.ProfileSwitchEvent,
	temps []models.TempOverrideEvent,
	additives []models.AdditiveOverrideEvent,
) error {
	if err := e.timeline.Update(switches, temps, additives); err != nil {
		return err
	}
	fp := e.timeline.Fingerprints()
	e.logger.Debug("overlays updated",
		slog.Int("switches", len(switches)),
		slog.Int("temps", len(temps)),
		slog.Int("additives", len(additives)),
		slog.Uint64("switchesFingerprint", fp.Switches),
		slog.Uint64("tempsFingerprint", fp.Temps),
		slog.Uint64("additivesFingerprint", fp.Additives))
	return nil
}

// UpdateFromTreatments splits Nightscout treatments into overlays and updates
func (e *Engine) UpdateFromTreatments(treatments []models.Treatment) error {
	o := models.SplitOverlays(treatments)
	return e.Update(o.Switches, o.Temps, o.Additives)
}

// HasData reports whether any profile document is loaded
func (e *Engine) HasData() bool {
	return e.store.HasData()
}

// Store returns the underlying profile store
func (e *Engine) Store() *ProfileStore { return e.store }

// Timeline returns the underlying overlay timeline
func (e *Engine) Timeline() *OverlayTimeline { return e.timeline }

// ResolveValue returns parameter at instant for the explicit profile, or the
// profile active at instant when explicit is "". Only numeric parameters
// resolve here; text fields such as units and timezone are read with Units
// and Timezone and come back as models.Missing from ResolveValue.
func (e *Engine) ResolveValue(parameter string, instant time.Time, explicit string) models.Value {
	bucket := MinuteBucket(instant)
	profiles, tl := e.store.Current(), e.timeline.Current()
	if !profiles.HasData() {
		return models.Missing
	}

	key := CacheKey{
		Minute:      bucket.UnixMilli(),
		Parameter:   parameter,
		Profile:     explicit,
		Fingerprint: combineFingerprints(profiles.Fingerprint(), tl.Fingerprints().Switches),
	}
	return e.values.GetOrCompute(key, func() models.Value {
		return e.resolver.ResolveValue(profiles.Resolve(bucket, explicit, tl), parameter, bucket)
	})
}

// GetEffectiveBasal returns the composed basal at instant with its derivation.
// The returned record is a copy; changing it does not affect later answers.
func (e *Engine) GetEffectiveBasal(instant time.Time, explicit string) BasalResult {
	bucket := MinuteBucket(instant)
	profiles, tl := e.store.Current(), e.timeline.Current()
	fp := tl.Fingerprints()

	key := CacheKey{
		Minute:      bucket.UnixMilli(),
		Parameter:   paramComposite,
		Profile:     explicit,
		Fingerprint: combineFingerprints(profiles.Fingerprint(), fp.Switches, fp.Temps, fp.Additives),
	}
	return e.basals.GetOrCompute(key, func() BasalResult {
		return e.compositor.EffectiveBasal(profiles.Resolve(bucket, explicit, tl), tl, bucket)
	}).Clone()
}

// ActiveProfileName returns the profile in effect at instant, "" without data
func (e *Engine) ActiveProfileName(instant time.Time) string {
	bucket := MinuteBucket(instant)
	profiles, tl := e.store.Current(), e.timeline.Current()

	key := CacheKey{
		Minute:      bucket.UnixMilli(),
		Parameter:   paramActiveName,
		Fingerprint: combineFingerprints(profiles.Fingerprint(), tl.Fingerprints().Switches),
	}
	return e.names.GetOrCompute(key, func() string {
		return profiles.ActiveProfileName(bucket, tl)
	})
}

// ListProfileNames returns the profile active now first, then the remaining
// store names in ascending order.
func (e *Engine) ListProfileNames() []string {
	profiles := e.store.Current()
	if !profiles.HasData() {
		return nil
	}
	current := e.ActiveProfileName(e.now())
	names := []string{current}
	for _, name := range profiles.Active().Names() {
		if name != current {
			names = append(names, name)
		}
	}
	return names
}

// Definition returns the profile definition selected for instant
func (e *Engine) Definition(instant time.Time, explicit string) models.ProfileDefinition {
	bucket := MinuteBucket(instant)
	return e.store.Current().Resolve(bucket, explicit, e.timeline.Current()).Definition
}

// Units returns the glucose units of the profile selected for instant
func (e *Engine) Units(instant time.Time, explicit string) string {
	return e.Definition(instant, explicit).Units()
}

// Timezone returns the declared timezone of the profile selected for instant
func (e *Engine) Timezone(instant time.Time, explicit string) string {
	return e.Definition(instant, explicit).Timezone()
}

// DIA returns the duration of insulin action in hours
func (e *Engine) DIA(instant time.Time, explicit string) models.Value {
	return e.ResolveValue(models.ParamDIA, instant, explicit)
}

// Sensitivity returns the insulin sensitivity factor
func (e *Engine) Sensitivity(instant time.Time, explicit string) models.Value {
	return e.ResolveValue(models.ParamSensitivity, instant, explicit)
}

// CarbRatio returns grams of carbohydrate covered by one unit
func (e *Engine) CarbRatio(instant time.Time, explicit string) models.Value {
	return e.ResolveValue(models.ParamCarbRatio, instant, explicit)
}

// CarbAbsorptionRate returns grams absorbed per hour
func (e *Engine) CarbAbsorptionRate(instant time.Time, explicit string) models.Value {
	return e.ResolveValue(models.ParamCarbAbsorptionRate, instant, explicit)
}

// LowTarget returns the low end of the target range
func (e *Engine) LowTarget(instant time.Time, explicit string) models.Value {
	return e.ResolveValue(models.ParamTargetLow, instant, explicit)
}

// HighTarget returns the high end of the target range
func (e *Engine) HighTarget(instant time.Time, explicit string) models.Value {
	return e.ResolveValue(models.ParamTargetHigh, instant, explicit)
}

// Basal returns the scheduled basal rate without overrides
func (e *Engine) Basal(instant time.Time, explicit string) models.Value {
	return e.ResolveValue(models.ParamBasal, instant, explicit)
}
