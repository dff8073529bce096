package profile

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-multierror"

	"github.com/mrcode/nightscout-profiles/internal/models"
)

// ResolvedProfile is the definition selected for an instant
type ResolvedProfile struct {
	Name       string
	Definition models.ProfileDefinition
	// Location is nil when the profile declares no usable timezone
	Location *time.Location
}

// Profiles is an immutable snapshot of loaded documents. The first document
// is the active record. A nil *Profiles holds no data.
type Profiles struct {
	docs        []models.ProfileDocument
	locations   map[string]*time.Location
	fingerprint uint64
}

func newProfiles(docs []models.ProfileDocument, logger *slog.Logger) (*Profiles, error) {
	encoded, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("encoding profile store: %w", err)
	}

	p := &Profiles{
		docs:        docs,
		locations:   make(map[string]*time.Location),
		fingerprint: xxhash.Sum64(encoded),
	}

	for name, def := range docs[0].Store {
		tz := def.Timezone()
		if tz == "" {
			continue
		}
		loc, err := time.LoadLocation(tz)
		if err != nil {
			logger.Warn("profile timezone not recognised, using fallback",
				slog.String("profile", name), slog.String("timezone", tz), slog.Any("error", err))
			continue
		}
		p.locations[name] = loc
	}
	return p, nil
}

// HasData reports whether at least one document is loaded
func (p *Profiles) HasData() bool {
	return p != nil && len(p.docs) > 0
}

// Active returns the active document, or nil
func (p *Profiles) Active() *models.ProfileDocument {
	if !p.HasData() {
		return nil
	}
	return &p.docs[0]
}

// Documents returns the normalized documents
func (p *Profiles) Documents() []models.ProfileDocument {
	if p == nil {
		return nil
	}
	return p.docs
}

// Fingerprint is the content hash of the normalized store
func (p *Profiles) Fingerprint() uint64 {
	if p == nil {
		return 0
	}
	return p.fingerprint
}

// ActiveProfileName returns the profile named by the latest switch before
// instant, or the document default.
func (p *Profiles) ActiveProfileName(instant time.Time, tl *Timeline) string {
	doc := p.Active()
	if doc == nil {
		return ""
	}
	if sw, ok := tl.ActiveProfileSwitch(instant); ok {
		return sw.Profile
	}
	return doc.DefaultProfileName
}

// Resolve selects the profile for instant. An explicit name wins. Unknown
// names resolve to an empty definition.
func (p *Profiles) Resolve(instant time.Time, explicit string, tl *Timeline) ResolvedProfile {
	name := explicit
	if name == "" {
		name = p.ActiveProfileName(instant, tl)
	}
	doc := p.Active()
	if doc == nil {
		return ResolvedProfile{Name: name}
	}
	def, ok := doc.Store[name]
	if !ok {
		return ResolvedProfile{Name: name}
	}
	return ResolvedProfile{Name: name, Definition: def, Location: p.locations[name]}
}

// ProfileStore holds the current Profiles snapshot. Load swaps it atomically.
type ProfileStore struct {
	current  atomic.Pointer[Profiles]
	timeline *OverlayTimeline
	logger   *slog.Logger
}

// NewProfileStore creates an empty store that resolves switches from timeline
func NewProfileStore(timeline *OverlayTimeline, logger *slog.Logger) *ProfileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileStore{timeline: timeline, logger: logger}
}

// Load migrates and normalizes the documents and replaces the held store.
// Documents that cannot be normalized are reported in the returned error;
// the rest are still loaded. An empty input leaves the store untouched.
func (s *ProfileStore) Load(raw []models.RawDocument) error {
	if len(raw) == 0 {
		return nil
	}

	var errs *multierror.Error
	docs := make([]models.ProfileDocument, 0, len(raw))
	for i, r := range raw {
		migrated, converted := MigrateDocument(r)
		if converted {
			s.logger.Info("profile not updated yet, converted to profile store",
				slog.Any("id", r["_id"]), slog.String("defaultProfile", models.DefaultProfileName))
		}

		doc, err := decodeDocument(migrated, s.logger)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("document %d: %w", i, err))
		}
		if doc.Store == nil {
			continue
		}
		docs = append(docs, doc)
	}

	if len(docs) == 0 {
		return errs.ErrorOrNil()
	}

	snapshot, err := newProfiles(docs, s.logger)
	if err != nil {
		return multierror.Append(errs, err).ErrorOrNil()
	}
	s.current.Store(snapshot)

	s.logger.Debug("profile store loaded",
		slog.Int("documents", len(docs)),
		slog.String("defaultProfile", docs[0].DefaultProfileName),
		slog.Int("profiles", len(docs[0].Store)))
	return errs.ErrorOrNil()
}

// Current returns the snapshot in effect, nil before the first Load
func (s *ProfileStore) Current() *Profiles {
	return s.current.Load()
}

// HasData reports whether at least one document is loaded
func (s *ProfileStore) HasData() bool {
	return s.Current().HasData()
}

// ActiveProfileName returns the profile in effect at instant
func (s *ProfileStore) ActiveProfileName(instant time.Time) string {
	return s.Current().ActiveProfileName(instant, s.timeline.Current())
}

// ProfileDefinition returns the definition for instant, or an empty one
func (s *ProfileStore) ProfileDefinition(instant time.Time, explicit string) models.ProfileDefinition {
	return s.Current().Resolve(instant, explicit, s.timeline.Current()).Definition
}
