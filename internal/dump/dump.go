// Package dump reads offline Nightscout exports of profiles and treatments.
package dump

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	json "github.com/goccy/go-json"
	"github.com/spf13/afero"

	"github.com/mrcode/nightscout-profiles/internal/models"
	"github.com/mrcode/nightscout-profiles/internal/nightscout"
)

// Reader loads export files from a filesystem
type Reader struct {
	fs afero.Fs
}

// NewReader returns a Reader on fs. A nil fs means the OS filesystem.
func NewReader(fs afero.Fs) *Reader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Reader{fs: fs}
}

// ReadProfiles reads a profile.json export. Both the API array form and a
// single document object are accepted.
func (r *Reader) ReadProfiles(path string) ([]models.RawDocument, error) {
	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading profiles: %w", err)
	}

	var docs []models.RawDocument
	if isObject(data) {
		var doc models.RawDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		docs = append(docs, doc)
		return docs, nil
	}
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return docs, nil
}

// ReadTreatments reads a treatments.json export
func (r *Reader) ReadTreatments(path string) ([]models.Treatment, error) {
	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading treatments: %w", err)
	}

	var treatments []models.Treatment
	if err := json.Unmarshal(data, &treatments); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return treatments, nil
}

func isObject(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// Source serves export files through the same interface as the Nightscout
// client. An empty TreatmentsPath yields no treatments.
type Source struct {
	Reader         *Reader
	ProfilesPath   string
	TreatmentsPath string
}

func (s *Source) GetProfiles(_ context.Context) ([]models.RawDocument, error) {
	return s.Reader.ReadProfiles(s.ProfilesPath)
}

// GetTreatments applies q the way the API does: newest first, at most
// q.Count results.
func (s *Source) GetTreatments(_ context.Context, q nightscout.TreatmentQuery) ([]models.Treatment, error) {
	if s.TreatmentsPath == "" {
		return nil, nil
	}
	all, err := s.Reader.ReadTreatments(s.TreatmentsPath)
	if err != nil {
		return nil, err
	}

	var out []models.Treatment
	for i := range all {
		t := &all[i]
		if q.EventType != "" && t.EventType != q.EventType {
			continue
		}
		if !q.From.IsZero() && t.Time().Before(q.From) {
			continue
		}
		out = append(out, *t)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Time().After(out[j].Time()) })
	if q.Count > 0 && len(out) > q.Count {
		out = out[:q.Count]
	}
	return out, nil
}
