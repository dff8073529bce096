package cmd

import (
	"errors"
	"log/slog"

	"github.com/mrcode/nightscout-profiles/internal/app"
	"github.com/mrcode/nightscout-profiles/internal/config"
	"github.com/mrcode/nightscout-profiles/internal/dump"
	"github.com/mrcode/nightscout-profiles/internal/nightscout"
	"github.com/mrcode/nightscout-profiles/internal/profile"
)

// sourceFlags select offline export files instead of the Nightscout API
type sourceFlags struct {
	profilesFile   string
	treatmentsFile string
}

func newEngine(s *config.Settings) (*profile.Engine, error) {
	loc, err := s.FallbackLocation()
	if err != nil {
		return nil, err
	}
	return profile.New(
		profile.WithCacheTTL(s.Cache.TTL),
		profile.WithCacheCapacity(s.Cache.Capacity),
		profile.WithFallbackLocation(loc),
		profile.WithLogger(slog.Default()),
	), nil
}

func newSource(s *config.Settings, flags sourceFlags) (app.Source, error) {
	if flags.profilesFile != "" {
		return &dump.Source{
			Reader:         dump.NewReader(nil),
			ProfilesPath:   flags.profilesFile,
			TreatmentsPath: flags.treatmentsFile,
		}, nil
	}
	if flags.treatmentsFile != "" {
		return nil, errors.New("--treatments-file requires --profiles-file")
	}
	if !s.IsConfigured() {
		return nil, errors.New("nightscout.url is not set (NSPROFILE_NIGHTSCOUT_URL)")
	}
	return nightscout.NewClient(
		s.Nightscout.URL,
		s.Nightscout.APISecret,
		s.Nightscout.APIToken,
		s.Nightscout.UseToken,
	), nil
}
