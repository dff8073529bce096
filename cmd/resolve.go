package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/mrcode/nightscout-profiles/internal/app"
	"github.com/mrcode/nightscout-profiles/internal/config"
	"github.com/mrcode/nightscout-profiles/internal/models"
	"github.com/mrcode/nightscout-profiles/internal/profile"
)

var (
	resolveSources sourceFlags
	resolveAt      string
	resolveProfile string
	resolveParam   string

	profilesSources sourceFlags
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a parameter or the effective basal at an instant",
	Long: `Resolve a profile parameter (dia, sens, carbratio, carbs_hr, target_low,
target_high, basal) at an instant. Without --param the effective basal composition is
printed. Output is JSON.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		at, err := parseInstant(resolveAt)
		if err != nil {
			return err
		}
		return resolve(cmd.Context(), cmd.OutOrStdout(), settings, resolveSources, at, resolveProfile, resolveParam)
	},
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List profile names, active profile first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return listProfiles(cmd.Context(), cmd.OutOrStdout(), settings, profilesSources)
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveAt, "at", "", "Instant to resolve at, RFC3339 (default now)")
	resolveCmd.Flags().StringVar(&resolveProfile, "profile", "", "Profile name, overriding profile switches")
	resolveCmd.Flags().StringVar(&resolveParam, "param", "", "Parameter to resolve (default: effective basal)")
	resolveCmd.Flags().StringVar(&resolveSources.profilesFile, "profiles-file", "", "Read profiles from an export file instead of the API")
	resolveCmd.Flags().StringVar(&resolveSources.treatmentsFile, "treatments-file", "", "Read treatments from an export file (requires --profiles-file)")

	profilesCmd.Flags().StringVar(&profilesSources.profilesFile, "profiles-file", "", "Read profiles from an export file instead of the API")
	profilesCmd.Flags().StringVar(&profilesSources.treatmentsFile, "treatments-file", "", "Read treatments from an export file (requires --profiles-file)")
}

func parseInstant(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at: %w", err)
	}
	return t, nil
}

// loadedEngine fetches once and returns an engine holding that data
func loadedEngine(ctx context.Context, s *config.Settings, flags sourceFlags, at time.Time) (*profile.Engine, error) {
	source, err := newSource(s, flags)
	if err != nil {
		return nil, err
	}
	engine, err := newEngine(s)
	if err != nil {
		return nil, err
	}

	svc := app.NewService(s, source, engine, nil, slog.Default())
	if err := svc.RefreshAt(ctx, at); err != nil {
		engine.Close()
		return nil, err
	}
	if !engine.HasData() {
		engine.Close()
		return nil, errors.New("no profile data")
	}
	return engine, nil
}

type valueOutput struct {
	Time      time.Time    `json:"time"`
	Profile   string       `json:"profile"`
	Parameter string       `json:"parameter"`
	Value     models.Value `json:"value"`
}

type basalOutput struct {
	Time    time.Time           `json:"time"`
	Profile string              `json:"profile"`
	Basal   profile.BasalResult `json:"basal"`
}

func resolve(ctx context.Context, w io.Writer, s *config.Settings, flags sourceFlags, at time.Time, explicit, param string) error {
	engine, err := loadedEngine(ctx, s, flags, at)
	if err != nil {
		return err
	}
	defer engine.Close()

	name := explicit
	if name == "" {
		name = engine.ActiveProfileName(at)
	}

	var out any
	if param != "" {
		out = valueOutput{
			Time:      at,
			Profile:   name,
			Parameter: param,
			Value:     engine.ResolveValue(param, at, explicit),
		}
	} else {
		out = basalOutput{
			Time:    at,
			Profile: name,
			Basal:   engine.GetEffectiveBasal(at, explicit),
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func listProfiles(ctx context.Context, w io.Writer, s *config.Settings, flags sourceFlags) error {
	engine, err := loadedEngine(ctx, s, flags, time.Now())
	if err != nil {
		return err
	}
	defer engine.Close()

	for _, name := range engine.ListProfileNames() {
		if _, err := fmt.Fprintln(w, name); err != nil {
			return err
		}
	}
	return nil
}
