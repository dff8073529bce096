package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcode/nightscout-profiles/internal/config"
)

const testProfiles = `[{
	"defaultProfile": "Default",
	"store": {
		"Default": {
			"timezone": "UTC",
			"basal": [{"time":"00:00","value":0.5},{"time":"06:00","value":0.8}],
			"sens": [{"time":"00:00","value":45}]
		},
		"Night": {
			"timezone": "UTC",
			"basal": [{"time":"00:00","value":0.2}]
		}
	}
}]`

const testTreatments = `[
	{"eventType":"Temp Basal","created_at":"2024-03-10T09:50:00Z","duration":30,"percent":50},
	{"eventType":"Profile Switch","created_at":"2024-03-09T22:00:00Z","profile":"Night"},
	{"eventType":"Profile Switch","created_at":"2024-03-10T07:00:00Z","profile":"Default"}
]`

func writeFixtures(t *testing.T) sourceFlags {
	t.Helper()
	dir := t.TempDir()
	flags := sourceFlags{
		profilesFile:   filepath.Join(dir, "profile.json"),
		treatmentsFile: filepath.Join(dir, "treatments.json"),
	}
	require.NoError(t, os.WriteFile(flags.profilesFile, []byte(testProfiles), 0o600))
	require.NoError(t, os.WriteFile(flags.treatmentsFile, []byte(testTreatments), 0o600))
	return flags
}

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	s := config.DefaultSettings()
	s.Timezone.Fallback = "UTC"
	s.Treatments.Hours = 24 * 365 * 10
	return s
}

func TestResolve_EffectiveBasal(t *testing.T) {
	flags := writeFixtures(t)
	at := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, resolve(context.Background(), &buf, testSettings(t), flags, at, "", ""))

	var out struct {
		Profile string `json:"profile"`
		Basal   struct {
			Base  *float64 `json:"base"`
			Total *float64 `json:"total"`
		} `json:"basal"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "Default", out.Profile)
	require.NotNil(t, out.Basal.Total)
	assert.InDelta(t, 0.8, *out.Basal.Base, 1e-9)
	assert.InDelta(t, 1.2, *out.Basal.Total, 1e-9)
}

func TestResolve_Parameter(t *testing.T) {
	flags := writeFixtures(t)

	tests := []struct {
		name     string
		at       time.Time
		profile  string
		param    string
		wantName string
		want     any
	}{
		{"switched profile", time.Date(2024, 3, 10, 3, 0, 0, 0, time.UTC), "", "basal", "Night", 0.2},
		{"explicit profile", time.Date(2024, 3, 10, 3, 0, 0, 0, time.UTC), "Default", "basal", "Default", 0.5},
		{"missing parameter", time.Date(2024, 3, 10, 3, 0, 0, 0, time.UTC), "", "sens", "Night", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, resolve(context.Background(), &buf, testSettings(t), flags, tt.at, tt.profile, tt.param))

			var out map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
			assert.Equal(t, tt.wantName, out["profile"])
			assert.Equal(t, tt.param, out["parameter"])
			assert.Equal(t, tt.want, out["value"])
		})
	}
}

func TestListProfiles(t *testing.T) {
	flags := writeFixtures(t)

	var buf bytes.Buffer
	require.NoError(t, listProfiles(context.Background(), &buf, testSettings(t), flags))
	assert.Equal(t, "Default\nNight\n", buf.String())
}

func TestNewSource_Errors(t *testing.T) {
	_, err := newSource(config.DefaultSettings(), sourceFlags{})
	require.Error(t, err, "no url configured")

	_, err = newSource(config.DefaultSettings(), sourceFlags{treatmentsFile: "t.json"})
	require.Error(t, err)

	s := config.DefaultSettings()
	s.Nightscout.URL = "https://ns.example.com"
	src, err := newSource(s, sourceFlags{})
	require.NoError(t, err)
	assert.NotNil(t, src)
}

func TestResolve_EmptyProfiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o600))

	err := resolve(context.Background(), &bytes.Buffer{}, testSettings(t), sourceFlags{profilesFile: path}, time.Now(), "", "")
	require.Error(t, err)
}

func TestParseInstant(t *testing.T) {
	got, err := parseInstant("2024-03-10T10:00:00+01:00")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)))

	_, err = parseInstant("yesterday")
	require.Error(t, err)
}
