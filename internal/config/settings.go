// Package config loads application settings from a config file and the environment.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, with dots in keys
// replaced by underscores: "nightscout.url" becomes "NSPROFILE_NIGHTSCOUT_URL".
const EnvPrefix = "NSPROFILE"

// Settings contains all application settings
type Settings struct {
	Nightscout    NightscoutSettings   `mapstructure:"nightscout"`
	Refresh       RefreshSettings      `mapstructure:"refresh"`
	Treatments    TreatmentSettings    `mapstructure:"treatments"`
	Cache         CacheSettings        `mapstructure:"cache"`
	Timezone      TimezoneSettings     `mapstructure:"timezone"`
	Notifications NotificationSettings `mapstructure:"notifications"`
	Log           LogSettings          `mapstructure:"log"`
	Debug         bool                 `mapstructure:"debug"`
}

// NightscoutSettings holds the connection settings
type NightscoutSettings struct {
	URL       string `mapstructure:"url"`
	APISecret string `mapstructure:"apisecret"` // Plain API secret (will be hashed)
	APIToken  string `mapstructure:"apitoken"`  // Token-based auth
	UseToken  bool   `mapstructure:"usetoken"`  // Use token instead of secret
}

// RefreshSettings controls polling. Failed refreshes are retried with an
// exponential backoff starting at RetryInitial, capped at Interval.
type RefreshSettings struct {
	Interval     time.Duration `mapstructure:"interval"`
	RetryInitial time.Duration `mapstructure:"retryinitial"`
}

// TreatmentSettings controls how far back overlay treatments are fetched.
// Profile switches are always fetched without a time bound.
type TreatmentSettings struct {
	Hours int `mapstructure:"hours"`
	Count int `mapstructure:"count"`
}

// CacheSettings bounds the resolution cache by entry lifetime and count
type CacheSettings struct {
	TTL      time.Duration `mapstructure:"ttl"`
	Capacity uint64        `mapstructure:"capacity"`
}

// TimezoneSettings names the zone used for profiles that declare none.
// Empty means the process local zone.
type TimezoneSettings struct {
	Fallback string `mapstructure:"fallback"`
}

// NotificationSettings controls how often an identical change alert may repeat.
// Zero means never.
type NotificationSettings struct {
	Repeat time.Duration `mapstructure:"repeat"`
}

// LogSettings adds a JSON log file next to stdout when File is set
type LogSettings struct {
	File string `mapstructure:"file"`
}

// DefaultSettings returns settings with default values
func DefaultSettings() *Settings {
	return &Settings{
		Refresh: RefreshSettings{
			Interval:     60 * time.Second,
			RetryInitial: 5 * time.Second,
		},
		Treatments: TreatmentSettings{
			Hours: 48,
			Count: 1000,
		},
		Cache: CacheSettings{
			TTL:      10 * time.Minute,
			Capacity: 100_000,
		},
		Notifications: NotificationSettings{
			Repeat: 15 * time.Minute,
		},
	}
}

// Load reads settings from configFile, or from config.yaml in the working
// directory when configFile is empty, then applies environment overrides.
// A missing default config file is not an error.
func Load(configFile string) (*Settings, error) {
	cfg := DefaultSettings()

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}

// Validate checks value ranges
func (s *Settings) Validate() error {
	if s.Refresh.Interval < 10*time.Second {
		return fmt.Errorf("refresh.interval %s is below 10s", s.Refresh.Interval)
	}
	if s.Refresh.RetryInitial <= 0 {
		return fmt.Errorf("refresh.retryinitial must be positive, got %s", s.Refresh.RetryInitial)
	}
	if s.Treatments.Hours <= 0 {
		return fmt.Errorf("treatments.hours must be positive, got %d", s.Treatments.Hours)
	}
	if s.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %s", s.Cache.TTL)
	}
	if _, err := s.FallbackLocation(); err != nil {
		return err
	}
	return nil
}

// IsConfigured returns true if minimum required settings are set
func (s *Settings) IsConfigured() bool {
	return s.Nightscout.URL != ""
}

// FallbackLocation returns the zone for profiles without a timezone
func (s *Settings) FallbackLocation() (*time.Location, error) {
	if s.Timezone.Fallback == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Timezone.Fallback)
	if err != nil {
		return nil, fmt.Errorf("timezone.fallback: %w", err)
	}
	return loc, nil
}

// TreatmentWindow returns the lookback for temp and combo treatments
func (s *Settings) TreatmentWindow() time.Duration {
	return time.Duration(s.Treatments.Hours) * time.Hour
}
