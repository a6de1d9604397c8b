// Package config loads runtime settings from a YAML file, a .env file and
// the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/goliatone/go-clinicform/components/timezones"
)

// Config holds every setting the binaries read.
type Config struct {
	HTTPAddr         string        `mapstructure:"HTTP_ADDR"`
	Env              string        `mapstructure:"ENV"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	RedisAddr        string        `mapstructure:"REDIS_ADDR"`
	RedisPassword    string        `mapstructure:"REDIS_PASSWORD"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DirectoryBaseURL string        `mapstructure:"DIRECTORY_BASE_URL"`
	ClinicID         string        `mapstructure:"CLINIC_ID"`
	ClinicTimeZone   string        `mapstructure:"CLINIC_TIMEZONE"`
	ViewerTimeZone   string        `mapstructure:"VIEWER_TIMEZONE"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

var defaults = map[string]any{
	"HTTP_ADDR":          ":8080",
	"ENV":                "development",
	"LOG_LEVEL":          "",
	"REDIS_ADDR":         "",
	"REDIS_PASSWORD":     "",
	"DATABASE_URL":       "",
	"DIRECTORY_BASE_URL": "",
	"CLINIC_ID":          "",
	"CLINIC_TIMEZONE":    "UTC",
	"VIEWER_TIMEZONE":    "",
	"REQUEST_TIMEOUT":    "15s",
}

// Option adjusts how Load searches for configuration.
type Option func(*loader)

type loader struct {
	configName  string
	configPaths []string
	envFiles    []string
}

// WithConfigPaths sets the directories searched for clinicform.yaml.
func WithConfigPaths(paths ...string) Option {
	return func(l *loader) { l.configPaths = paths }
}

// WithConfigName changes the config file base name.
func WithConfigName(name string) Option {
	return func(l *loader) { l.configName = name }
}

// WithEnvFiles sets the dotenv files seeded into the environment. Missing
// files are ignored; variables already set are never overwritten.
func WithEnvFiles(files ...string) Option {
	return func(l *loader) { l.envFiles = files }
}

// Load resolves the configuration and validates time zone names.
func Load(opts ...Option) (Config, error) {
	l := &loader{
		configName:  "clinicform",
		configPaths: []string{".", "./config"},
		envFiles:    []string{".env"},
	}
	for _, opt := range opts {
		opt(l)
	}

	for _, file := range l.envFiles {
		// godotenv.Load leaves variables that are already set alone.
		_ = godotenv.Load(file)
	}

	v := viper.New()
	v.SetConfigName(l.configName)
	v.SetConfigType("yaml")
	for _, p := range l.configPaths {
		v.AddConfigPath(p)
	}
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	var problems []string
	if _, err := timezones.Lookup(c.ClinicTimeZone); err != nil {
		problems = append(problems, "CLINIC_TIMEZONE: "+err.Error())
	}
	if c.ViewerTimeZone != "" {
		if _, err := timezones.Lookup(c.ViewerTimeZone); err != nil {
			problems = append(problems, "VIEWER_TIMEZONE: "+err.Error())
		}
	}
	if c.RequestTimeout <= 0 {
		problems = append(problems, "REQUEST_TIMEOUT: must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ClinicLocation returns the clinic zone, UTC when it cannot be loaded.
func (c Config) ClinicLocation() *time.Location {
	loc, err := timezones.Lookup(c.ClinicTimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ViewerLocation returns the configured viewer zone, falling back to the
// clinic zone.
func (c Config) ViewerLocation() *time.Location {
	if loc, err := timezones.Lookup(c.ViewerTimeZone); err == nil {
		return loc
	}
	return c.ClinicLocation()
}

// IsProduction reports whether ENV names production.
func (c Config) IsProduction() bool {
	switch strings.ToLower(c.Env) {
	case "production", "prod":
		return true
	}
	return false
}
