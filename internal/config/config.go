// Package config resolves the sorter's settings from defaults, an optional
// YAML file, environment variables and command-line flags.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lehigh-university-libraries/laundry-sorter/internal/classifier"
)

const (
	ProfileProduction = "production"
	ProfileLocal      = "local"
)

// Profile is a named set of service URLs and timeouts.
type Profile struct {
	Name           string
	ClothingURL    string
	FabricURL      string
	ColorURL       string
	RequestTimeout time.Duration
	HealthTimeout  time.Duration
}

var profiles = map[string]Profile{
	ProfileProduction: {
		Name:           ProfileProduction,
		ClothingURL:    "https://cloth-type-api-1.onrender.com",
		FabricURL:      "https://fabric-type-api.onrender.com",
		ColorURL:       "https://color-type-api.onrender.com",
		RequestTimeout: classifier.DefaultRequestTimeout,
		HealthTimeout:  classifier.DefaultHealthTimeout,
	},
	ProfileLocal: {
		Name:          ProfileLocal,
		ClothingURL:   "http://localhost:8001",
		FabricURL:     "http://localhost:8003",
		ColorURL:      "http://localhost:8002",
		HealthTimeout: classifier.DefaultHealthTimeout,
	},
}

// LookupProfile returns the named profile.
func LookupProfile(name string) (Profile, bool) {
	p, ok := profiles[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// ProfileNames lists the known profiles.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Config struct {
	Profile        string        `mapstructure:"profile"`
	Port           string        `mapstructure:"port"`
	ClothingURL    string        `mapstructure:"cloth_api_url"`
	FabricURL      string        `mapstructure:"fabric_api_url"`
	ColorURL       string        `mapstructure:"color_api_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	HealthTimeout  time.Duration `mapstructure:"health_timeout"`
	BatchTTL       time.Duration `mapstructure:"batch_ttl"`
	CareGuide      string        `mapstructure:"care_guide"`
	MaxFiles       int           `mapstructure:"max_files"`
}

// Gateway returns the classifier settings.
func (c *Config) Gateway() classifier.Config {
	return classifier.Config{
		ClothingURL:    c.ClothingURL,
		FabricURL:      c.FabricURL,
		ColorURL:       c.ColorURL,
		RequestTimeout: c.RequestTimeout,
		HealthTimeout:  c.HealthTimeout,
	}
}

// envBindings maps config keys to environment variables.
var envBindings = map[string]string{
	"profile":         "PROFILE",
	"port":            "PORT",
	"cloth_api_url":   "CLOTH_API_URL",
	"fabric_api_url":  "FABRIC_API_URL",
	"color_api_url":   "COLOR_API_URL",
	"request_timeout": "REQUEST_TIMEOUT",
	"health_timeout":  "HEALTH_TIMEOUT",
	"batch_ttl":       "BATCH_TTL",
	"care_guide":      "CARE_GUIDE",
	"max_files":       "MAX_FILES",
}

// profileKeys take their default from the selected profile rather than a
// fixed value.
var profileKeys = []string{"cloth_api_url", "fabric_api_url", "color_api_url", "request_timeout", "health_timeout"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("profile", ProfileProduction)
	v.SetDefault("port", "8888")
	v.SetDefault("batch_ttl", time.Hour)
	v.SetDefault("care_guide", "")
	v.SetDefault("max_files", 20)
}

// Load resolves the configuration. configFile may be empty. Flags that were
// explicitly set on the command line win over every other source.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if _, known := envBindings[flagKey(f.Name)]; !known || !f.Changed {
				return
			}
			if err := v.BindPFlag(flagKey(f.Name), f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	profile, ok := LookupProfile(v.GetString("profile"))
	if !ok {
		return nil, fmt.Errorf("unknown profile %q (want one of %s)", v.GetString("profile"), strings.Join(ProfileNames(), ", "))
	}
	v.Set("profile", profile.Name)
	for _, key := range profileKeys {
		if !v.IsSet(key) {
			v.Set(key, profileDefault(profile, key))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the resolved values.
func (c *Config) Validate() error {
	var problems []string
	for name, u := range map[string]string{"cloth_api_url": c.ClothingURL, "fabric_api_url": c.FabricURL, "color_api_url": c.ColorURL} {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			problems = append(problems, fmt.Sprintf("%s must be an http(s) URL, got %q", name, u))
		}
	}
	if c.RequestTimeout < 0 {
		problems = append(problems, "request_timeout must not be negative")
	}
	if c.HealthTimeout <= 0 {
		problems = append(problems, "health_timeout must be positive")
	}
	if c.MaxFiles <= 0 {
		problems = append(problems, "max_files must be positive")
	}
	if c.CareGuide != "" {
		if _, err := os.Stat(c.CareGuide); err != nil {
			problems = append(problems, fmt.Sprintf("care_guide: %v", err))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func profileDefault(p Profile, key string) any {
	switch key {
	case "cloth_api_url":
		return p.ClothingURL
	case "fabric_api_url":
		return p.FabricURL
	case "color_api_url":
		return p.ColorURL
	case "request_timeout":
		return p.RequestTimeout
	case "health_timeout":
		return p.HealthTimeout
	}
	return nil
}

// flagKey maps a flag name such as "cloth-api-url" to its config key.
func flagKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}
