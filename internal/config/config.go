// Package config loads the YAML service configuration, applies defaults, and
// validates it before anything is wired up.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openroads/corridor/internal/lib/direction"
	"github.com/openroads/corridor/internal/services"
)

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig      `yaml:"server"`
	Database  DatabaseConfig    `yaml:"database"`
	Providers ProvidersConfig   `yaml:"providers"`
	Snapping  SnappingConfig    `yaml:"snapping"`
	Resnap    ResnapConfig      `yaml:"resnap"`
	Parity    map[string]string `yaml:"parity_overrides" validate:"dive,oneof=ns ew"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Address string `yaml:"address" default:":8080" validate:"required"`
}

// DatabaseConfig holds the sqlite file locations.
type DatabaseConfig struct {
	CorridorPath string `yaml:"corridor_path" default:"corridors.db" validate:"required"`
	CachePath    string `yaml:"cache_path" default:"geometry-cache.db" validate:"required"`
}

// ProvidersConfig lists the external geometry providers in priority order:
// Overpass first, then ArcGIS, with OSRM as the routing tier.
type ProvidersConfig struct {
	Overpass ProviderConfig `yaml:"overpass"`
	ArcGIS   ArcGISConfig   `yaml:"arcgis"`
	OSRM     ProviderConfig `yaml:"osrm"`
}

// ProviderConfig is shared by providers that work against a public default
// endpoint. Disabled (not Enabled) so the zero value keeps the provider on.
type ProviderConfig struct {
	Disabled bool          `yaml:"disabled"`
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout" default:"30s" validate:"gt=0"`
}

// ArcGISConfig requires an explicit feature-service URL; there is no public
// default, so the provider stays off until one is configured.
type ArcGISConfig struct {
	Disabled   bool          `yaml:"disabled"`
	BaseURL    string        `yaml:"base_url"`
	RouteField string        `yaml:"route_field" default:"ROUTE_NAME"`
	Timeout    time.Duration `yaml:"timeout" default:"30s" validate:"gt=0"`
}

// Enabled reports whether the ArcGIS provider should be wired.
func (c ArcGISConfig) Enabled() bool { return !c.Disabled && c.BaseURL != "" }

// SnappingConfig holds the tolerances of the snapping pipeline, all meters.
type SnappingConfig struct {
	MatchTolerance  float64 `yaml:"match_tolerance" default:"2000" validate:"gt=0"`
	RetryTolerance  float64 `yaml:"retry_tolerance" default:"5000" validate:"gt=0"`
	StitchThreshold float64 `yaml:"stitch_threshold" default:"500" validate:"gt=0"`
	SimplifyEpsilon float64 `yaml:"simplify_epsilon" default:"10" validate:"gte=0"`
	OffsetMeters    float64 `yaml:"offset_meters" default:"11" validate:"gt=0"`
	BBoxPadding     float64 `yaml:"bbox_padding" default:"1500" validate:"gte=0"`
}

// ResnapConfig paces the batch re-snap job.
type ResnapConfig struct {
	Delay   time.Duration `yaml:"delay" default:"750ms" validate:"gte=0"`
	Backoff time.Duration `yaml:"backoff" default:"5s" validate:"gte=0"`
}

// Default returns the configuration used when no file is supplied.
func Default() (Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to apply config defaults: %w", err)
	}
	return cfg, validate(cfg)
}

// Load reads, defaults, and validates the configuration at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := defaults.Set(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to apply config defaults: %w", err)
	}
	return cfg, validate(cfg)
}

func validate(cfg Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Snapping.RetryTolerance < cfg.Snapping.MatchTolerance {
		return fmt.Errorf("invalid config: retry_tolerance must be >= match_tolerance")
	}
	return nil
}

// SnapConfig converts the YAML tolerances into the resolver's form.
func (c Config) SnapConfig() services.SnapConfig {
	return services.SnapConfig{
		MatchTolerance:  c.Snapping.MatchTolerance,
		RetryTolerance:  c.Snapping.RetryTolerance,
		StitchThreshold: c.Snapping.StitchThreshold,
		SimplifyEpsilon: c.Snapping.SimplifyEpsilon,
		OffsetMeters:    c.Snapping.OffsetMeters,
		BBoxPadding:     c.Snapping.BBoxPadding,
	}
}

// ParityOverrides converts the YAML axis names into direction axes, keyed by
// uppercased route name.
func (c Config) ParityOverrides() map[string]direction.Axis {
	if len(c.Parity) == 0 {
		return nil
	}
	overrides := make(map[string]direction.Axis, len(c.Parity))
	for route, axis := range c.Parity {
		key := strings.ToUpper(strings.TrimSpace(route))
		switch strings.ToLower(axis) {
		case "ns":
			overrides[key] = direction.AxisNS
		case "ew":
			overrides[key] = direction.AxisEW
		}
	}
	return overrides
}
