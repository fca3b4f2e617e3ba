// Package config loads service configuration from an optional YAML file and
// SONGS_-prefixed environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "SONGS_"

// Store backends.
const (
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

// Config is the full configuration of the catalogue binaries.
type Config struct {
	LogLevel      string `yaml:"log_level" env:"LOG_LEVEL"`
	HTTPPort      string `yaml:"http_port" env:"HTTP_PORT"`
	PublicBaseURL string `yaml:"public_base_url" env:"PUBLIC_BASE_URL"`
	ProjectID     string `yaml:"project_id" env:"PROJECT_ID"`

	Store  StoreConfig  `yaml:"store" envPrefix:"STORE_"`
	Events EventsConfig `yaml:"events" envPrefix:"EVENTS_"`
	Seed   SeedConfig   `yaml:"seed" envPrefix:"SEED_"`
}

// StoreConfig selects and tunes the song store.
type StoreConfig struct {
	Backend    string        `yaml:"backend" env:"BACKEND"`
	Collection string        `yaml:"collection" env:"COLLECTION"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// EventsConfig enables rating events when RatingsTopic is set.
type EventsConfig struct {
	RatingsTopic string        `yaml:"ratings_topic" env:"RATINGS_TOPIC"`
	BatchDelay   time.Duration `yaml:"batch_delay" env:"BATCH_DELAY"`
}

// SeedConfig drives the importer.
type SeedConfig struct {
	// Source is a local path or a gs://bucket/object URL of newline
	// delimited JSON songs.
	Source    string `yaml:"source" env:"SOURCE"`
	Drop      bool   `yaml:"drop" env:"DROP"`
	BatchSize int    `yaml:"batch_size" env:"BATCH_SIZE"`
}

// Defaults returns a configuration with every optional field populated.
func Defaults() *Config {
	return &Config{
		LogLevel: "info",
		HTTPPort: ":8080",
		Store: StoreConfig{
			Backend:    BackendFirestore,
			Collection: "songs",
			Timeout:    10 * time.Second,
		},
		Events: EventsConfig{
			BatchDelay: 50 * time.Millisecond,
		},
		Seed: SeedConfig{
			Source:    "songs.json",
			BatchSize: 100,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is not empty), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendFirestore:
		if c.ProjectID == "" {
			return errors.New("project_id is required for the firestore backend")
		}
		if c.Store.Collection == "" {
			return errors.New("store.collection cannot be empty")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Events.RatingsTopic != "" && c.ProjectID == "" {
		return errors.New("project_id is required when events.ratings_topic is set")
	}
	if c.Store.Timeout < 0 {
		return errors.New("store.timeout cannot be negative")
	}
	if c.Seed.BatchSize <= 0 {
		return errors.New("seed.batch_size must be greater than 0")
	}
	return nil
}
