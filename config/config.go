package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// secretKeyEnv overrides the secret_key config field when set. Keeping the
// key out of the config file is the recommended setup.
const secretKeyEnv = "NOSTATUS_SECRET_KEY"

// Config represents the application configuration
type Config struct {
	DefaultRelays []string `yaml:"default_relays"` // Bootstrap relays used before (or instead of) the account's own list
	Database      string   `yaml:"database"`       // Session database path (default: nostatus.db)
	SecretKey     string   `yaml:"secret_key"`     // Account secret key, hex or nsec; NOSTATUS_SECRET_KEY takes precedence
	ProbeInterval int      `yaml:"probe_interval"` // Signer probe retry interval in milliseconds (default: 500)
	ProbeAttempts int      `yaml:"probe_attempts"` // Signer probe attempts before giving up (default: 10)
}

// Load reads and parses the configuration file, then overlays environment
// variables from the process and an optional .env file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Config{
		Database:      "nostatus.db",
		ProbeInterval: 500,
		ProbeAttempts: 10,
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Missing .env is fine, the process environment still applies.
	_ = godotenv.Load()
	if key := os.Getenv(secretKeyEnv); key != "" {
		cfg.SecretKey = key
	}

	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("no secret key: set %s or the secret_key config field", secretKeyEnv)
	}

	log.Printf("[CONFIG] Loaded configuration from %s", path)
	log.Printf("[CONFIG] - Default relays: %d", len(cfg.DefaultRelays))
	log.Printf("[CONFIG] - Database: %s", cfg.Database)
	log.Printf("[CONFIG] - Probe interval: %d ms", cfg.ProbeInterval)
	log.Printf("[CONFIG] - Probe attempts: %d", cfg.ProbeAttempts)

	return &cfg, nil
}

// GetProbeInterval returns the signer probe retry interval as a time.Duration
func (c *Config) GetProbeInterval() time.Duration {
	return time.Duration(c.ProbeInterval) * time.Millisecond
}
