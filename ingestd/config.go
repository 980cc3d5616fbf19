package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the ingest daemon configuration
type Config struct {
	// Self is the local account under both addressing schemes
	Self SelfConfig `yaml:"self"`

	// NATS configuration
	NATS NATSConfig `yaml:"nats"`

	// Storage paths
	Storage StorageConfig `yaml:"storage"`
}

// SelfConfig identifies the local account
type SelfConfig struct {
	Phone string `yaml:"phone"`
	LID   string `yaml:"lid"`
}

// NATSConfig holds NATS connection settings
type NATSConfig struct {
	URL             string `yaml:"url"`
	CredentialsFile string `yaml:"credentials_file"`
	ReconnectWait   int    `yaml:"reconnect_wait_ms"`
	MaxReconnects   int    `yaml:"max_reconnects"`
	InSubject       string `yaml:"in_subject"`
	AckSubject      string `yaml:"ack_subject"`
}

// StorageConfig holds local database paths
type StorageConfig struct {
	MappingDB string `yaml:"mapping_db"`
	SessionDB string `yaml:"session_db"`
}

// LoadConfig loads configuration from a YAML file, falling back to
// defaults when the file does not exist.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:           "nats://nats.internal.lattica.net:4222",
			ReconnectWait: 2000,
			MaxReconnects: -1, // Unlimited
			InSubject:     "lattica.in.>",
			AckSubject:    "lattica.ack",
		},
		Storage: StorageConfig{
			MappingDB: "/var/lib/lattica/mappings.db",
			SessionDB: "/var/lib/lattica/sessions.db",
		},
	}
}

// Validate checks required fields
func (c *Config) Validate() error {
	if c.Self.Phone == "" || c.Self.LID == "" {
		return fmt.Errorf("self.phone and self.lid are required")
	}
	return nil
}
