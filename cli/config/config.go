// Package config provides configuration management for the kestrel CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the kestrel CLI configuration
type Config struct {
	// Version of the config file format
	Version string `yaml:"version"`

	// Project configuration
	Project ProjectConfig `yaml:"project"`

	// Database configuration
	Database DatabaseConfig `yaml:"database"`

	// Serializer configuration
	Serializer SerializerConfig `yaml:"serializer"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging"`

	// Publish configuration for committed events
	Publish PublishConfig `yaml:"publish"`

	// Tracing configuration
	Tracing TracingConfig `yaml:"tracing"`
}

// ProjectConfig contains project-level settings
type ProjectConfig struct {
	// Name of the project, used as the metrics and tracing service name
	Name string `yaml:"name"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	// Driver is the storage backend (postgres, memory)
	Driver string `yaml:"driver"`

	// SQLDriver selects the database/sql driver for postgres (pgx, postgres)
	SQLDriver string `yaml:"sql_driver,omitempty"`

	// URL is the database connection string; ${VAR} references are expanded
	URL string `yaml:"url,omitempty"`

	// Schema is the database schema to use
	Schema string `yaml:"schema"`
}

// SerializerConfig selects the event payload encoding
type SerializerConfig struct {
	// Format is json or msgpack
	Format string `yaml:"format"`
}

// LoggingConfig configures the zap logger
type LoggingConfig struct {
	// Mode is dev or prod
	Mode string `yaml:"mode"`

	// Level is debug, info, warn or error
	Level string `yaml:"level"`
}

// PublishConfig configures where committed events are sent
type PublishConfig struct {
	Kafka   KafkaConfig   `yaml:"kafka,omitempty"`
	SNS     SNSConfig     `yaml:"sns,omitempty"`
	Webhook WebhookConfig `yaml:"webhook,omitempty"`
}

// KafkaConfig enables the Kafka publisher when Brokers is set
type KafkaConfig struct {
	Brokers []string `yaml:"brokers,omitempty"`
	Topic   string   `yaml:"topic,omitempty"`
}

// SNSConfig enables the SNS publisher when TopicARN is set
type SNSConfig struct {
	TopicARN string `yaml:"topic_arn,omitempty"`
	Region   string `yaml:"region,omitempty"`
}

// WebhookConfig enables the webhook publisher when URL is set
type WebhookConfig struct {
	URL string `yaml:"url,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing
type TracingConfig struct {
	// Enabled writes spans to stdout
	Enabled bool `yaml:"enabled"`
}

// Driver names
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Serializer formats
const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Project: ProjectConfig{
			Name: "kestrel-app",
		},
		Database: DatabaseConfig{
			Driver:    DriverPostgres,
			SQLDriver: "pgx",
			URL:       "${DATABASE_URL}",
			Schema:    "kestrel",
		},
		Serializer: SerializerConfig{
			Format: FormatJSON,
		},
		Logging: LoggingConfig{
			Mode:  "dev",
			Level: "info",
		},
	}
}

// ConfigFileName is the default config file name
const ConfigFileName = "kestrel.yaml"

// Load loads configuration from the specified directory
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path.
// Missing fields keep their default values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// Save saves the configuration to the specified directory
func (c *Config) Save(dir string) error {
	path := filepath.Join(dir, ConfigFileName)
	return c.SaveFile(path)
}

// SaveFile saves the configuration to a specific file path
func (c *Config) SaveFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Exists checks if a config file exists in the directory
func Exists(dir string) bool {
	path := filepath.Join(dir, ConfigFileName)
	_, err := os.Stat(path)
	return err == nil
}

// FindConfig searches for a config file starting from dir and going up
func FindConfig(dir string) (string, *Config, error) {
	current := dir
	for {
		configPath := filepath.Join(current, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			cfg, err := LoadFile(configPath)
			if err != nil {
				return "", nil, err
			}
			return current, cfg, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", nil, os.ErrNotExist
		}
		current = parent
	}
}

// DatabaseURL returns the connection string with environment variables expanded.
func (c *Config) DatabaseURL() string {
	return strings.TrimSpace(os.ExpandEnv(c.Database.URL))
}

// Validate validates the configuration
func (c *Config) Validate() []string {
	var errors []string

	if c.Project.Name == "" {
		errors = append(errors, "project.name is required")
	}

	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL() == "" {
			errors = append(errors, "database.url is required for postgres driver")
		}
		if d := c.Database.SQLDriver; d != "" && d != "pgx" && d != "postgres" {
			errors = append(errors, "database.sql_driver must be 'pgx' or 'postgres'")
		}
	case "":
		errors = append(errors, "database.driver is required")
	default:
		errors = append(errors, "database.driver must be 'postgres' or 'memory'")
	}

	switch c.Serializer.Format {
	case "", FormatJSON, FormatMsgpack:
	default:
		errors = append(errors, "serializer.format must be 'json' or 'msgpack'")
	}

	if len(c.Publish.Kafka.Brokers) > 0 && c.Publish.Kafka.Topic == "" {
		errors = append(errors, "publish.kafka.topic is required when brokers are set")
	}

	return errors
}

// GenerateYAML generates YAML content with comments
func GenerateYAML(cfg *Config) string {
	return `# Kestrel Configuration File

version: "1"

project:
  # Name of your project, used as the service name in metrics and traces
  name: "` + cfg.Project.Name + `"

database:
  # Driver: postgres or memory
  driver: "` + cfg.Database.Driver + `"

  # database/sql driver for postgres: pgx or postgres (lib/pq)
  sql_driver: "` + cfg.Database.SQLDriver + `"

  # Connection URL (required for postgres)
  url: "` + cfg.Database.URL + `"

  # Database schema (postgres only)
  schema: "` + cfg.Database.Schema + `"

serializer:
  # Event payload encoding: json or msgpack
  format: "` + cfg.Serializer.Format + `"

logging:
  mode: "` + cfg.Logging.Mode + `"
  level: "` + cfg.Logging.Level + `"

# Committed events can be forwarded to Kafka, SNS or a webhook.
# publish:
#   kafka:
#     brokers: ["localhost:9092"]
#     topic: "kestrel-events"
#   sns:
#     topic_arn: "arn:aws:sns:us-east-1:000000000000:kestrel-events"
#   webhook:
#     url: "http://localhost:8080/events"

tracing:
  enabled: false
`
}
