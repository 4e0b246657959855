package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults used when microbundle.yml or a flag leaves a value unset.
const (
	DefaultTaskTitle   = "b3ehive reliability task"
	DefaultNodeID      = "node_local"
	DefaultLibrary     = "references/micro-capsule-templates.json"
	DefaultOutDir      = "output/micro-bundles"
	DefaultParallelism = 1
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "console"

	// NodeIDEnv overrides node_id from the process environment.
	NodeIDEnv = "A2A_NODE_ID"
)

// Config represents the top-level microbundle.yml configuration
type Config struct {
	Version     string         `yaml:"version"`
	TaskTitle   string         `yaml:"task_title,omitempty"`
	NodeID      string         `yaml:"node_id,omitempty"`
	Library     string         `yaml:"library,omitempty"`
	OutDir      string         `yaml:"out_dir,omitempty"`
	Parallelism int            `yaml:"parallelism,omitempty"`
	Lenient     bool           `yaml:"lenient,omitempty"`
	Redis       *RedisConfig   `yaml:"redis,omitempty"`
	Logging     *LoggingConfig `yaml:"logging,omitempty"`
}

// RedisConfig specifies the hub bundles are published to. An empty Addr disables publishing.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// LoggingConfig specifies structured log output
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // console or json
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{Version: "1.0"}
	c.applyDefaults()
	return c
}

// PublishEnabled reports whether bundles should be published to Redis.
func (c *Config) PublishEnabled() bool {
	return c.Redis != nil && c.Redis.Addr != ""
}

// ApplyEnv applies environment overrides. lookup is usually os.LookupEnv.
// An explicit node_id in the file loses to A2A_NODE_ID; flags are applied afterwards by the CLI.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(NodeIDEnv); ok && v != "" {
		c.NodeID = v
	}
}

// Validate performs strict validation on the configuration and fills in defaults
func (c *Config) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	// Optional: parallelism, zero means the default
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism must be >= 1, got %d", c.Parallelism)
	}

	// Validate redis section if present
	if c.Redis != nil && c.Redis.DB < 0 {
		return fmt.Errorf("redis.db must be >= 0, got %d", c.Redis.DB)
	}

	// Apply defaults
	c.applyDefaults()

	// Validate logging level
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s (must be 'debug', 'info', 'warn', or 'error')", c.Logging.Level)
	}

	// Validate logging format
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid logging.format: %s (must be 'console' or 'json')", c.Logging.Format)
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.TaskTitle == "" {
		c.TaskTitle = DefaultTaskTitle
	}
	if c.NodeID == "" {
		c.NodeID = DefaultNodeID
	}
	if c.Library == "" {
		c.Library = DefaultLibrary
	}
	if c.OutDir == "" {
		c.OutDir = DefaultOutDir
	}
	if c.Parallelism == 0 {
		c.Parallelism = DefaultParallelism
	}
	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

// Load reads and validates microbundle.yml from the specified path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
