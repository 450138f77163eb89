package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"secretsanta/internal/engine"
	"secretsanta/internal/logging"
)

// FileName is the config file looked up in the workspace.
const FileName = "santa.yml"

// DefaultOutputPath is used when no output path is given.
const DefaultOutputPath = "secret_santa_result.csv"

// Config models santa.yml.
type Config struct {
	Engine struct {
		MaxAttempts int    `yaml:"max_attempts" json:"max_attempts"`
		Repair      string `yaml:"repair" json:"repair"`
		Seed        int64  `yaml:"seed" json:"seed"`
	} `yaml:"engine" json:"engine"`
	Output struct {
		DefaultPath string `yaml:"default_path" json:"default_path"`
	} `yaml:"output" json:"output"`
	History struct {
		Enabled bool `yaml:"enabled" json:"enabled"`
	} `yaml:"history" json:"history"`
	Server struct {
		Addr     string `yaml:"addr" json:"addr"`
		BasePath string `yaml:"base_path" json:"base_path"`
	} `yaml:"server" json:"server"`
	Log struct {
		Level string `yaml:"level" json:"level"`
	} `yaml:"log" json:"log"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Engine.MaxAttempts <= 0 {
		return fmt.Errorf("config.engine.max_attempts must be positive, got %d", c.Engine.MaxAttempts)
	}
	if _, err := engine.ParseRepairMode(c.Engine.Repair); err != nil {
		return fmt.Errorf("config.engine.repair: %w", err)
	}
	if strings.TrimSpace(c.Output.DefaultPath) == "" {
		return fmt.Errorf("config.output.default_path is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config.log.level: %w", err)
	}
	return nil
}

// EngineOptions maps the engine section onto engine.Options.
func (c *Config) EngineOptions() engine.Options {
	mode, _ := engine.ParseRepairMode(c.Engine.Repair)
	return engine.Options{
		MaxAttempts: c.Engine.MaxAttempts,
		Repair:      mode,
		Seed:        c.Engine.Seed,
	}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with santa config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses config over the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `engine:
  # shuffle-repair-verify cycles before giving up
  max_attempts: 100
  # single-pass or fixed-point
  repair: single-pass
  # 0 seeds from the clock; santa serve always seeds from the clock
  seed: 0

output:
  default_path: secret_santa_result.csv

history:
  enabled: true

server:
  addr: 127.0.0.1:8080
  base_path: /v0

log:
  level: info
`
