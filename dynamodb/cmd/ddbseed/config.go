package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/acksell/ddbseed/dynamodb/awsclient"
	"github.com/acksell/ddbseed/dynamodb/ingest"
	"github.com/acksell/ddbseed/dynamodb/provision"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configFileName  = "ddbseed.yaml"
	defaultEndpoint = "http://localhost:8000"
	memoryDB        = ":memory:"
)

// Config holds settings for ddbseed. Loaded from ddbseed.yaml if present,
// then overridden by environment variables and flags.
type Config struct {
	Region string `yaml:"region"`
	// Endpoint is the DynamoDB endpoint. Empty targets AWS.
	Endpoint string `yaml:"endpoint"`
	// LocalDB is a badger directory used instead of any endpoint, or
	// ":memory:" for a store that lives as long as the command.
	LocalDB     string        `yaml:"localDB"`
	WaitTimeout time.Duration `yaml:"waitTimeout"`
	Ingest      IngestConfig  `yaml:"ingest"`
	// Tables renames tables, keyed by their default name.
	Tables map[string]string `yaml:"tables"`
	// SchemaFiles is a glob of YAML table schemas for the ensure command.
	SchemaFiles string `yaml:"schemaFiles"`
}

type IngestConfig struct {
	MaxRetries      int           `yaml:"maxRetries"`
	BaseDelay       time.Duration `yaml:"baseDelay"`
	MaxDelay        time.Duration `yaml:"maxDelay"`
	Jitter          bool          `yaml:"jitter"`
	WritesPerSecond float64       `yaml:"writesPerSecond"`
	Concurrency     int           `yaml:"concurrency"`
}

func DefaultConfig() Config {
	return Config{
		Region:      awsclient.DefaultRegion,
		Endpoint:    defaultEndpoint,
		WaitTimeout: provision.DefaultWaitTimeout,
		Ingest: IngestConfig{
			MaxRetries: ingest.DefaultMaxRetries,
			BaseDelay:  ingest.DefaultBaseDelay,
			MaxDelay:   ingest.DefaultMaxDelay,
		},
	}
}

// TableName returns the configured name for a default table name.
func (c Config) TableName(name string) string {
	if override, ok := c.Tables[name]; ok && override != "" {
		return override
	}
	return name
}

func (c Config) ClientOptions() awsclient.Options {
	return awsclient.Options{Region: c.Region, Endpoint: c.Endpoint}
}

func (c Config) IngestOptions() []ingest.Option {
	opts := []ingest.Option{
		ingest.WithMaxRetries(c.Ingest.MaxRetries),
		ingest.WithBackoff(c.Ingest.BaseDelay, c.Ingest.MaxDelay),
	}
	if c.Ingest.Jitter {
		opts = append(opts, ingest.WithJitter())
	}
	if c.Ingest.WritesPerSecond > 0 {
		opts = append(opts, ingest.WithWritesPerSecond(c.Ingest.WritesPerSecond))
	}
	if c.Ingest.Concurrency > 0 {
		opts = append(opts, ingest.WithConcurrency(c.Ingest.Concurrency))
	}
	return opts
}

// LoadConfig reads path, or the nearest ddbseed.yaml when path is empty,
// over the defaults and applies the environment on top. A .env file in the
// working directory is loaded first. Returns the file used, if any.
func LoadConfig(path string) (Config, string, error) {
	cfg := DefaultConfig()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, "", fmt.Errorf("load .env: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, "", fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, "", fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, path, nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("DDB_ENDPOINT"); ok {
		c.Endpoint = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		c.Region = v
	}
	if v := os.Getenv("DDBSEED_LOCAL_DB"); v != "" {
		c.LocalDB = v
	}
}

// findConfigFile searches for ddbseed.yaml walking up from current directory.
func findConfigFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, configFileName)
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
