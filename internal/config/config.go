package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	CRM       CRMConfig       `yaml:"crm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index,omitempty"`
	Search    SearchConfig    `yaml:"search,omitempty"`
	Database  DatabaseConfig  `yaml:"database,omitempty"`
}

// CRMConfig holds upstream CRM API configuration.
type CRMConfig struct {
	BaseURL     string `yaml:"base_url,omitempty"` // defaults to the public HubSpot endpoint
	AccessToken string `yaml:"access_token"`
	FetchLimit  int    `yaml:"fetch_limit,omitempty"` // max records fetched per kind, 0 = unlimited
}

// EmbeddingConfig holds embedding model configuration.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "openai" (OpenAI-compatible endpoints)
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint,omitempty"`
	Model      string `yaml:"model,omitempty"`
	Dimensions int    `yaml:"dimensions,omitempty"`
	BatchSize  int    `yaml:"batch_size,omitempty"`
}

// IndexConfig holds similarity index configuration.
type IndexConfig struct {
	Type   string `yaml:"type,omitempty"`   // "flat" | "ivf"
	NList  int    `yaml:"nlist,omitempty"`  // IVF cluster count, 0 = scale with corpus
	NProbe int    `yaml:"nprobe,omitempty"` // IVF clusters probed per query
	// Property name globs excluded from fallback search text, e.g. "hs_*".
	ExcludeProperties []string `yaml:"exclude_properties,omitempty"`
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	DefaultTopK         int     `yaml:"default_top_k,omitempty"`
	SimilarityThreshold float64 `yaml:"similarity_threshold,omitempty"`
	SemanticWeight      float64 `yaml:"semantic_weight,omitempty"` // hybrid fusion weight (0-1)
}

// DatabaseConfig holds local storage paths.
type DatabaseConfig struct {
	// Record cache database. Defaults to ~/.crmdex/data/records.db.
	RecordsPath string `yaml:"records_path,omitempty"`
	// Base path for index persistence artifacts. Defaults to
	// ~/.crmdex/data/semantic.
	IndexPath string `yaml:"index_path,omitempty"`
}

// Load loads configuration from the default config file at
// ~/.crmdex/config/crmdex.yaml.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return LoadFromFile(filepath.Join(homeDir, ".crmdex", "config", "crmdex.yaml"))
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			homeDir, _ := os.UserHomeDir()
			return nil, &ConfigNotFoundError{
				RequestedPath: path,
				DefaultPath:   filepath.Join(homeDir, ".crmdex", "config", "crmdex.yaml"),
			}
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ConfigNotFoundError is returned when the config file is not found.
type ConfigNotFoundError struct {
	RequestedPath string
	DefaultPath   string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("config file not found at: %s\n\nDefault location: %s\n\nYou can:\n"+
		"  1. Create the config file at the default location\n"+
		"  2. Specify a custom path with -config flag",
		e.RequestedPath, e.DefaultPath)
}

// IsConfigNotFound checks if err is a ConfigNotFoundError.
func IsConfigNotFound(err error) bool {
	_, ok := err.(*ConfigNotFoundError)
	return ok
}

func (c *Config) applyDefaults() {
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions == 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = 100
	}

	if c.Index.Type == "" {
		c.Index.Type = "flat"
	}
	if c.Index.NProbe == 0 {
		c.Index.NProbe = 4
	}

	if c.Search.DefaultTopK == 0 {
		c.Search.DefaultTopK = 10
	}
	if c.Search.SimilarityThreshold == 0 {
		c.Search.SimilarityThreshold = 0.3
	}
	if c.Search.SemanticWeight == 0 {
		c.Search.SemanticWeight = 0.7
	}

	homeDir, err := os.UserHomeDir()
	dataDir := ".crmdex"
	if err == nil {
		dataDir = filepath.Join(homeDir, ".crmdex", "data")
	}
	if c.Database.RecordsPath == "" {
		c.Database.RecordsPath = filepath.Join(dataDir, "records.db")
	} else {
		c.Database.RecordsPath = expandPath(c.Database.RecordsPath)
	}
	if c.Database.IndexPath == "" {
		c.Database.IndexPath = filepath.Join(dataDir, "semantic")
	} else {
		c.Database.IndexPath = expandPath(c.Database.IndexPath)
	}
}

// Validate checks the configuration for values the runtime cannot work
// with. Validation never silently rewrites a requested value.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "openai":
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("openai provider requires api_key")
		}
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}

	if c.Embedding.BatchSize <= 0 || c.Embedding.BatchSize > 2048 {
		return fmt.Errorf("batch_size must be between 1 and 2048, got: %d", c.Embedding.BatchSize)
	}

	switch c.Index.Type {
	case "flat", "ivf":
	default:
		return fmt.Errorf("unsupported index type: %s", c.Index.Type)
	}
	if c.Index.NList < 0 {
		return fmt.Errorf("nlist must be non-negative, got: %d", c.Index.NList)
	}

	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return fmt.Errorf("semantic_weight must be in [0,1], got: %v", c.Search.SemanticWeight)
	}
	return nil
}

// expandPath expands ~ and $HOME prefixes to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "$HOME/") || path == "$HOME" {
		homeDir := os.Getenv("HOME")
		if homeDir == "" {
			var err error
			homeDir, err = os.UserHomeDir()
			if err != nil {
				return path
			}
		}
		if path == "$HOME" {
			return homeDir
		}
		return filepath.Join(homeDir, path[6:])
	}

	if strings.HasPrefix(path, "~/") || path == "~" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return homeDir
		}
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

const defaultConfigTemplate = `# crmdex configuration
#
# Copy and edit this file for your environment.
# Default location: $HOME/.crmdex/config/crmdex.yaml

crm:
  # Private app access token for the CRM API
  access_token: your-crm-access-token
  # fetch_limit: 5000

embedding:
  provider: openai
  api_key: your-openai-api-key
  model: text-embedding-3-small
  dimensions: 1536
  batch_size: 100

index:
  # "flat" for exact search, "ivf" for approximate search on large corpora
  type: flat
  # exclude_properties:
  #   - "hs_*"

search:
  default_top_k: 10
  similarity_threshold: 0.3
  semantic_weight: 0.7
`

// WriteDefaultTemplate creates a default configuration file if it does
// not exist. Returns true if a file was created.
func WriteDefaultTemplate(path string) (bool, error) {
	if path == "" {
		return false, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0o644); err != nil {
		return false, fmt.Errorf("failed to write config template: %w", err)
	}
	return true, nil
}
