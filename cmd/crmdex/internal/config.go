package internal

import (
	"fmt"
	"os"

	"github.com/crmdex/crmdex/internal/config"
)

// LoadConfig reads configuration from the given path, or from the
// default location when the path is empty.
func LoadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

// PrintConfigExample writes a complete YAML configuration example to
// stderr so users can bootstrap a config file by hand.
func PrintConfigExample() {
	homeDir, _ := os.UserHomeDir()
	configPath := fmt.Sprintf("%s/.crmdex/config/crmdex.yaml", homeDir)

	fmt.Fprintf(os.Stderr, `Create a configuration file at %s:

# CRM API configuration (required)
crm:
  # Private app access token
  access_token: your-crm-access-token
  # base_url: https://api.hubapi.com
  # fetch_limit: 5000

# Embedding service configuration (required)
embedding:
  provider: openai
  api_key: your-openai-api-key
  model: text-embedding-3-small
  dimensions: 1536
  batch_size: 100

# Similarity index configuration
index:
  # "flat" for exact search, "ivf" for approximate search on large corpora
  type: flat
  # nlist: 0          # IVF cluster count, 0 = scale with corpus size
  # nprobe: 4
  # exclude_properties:
  #   - "hs_*"

# Search defaults
search:
  default_top_k: 10
  similarity_threshold: 0.3
  semantic_weight: 0.7

Usage:
  1. Create the config file
  2. Run: crmdex index -kind contacts
  3. Search: crmdex search "your query"
`, configPath)
}
