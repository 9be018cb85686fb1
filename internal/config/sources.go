package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"storyline/internal/domain/entity"
)

// DefaultSourcesPath is used when STORYLINE_SOURCES is unset.
const DefaultSourcesPath = "config/sources.yaml"

// SourcesConfig is the feed source list.
//
//	sources:
//	  - name: example-wire
//	    feed_url: https://wire.example.com/rss
//	    bias: 2
type SourcesConfig struct {
	Sources []entity.Source `yaml:"sources"`
}

// SourcesPath returns the source list location from STORYLINE_SOURCES.
func SourcesPath() string {
	return getEnvOrDefault("STORYLINE_SOURCES", DefaultSourcesPath)
}

// LoadSourcesConfig loads the source list from a YAML file.
// The path parameter is expected to come from a trusted source (environment or hardcoded default).
func LoadSourcesConfig(path string) (*SourcesConfig, error) {
	// #nosec G304 -- path is provided by the operator, not user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var config SourcesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse sources: %w", err)
	}

	if err := validateSourcesConfig(&config); err != nil {
		return nil, fmt.Errorf("sources validation failed: %w", err)
	}

	return &config, nil
}

// validateSourcesConfig validates the loaded source list.
func validateSourcesConfig(config *SourcesConfig) error {
	seen := make(map[string]struct{}, len(config.Sources))
	for i := range config.Sources {
		src := &config.Sources[i]
		if err := src.Validate(); err != nil {
			return fmt.Errorf("source %d (%q): %w", i, src.Name, err)
		}
		if _, dup := seen[src.Name]; dup {
			return fmt.Errorf("duplicate source name %q", src.Name)
		}
		seen[src.Name] = struct{}{}
	}
	return nil
}
