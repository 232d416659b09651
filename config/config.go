// Package config loads provider credentials and model profiles from a YAML or
// JSON config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/Mirascope/mirascope-sub001/secrets"
)

// ValidProviderTypes are the allowed adapter types for providers.
var ValidProviderTypes = []string{"openai", "anthropic", "google", "openai_compatible"}

// BuiltinProviders need no explicit provider entry; their key comes from the
// secret store.
var BuiltinProviders = []string{"openai", "anthropic", "google"}

// ProviderConfig declares one backend: which adapter serves it and how to
// authenticate.
type ProviderConfig struct {
	Name         string `koanf:"name"`
	Type         string `koanf:"type"`
	BaseURL      string `koanf:"base_url,omitempty"`
	Key          string `koanf:"key,omitempty"`
	DefaultModel string `koanf:"default_model,omitempty"`
}

// Validate ensures the ProviderConfig is usable.
func (c ProviderConfig) Validate() error {
	if c.Type == "" {
		return fmt.Errorf("provider type is required")
	}
	if !slices.Contains(ValidProviderTypes, c.Type) {
		return fmt.Errorf("invalid provider type: %s", c.Type)
	}
	if c.Name == "" && !slices.Contains(BuiltinProviders, c.Type) {
		return fmt.Errorf("name is required for custom provider types like openai_compatible")
	}
	if c.Type == "openai_compatible" && c.BaseURL == "" {
		return fmt.Errorf("base_url is required for openai_compatible providers")
	}
	return nil
}

// ProviderName returns the name the provider is referenced by in profiles.
func (c ProviderConfig) ProviderName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Type
}

// ResolveKey returns the provider's API key: the literal key from the config
// when present, otherwise <NAME>_API_KEY from the secret store.
func (c ProviderConfig) ResolveKey(store secrets.Store) (string, error) {
	if c.Key != "" {
		return c.Key, nil
	}
	secretName := strings.ToUpper(c.ProviderName()) + "_API_KEY"
	key, err := store.Get(secretName)
	if err != nil {
		return "", fmt.Errorf("resolving key for provider %s: %w", c.ProviderName(), err)
	}
	return key, nil
}

// ModelProfile names one candidate model for a use case. A profile's list is
// ordered: the first entry is primary, the rest are fallbacks.
type ModelProfile struct {
	Provider    string   `koanf:"provider"`
	Model       string   `koanf:"model"`
	Temperature *float32 `koanf:"temperature,omitempty"`
	MaxTokens   int      `koanf:"max_tokens,omitempty"`
}

// Config is the full configuration file structure.
type Config struct {
	Providers []ProviderConfig          `koanf:"providers,omitempty"`
	Profiles  map[string][]ModelProfile `koanf:"profiles,omitempty"`
}

func (c Config) providerNames() []string {
	names := slices.Clone(BuiltinProviders)
	for _, p := range c.Providers {
		names = append(names, p.ProviderName())
	}
	return names
}

// Provider looks up a provider entry by name.
func (c Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.ProviderName() == name {
			return p, true
		}
	}
	if slices.Contains(BuiltinProviders, name) {
		return ProviderConfig{Type: name}, true
	}
	return ProviderConfig{}, false
}

// Profile returns the candidate list for a use case.
func (c Config) Profile(name string) ([]ModelProfile, bool) {
	profile, ok := c.Profiles[name]
	return profile, ok
}

// Validate ensures every provider entry is valid and every profile references
// a known provider.
func (c Config) Validate() error {
	for _, p := range c.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid provider %s: %w", p.ProviderName(), err)
		}
	}
	known := c.providerNames()
	for useCase, profiles := range c.Profiles {
		if len(profiles) == 0 {
			return fmt.Errorf("profile %s has no candidates", useCase)
		}
		for _, profile := range profiles {
			if profile.Model == "" {
				return fmt.Errorf("profile %s has a candidate without a model", useCase)
			}
			if !slices.Contains(known, profile.Provider) {
				return fmt.Errorf("profile %s references unknown provider: %s", useCase, profile.Provider)
			}
		}
	}
	return nil
}

// Load reads the configuration from the given file path. A missing file
// yields an empty config.
func Load(configPath string) (Config, error) {
	k := koanf.New(".")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return Config{}, nil
	}

	parser := parserForExtension(configPath)
	if parser == nil {
		return Config{}, fmt.Errorf("unsupported config file extension: %s", filepath.Ext(configPath))
	}
	if err := k.Load(file.Provider(configPath), parser); err != nil {
		return Config{}, fmt.Errorf("error loading config: %w", err)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "mirascope", "config.yaml")
}

// Discover searches dir for a config file, in order of precedence, falling
// back to the default path.
func Discover(dir string) string {
	candidates := []string{"mirascope.yml", "mirascope.yaml", "mirascope.json"}
	for _, candidate := range candidates {
		path := filepath.Join(dir, candidate)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return DefaultPath()
}

func parserForExtension(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return yaml.Parser()
	case ".json":
		return json.Parser()
	default:
		return nil
	}
}
