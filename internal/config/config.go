package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ginmihq/ginmi/internal/model/contract"
	"github.com/ginmihq/ginmi/internal/pathutil"
	"github.com/ginmihq/ginmi/internal/usage"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Log      LogConfig        `koanf:"log"`
	Models   ModelsConfig     `koanf:"models"`
	Generate GenerateDefaults `koanf:"generate"`
	Limits   LimitsConfig     `koanf:"limits"`
	Cache    CacheConfig      `koanf:"cache"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type ModelsConfig struct {
	// Default is the model spec ("family/name") used when a command names
	// no model.
	Default  string          `koanf:"default"`
	Registry []ModelRegistry `koanf:"registry"`
}

// ModelRegistry binds endpoint credentials to a model spec.
type ModelRegistry struct {
	Model   string `koanf:"model"`
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`
}

// GenerateDefaults are run-level generation options. Zero values mean
// unset and defer to the adapter.
type GenerateDefaults struct {
	Temperature    float64 `koanf:"temperature"`
	TopP           float64 `koanf:"top_p"`
	MaxTokens      int     `koanf:"max_tokens"`
	MaxConnections int     `koanf:"max_connections"`
	MaxRetries     int     `koanf:"max_retries"`
	Timeout        string  `koanf:"timeout"`
	SystemMessage  string  `koanf:"system_message"`
}

type LimitsConfig struct {
	Messages int `koanf:"messages"`
	Tokens   int `koanf:"tokens"`
}

type CacheConfig struct {
	Dir    string `koanf:"dir"`
	Expiry string `koanf:"expiry"`
}

const (
	DefaultLogLevel    = "info"
	DefaultCacheExpiry = "1W"
)

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	// Hardcoded Defaults
	defaults := map[string]interface{}{
		"log.level":    DefaultLogLevel,
		"cache.dir":    filepath.Join(os.Getenv("HOME"), ".ginmi", "cache"),
		"cache.expiry": DefaultCacheExpiry,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// Config file loading
	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			globalPath := filepath.Join(home, ".ginmi", "config.yaml")
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
			}
		}
	}

	// Environment Variables
	k.Load(env.Provider("GINMI_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "GINMI_")), "_", ".", -1)
	}), nil)

	// CLI Flags
	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cacheDir, err := expandConfiguredPath(cfg.Cache.Dir)
	if err != nil {
		return nil, err
	}
	if cacheDir != "" {
		cfg.Cache.Dir = cacheDir
	}

	return &cfg, nil
}

// Endpoint returns the registry entry for a model spec, matching on the
// full spec first and the family alone second.
func (c *Config) Endpoint(spec string) (ModelRegistry, bool) {
	family, _, _ := strings.Cut(spec, "/")
	var familyMatch *ModelRegistry
	for i, entry := range c.Models.Registry {
		if entry.Model == spec {
			return entry, true
		}
		if entry.Model == family && familyMatch == nil {
			familyMatch = &c.Models.Registry[i]
		}
	}
	if familyMatch != nil {
		return *familyMatch, true
	}
	return ModelRegistry{}, false
}

// GenerateConfig converts the configured defaults into generation options,
// leaving zero-valued fields unset.
func (c *Config) GenerateConfig() (contract.GenerateConfig, error) {
	var out contract.GenerateConfig
	if c.Generate.Temperature != 0 {
		out.Temperature = contract.Float64(c.Generate.Temperature)
	}
	if c.Generate.TopP != 0 {
		out.TopP = contract.Float64(c.Generate.TopP)
	}
	if c.Generate.MaxTokens != 0 {
		out.MaxTokens = contract.Int(c.Generate.MaxTokens)
	}
	if c.Generate.MaxConnections != 0 {
		out.MaxConnections = contract.Int(c.Generate.MaxConnections)
	}
	if c.Generate.MaxRetries != 0 {
		out.MaxRetries = contract.Int(c.Generate.MaxRetries)
	}
	if strings.TrimSpace(c.Generate.Timeout) != "" {
		timeout, err := DurationOrDefault(c.Generate.Timeout, "")
		if err != nil {
			return contract.GenerateConfig{}, err
		}
		out.Timeout = contract.Duration(timeout)
	}
	if c.Generate.SystemMessage != "" {
		out.SystemMessage = contract.String(c.Generate.SystemMessage)
	}
	return out, nil
}

// UsageLimits converts the configured limits; zero means unlimited.
func (c *Config) UsageLimits() usage.Limits {
	return usage.Limits{Messages: c.Limits.Messages, Tokens: c.Limits.Tokens}
}

func expandConfiguredPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	expanded, err := pathutil.Expand(trimmed)
	if err != nil {
		return "", err
	}
	return expanded, nil
}
