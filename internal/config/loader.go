package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".tradetape"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("TRADETAPE_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := resolveHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := resolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

func resolveHomeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("TRADETAPE_HOME")); h != "" {
		if strings.HasPrefix(h, "~") {
			base, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(base, h[1:]), nil
		}
		return h, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return home, nil
}

// Load loads the configuration from file and environment variables.
// Priority: environment > file > defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err == nil {
		data = substituteEnvValues(data)
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	// If file doesn't exist, continue with defaults

	// Override with environment variables for each group
	envconfig.Process("TRADETAPE_STORE", &cfg.Store)
	envconfig.Process("TRADETAPE_VECTOR", &cfg.Vector)
	envconfig.Process("TRADETAPE_EMBEDDING", &cfg.Embedding)
	envconfig.Process("TRADETAPE_BLEND", &cfg.Blend)
	envconfig.Process("TRADETAPE_TAP", &cfg.Tap)
	envconfig.Process("TRADETAPE_TELEMETRY", &cfg.Telemetry)
	envconfig.Process("TRADETAPE_LOG", &cfg.Log)

	// Fallback for the embedding API key
	if cfg.Embedding.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Embedding.APIKey = key
		}
	}

	expandHome(&cfg.Store.Path)
	expandHome(&cfg.Vector.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func expandHome(p *string) {
	if strings.HasPrefix(*p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			*p = filepath.Join(home, (*p)[1:])
		}
	}
}

// Validate checks configuration values that must be rejected at startup.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("unsupported store backend %q (want file or sqlite)", c.Store.Backend)
	}
	switch c.Vector.Backend {
	case "disabled", "qdrant", "redis", "chromem":
	default:
		return fmt.Errorf("unsupported vector backend %q (want disabled, qdrant, redis or chromem)", c.Vector.Backend)
	}
	switch c.Embedding.Provider {
	case "hash", "openai":
	default:
		return fmt.Errorf("unsupported embedding provider %q (want hash or openai)", c.Embedding.Provider)
	}
	if c.Blend.Weight < 0 || c.Blend.Weight > 1 {
		return fmt.Errorf("blend weight %v out of range [0,1]", c.Blend.Weight)
	}
	if c.Blend.Neighbors < 1 {
		return fmt.Errorf("blend neighbors %d must be at least 1", c.Blend.Neighbors)
	}
	if c.Embedding.Dimension < 8 {
		return fmt.Errorf("embedding dimension %d too small", c.Embedding.Dimension)
	}
	if c.Store.PoolSize < 1 {
		c.Store.PoolSize = 1
	}
	return nil
}

// Save writes the configuration to the config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// substituteEnvValues replaces ${VAR} references in the raw config file with
// values from the environment. Unset variables are left as-is.
func substituteEnvValues(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envPattern.FindSubmatch(match)
		if len(parts) != 2 {
			return match
		}
		if value, ok := os.LookupEnv(string(parts[1])); ok {
			return []byte(value)
		}
		return match
	})
}
