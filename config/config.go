// Package config loads the authority engine's ambient settings: the
// keypair/license search path, DNS timeout, and dependency depth cap,
// the way the rest of this codebase's tooling loads YAML config with
// environment-variable overrides layered on top.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the authority engine's runtime configuration.
type Config struct {
	SearchPath         []string      `yaml:"search_path"`
	DNSTimeout         time.Duration `yaml:"dns_timeout"`
	DNSCacheTTLHint    time.Duration `yaml:"dns_cache_ttl_hint"`
	MaxDependencyDepth int           `yaml:"max_dependency_depth"`
}

type yamlConfig struct {
	SearchPath         []string `yaml:"search_path"`
	DNSTimeout         string   `yaml:"dns_timeout"`
	DNSCacheTTLHint    string   `yaml:"dns_cache_ttl_hint"`
	MaxDependencyDepth int      `yaml:"max_dependency_depth"`
}

// Default returns the built-in configuration used when no config.yaml
// is found and no environment overrides are present.
func Default() Config {
	return Config{
		SearchPath:         defaultSearchPath(),
		DNSTimeout:         5 * time.Second,
		DNSCacheTTLHint:    0, // per-pass only; spec §5 forbids cross-process caching
		MaxDependencyDepth: 16,
	}
}

// LoadFromPath reads configPath (or, if empty, tries a short list of
// conventional locations), merges it over Default(), applies
// environment overrides, and returns the result. A missing or
// unparsable file is not an error: Default() with env overrides applied
// is returned instead.
func LoadFromPath(configPath string) Config {
	cfg := Default()

	candidates := []string{configPath}
	if configPath == "" {
		candidates = []string{
			"crypto-licensing.yaml",
			"configs/crypto-licensing.yaml",
		}
	}

	for _, path := range candidates {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var parsed yamlConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			continue
		}
		merge(&cfg, parsed)
		break
	}

	applyEnvOverrides(&cfg)
	return cfg
}

func merge(dst *Config, src yamlConfig) {
	if len(src.SearchPath) > 0 {
		dst.SearchPath = src.SearchPath
	}
	if d, err := time.ParseDuration(src.DNSTimeout); err == nil && src.DNSTimeout != "" {
		dst.DNSTimeout = d
	}
	if d, err := time.ParseDuration(src.DNSCacheTTLHint); err == nil && src.DNSCacheTTLHint != "" {
		dst.DNSCacheTTLHint = d
	}
	if src.MaxDependencyDepth != 0 {
		dst.MaxDependencyDepth = src.MaxDependencyDepth
	}
}

func applyEnvOverrides(cfg *Config) {
	if raw := strings.TrimSpace(os.Getenv("CRYPTO_LIC_SEARCH_PATH")); raw != "" {
		cfg.SearchPath = strings.Split(raw, string(os.PathListSeparator))
	}
	if raw := strings.TrimSpace(os.Getenv("CRYPTO_LIC_DNS_TIMEOUT")); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cfg.DNSTimeout = d
		}
	}
	if raw := strings.TrimSpace(os.Getenv("CRYPTO_LIC_MAX_DEPTH")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			cfg.MaxDependencyDepth = n
		}
	}
}

// defaultSearchPath returns directories from most-general to
// most-specific: a user config directory, then the current working
// directory.
func defaultSearchPath() []string {
	var path []string
	if home, err := os.UserHomeDir(); err == nil {
		path = append(path, home+"/.config/crypto-licensing")
	}
	if wd, err := os.Getwd(); err == nil {
		path = append(path, wd)
	}
	return path
}
