// Package config provides configuration management for the cfgapp service.
//
// This package handles loading settings from an optional YAML file, with
// environment variable overrides for deployment-specific values such as the
// origin host, proxy ports, and credentials-related secrets. Aggregation
// settings for the template engine (block prefixes, compaction) live here as
// well so one Settings value configures the whole service.
//
// Precedence: built-in defaults, then the YAML file, then environment
// variables.
//
// Example configuration:
//
//	api_host: origin.example.com
//	alt_host: alt.example.com
//	port: 8000
//	log_level: info
//	salt: "change-me"
//	proxy_config: /etc/cfgapp/proxy.json
//	ipv4_block_prefix: 18
//	ipv6_block_prefix: 32
//	enable_compaction: true
//	compact_target_max: 200
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

const Version = "1.0.0"

// Settings holds every tunable of the service.
type Settings struct {
	// Origin and alternate hosts for the forwarding layer. BaseURL is the
	// externally visible address used in subscription links; when empty the
	// incoming request's host is used instead.
	APIHost string `yaml:"api_host"`
	AltHost string `yaml:"alt_host"`
	BaseURL string `yaml:"base_url"`

	// HTTP server binding.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	LogLevel string `yaml:"log_level"`

	// Authentication and proxy node generation.
	Salt             string `yaml:"salt"`
	ObfsPassword     string `yaml:"obfs_password"`
	Hysteria2Port    int    `yaml:"hysteria2_port"`
	Hysteria2V2Port  int    `yaml:"hysteria2_v2_port"`
	HTTPSPort        int    `yaml:"https_port"`
	RealityPublicKey string `yaml:"reality_public_key"`
	RealityShortID   string `yaml:"reality_short_id"`
	ProxyConfig      string `yaml:"proxy_config"`

	// Template engine aggregation settings.
	IPv4BlockPrefix    int  `yaml:"ipv4_block_prefix"`
	IPv6BlockPrefix    int  `yaml:"ipv6_block_prefix"`
	EnableCompaction   bool `yaml:"enable_compaction"`
	CompactTargetMax   int  `yaml:"compact_target_max"`
	CompactMinPrefixV4 int  `yaml:"compact_min_prefix_v4"`
	CompactMinPrefixV6 int  `yaml:"compact_min_prefix_v6"`
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		APIHost:            "shadowrocket.ebac.dev",
		AltHost:            "s.dimonb.com",
		Host:               "0.0.0.0",
		Port:               8000,
		LogLevel:           "info",
		IPv4BlockPrefix:    18,
		IPv6BlockPrefix:    32,
		EnableCompaction:   false,
		CompactTargetMax:   200,
		CompactMinPrefixV4: 11,
		CompactMinPrefixV6: 32,
	}
}

// LoadSettings loads and validates settings. An empty path skips the YAML
// file and uses defaults plus environment overrides; a non-empty path must
// exist.
func LoadSettings(path string) (*Settings, error) {
	settings := DefaultSettings()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&settings); err != nil {
		return nil, err
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &settings, nil
}

// applyEnvOverrides copies recognized environment variables over the loaded
// values. Variable names follow the upper-cased field names.
func applyEnvOverrides(s *Settings) error {
	overrideString(&s.APIHost, "API_HOST")
	overrideString(&s.AltHost, "ALT_HOST")
	overrideString(&s.BaseURL, "BASE_URL")
	overrideString(&s.Host, "HOST")
	overrideString(&s.LogLevel, "LOG_LEVEL")
	overrideString(&s.Salt, "SALT")
	overrideString(&s.ObfsPassword, "OBFS_PASSWORD")
	overrideString(&s.RealityPublicKey, "REALITY_PUBLIC_KEY")
	overrideString(&s.RealityShortID, "REALITY_SHORT_ID")
	overrideString(&s.ProxyConfig, "PROXY_CONFIG")

	intVars := []struct {
		dst *int
		key string
	}{
		{&s.Port, "PORT"},
		{&s.Hysteria2Port, "HYSTERIA2_PORT"},
		{&s.Hysteria2V2Port, "HYSTERIA2_V2_PORT"},
		{&s.HTTPSPort, "HTTPS_PORT"},
		{&s.IPv4BlockPrefix, "IPV4_BLOCK_PREFIX"},
		{&s.IPv6BlockPrefix, "IPV6_BLOCK_PREFIX"},
		{&s.CompactTargetMax, "COMPACT_TARGET_MAX"},
		{&s.CompactMinPrefixV4, "COMPACT_MIN_PREFIX_V4"},
		{&s.CompactMinPrefixV6, "COMPACT_MIN_PREFIX_V6"},
	}
	for _, v := range intVars {
		if err := overrideInt(v.dst, v.key); err != nil {
			return err
		}
	}

	if err := overrideBool(&s.EnableCompaction, "ENABLE_COMPACTION"); err != nil {
		return err
	}

	return nil
}

func overrideString(dst *string, key string) {
	if value, ok := os.LookupEnv(key); ok {
		*dst = value
	}
}

func overrideInt(dst *int, key string) error {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dst = n
	return nil
}

func overrideBool(dst *bool, key string) error {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dst = b
	return nil
}

// Validate checks ranges the rest of the service relies on.
func (s *Settings) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.IPv4BlockPrefix < 0 || s.IPv4BlockPrefix > 32 {
		return fmt.Errorf("ipv4_block_prefix must be between 0 and 32, got %d", s.IPv4BlockPrefix)
	}
	if s.IPv6BlockPrefix < 0 || s.IPv6BlockPrefix > 128 {
		return fmt.Errorf("ipv6_block_prefix must be between 0 and 128, got %d", s.IPv6BlockPrefix)
	}
	if s.CompactTargetMax < 1 {
		return fmt.Errorf("compact_target_max must be positive, got %d", s.CompactTargetMax)
	}
	if s.CompactMinPrefixV4 < 0 || s.CompactMinPrefixV4 > 32 {
		return fmt.Errorf("compact_min_prefix_v4 must be between 0 and 32, got %d", s.CompactMinPrefixV4)
	}
	if s.CompactMinPrefixV6 < 0 || s.CompactMinPrefixV6 > 128 {
		return fmt.Errorf("compact_min_prefix_v6 must be between 0 and 128, got %d", s.CompactMinPrefixV6)
	}
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log_level %q", s.LogLevel)
	}
	return nil
}

// SlogLevel maps the configured log level onto a slog.Level.
func (s *Settings) SlogLevel() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
