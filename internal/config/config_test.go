package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadSettings(t *testing.T) {
	configContent := `
api_host: origin.example.com
alt_host: alt.example.com
host: 127.0.0.1
port: 9000
log_level: debug
salt: "pepper"
obfs_password: "obfs-secret"
hysteria2_port: 4443
hysteria2_v2_port: 4444
https_port: 443
proxy_config: /etc/cfgapp/proxy.json
ipv4_block_prefix: 20
ipv6_block_prefix: 48
enable_compaction: true
compact_target_max: 100
compact_min_prefix_v4: 12
compact_min_prefix_v6: 40
`
	settings, err := LoadSettings(writeConfig(t, configContent))
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.APIHost != "origin.example.com" {
		t.Errorf("Expected api_host 'origin.example.com', got '%s'", settings.APIHost)
	}
	if settings.Port != 9000 {
		t.Errorf("Expected port 9000, got %d", settings.Port)
	}
	if settings.IPv4BlockPrefix != 20 {
		t.Errorf("Expected ipv4_block_prefix 20, got %d", settings.IPv4BlockPrefix)
	}
	if !settings.EnableCompaction {
		t.Errorf("Expected enable_compaction=true, got false")
	}
	if settings.CompactMinPrefixV6 != 40 {
		t.Errorf("Expected compact_min_prefix_v6 40, got %d", settings.CompactMinPrefixV6)
	}
}

func TestLoadSettings_Defaults(t *testing.T) {
	settings, err := LoadSettings("")
	if err != nil {
		t.Fatalf("Failed to load default settings: %v", err)
	}

	if settings.Host != "0.0.0.0" {
		t.Errorf("Expected default host '0.0.0.0', got '%s'", settings.Host)
	}
	if settings.Port != 8000 {
		t.Errorf("Expected default port 8000, got %d", settings.Port)
	}
	if settings.IPv4BlockPrefix != 18 {
		t.Errorf("Expected default ipv4_block_prefix 18, got %d", settings.IPv4BlockPrefix)
	}
	if settings.IPv6BlockPrefix != 32 {
		t.Errorf("Expected default ipv6_block_prefix 32, got %d", settings.IPv6BlockPrefix)
	}
	if settings.EnableCompaction {
		t.Errorf("Expected compaction disabled by default")
	}
	if settings.CompactTargetMax != 200 {
		t.Errorf("Expected default compact_target_max 200, got %d", settings.CompactTargetMax)
	}
}

func TestLoadSettings_EnvOverrides(t *testing.T) {
	t.Setenv("API_HOST", "env.example.com")
	t.Setenv("PORT", "8080")
	t.Setenv("ENABLE_COMPACTION", "true")

	configContent := `
api_host: file.example.com
port: 9000
`
	settings, err := LoadSettings(writeConfig(t, configContent))
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.APIHost != "env.example.com" {
		t.Errorf("Expected api_host from env, got '%s'", settings.APIHost)
	}
	if settings.Port != 8080 {
		t.Errorf("Expected port from env, got %d", settings.Port)
	}
	if !settings.EnableCompaction {
		t.Errorf("Expected enable_compaction from env, got false")
	}
}

func TestLoadSettings_InvalidEnvValue(t *testing.T) {
	t.Setenv("PORT", "not-a-number")

	_, err := LoadSettings("")
	if err == nil {
		t.Errorf("Expected error for non-numeric PORT, got nil")
	}
}

func TestLoadSettings_FileNotFound(t *testing.T) {
	_, err := LoadSettings("nonexistent_file.yaml")
	if err == nil {
		t.Errorf("Expected error for non-existent file, got nil")
	}
}

func TestLoadSettings_InvalidYAML(t *testing.T) {
	_, err := LoadSettings(writeConfig(t, "port: [unclosed\n"))
	if err == nil {
		t.Errorf("Expected YAML parsing error, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"port too small", func(s *Settings) { s.Port = 0 }},
		{"port too large", func(s *Settings) { s.Port = 70000 }},
		{"ipv4 prefix out of range", func(s *Settings) { s.IPv4BlockPrefix = 33 }},
		{"ipv6 prefix out of range", func(s *Settings) { s.IPv6BlockPrefix = 129 }},
		{"negative ipv4 prefix", func(s *Settings) { s.IPv4BlockPrefix = -1 }},
		{"zero compact target", func(s *Settings) { s.CompactTargetMax = 0 }},
		{"compact min prefix v4 out of range", func(s *Settings) { s.CompactMinPrefixV4 = 40 }},
		{"compact min prefix v6 out of range", func(s *Settings) { s.CompactMinPrefixV6 = 200 }},
		{"unknown log level", func(s *Settings) { s.LogLevel = "chatty" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := DefaultSettings()
			tt.mutate(&settings)
			if err := settings.Validate(); err == nil {
				t.Errorf("Expected validation error, got nil")
			}
		})
	}

	valid := DefaultSettings()
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		settings := DefaultSettings()
		settings.LogLevel = tt.level
		if got := settings.SlogLevel(); got != tt.expected {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.level, got, tt.expected)
		}
	}
}
