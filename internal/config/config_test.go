package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimalConfig = `debug: false
database:
  host: "localhost"
  dbname: "monitor"
elasticsearch:
  url: "http://localhost:9200"
generation:
  url: "http://localhost:8090"
monitor:
  auth_token: "secret"
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Address != ":8085" {
		t.Errorf("Server.Address = %q, want %q", cfg.Server.Address, ":8085")
	}
	if cfg.Monitor.RunDeadline != 4*time.Minute {
		t.Errorf("Monitor.RunDeadline = %v, want %v", cfg.Monitor.RunDeadline, 4*time.Minute)
	}
	if cfg.Monitor.RetryBackoff != 15*time.Minute {
		t.Errorf("Monitor.RetryBackoff = %v, want %v", cfg.Monitor.RetryBackoff, 15*time.Minute)
	}
	if cfg.Database.Port != "5432" {
		t.Errorf("Database.Port = %q, want %q", cfg.Database.Port, "5432")
	}
	if cfg.Elasticsearch.Index != "pipeline_content" {
		t.Errorf("Elasticsearch.Index = %q, want %q", cfg.Elasticsearch.Index, "pipeline_content")
	}
}

func TestLoadMissingRequiredFields(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{
			name:     "missing database host",
			contents: "elasticsearch:\n  url: \"http://localhost:9200\"\n",
		},
		{
			name:     "missing auth token",
			contents: "database:\n  host: \"localhost\"\n  dbname: \"monitor\"\nelasticsearch:\n  url: \"http://localhost:9200\"\ngeneration:\n  url: \"http://localhost:8090\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeTempConfig(t, tt.contents)); err == nil {
				t.Error("Load() expected error, got nil")
			}
		})
	}
}

func TestConfigDebugFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected bool
	}{
		{"true from env", "true", true},
		{"1 from env", "1", true},
		{"yes from env", "yes", true},
		{"false from env", "false", false},
		{"0 from env", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("APP_DEBUG", tt.envValue)

			cfg, err := Load(writeTempConfig(t, minimalConfig))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Debug != tt.expected {
				t.Errorf("Config.Debug = %v, want %v (APP_DEBUG=%q)", cfg.Debug, tt.expected, tt.envValue)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MONITOR_AUTH_TOKEN", "override-token")
	t.Setenv("MONITOR_PORT", "9191")
	t.Setenv("GENERATION_URL", "http://generation.internal")

	cfg, err := Load(writeTempConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Monitor.AuthToken != "override-token" {
		t.Errorf("Monitor.AuthToken = %q, want %q", cfg.Monitor.AuthToken, "override-token")
	}
	if cfg.Server.Address != ":9191" {
		t.Errorf("Server.Address = %q, want %q", cfg.Server.Address, ":9191")
	}
	if cfg.Generation.URL != "http://generation.internal" {
		t.Errorf("Generation.URL = %q, want %q", cfg.Generation.URL, "http://generation.internal")
	}
}

func TestCapFor(t *testing.T) {
	m := MonitorConfig{TypeCaps: map[string]int{"missing_output": 10}}

	if got := m.CapFor("missing_output"); got != 10 {
		t.Errorf("CapFor(missing_output) = %d, want 10", got)
	}
	if got := m.CapFor("missed_delivery"); got != defaultTypeCap {
		t.Errorf("CapFor(missed_delivery) = %d, want default %d", got, defaultTypeCap)
	}
}
