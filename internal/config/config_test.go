package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFromFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".coachd")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	raw := `{
		"providers": {
			"fast": {"type": "openai", "apiKey": "sk-file", "model": "gpt-4o-mini"},
			"premium": {"type": "anthropic", "model": "claude-sonnet-4-5-20250929"}
		},
		"orchestrator": {"maxToolIterations": 8},
		"server": {"port": 9000}
	}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(raw), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Providers.Fast.APIKey != "sk-file" {
		t.Errorf("fast api key = %q", cfg.Providers.Fast.APIKey)
	}
	if cfg.Orchestrator.MaxToolIterations != 8 {
		t.Errorf("max tool iterations = %d", cfg.Orchestrator.MaxToolIterations)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	// Fields the file omits keep their defaults.
	if cfg.Memory.WorkingSetSize != DefaultMemoryWorkingSet {
		t.Errorf("working set = %d", cfg.Memory.WorkingSetSize)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("COACHD_FAST_API_KEY", "sk-env")
	t.Setenv("COACHD_PORT", "7777")
	t.Setenv("COACHD_DB_PATH", "/tmp/override.db")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Providers.Fast.APIKey != "sk-env" {
		t.Errorf("fast api key = %q", cfg.Providers.Fast.APIKey)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.DBPath != "/tmp/override.db" {
		t.Errorf("db path = %q", cfg.DBPath)
	}
}

func TestApplyFloors(t *testing.T) {
	cfg := &Config{}
	cfg.Orchestrator.MaxToolIterations = -1
	cfg.Memory.TokenBudget = 0
	cfg.Guard.RateLimitPerMin = 0
	cfg.applyFloors()

	if cfg.Orchestrator.MaxToolIterations != DefaultMaxToolIterations {
		t.Errorf("max tool iterations = %d", cfg.Orchestrator.MaxToolIterations)
	}
	if cfg.Memory.TokenBudget != DefaultMemoryTokenBudget {
		t.Errorf("token budget = %d", cfg.Memory.TokenBudget)
	}
	if cfg.Guard.RateLimitPerMin != DefaultRateLimitPerMin {
		t.Errorf("rate limit = %d", cfg.Guard.RateLimitPerMin)
	}
	if cfg.Orchestrator.DefaultLanguage != DefaultLanguage {
		t.Errorf("language = %q", cfg.Orchestrator.DefaultLanguage)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.Providers.Fast.APIKey = "sk-saved"
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Providers.Fast.APIKey != "sk-saved" {
		t.Errorf("api key = %q", loaded.Providers.Fast.APIKey)
	}
}
