package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultFastModel    = "gpt-4o-mini"
	DefaultPremiumModel = "claude-sonnet-4-5-20250929"

	DefaultMaxTokens         = 2048
	DefaultMaxToolIterations = 5
	DefaultToolConcurrency   = 5
	DefaultToolTimeoutSec    = 10
	DefaultProviderTimeout   = 45

	DefaultHost = "0.0.0.0"
	DefaultPort = 18620

	DefaultMemoryWorkingSet  = 10
	DefaultMemoryTokenBudget = 3000

	DefaultRateLimitPerMin = 10
	DefaultMaxMessageChars = 10000

	DefaultBrevityWordLimit = 220
	DefaultBrevityLineLimit = 24

	DefaultLanguage            = "en"
	DefaultLanguageCacheTTLSec = 300

	DefaultPendingLogTTLHours = 24
)

type Config struct {
	Providers    ProvidersConfig    `json:"providers"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Memory       MemoryConfig       `json:"memory"`
	Guard        GuardConfig        `json:"guard"`
	Server       ServerConfig       `json:"server"`
	DBPath       string             `json:"dbPath,omitempty"`
}

// ProvidersConfig maps the three model tiers. Fast handles classification,
// extraction and compression; Standard handles simple chat without tools;
// Premium handles complex chat with the full tool catalog. Standard falls
// back to Fast when left empty.
type ProvidersConfig struct {
	Fast     ProviderConfig  `json:"fast"`
	Standard *ProviderConfig `json:"standard,omitempty"`
	Premium  ProviderConfig  `json:"premium"`
}

type ProviderConfig struct {
	Type      string `json:"type,omitempty"` // "openai" or "anthropic"
	APIKey    string `json:"apiKey"`
	BaseURL   string `json:"baseUrl,omitempty"`
	Model     string `json:"model"`
	MaxTokens int    `json:"maxTokens,omitempty"`
	// Cost per million tokens, used only for per-turn cost accounting.
	InputCostPerMTok  float64 `json:"inputCostPerMTok,omitempty"`
	OutputCostPerMTok float64 `json:"outputCostPerMTok,omitempty"`
}

type OrchestratorConfig struct {
	MaxToolIterations   int    `json:"maxToolIterations"`
	ToolConcurrency     int    `json:"toolConcurrency"`
	ToolTimeoutSec      int    `json:"toolTimeoutSec"`
	ProviderTimeoutSec  int    `json:"providerTimeoutSec"`
	DefaultLanguage     string `json:"defaultLanguage"`
	LanguageCacheTTLSec int    `json:"languageCacheTtlSec"`
	PendingLogTTLHours  int    `json:"pendingLogTtlHours"`
	SlowAckEnabled      bool   `json:"slowAckEnabled"`
}

type MemoryConfig struct {
	WorkingSetSize int `json:"workingSetSize"`
	TokenBudget    int `json:"tokenBudget"`
}

type GuardConfig struct {
	RateLimitPerMin  int `json:"rateLimitPerMin"`
	MaxMessageChars  int `json:"maxMessageChars"`
	BrevityWordLimit int `json:"brevityWordLimit"`
	BrevityLineLimit int `json:"brevityLineLimit"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func DefaultConfig() *Config {
	return &Config{
		Providers: ProvidersConfig{
			Fast: ProviderConfig{
				Type:              "openai",
				Model:             DefaultFastModel,
				MaxTokens:         DefaultMaxTokens,
				InputCostPerMTok:  0.15,
				OutputCostPerMTok: 0.60,
			},
			Premium: ProviderConfig{
				Type:              "anthropic",
				Model:             DefaultPremiumModel,
				MaxTokens:         DefaultMaxTokens,
				InputCostPerMTok:  3.0,
				OutputCostPerMTok: 15.0,
			},
		},
		Orchestrator: OrchestratorConfig{
			MaxToolIterations:   DefaultMaxToolIterations,
			ToolConcurrency:     DefaultToolConcurrency,
			ToolTimeoutSec:      DefaultToolTimeoutSec,
			ProviderTimeoutSec:  DefaultProviderTimeout,
			DefaultLanguage:     DefaultLanguage,
			LanguageCacheTTLSec: DefaultLanguageCacheTTLSec,
			PendingLogTTLHours:  DefaultPendingLogTTLHours,
			SlowAckEnabled:      true,
		},
		Memory: MemoryConfig{
			WorkingSetSize: DefaultMemoryWorkingSet,
			TokenBudget:    DefaultMemoryTokenBudget,
		},
		Guard: GuardConfig{
			RateLimitPerMin:  DefaultRateLimitPerMin,
			MaxMessageChars:  DefaultMaxMessageChars,
			BrevityWordLimit: DefaultBrevityWordLimit,
			BrevityLineLimit: DefaultBrevityLineLimit,
		},
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".coachd")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("COACHD_FAST_API_KEY"); key != "" {
		cfg.Providers.Fast.APIKey = key
	}
	if key := os.Getenv("COACHD_PREMIUM_API_KEY"); key != "" {
		cfg.Providers.Premium.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Providers.Fast.APIKey == "" {
		cfg.Providers.Fast.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Providers.Premium.APIKey == "" {
		cfg.Providers.Premium.APIKey = key
	}
	if url := os.Getenv("COACHD_FAST_BASE_URL"); url != "" {
		cfg.Providers.Fast.BaseURL = url
	}
	if url := os.Getenv("COACHD_PREMIUM_BASE_URL"); url != "" {
		cfg.Providers.Premium.BaseURL = url
	}
	if model := os.Getenv("COACHD_FAST_MODEL"); model != "" {
		cfg.Providers.Fast.Model = model
	}
	if model := os.Getenv("COACHD_PREMIUM_MODEL"); model != "" {
		cfg.Providers.Premium.Model = model
	}
	if dbPath := os.Getenv("COACHD_DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if port := os.Getenv("COACHD_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = parsed
		}
	}
	if budget := os.Getenv("COACHD_MEMORY_TOKEN_BUDGET"); budget != "" {
		if parsed, err := strconv.Atoi(budget); err == nil {
			cfg.Memory.TokenBudget = parsed
		}
	}
	if iters := os.Getenv("COACHD_MAX_TOOL_ITERATIONS"); iters != "" {
		if parsed, err := strconv.Atoi(iters); err == nil {
			cfg.Orchestrator.MaxToolIterations = parsed
		}
	}

	cfg.applyFloors()
	return cfg, nil
}

// applyFloors clamps zero or negative values back to defaults so a sparse
// config file cannot disable the loop bound or the memory floor.
func (c *Config) applyFloors() {
	if c.Orchestrator.MaxToolIterations <= 0 {
		c.Orchestrator.MaxToolIterations = DefaultMaxToolIterations
	}
	if c.Orchestrator.ToolConcurrency <= 0 {
		c.Orchestrator.ToolConcurrency = DefaultToolConcurrency
	}
	if c.Orchestrator.ToolTimeoutSec <= 0 {
		c.Orchestrator.ToolTimeoutSec = DefaultToolTimeoutSec
	}
	if c.Orchestrator.ProviderTimeoutSec <= 0 {
		c.Orchestrator.ProviderTimeoutSec = DefaultProviderTimeout
	}
	if c.Orchestrator.DefaultLanguage == "" {
		c.Orchestrator.DefaultLanguage = DefaultLanguage
	}
	if c.Orchestrator.LanguageCacheTTLSec <= 0 {
		c.Orchestrator.LanguageCacheTTLSec = DefaultLanguageCacheTTLSec
	}
	if c.Orchestrator.PendingLogTTLHours <= 0 {
		c.Orchestrator.PendingLogTTLHours = DefaultPendingLogTTLHours
	}
	if c.Memory.WorkingSetSize <= 0 {
		c.Memory.WorkingSetSize = DefaultMemoryWorkingSet
	}
	if c.Memory.TokenBudget <= 0 {
		c.Memory.TokenBudget = DefaultMemoryTokenBudget
	}
	if c.Guard.RateLimitPerMin <= 0 {
		c.Guard.RateLimitPerMin = DefaultRateLimitPerMin
	}
	if c.Guard.MaxMessageChars <= 0 {
		c.Guard.MaxMessageChars = DefaultMaxMessageChars
	}
	if c.Guard.BrevityWordLimit <= 0 {
		c.Guard.BrevityWordLimit = DefaultBrevityWordLimit
	}
	if c.Guard.BrevityLineLimit <= 0 {
		c.Guard.BrevityLineLimit = DefaultBrevityLineLimit
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port <= 0 {
		c.Server.Port = DefaultPort
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(ConfigDir(), "data", "coachd.db")
	}
}

// StandardProvider resolves the standard tier, falling back to the fast tier
// when no dedicated standard provider is configured.
func (c *Config) StandardProvider() ProviderConfig {
	if c.Providers.Standard != nil {
		return *c.Providers.Standard
	}
	return c.Providers.Fast
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
