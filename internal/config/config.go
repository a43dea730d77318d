// Package config holds all taskclaw configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the root configuration document (JSON file).
type Config struct {
	Server      ServerConfig               `json:"server"`
	Models      ModelsConfig               `json:"models"`
	Specialists []SpecialistConfig         `json:"specialists"`
	Sandbox     SandboxConfig              `json:"sandbox"`
	Retention   RetentionConfig            `json:"retention"`
	Events      EventsConfig               `json:"events"`
	Features    map[string]*bool           `json:"features,omitempty"`
	MCPServers  string                     `json:"mcpServers,omitempty"` // path to mcp.yaml
	PacksDir    string                     `json:"packsDir,omitempty"`   // packs.d manifests
}

// ServerConfig covers the HTTP API and on-disk layout.
type ServerConfig struct {
	Port          int    `json:"port"`
	WorkspaceRoot string `json:"workspaceRoot"`
	LogLevel      string `json:"logLevel"`
	RateLimitRPM  int    `json:"rateLimitRpm"`
	APIKeyHash    string `json:"apiKeyHash,omitempty"` // bcrypt hash of a static API key
}

// ModelsConfig maps model profile keys ("quality", "fast") to settings.
type ModelsConfig struct {
	Profiles map[string]ModelConfig `json:"profiles"`
}

// ModelConfig describes one model profile.
type ModelConfig struct {
	Backend  string         `json:"backend"` // "openai", "lenient", "inprocess"
	BaseURL  string         `json:"baseUrl"`
	APIKey   string         `json:"apiKey,omitempty"`
	Model    string         `json:"model"`
	TimeoutS float64        `json:"timeoutS,omitempty"`
	Fallback FallbackConfig `json:"fallback,omitempty"`
}

// FallbackConfig wires the cloud-fallback decorator for one profile.
// An empty mode disables fallback entirely.
type FallbackConfig struct {
	Mode         string `json:"mode,omitempty"` // no_tool_calls, malformed_args, always
	CloudModel   string `json:"cloudModel,omitempty"`
	CloudBaseURL string `json:"cloudBaseUrl,omitempty"`
	CloudAPIKey  string `json:"cloudApiKey,omitempty"`
}

// SpecialistConfig declares one routable specialist. Order matters: the
// recruiter breaks scoring ties in favour of the first-listed specialist.
type SpecialistConfig struct {
	ID       string   `json:"id"`
	Keywords []string `json:"keywords"`
}

// SandboxConfig is parsed from the config file, but packs do not read
// it: each run's sandbox uses the built-in defaults of internal/sandbox.
type SandboxConfig struct {
	AllowedCommands []string `json:"allowedCommands,omitempty"`
	MaxOutputChars  int      `json:"maxOutputChars,omitempty"`
}

// RetentionConfig controls the run janitor.
type RetentionConfig struct {
	Enabled    bool   `json:"enabled"`
	Schedule   string `json:"schedule"` // cron spec
	MaxAgeDays int    `json:"maxAgeDays"`
}

// EventsConfig wires the optional MQTT run-lifecycle publisher.
type EventsConfig struct {
	MQTT MQTTConfig `json:"mqtt,omitempty"`
}

// MQTTConfig is the broker connection for event publishing.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"brokerUrl,omitempty"`
	Topic     string `json:"topic,omitempty"`
	ClientID  string `json:"clientId,omitempty"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
}

// DefaultConfig returns a sensible default configuration: lenient local
// backend on the standard Ollama port, engineering-before-research
// specialists, janitor off.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          8787,
			WorkspaceRoot: ".taskclaw",
			LogLevel:      "info",
			RateLimitRPM:  60,
		},
		Models: ModelsConfig{
			Profiles: map[string]ModelConfig{
				"quality": {
					Backend:  "lenient",
					BaseURL:  "http://localhost:11434/v1",
					Model:    "qwen2.5:14b",
					TimeoutS: 360,
				},
				"fast": {
					Backend:  "lenient",
					BaseURL:  "http://localhost:11434/v1",
					Model:    "qwen2.5:7b",
					TimeoutS: 120,
				},
			},
		},
		Specialists: []SpecialistConfig{
			{
				ID: "engineering",
				Keywords: []string{
					"build", "implement", "code", "service", "pipeline",
					"kubernetes", "deploy", "compile", "test", "script",
				},
			},
			{
				ID: "research",
				Keywords: []string{
					"research", "literature", "paper", "survey", "summarise",
					"summarize", "compare", "investigate", "review",
				},
			},
		},
		Sandbox: SandboxConfig{},
		Retention: RetentionConfig{
			Enabled:    false,
			Schedule:   "0 3 * * *",
			MaxAgeDays: 30,
		},
	}
}

// Load reads config from a JSON file, layered over DefaultConfig. The
// workspace root is created if missing.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := os.MkdirAll(cfg.Server.WorkspaceRoot, 0o750); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return cfg, nil
}

// Save writes config to a JSON file, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o640)
}

// Profile resolves a model profile by key.
func (c *Config) Profile(key string) (ModelConfig, error) {
	mc, ok := c.Models.Profiles[key]
	if !ok {
		return ModelConfig{}, fmt.Errorf("unknown model profile %q (configure models.profiles.%s)", key, key)
	}
	return mc, nil
}
