package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jyasuu/llm-playground/internal/mcp"
	"github.com/jyasuu/llm-playground/internal/tools"
)

const defaultSystemPrompt = "You are a helpful assistant that responds in markdown format. Always be concise and to the point."

// ProviderConfig holds the credentials and model for one backend.
type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model"`
}

// SharedSettings are the generation parameters common to every provider.
type SharedSettings struct {
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	RetryDelayMS int     `json:"retry_delay"`
}

// FunctionToolConfig is the persisted form of one tool definition.
type FunctionToolConfig struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Parameters   map[string]any `json:"parameters"`
	MockResponse string         `json:"mock_response,omitempty"`
	Enabled      bool           `json:"enabled"`
	Category     string         `json:"category,omitempty"`
	IsBuiltin    bool           `json:"is_builtin,omitempty"`
}

// Config is the full playground configuration.
type Config struct {
	CurrentProvider string                    `json:"current_provider"`
	Providers       map[string]ProviderConfig `json:"providers"`
	SharedSettings  SharedSettings            `json:"shared_settings"`
	SystemPrompt    string                    `json:"system_prompt"`
	FunctionTools   []FunctionToolConfig      `json:"function_tools"`
	MCPServers      []mcp.ServerConfig        `json:"mcp_servers,omitempty"`

	// ListenAddr is the HTTP bind address for the web gateway.
	ListenAddr string `json:"listen_addr,omitempty"`
	// DatabasePath enables SQLite persistence when set.
	DatabasePath string `json:"database_path,omitempty"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`
}

// Default returns the configuration used when no file exists yet.
func Default() *Config {
	return &Config{
		CurrentProvider: "gemini",
		Providers: map[string]ProviderConfig{
			"gemini": {
				Model: "gemini-2.0-flash",
			},
			"openai": {
				BaseURL: "https://api.openai.com/v1",
				Model:   "gpt-4o",
			},
			"anthropic": {
				Model: "claude-sonnet-4-20250514",
			},
		},
		SharedSettings: SharedSettings{
			Temperature:  0.7,
			MaxTokens:    2048,
			RetryDelayMS: 2000,
		},
		SystemPrompt:  defaultSystemPrompt,
		FunctionTools: defaultFunctionTools(),
		ListenAddr:    ":8080",
		LogLevel:      "info",
	}
}

func defaultFunctionTools() []FunctionToolConfig {
	fetch := tools.FetchDefinition()
	return []FunctionToolConfig{
		{
			Name:        fetch.Name,
			Description: fetch.Description,
			Parameters:  fetch.Parameters,
			Enabled:     true,
			Category:    "Web",
			IsBuiltin:   true,
		},
		{
			Name:        "get_weather",
			Description: "Retrieves weather data for a specified location with temperature unit options.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"location": map[string]any{
						"type":        "string",
						"description": "The location to get weather for",
					},
					"unit": map[string]any{
						"type":        "string",
						"enum":        []string{"celsius", "fahrenheit"},
						"description": "Temperature unit",
					},
				},
				"required": []string{"location"},
			},
			MockResponse: `{"temperature": 22, "condition": "sunny", "humidity": 65, "wind_speed": 5, "location": "San Francisco, CA"}`,
			Enabled:      true,
			Category:     "Weather",
		},
	}
}

// Load reads the configuration from path. A missing file yields the default
// configuration without error so first runs work out of the box.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the configuration to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.SharedSettings.Temperature == 0 {
		c.SharedSettings.Temperature = 0.7
	}
	if c.SharedSettings.MaxTokens == 0 {
		c.SharedSettings.MaxTokens = 2048
	}
	if c.SharedSettings.RetryDelayMS == 0 {
		c.SharedSettings.RetryDelayMS = 2000
	}
	if strings.TrimSpace(c.SystemPrompt) == "" {
		c.SystemPrompt = defaultSystemPrompt
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Providers == nil {
		c.Providers = Default().Providers
	}
	if len(c.FunctionTools) == 0 {
		c.FunctionTools = defaultFunctionTools()
	}
}

// CurrentProviderConfig returns the active provider's settings.
func (c *Config) CurrentProviderConfig() (ProviderConfig, error) {
	provider, ok := c.Providers[c.CurrentProvider]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("provider %q is not configured", c.CurrentProvider)
	}
	return provider, nil
}

// ToolDefinitions converts the configured function tools into registry
// definitions. Builtin entries map onto the real implementation; everything
// else becomes a static mock.
func (c *Config) ToolDefinitions() []tools.Definition {
	defs := make([]tools.Definition, 0, len(c.FunctionTools))
	for _, ft := range c.FunctionTools {
		kind := tools.KindMockStatic
		if ft.IsBuiltin {
			kind = tools.KindBuiltin
		}
		defs = append(defs, tools.Definition{
			Name:        ft.Name,
			Description: ft.Description,
			Kind:        kind,
			Parameters:  ft.Parameters,
			MockPayload: ft.MockResponse,
			Enabled:     ft.Enabled,
		})
	}
	return defs
}
