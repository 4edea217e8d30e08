// =================================
// File: internal/agent/config.go
// =================================
package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rustamli/aitrader/internal/bot"
)

// Config is the per-bot configuration file materialized by the orchestrator
// at container launch. It carries everything the execution engine and the
// decision engine need, so the container is fully parameterized by one file
// plus its identity env vars.
type Config struct {
	BotID     string     `json:"bot_id"`
	Name      string     `json:"name"`
	Pair      string     `json:"pair"`
	Timeframe string     `json:"timeframe"`
	DryRun    bool       `json:"dry_run"`
	Params    bot.Params `json:"params"`

	Services ServiceEndpoints `json:"services"`
}

// ServiceEndpoints are the external services handed to every bot: the
// signal providers plus the audit database.
type ServiceEndpoints struct {
	NewsURL    string `json:"news_url"`
	NewsAPIKey string `json:"news_api_key,omitempty"`

	MemoryURL   string `json:"memory_url"`
	MemoryToken string `json:"memory_token,omitempty"`

	LLMPrimaryModel   string `json:"llm_primary_model"`
	LLMPrimaryURL     string `json:"llm_primary_url"`
	LLMPrimaryAPIKey  string `json:"llm_primary_api_key,omitempty"`
	LLMFallbackModel  string `json:"llm_fallback_model,omitempty"`
	LLMFallbackURL    string `json:"llm_fallback_url,omitempty"`
	LLMFallbackAPIKey string `json:"llm_fallback_api_key,omitempty"`

	DatabaseURL string `json:"database_url,omitempty"`
}

// LoadConfig reads and validates the materialized config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse agent config: %w", err)
	}
	return &cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.BotID == "" {
		return errors.New("missing bot_id in agent config")
	}
	if c.Pair == "" {
		return errors.New("missing pair in agent config")
	}
	if c.Timeframe == "" {
		return errors.New("missing timeframe in agent config")
	}
	c.Params.ApplyDefaults()
	mode := bot.ModeLive
	if c.DryRun {
		mode = bot.ModeDemo
	}
	return c.Params.Validate(mode)
}
