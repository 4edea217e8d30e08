package runtime

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustamli/aitrader/internal/agent"
	"github.com/rustamli/aitrader/internal/bot"
)

func TestMaterializeConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "configs")
	record := &bot.Record{
		ID:        "bot-1",
		Name:      "alpha",
		Pair:      "BTC/USDT",
		Timeframe: "15m",
		Mode:      bot.ModeDemo,
		Params:    bot.DefaultParams(),
		State:     bot.StateCreated,
		CreatedAt: time.Now(),
	}
	services := agent.ServiceEndpoints{
		NewsURL:         "http://news:3000",
		MemoryURL:       "http://memory:8000",
		LLMPrimaryModel: "gpt-4o-mini",
		LLMPrimaryURL:   "https://openrouter.ai/api",
		DatabaseURL:     "postgres://aitrader@db/aitrader",
	}

	path, err := materializeConfig(dir, record, services)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "alpha_config.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var cfg agent.Config
	require.NoError(t, json.Unmarshal(data, &cfg))
	assert.Equal(t, "bot-1", cfg.BotID)
	assert.Equal(t, "BTC/USDT", cfg.Pair)
	assert.True(t, cfg.DryRun, "demo mode materializes as dry run")
	assert.Equal(t, services, cfg.Services)
}

func TestMaterializeConfigLiveModeNotDryRun(t *testing.T) {
	dir := t.TempDir()
	record := &bot.Record{
		ID:     "bot-2",
		Name:   "live-bot",
		Pair:   "ETH/USDT",
		Mode:   bot.ModeLive,
		Params: bot.DefaultParams(),
	}

	path, err := materializeConfig(dir, record, agent.ServiceEndpoints{})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw agent.Config
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.False(t, raw.DryRun)
}

func TestMaterializeConfigOverwrites(t *testing.T) {
	dir := t.TempDir()
	record := &bot.Record{
		ID:        "bot-1",
		Name:      "alpha",
		Pair:      "BTC/USDT",
		Timeframe: "15m",
		Mode:      bot.ModeDemo,
		Params:    bot.DefaultParams(),
	}

	_, err := materializeConfig(dir, record, agent.ServiceEndpoints{})
	require.NoError(t, err)

	record.Params.RSIOversold = 25
	path, err := materializeConfig(dir, record, agent.ServiceEndpoints{})
	require.NoError(t, err)

	cfg, err := agent.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Params.RSIOversold, "restart picks up new parameters")
}
