package agent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustamli/aitrader/internal/bot"
)

func TestParseTimeframe(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"30s", 30 * time.Second, false},
		{"15m", 15 * time.Minute, false},
		{"1h", time.Hour, false},
		{"4h", 4 * time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{" 1H ", time.Hour, false},
		{"", 0, true},
		{"m", 0, true},
		{"0m", 0, true},
		{"-5m", 0, true},
		{"15x", 0, true},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeframe(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRandomWalkFeed(t *testing.T) {
	feed := NewRandomWalkFeed(100.0, 42)

	closes, err := feed.Candles(context.Background(), "BTC/USDT", "15m", 30)
	require.NoError(t, err)
	require.Len(t, closes, 30)
	for _, c := range closes {
		assert.Greater(t, c, 0.0)
	}

	// The walk continues across calls.
	next, err := feed.Candles(context.Background(), "BTC/USDT", "15m", 30)
	require.NoError(t, err)
	assert.NotEqual(t, closes, next)
}

func TestRandomWalkFeedRejectsBadLimit(t *testing.T) {
	feed := NewRandomWalkFeed(100.0, 42)
	_, err := feed.Candles(context.Background(), "BTC/USDT", "15m", 0)
	assert.Error(t, err)
}

func writeConfig(t *testing.T, cfg Config) string {
	t.Helper()
	data, err := json.MarshalIndent(cfg, "", "  ")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "bot_config.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, Config{
		BotID:     "bot-1",
		Name:      "alpha",
		Pair:      "BTC/USDT",
		Timeframe: "15m",
		DryRun:    true,
		Params:    bot.DefaultParams(),
	})

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "bot-1", cfg.BotID)
	assert.Equal(t, "BTC/USDT", cfg.Pair)
	assert.True(t, cfg.DryRun)
}

func TestLoadConfigAppliesParamDefaults(t *testing.T) {
	path := writeConfig(t, Config{
		BotID:     "bot-1",
		Name:      "alpha",
		Pair:      "BTC/USDT",
		Timeframe: "15m",
		DryRun:    true,
	})

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, bot.DefaultRSIPeriod, cfg.Params.RSIPeriod)
	assert.Equal(t, bot.DefaultNewsCheckInterval, cfg.Params.NewsCheckInterval)
}

func TestLoadConfigRejectsMissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing bot id", func(c *Config) { c.BotID = "" }},
		{"missing pair", func(c *Config) { c.Pair = "" }},
		{"missing timeframe", func(c *Config) { c.Timeframe = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				BotID:     "bot-1",
				Name:      "alpha",
				Pair:      "BTC/USDT",
				Timeframe: "15m",
				Params:    bot.DefaultParams(),
			}
			tt.mutate(&cfg)
			_, err := LoadConfig(writeConfig(t, cfg))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
