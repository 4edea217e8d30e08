package runtime

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rustamli/aitrader/internal/agent"
	"github.com/rustamli/aitrader/internal/bot"
)

// materializeConfig writes the bot's agent config file under dir and returns
// its path. The file is rewritten on every start so parameter changes take
// effect on the next launch.
func materializeConfig(dir string, record *bot.Record, services agent.ServiceEndpoints) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}

	cfg := agent.Config{
		BotID:     record.ID,
		Name:      record.Name,
		Pair:      record.Pair,
		Timeframe: record.Timeframe,
		DryRun:    record.Mode == bot.ModeDemo,
		Params:    record.Params,
		Services:  services,
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}

	path := filepath.Join(dir, record.Name+"_config.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return path, nil
}
