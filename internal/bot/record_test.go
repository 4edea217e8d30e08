package bot

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSpec() Spec {
	return Spec{
		Name:      "btc-scalper",
		Pair:      "BTC/USDT",
		Timeframe: "15m",
		Mode:      ModeDemo,
		Params:    DefaultParams(),
	}
}

func TestSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Spec)
		wantErr string
	}{
		{"valid spec", func(s *Spec) {}, ""},
		{"missing name", func(s *Spec) { s.Name = "" }, "name"},
		{"name with spaces", func(s *Spec) { s.Name = "my bot" }, "name"},
		{"name with slash", func(s *Spec) { s.Name = "a/b" }, "name"},
		{"missing pair", func(s *Spec) { s.Pair = "" }, "pair"},
		{"malformed pair", func(s *Spec) { s.Pair = "BTCUSDT" }, "pair"},
		{"bad timeframe", func(s *Spec) { s.Timeframe = "soon" }, "timeframe"},
		{"bad mode", func(s *Spec) { s.Mode = "paper" }, "mode"},
		{"bad rsi period", func(s *Spec) { s.Params.RSIPeriod = 1 }, "rsi_period"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(&spec)
			err := spec.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.wantErr, validationErr.Field)
		})
	}
}

func TestSpecValidateAppliesDefaults(t *testing.T) {
	spec := Spec{Name: "eth-swing", Pair: "ETH/USDT"}
	require.NoError(t, spec.Validate())

	assert.Equal(t, "15m", spec.Timeframe)
	assert.Equal(t, ModeDemo, spec.Mode)
	assert.Equal(t, DefaultRSIPeriod, spec.Params.RSIPeriod)
	assert.Equal(t, DefaultNewsCheckInterval, spec.Params.NewsCheckInterval)
}

func TestParamsValidateLiveCap(t *testing.T) {
	params := DefaultParams()
	params.MaxPositionSize = 250_000

	require.NoError(t, params.Validate(ModeDemo))

	err := params.Validate(ModeLive)
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "max_position_size", validationErr.Field)
}

func TestParamsValidateRanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
		field  string
	}{
		{"positive stop loss", func(p *Params) { p.StopLoss = 0.05 }, "stop_loss"},
		{"oversold above overbought", func(p *Params) { p.RSIOversold = 50; p.RSIOverbought = 50 }, "rsi_oversold"},
		{"interval too short", func(p *Params) { p.NewsCheckInterval = 30 }, "news_check_interval"},
		{"impact out of range", func(p *Params) { p.MinImpactScore = 1.5 }, "min_impact_score"},
		{"zero position size", func(p *Params) { p.MaxPositionSize = -1 }, "max_position_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := DefaultParams()
			tt.mutate(&params)
			err := params.Validate(ModeDemo)
			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}
