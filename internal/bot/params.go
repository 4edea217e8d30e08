package bot

// Parameter defaults match the shipped strategy template.
const (
	DefaultRSIPeriod         = 14
	DefaultRSIOversold       = 30
	DefaultRSIOverbought     = 70
	DefaultStopLoss          = -0.05
	DefaultTakeProfit        = 0.10
	DefaultMaxPositionSize   = 100.0
	DefaultNewsCheckInterval = 3600
	DefaultMinImpactScore    = 0.3
)

// Params is the validated per-bot trading configuration handed to the
// execution engine and the decision engine. Every field is explicit and
// enumerated so malformed input is caught at create time instead of
// surfacing inside a running bot.
type Params struct {
	RSIPeriod     int `json:"rsi_period" mapstructure:"rsi_period"`
	RSIOversold   int `json:"rsi_oversold" mapstructure:"rsi_oversold"`
	RSIOverbought int `json:"rsi_overbought" mapstructure:"rsi_overbought"`

	StopLoss        float64 `json:"stop_loss" mapstructure:"stop_loss"`
	TakeProfit      float64 `json:"take_profit" mapstructure:"take_profit"`
	MaxPositionSize float64 `json:"max_position_size" mapstructure:"max_position_size"`

	EnableAIAnalysis  bool    `json:"enable_ai_analysis" mapstructure:"enable_ai_analysis"`
	NewsCheckInterval int     `json:"news_check_interval" mapstructure:"news_check_interval"` // seconds
	MinImpactScore    float64 `json:"min_impact_score" mapstructure:"min_impact_score"`
}

// DefaultParams returns the template defaults with AI gating enabled.
func DefaultParams() Params {
	return Params{
		RSIPeriod:         DefaultRSIPeriod,
		RSIOversold:       DefaultRSIOversold,
		RSIOverbought:     DefaultRSIOverbought,
		StopLoss:          DefaultStopLoss,
		TakeProfit:        DefaultTakeProfit,
		MaxPositionSize:   DefaultMaxPositionSize,
		EnableAIAnalysis:  true,
		NewsCheckInterval: DefaultNewsCheckInterval,
		MinImpactScore:    DefaultMinImpactScore,
	}
}

// ApplyDefaults fills zero values so partial operator input is usable.
// EnableAIAnalysis is left alone: false is a meaningful choice.
func (p *Params) ApplyDefaults() {
	if p.RSIPeriod == 0 {
		p.RSIPeriod = DefaultRSIPeriod
	}
	if p.RSIOversold == 0 {
		p.RSIOversold = DefaultRSIOversold
	}
	if p.RSIOverbought == 0 {
		p.RSIOverbought = DefaultRSIOverbought
	}
	if p.StopLoss == 0 {
		p.StopLoss = DefaultStopLoss
	}
	if p.TakeProfit == 0 {
		p.TakeProfit = DefaultTakeProfit
	}
	if p.MaxPositionSize == 0 {
		p.MaxPositionSize = DefaultMaxPositionSize
	}
	if p.NewsCheckInterval == 0 {
		p.NewsCheckInterval = DefaultNewsCheckInterval
	}
	if p.MinImpactScore == 0 {
		p.MinImpactScore = DefaultMinImpactScore
	}
}

// Validate checks ranges. Live mode is stricter: a live bot must carry a
// protective stop loss and a bounded position size.
func (p *Params) Validate(mode Mode) error {
	if p.RSIPeriod < 2 || p.RSIPeriod > 100 {
		return &ValidationError{Field: "rsi_period", Reason: "must be between 2 and 100"}
	}
	if p.RSIOversold < 1 || p.RSIOversold > 50 {
		return &ValidationError{Field: "rsi_oversold", Reason: "must be between 1 and 50"}
	}
	if p.RSIOverbought < 50 || p.RSIOverbought > 99 {
		return &ValidationError{Field: "rsi_overbought", Reason: "must be between 50 and 99"}
	}
	if p.RSIOversold >= p.RSIOverbought {
		return &ValidationError{Field: "rsi_oversold", Reason: "must be below rsi_overbought"}
	}
	if p.StopLoss >= 0 || p.StopLoss < -1 {
		return &ValidationError{Field: "stop_loss", Reason: "must be in [-1, 0)"}
	}
	if p.TakeProfit <= 0 || p.TakeProfit > 10 {
		return &ValidationError{Field: "take_profit", Reason: "must be in (0, 10]"}
	}
	if p.MaxPositionSize <= 0 {
		return &ValidationError{Field: "max_position_size", Reason: "must be positive"}
	}
	if mode == ModeLive && p.MaxPositionSize > 100_000 {
		return &ValidationError{Field: "max_position_size", Reason: "live bots are capped at 100000"}
	}
	if p.NewsCheckInterval < 60 {
		return &ValidationError{Field: "news_check_interval", Reason: "must be at least 60 seconds"}
	}
	if p.MinImpactScore < 0 || p.MinImpactScore > 1 {
		return &ValidationError{Field: "min_impact_score", Reason: "must be in [0, 1]"}
	}
	return nil
}
