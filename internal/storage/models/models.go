// Package models holds the gorm row types and their conversions to and
// from the domain structs. Only the storage layer imports this package.
package models

import (
	"time"

	"github.com/rustamli/aitrader/internal/bot"
	"github.com/rustamli/aitrader/internal/signal"
)

// BaseModel replaces gorm.Model for tighter control over column defaults.
type BaseModel struct {
	CreatedAt time.Time  `gorm:"default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time  `gorm:"default:CURRENT_TIMESTAMP"`
	DeletedAt *time.Time `gorm:"index"`
}

// BotInstance is one managed bot row.
type BotInstance struct {
	BaseModel
	ID        string `gorm:"primarykey;type:varchar(36)"`
	Name      string `gorm:"uniqueIndex;not null;type:varchar(100)"`
	Pair      string `gorm:"not null;type:varchar(20)"`
	Timeframe string `gorm:"not null;type:varchar(10)"`
	Mode      string `gorm:"not null;type:varchar(10)"`
	State     string `gorm:"not null;type:varchar(20);index"`

	ContainerID string `gorm:"type:varchar(100)"`
	ErrorReason string `gorm:"type:text"`

	StartedAt *time.Time
	StoppedAt *time.Time

	RSIPeriod         int     `gorm:"default:14"`
	RSIOversold       int     `gorm:"default:30"`
	RSIOverbought     int     `gorm:"default:70"`
	StopLoss          float64 `gorm:"type:decimal(6,4);default:-0.05"`
	TakeProfit        float64 `gorm:"type:decimal(6,4);default:0.10"`
	MaxPositionSize   float64 `gorm:"type:decimal(20,9);default:100"`
	EnableAIAnalysis  bool    `gorm:"default:true"`
	NewsCheckInterval int     `gorm:"default:3600"`
	MinImpactScore    float64 `gorm:"type:decimal(4,3);default:0.3"`
}

// TradingSignal is the local audit row for one engine evaluation.
type TradingSignal struct {
	BaseModel
	ID          uint      `gorm:"primarykey"`
	BotID       string    `gorm:"index;not null;type:varchar(36)"`
	Pair        string    `gorm:"index;not null;type:varchar(20)"`
	Timestamp   time.Time `gorm:"index;not null"`
	NewsDigest  string    `gorm:"type:text"`
	Sentiment   string    `gorm:"not null;type:varchar(10)"`
	ImpactScore float64   `gorm:"type:decimal(4,3)"`
	Confidence  float64   `gorm:"type:decimal(4,3)"`
	Rationale   string    `gorm:"type:text"`
	RSI         float64   `gorm:"type:decimal(6,2)"`
	Price       float64   `gorm:"type:decimal(20,9)"`
}

// FromRecord maps a domain record onto a row.
func FromRecord(r *bot.Record) *BotInstance {
	return &BotInstance{
		BaseModel:         BaseModel{CreatedAt: r.CreatedAt},
		ID:                r.ID,
		Name:              r.Name,
		Pair:              r.Pair,
		Timeframe:         r.Timeframe,
		Mode:              string(r.Mode),
		State:             string(r.State),
		ContainerID:       r.ContainerID,
		ErrorReason:       r.ErrorReason,
		StartedAt:         r.StartedAt,
		StoppedAt:         r.StoppedAt,
		RSIPeriod:         r.Params.RSIPeriod,
		RSIOversold:       r.Params.RSIOversold,
		RSIOverbought:     r.Params.RSIOverbought,
		StopLoss:          r.Params.StopLoss,
		TakeProfit:        r.Params.TakeProfit,
		MaxPositionSize:   r.Params.MaxPositionSize,
		EnableAIAnalysis:  r.Params.EnableAIAnalysis,
		NewsCheckInterval: r.Params.NewsCheckInterval,
		MinImpactScore:    r.Params.MinImpactScore,
	}
}

// ToRecord maps a row back to the domain record.
func (m *BotInstance) ToRecord() *bot.Record {
	return &bot.Record{
		ID:          m.ID,
		Name:        m.Name,
		Pair:        m.Pair,
		Timeframe:   m.Timeframe,
		Mode:        bot.Mode(m.Mode),
		State:       bot.State(m.State),
		ContainerID: m.ContainerID,
		ErrorReason: m.ErrorReason,
		CreatedAt:   m.CreatedAt,
		StartedAt:   m.StartedAt,
		StoppedAt:   m.StoppedAt,
		Params: bot.Params{
			RSIPeriod:         m.RSIPeriod,
			RSIOversold:       m.RSIOversold,
			RSIOverbought:     m.RSIOverbought,
			StopLoss:          m.StopLoss,
			TakeProfit:        m.TakeProfit,
			MaxPositionSize:   m.MaxPositionSize,
			EnableAIAnalysis:  m.EnableAIAnalysis,
			NewsCheckInterval: m.NewsCheckInterval,
			MinImpactScore:    m.MinImpactScore,
		},
	}
}

// FromEvent maps a signal event onto an audit row.
func FromEvent(e *signal.Event) *TradingSignal {
	return &TradingSignal{
		BotID:       e.BotID,
		Pair:        e.Pair,
		Timestamp:   e.Timestamp,
		NewsDigest:  e.NewsDigest,
		Sentiment:   string(e.Sentiment),
		ImpactScore: e.ImpactScore,
		Confidence:  e.Confidence,
		Rationale:   e.Rationale,
		RSI:         e.RSIAtEvaluation,
		Price:       e.PriceAtEvaluation,
	}
}

// ToEvent maps an audit row back to a signal event.
func (m *TradingSignal) ToEvent() *signal.Event {
	return &signal.Event{
		BotID:             m.BotID,
		Pair:              m.Pair,
		Timestamp:         m.Timestamp,
		NewsDigest:        m.NewsDigest,
		Sentiment:         signal.Sentiment(m.Sentiment),
		ImpactScore:       m.ImpactScore,
		Confidence:        m.Confidence,
		Rationale:         m.Rationale,
		RSIAtEvaluation:   m.RSI,
		PriceAtEvaluation: m.Price,
	}
}
