// Package storage persists bot records and the local signal audit trail.
// The bot record table is the durable source of truth for the control
// plane; it must survive restarts while process handles do not.
package storage

import (
	"context"

	"github.com/rustamli/aitrader/internal/bot"
	"github.com/rustamli/aitrader/internal/signal"
)

// Store is the persistence boundary used by the lifecycle manager.
// Implementations return *bot.NotFoundError for unknown ids.
type Store interface {
	CreateBot(ctx context.Context, record *bot.Record) error
	GetBot(ctx context.Context, id string) (*bot.Record, error)
	GetBotByName(ctx context.Context, name string) (*bot.Record, error)
	ListBots(ctx context.Context) ([]*bot.Record, error)
	UpdateBot(ctx context.Context, record *bot.Record) error
	DeleteBot(ctx context.Context, id string) error

	// Signal audit trail, local mirror of shared-memory write-backs.
	SaveSignal(ctx context.Context, event *signal.Event) error
	ListSignals(ctx context.Context, botID string, limit int) ([]*signal.Event, error)

	RunMigrations() error
	Close() error
}
