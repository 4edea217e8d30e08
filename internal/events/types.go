// Package events provides the in-memory bus carrying bot lifecycle
// notifications from the manager to interested subscribers (API push,
// audit logging).
package events

import (
	"time"

	"github.com/rustamli/aitrader/internal/bot"
)

// EventType identifies a lifecycle notification.
type EventType string

const (
	BotCreated      EventType = "bot.created"
	BotStateChanged EventType = "bot.state_changed"
	BotDeleted      EventType = "bot.deleted"

	ReconcileCompleted EventType = "reconcile.completed"
)

// Event is the base interface for all bus events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.EventTime }

// BotCreatedEvent is emitted after a record is persisted in created.
type BotCreatedEvent struct {
	BaseEvent
	BotID string
	Name  string
	Pair  string
	Mode  bot.Mode
}

// BotStateChangedEvent is emitted after every persisted state transition.
type BotStateChangedEvent struct {
	BaseEvent
	BotID  string
	Name   string
	From   bot.State
	To     bot.State
	Reason string
}

// BotDeletedEvent is emitted after a record is removed.
type BotDeletedEvent struct {
	BaseEvent
	BotID string
	Name  string
}

// ReconcileCompletedEvent is emitted after each repair pass.
type ReconcileCompletedEvent struct {
	BaseEvent
	Checked  int
	Adopted  int
	Orphaned int
}
