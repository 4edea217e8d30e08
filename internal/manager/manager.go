// Package manager implements the bot lifecycle manager: the single
// authority over bot records and their process handles. All mutations go
// through its serialized per-id transition path; state is persisted before
// the corresponding side effect is acknowledged, so a crash mid-transition
// always leaves a record reconcile can repair deterministically.
package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rustamli/aitrader/internal/bot"
	"github.com/rustamli/aitrader/internal/events"
	"github.com/rustamli/aitrader/internal/runtime"
	"github.com/rustamli/aitrader/internal/signal"
	"github.com/rustamli/aitrader/internal/storage"
)

const (
	DefaultStartRetries      = 3
	DefaultStopGrace         = 10 * time.Second
	DefaultReconcileInterval = 60 * time.Second
)

// Config tunes the manager's timeouts and retry budget.
type Config struct {
	StartRetries      uint
	StopGrace         time.Duration
	ReconcileInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.StartRetries == 0 {
		c.StartRetries = DefaultStartRetries
	}
	if c.StopGrace == 0 {
		c.StopGrace = DefaultStopGrace
	}
	if c.ReconcileInterval == 0 {
		c.ReconcileInterval = DefaultReconcileInterval
	}
}

// Manager owns the bot record set and the process runtime.
type Manager struct {
	cfg     Config
	store   storage.Store
	runtime runtime.Runtime
	bus     *events.Bus
	logger  *zap.Logger
	locks   *idLocks
}

// New constructs a Manager. The event bus may be nil when no subscribers
// are wired.
func New(cfg Config, store storage.Store, rt runtime.Runtime, bus *events.Bus, logger *zap.Logger) *Manager {
	cfg.applyDefaults()
	return &Manager{
		cfg:     cfg,
		store:   store,
		runtime: rt,
		bus:     bus,
		logger:  logger.Named("manager"),
		locks:   newIDLocks(),
	}
}

// Create validates the spec, allocates an id and persists the record in
// the created state. No process is launched.
func (m *Manager) Create(ctx context.Context, spec bot.Spec) (*bot.Record, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	if _, err := m.store.GetBotByName(ctx, spec.Name); err == nil {
		return nil, &bot.ValidationError{Field: "name", Reason: fmt.Sprintf("bot %q already exists", spec.Name)}
	} else {
		var notFound *bot.NotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("check name uniqueness: %w", err)
		}
	}

	record := &bot.Record{
		ID:        uuid.NewString(),
		Name:      spec.Name,
		Pair:      spec.Pair,
		Timeframe: spec.Timeframe,
		Mode:      spec.Mode,
		Params:    spec.Params,
		State:     bot.StateCreated,
		CreatedAt: time.Now().UTC(),
	}

	if err := m.store.CreateBot(ctx, record); err != nil {
		return nil, fmt.Errorf("persist bot: %w", err)
	}

	m.publish(&events.BotCreatedEvent{
		BaseEvent: events.BaseEvent{EventType: events.BotCreated, EventTime: time.Now()},
		BotID:     record.ID,
		Name:      record.Name,
		Pair:      record.Pair,
		Mode:      record.Mode,
	})

	m.logger.Info("Bot created",
		zap.String("bot_id", record.ID),
		zap.String("name", record.Name),
		zap.String("pair", record.Pair),
		zap.String("mode", string(record.Mode)))
	return record, nil
}

// Start launches the bot's isolated process. Legal from created, stopped
// or error. Concurrent starts on the same id serialize; the loser sees the
// new state and fails with InvalidStateError.
func (m *Manager) Start(ctx context.Context, id string) (*bot.Record, error) {
	release := m.locks.Acquire(id)
	defer release()

	record, err := m.store.GetBot(ctx, id)
	if err != nil {
		return nil, err
	}

	switch record.State {
	case bot.StateCreated, bot.StateStopped, bot.StateError:
	default:
		return nil, &bot.InvalidStateError{ID: id, State: record.State, Op: "start"}
	}

	if err := m.setState(ctx, record, bot.StateStarting, ""); err != nil {
		return nil, err
	}

	containerID, err := m.spawnWithRetry(ctx, record)
	if err != nil {
		reason := fmt.Sprintf("launch failed after %d attempts: %v", m.cfg.StartRetries, err)
		if stateErr := m.setState(ctx, record, bot.StateError, reason); stateErr != nil {
			m.logger.Error("Failed to persist error state", zap.String("bot_id", id), zap.Error(stateErr))
		}
		return nil, &bot.RuntimeError{Op: "start", Err: err}
	}

	now := time.Now().UTC()
	record.ContainerID = containerID
	record.StartedAt = &now
	if err := m.setState(ctx, record, bot.StateRunning, ""); err != nil {
		return nil, err
	}

	m.logger.Info("Bot started",
		zap.String("bot_id", id),
		zap.String("container_id", containerID))
	return record, nil
}

// spawnWithRetry launches the process, retrying transient runtime errors a
// bounded number of times with exponential backoff.
func (m *Manager) spawnWithRetry(ctx context.Context, record *bot.Record) (string, error) {
	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.InitialInterval = time.Second
	backoffPolicy.MaxInterval = 10 * time.Second

	notify := func(err error, duration time.Duration) {
		m.logger.Warn("Retrying bot launch",
			zap.String("bot_id", record.ID),
			zap.Error(err),
			zap.Duration("backoff", duration))
	}

	operation := func() (string, error) {
		return m.runtime.Spawn(ctx, record)
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoffPolicy),
		backoff.WithMaxTries(m.cfg.StartRetries),
		backoff.WithNotify(notify))
}

// Stop terminates the bot's process gracefully, force-killing after the
// grace period. Legal from running or starting.
func (m *Manager) Stop(ctx context.Context, id string) (*bot.Record, error) {
	release := m.locks.Acquire(id)
	defer release()

	record, err := m.store.GetBot(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.stopLocked(ctx, record)
}

// stopLocked performs the stop transition. Caller holds the id lock.
func (m *Manager) stopLocked(ctx context.Context, record *bot.Record) (*bot.Record, error) {
	switch record.State {
	case bot.StateRunning, bot.StateStarting:
	default:
		return nil, &bot.InvalidStateError{ID: record.ID, State: record.State, Op: "stop"}
	}

	if err := m.setState(ctx, record, bot.StateStopping, ""); err != nil {
		return nil, err
	}

	// A crash between spawn and the running transition leaves a starting
	// record with no persisted handle while the process is alive. Recover
	// the handle by label before deciding there is nothing to terminate.
	if record.ContainerID == "" {
		handle, err := m.runtime.FindByBotID(ctx, record.ID)
		if err != nil {
			m.logger.Warn("Handle lookup failed on stop",
				zap.String("bot_id", record.ID), zap.Error(err))
		} else if handle != nil {
			record.ContainerID = handle.ContainerID
			m.logger.Info("Recovered unpersisted handle on stop",
				zap.String("bot_id", record.ID),
				zap.String("container_id", handle.ContainerID))
		}
	}

	if record.ContainerID != "" {
		if err := m.runtime.Stop(ctx, record.ContainerID, m.cfg.StopGrace); err != nil {
			// Graceful stop failed; force removal is the last resort
			// before settling in error.
			m.logger.Warn("Graceful stop failed, forcing removal",
				zap.String("bot_id", record.ID), zap.Error(err))
			if err := m.runtime.Remove(ctx, record.ContainerID); err != nil {
				reason := fmt.Sprintf("termination failed: %v", err)
				if stateErr := m.setState(ctx, record, bot.StateError, reason); stateErr != nil {
					m.logger.Error("Failed to persist error state", zap.String("bot_id", record.ID), zap.Error(stateErr))
				}
				return nil, &bot.RuntimeError{Op: "stop", Err: err}
			}
		} else if err := m.runtime.Remove(ctx, record.ContainerID); err != nil {
			m.logger.Warn("Failed to remove stopped container",
				zap.String("bot_id", record.ID), zap.Error(err))
		}
	}

	now := time.Now().UTC()
	record.ContainerID = ""
	record.StoppedAt = &now
	if err := m.setState(ctx, record, bot.StateStopped, ""); err != nil {
		return nil, err
	}

	m.logger.Info("Bot stopped", zap.String("bot_id", record.ID))
	return record, nil
}

// Delete removes the record, stopping the process first when needed.
// Rejected with InvalidStateError while a transition is in flight: the
// caller must wait or retry.
func (m *Manager) Delete(ctx context.Context, id string) error {
	release := m.locks.TryAcquire(id)
	if release == nil {
		return &bot.InvalidStateError{ID: id, State: bot.StateStarting, Op: "delete"}
	}
	defer release()

	record, err := m.store.GetBot(ctx, id)
	if err != nil {
		return err
	}

	if record.State.IsTransitional() {
		return &bot.InvalidStateError{ID: id, State: record.State, Op: "delete"}
	}

	if record.State == bot.StateRunning {
		if _, err := m.stopLocked(ctx, record); err != nil {
			return fmt.Errorf("implicit stop: %w", err)
		}
	}

	// A bot stopped earlier may still hold a container reference.
	if record.ContainerID != "" {
		if err := m.runtime.Remove(ctx, record.ContainerID); err != nil {
			m.logger.Warn("Failed to remove container on delete",
				zap.String("bot_id", id), zap.Error(err))
		}
	}

	if err := m.store.DeleteBot(ctx, id); err != nil {
		return err
	}
	m.locks.Forget(id)

	m.publish(&events.BotDeletedEvent{
		BaseEvent: events.BaseEvent{EventType: events.BotDeleted, EventTime: time.Now()},
		BotID:     record.ID,
		Name:      record.Name,
	})

	m.logger.Info("Bot deleted", zap.String("bot_id", id), zap.String("name", record.Name))
	return nil
}

// Get returns the record with a best-effort liveness check: a record
// claiming running whose process is gone is corrected to error lazily.
func (m *Manager) Get(ctx context.Context, id string) (*bot.Record, error) {
	record, err := m.store.GetBot(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.correctLiveness(ctx, record), nil
}

// List returns all records, each with the same lazy liveness correction
// applied as Get.
func (m *Manager) List(ctx context.Context) ([]*bot.Record, error) {
	records, err := m.store.ListBots(ctx)
	if err != nil {
		return nil, err
	}
	for i, record := range records {
		records[i] = m.correctLiveness(ctx, record)
	}
	return records, nil
}

// StatusInfo couples a stored record with a live runtime probe.
type StatusInfo struct {
	Record  *bot.Record
	Runtime *runtime.Status
}

// Status returns the record plus, when a process handle is present, the
// runtime's live view of it. A failed probe leaves Runtime nil.
func (m *Manager) Status(ctx context.Context, id string) (*StatusInfo, error) {
	record, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	info := &StatusInfo{Record: record}
	if record.ContainerID != "" {
		if status, err := m.runtime.Inspect(ctx, record.ContainerID); err == nil {
			info.Runtime = &status
		} else {
			m.logger.Debug("status probe failed",
				zap.String("bot_id", id),
				zap.Error(err))
		}
	}
	return info, nil
}

// Signals returns the local audit trail of a bot's engine evaluations.
func (m *Manager) Signals(ctx context.Context, id string, limit int) ([]*signal.Event, error) {
	if _, err := m.store.GetBot(ctx, id); err != nil {
		return nil, err
	}
	return m.store.ListSignals(ctx, id, limit)
}

// correctLiveness probes the runtime for records claiming running. The
// correction itself goes through the serialized transition path; when a
// transition is already in flight the stale read is returned as-is.
func (m *Manager) correctLiveness(ctx context.Context, record *bot.Record) *bot.Record {
	if record.State != bot.StateRunning || record.ContainerID == "" {
		return record
	}

	status, err := m.runtime.Inspect(ctx, record.ContainerID)
	if err == nil && status.Running {
		return record
	}

	release := m.locks.TryAcquire(record.ID)
	if release == nil {
		return record
	}
	defer release()

	// Re-read under the lock; a racing transition may have won.
	fresh, getErr := m.store.GetBot(ctx, record.ID)
	if getErr != nil || fresh.State != bot.StateRunning {
		return record
	}

	reason := "process gone"
	if err != nil {
		reason = fmt.Sprintf("liveness probe failed: %v", err)
	}
	fresh.ContainerID = ""
	if stateErr := m.setState(ctx, fresh, bot.StateError, reason); stateErr != nil {
		m.logger.Error("Failed to persist liveness correction",
			zap.String("bot_id", record.ID), zap.Error(stateErr))
		return record
	}

	m.logger.Warn("Corrected stale running record",
		zap.String("bot_id", record.ID), zap.String("reason", reason))
	return fresh
}

// setState validates the transition against the central table, persists
// the record and publishes the change. The persisted write happens before
// any caller observes the new state.
func (m *Manager) setState(ctx context.Context, record *bot.Record, to bot.State, reason string) error {
	from := record.State
	if !bot.CanTransition(from, to) {
		return &bot.InvalidStateError{ID: record.ID, State: from, Op: "transition to " + string(to)}
	}

	record.State = to
	record.ErrorReason = reason
	if err := m.store.UpdateBot(ctx, record); err != nil {
		record.State = from
		return fmt.Errorf("persist transition %s -> %s: %w", from, to, err)
	}

	m.publish(&events.BotStateChangedEvent{
		BaseEvent: events.BaseEvent{EventType: events.BotStateChanged, EventTime: time.Now()},
		BotID:     record.ID,
		Name:      record.Name,
		From:      from,
		To:        to,
		Reason:    reason,
	})
	return nil
}

func (m *Manager) publish(event events.Event) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(event); err != nil {
		m.logger.Debug("Event publish failed", zap.Error(err))
	}
}
