package manager

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rustamli/aitrader/internal/bot"
	"github.com/rustamli/aitrader/internal/events"
	"github.com/rustamli/aitrader/internal/runtime"
)

// Reconcile aligns persisted bot state with actual runtime state. Process
// handles are not durable across control-plane restarts, so every record
// claiming a non-terminal state is probed: matching processes are adopted,
// orphaned records settle in a deterministic terminal state. Idempotent;
// runs at startup and periodically.
func (m *Manager) Reconcile(ctx context.Context) error {
	records, err := m.store.ListBots(ctx)
	if err != nil {
		return fmt.Errorf("list bots: %w", err)
	}

	handles, err := m.runtime.List(ctx)
	if err != nil {
		return fmt.Errorf("list runtime processes: %w", err)
	}
	byBotID := make(map[string]runtime.Handle, len(handles))
	for _, h := range handles {
		byBotID[h.BotID] = h
	}

	var checked, adopted, orphaned int

	var g errgroup.Group
	g.SetLimit(4)

	results := make([]reconcileResult, len(records))
	for i, record := range records {
		if record.State.IsTerminal() {
			continue
		}
		checked++

		i, record := i, record
		g.Go(func() error {
			results[i] = m.reconcileRecord(ctx, record, byBotID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	known := make(map[string]bool, len(records))
	for _, record := range records {
		known[record.ID] = true
	}
	for _, h := range handles {
		if !known[h.BotID] {
			m.logger.Warn("Removing unowned managed container",
				zap.String("container_id", h.ContainerID),
				zap.String("claimed_bot_id", h.BotID))
			if err := m.runtime.Remove(ctx, h.ContainerID); err != nil {
				m.logger.Error("Failed to remove unowned container", zap.Error(err))
			}
		}
	}

	for _, r := range results {
		if r.adopted {
			adopted++
		}
		if r.orphaned {
			orphaned++
		}
	}

	m.publish(&events.ReconcileCompletedEvent{
		BaseEvent: events.BaseEvent{EventType: events.ReconcileCompleted, EventTime: time.Now()},
		Checked:   checked,
		Adopted:   adopted,
		Orphaned:  orphaned,
	})

	m.logger.Info("Reconcile completed",
		zap.Int("checked", checked),
		zap.Int("adopted", adopted),
		zap.Int("orphaned", orphaned))
	return nil
}

type reconcileResult struct {
	adopted  bool
	orphaned bool
}

// reconcileRecord repairs one non-terminal record. Skipped when another
// transition holds the id lock; the periodic pass will catch it later.
func (m *Manager) reconcileRecord(ctx context.Context, record *bot.Record, byBotID map[string]runtime.Handle) reconcileResult {
	release := m.locks.TryAcquire(record.ID)
	if release == nil {
		return reconcileResult{}
	}
	defer release()

	fresh, err := m.store.GetBot(ctx, record.ID)
	if err != nil || fresh.State.IsTerminal() {
		return reconcileResult{}
	}

	entry, found := byBotID[fresh.ID]
	logger := m.logger.With(zap.String("bot_id", fresh.ID), zap.String("state", string(fresh.State)))

	if found && entry.Running {
		// Identity matches a live process: adopt it.
		fresh.ContainerID = entry.ContainerID
		switch fresh.State {
		case bot.StateRunning:
			if err := m.store.UpdateBot(ctx, fresh); err != nil {
				logger.Error("Failed to persist adopted handle", zap.Error(err))
				return reconcileResult{}
			}
			logger.Info("Adopted running process", zap.String("container_id", entry.ContainerID))
			return reconcileResult{adopted: true}
		case bot.StateStarting:
			now := time.Now().UTC()
			fresh.StartedAt = &now
			if err := m.setState(ctx, fresh, bot.StateRunning, ""); err != nil {
				logger.Error("Failed to promote starting record", zap.Error(err))
				return reconcileResult{}
			}
			logger.Info("Adopted process for interrupted start")
			return reconcileResult{adopted: true}
		case bot.StateStopping:
			// The stop was interrupted; finish it.
			if err := m.runtime.Stop(ctx, entry.ContainerID, m.cfg.StopGrace); err != nil {
				logger.Error("Failed to finish interrupted stop", zap.Error(err))
				return reconcileResult{}
			}
			_ = m.runtime.Remove(ctx, entry.ContainerID)
			now := time.Now().UTC()
			fresh.ContainerID = ""
			fresh.StoppedAt = &now
			if err := m.setState(ctx, fresh, bot.StateStopped, ""); err != nil {
				logger.Error("Failed to persist finished stop", zap.Error(err))
			}
			logger.Info("Finished interrupted stop")
			return reconcileResult{adopted: true}
		}
		return reconcileResult{}
	}

	// Process gone or never launched: settle the record.
	if found {
		_ = m.runtime.Remove(ctx, entry.ContainerID)
	}
	fresh.ContainerID = ""

	if fresh.State == bot.StateStopping {
		// The intended outcome was reached; record it rather than error.
		now := time.Now().UTC()
		fresh.StoppedAt = &now
		if err := m.setState(ctx, fresh, bot.StateStopped, ""); err != nil {
			logger.Error("Failed to settle stopping record", zap.Error(err))
			return reconcileResult{}
		}
		logger.Info("Settled stopping record as stopped")
		return reconcileResult{adopted: true}
	}

	if err := m.setState(ctx, fresh, bot.StateError, "orphaned: process not found in runtime"); err != nil {
		logger.Error("Failed to mark orphaned record", zap.Error(err))
		return reconcileResult{}
	}
	logger.Warn("Marked orphaned record as error")
	return reconcileResult{orphaned: true}
}

// RunReconcileLoop runs Reconcile immediately and then on the configured
// interval until the context is cancelled.
func (m *Manager) RunReconcileLoop(ctx context.Context) error {
	if err := m.Reconcile(ctx); err != nil {
		m.logger.Error("Startup reconcile failed", zap.Error(err))
	}

	ticker := time.NewTicker(m.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.Reconcile(ctx); err != nil {
				m.logger.Error("Periodic reconcile failed", zap.Error(err))
			}
		}
	}
}
