// Package runtime isolates the control plane from the process runtime that
// hosts bot instances. The lifecycle manager only ever talks to the Runtime
// interface; the docker implementation lives alongside it.
package runtime

import (
	"context"
	"time"

	"github.com/rustamli/aitrader/internal/bot"
)

// Labels attached to every managed container so reconcile can re-derive
// ownership after a control-plane restart without trusting stale handles.
const (
	LabelManaged = "aitrader.managed"
	LabelBotID   = "aitrader.bot.id"
	LabelBotName = "aitrader.bot.name"
)

// Status is a point-in-time probe of one process.
type Status struct {
	Running   bool
	State     string
	StartedAt time.Time
}

// Handle identifies one managed process discovered in the runtime.
type Handle struct {
	ContainerID string
	Name        string
	BotID       string
	Running     bool
}

// Runtime launches and terminates isolated bot processes.
type Runtime interface {
	// Spawn materializes the bot's config, creates the process and waits
	// until the runtime reports it healthy. Returns the process handle.
	Spawn(ctx context.Context, record *bot.Record) (string, error)

	// Stop signals graceful termination and waits up to grace before the
	// runtime force-kills the process.
	Stop(ctx context.Context, containerID string, grace time.Duration) error

	// Remove destroys the process and its resources. Removing an already
	// gone process is not an error.
	Remove(ctx context.Context, containerID string) error

	// Inspect probes one process. Returns bot.RuntimeError wrapping the
	// cause when the process is unknown.
	Inspect(ctx context.Context, containerID string) (Status, error)

	// FindByBotID locates the managed process owned by a bot id, if any.
	FindByBotID(ctx context.Context, botID string) (*Handle, error)

	// List enumerates all managed processes, running or not.
	List(ctx context.Context) ([]Handle, error)
}
