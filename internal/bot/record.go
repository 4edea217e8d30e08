package bot

import (
	"regexp"
	"time"
)

// Mode selects whether a bot trades against demo funds or live capital.
// Immutable after creation: promoting a bot to live trading requires
// delete and recreate, never an in-place change.
type Mode string

const (
	ModeDemo Mode = "demo"
	ModeLive Mode = "live"
)

// Record is one managed trading bot instance. Mutated only by the lifecycle
// manager through its serialized per-id transition path.
type Record struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Pair      string `json:"pair"`
	Timeframe string `json:"timeframe"`
	Mode      Mode   `json:"mode"`
	Params    Params `json:"params"`
	State     State  `json:"state"`

	// ContainerID is the runtime process handle. Present only while the
	// record is in starting, running or stopping. Never trusted after a
	// manager restart; reconcile re-derives it by probing the runtime.
	ContainerID string `json:"container_id,omitempty"`

	// ErrorReason holds the retrievable cause when State is error.
	ErrorReason string `json:"error_reason,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
}

var (
	namePattern      = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)
	pairPattern      = regexp.MustCompile(`^[A-Z0-9]{2,10}/[A-Z0-9]{2,10}$`)
	timeframePattern = regexp.MustCompile(`^[0-9]{1,3}(m|h|d)$`)
)

// Spec is the operator-supplied definition for a new bot.
type Spec struct {
	Name      string `json:"name"`
	Pair      string `json:"pair"`
	Timeframe string `json:"timeframe"`
	Mode      Mode   `json:"mode"`
	Params    Params `json:"params"`
}

// Validate checks required fields and formats. Name uniqueness is checked
// by the manager against the store.
func (s *Spec) Validate() error {
	if s.Name == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if !namePattern.MatchString(s.Name) {
		return &ValidationError{Field: "name", Reason: "must be alphanumeric with - or _, max 64 chars"}
	}
	if s.Pair == "" {
		return &ValidationError{Field: "pair", Reason: "required"}
	}
	if !pairPattern.MatchString(s.Pair) {
		return &ValidationError{Field: "pair", Reason: "must look like BTC/USDT"}
	}
	if s.Timeframe == "" {
		s.Timeframe = "15m"
	}
	if !timeframePattern.MatchString(s.Timeframe) {
		return &ValidationError{Field: "timeframe", Reason: "must look like 15m, 1h or 1d"}
	}
	switch s.Mode {
	case "":
		s.Mode = ModeDemo
	case ModeDemo, ModeLive:
	default:
		return &ValidationError{Field: "mode", Reason: `must be "demo" or "live"`}
	}
	s.Params.ApplyDefaults()
	return s.Params.Validate(s.Mode)
}
