package schema

import "time"

// ConsoleConfig defines limits and cadence for a console line buffer.
type ConsoleConfig struct {
	// MaxLines caps the display sequence; oldest lines are evicted past it.
	MaxLines int
	// MaxQueueSize caps the ingestion queue; lines beyond it are dropped.
	MaxQueueSize int
	// MaxLinesPerTick bounds how many queued lines one flush tick publishes.
	MaxLinesPerTick int
	// FlushInterval is the cadence of the flush loop.
	FlushInterval time.Duration
	// StopGrace bounds how long stop and teardown paths wait for loops to exit.
	StopGrace time.Duration
	// InterruptCommands cancels a running command when a new one starts
	// instead of refusing with ErrCommandBusy.
	InterruptCommands bool
}

const (
	// DefaultMaxLines is the default display sequence cap.
	DefaultMaxLines = 2000
	// DefaultMaxQueueSize is the default ingestion queue cap.
	DefaultMaxQueueSize = 2000
	// DefaultMaxLinesPerTick is the default per-tick publish bound.
	DefaultMaxLinesPerTick = 500
	// DefaultFlushInterval is the default flush cadence.
	DefaultFlushInterval = 75 * time.Millisecond
	// DefaultStopGrace is the default stop grace period.
	DefaultStopGrace = 2 * time.Second
)

// NormalizeConsoleConfig applies defaults to unset fields.
func NormalizeConsoleConfig(cfg ConsoleConfig) ConsoleConfig {
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = DefaultMaxLines
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = DefaultMaxQueueSize
	}
	if cfg.MaxLinesPerTick <= 0 {
		cfg.MaxLinesPerTick = DefaultMaxLinesPerTick
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}
	return cfg
}
