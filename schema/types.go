package schema

import "time"

// ConsoleID identifies a logical console, typically one per container.
type ConsoleID string

// SessionKind distinguishes the two stream kinds a console can own.
type SessionKind string

const (
	// SessionLogs is a log-follow stream session.
	SessionLogs SessionKind = "logs"
	// SessionCommand is a command-execution stream session.
	SessionCommand SessionKind = "command"
)

// ConsoleLine is one immutable line of console output.
type ConsoleLine struct {
	Time      time.Time
	Text      string
	Err       bool
	Important bool
}
