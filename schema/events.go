package schema

// OutputEvent carries one published batch of console lines.
type OutputEvent struct {
	Console ConsoleID
	Lines   []ConsoleLine
	// Evicted is how many lines fell off the front of the display to make room.
	Evicted int
}

// ImportantLineEvent flags a single line for caller-visible attention.
type ImportantLineEvent struct {
	Console ConsoleID
	Line    ConsoleLine
}

// SessionStateEvent reports a session-kind running-state transition.
type SessionStateEvent struct {
	Console ConsoleID
	Kind    SessionKind
	Running bool
	// ExitCode is set for command sessions once the process has exited.
	ExitCode *int
}

// ClearEvent reports that a console's display was cleared.
type ClearEvent struct {
	Console ConsoleID
}
