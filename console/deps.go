package console

import (
	"context"
	"io"
	"time"

	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/schema"
)

// Engine hands out stream sessions against a container engine.
type Engine interface {
	StreamLogs(ctx context.Context, req LogStreamRequest) (LogSession, error)
	StreamExec(ctx context.Context, req ExecStreamRequest) (ExecSession, error)
}

// LogStreamRequest describes a container log subscription.
type LogStreamRequest struct {
	Container  string
	Follow     bool
	Since      time.Time
	Timestamps bool
	// Tail limits the stream to the last N historical lines; 0 means all.
	Tail int
}

// ExecStreamRequest describes a command execution inside a container.
type ExecStreamRequest struct {
	Container   string
	Argv        []string
	Interactive bool
	WorkingDir  string
	Env         map[string]string
}

// StreamLine is one raw line produced by a stream session.
type StreamLine struct {
	// Stderr is true when the line came from the error half of the stream.
	Stderr bool
	Text   string
}

// LineStream yields produced lines in order. Next returns io.EOF once the
// underlying stream terminates normally.
type LineStream interface {
	Next(ctx context.Context) (StreamLine, error)
	Close() error
}

// LogSession is an open log subscription.
type LogSession interface {
	Lines() LineStream
	Close() error
}

// ExecResult describes a finished command execution.
type ExecResult struct {
	ExitCode int
}

// ExecSession is an open command execution. Wait is the exit-code future; it
// is fulfilled exactly once, after the output stream terminates.
type ExecSession interface {
	Outputs() LineStream
	// Input returns the process input channel, or nil for non-interactive runs.
	Input() io.WriteCloser
	Wait(ctx context.Context) (ExecResult, error)
	Close() error
}

// EventSink receives consumer-visible notifications from the pipeline.
// Callbacks are invoked from the buffer's flush goroutine and from controller
// session goroutines; implementations must not block.
type EventSink interface {
	OnOutput(event schema.OutputEvent)
	OnImportantLine(event schema.ImportantLineEvent)
	OnSessionState(event schema.SessionStateEvent)
	OnClear(event schema.ClearEvent)
}

// Clipboard exports text to the host clipboard, best effort.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// NopSink is an EventSink that discards all events.
type NopSink struct{}

// OnOutput implements EventSink.
func (NopSink) OnOutput(schema.OutputEvent) {}

// OnImportantLine implements EventSink.
func (NopSink) OnImportantLine(schema.ImportantLineEvent) {}

// OnSessionState implements EventSink.
func (NopSink) OnSessionState(schema.SessionStateEvent) {}

// OnClear implements EventSink.
func (NopSink) OnClear(schema.ClearEvent) {}
