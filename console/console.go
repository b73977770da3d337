package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"pkt.systems/pslog"

	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/internal/logx"
	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/schema"
)

type sessionState int

const (
	sessionStarting sessionState = iota
	sessionRunning
	sessionStopping
)

// session tracks one active stream subscription of a given kind. The idle
// state is represented by absence from the controller's session map.
type session struct {
	kind   schema.SessionKind
	id     string
	state  sessionState
	cancel context.CancelFunc
	done   chan struct{}
	input  io.WriteCloser
}

// Options configures a Console.
type Options struct {
	Sink      EventSink
	Clipboard Clipboard
	Logger    pslog.Logger
	Config    schema.ConsoleConfig
}

// Console mediates at most one active log-follow session and one active
// command-execution session, routing their output into a LineBuffer and
// guaranteeing bounded, cooperative cancellation.
type Console struct {
	id     schema.ConsoleID
	engine Engine
	buffer *LineBuffer
	sink   EventSink
	clip   Clipboard
	log    pslog.Logger
	cfg    schema.ConsoleConfig

	mu       sync.Mutex
	closed   bool
	sessions map[schema.SessionKind]*session
}

// New constructs a Console. When buffer is nil a fresh LineBuffer is created
// from opts.Config and started; an explicitly provided buffer is used as-is
// and its flush loop is still owned by the console (stopped on Close).
func New(id schema.ConsoleID, engine Engine, buffer *LineBuffer, opts Options) *Console {
	cfg := schema.NormalizeConsoleConfig(opts.Config)
	sink := opts.Sink
	if sink == nil {
		sink = NopSink{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logx.WithConsole(context.Background(), id)
	}
	if buffer == nil {
		buffer = NewLineBuffer(id, cfg, sink, logger)
		buffer.Start()
	}
	return &Console{
		id:       id,
		engine:   engine,
		buffer:   buffer,
		sink:     sink,
		clip:     opts.Clipboard,
		log:      logger,
		cfg:      cfg,
		sessions: make(map[schema.SessionKind]*session),
	}
}

// Buffer returns the console's line buffer.
func (c *Console) Buffer() *LineBuffer { return c.buffer }

// FollowLogs starts a log stream session, first stopping any active one.
// An engine failure is returned to the caller and leaves the console idle.
func (c *Console) FollowLogs(ctx context.Context, req LogStreamRequest) error {
	s, err := c.acquire(schema.SessionLogs, true)
	if err != nil {
		return err
	}
	log := logx.WithSession(c.log, s.id).With("kind", schema.SessionLogs, "container", req.Container)

	sessCtx, cancel := context.WithCancel(context.Background())
	sess, err := c.engine.StreamLogs(sessCtx, req)
	if err != nil {
		cancel()
		c.release(s)
		log.Warn("console logs start failed", "err", err)
		return fmt.Errorf("start logs: %w", err)
	}
	if err := c.activate(s, cancel, nil); err != nil {
		cancel()
		_ = sess.Close()
		c.release(s)
		log.Debug("console logs start aborted", "err", err)
		return err
	}
	c.sink.OnSessionState(schema.SessionStateEvent{Console: c.id, Kind: schema.SessionLogs, Running: true})
	log.Info("console logs started", "follow", req.Follow)
	go c.readLogs(sessCtx, s, sess, log)
	return nil
}

// StopLogs cancels the active log session, if any, and waits for its reader
// to exit, bounded by the stop grace period.
func (c *Console) StopLogs() {
	c.stopSession(schema.SessionLogs)
}

// RunCommand starts a command-execution session. When a command is already
// running it is refused with ErrCommandBusy, unless InterruptCommands is
// configured, in which case the prior command is cancelled first.
func (c *Console) RunCommand(ctx context.Context, req ExecStreamRequest) error {
	if len(req.Argv) == 0 {
		c.log.Warn("console command rejected", "reason", "empty command")
		return schema.ErrEmptyCommand
	}
	s, err := c.acquire(schema.SessionCommand, c.cfg.InterruptCommands)
	if err != nil {
		return err
	}
	log := logx.WithSession(c.log, s.id).With("kind", schema.SessionCommand, "container", req.Container)

	sessCtx, cancel := context.WithCancel(context.Background())
	sess, err := c.engine.StreamExec(sessCtx, req)
	if err != nil {
		cancel()
		c.release(s)
		log.Warn("console command start failed", "err", err)
		return fmt.Errorf("start command: %w", err)
	}
	if err := c.activate(s, cancel, sess.Input()); err != nil {
		cancel()
		_ = sess.Close()
		c.release(s)
		log.Debug("console command start aborted", "err", err)
		return err
	}
	c.buffer.Push("$ "+strings.Join(req.Argv, " "), false)
	c.sink.OnSessionState(schema.SessionStateEvent{Console: c.id, Kind: schema.SessionCommand, Running: true})
	log.Info("console command started", "argc", len(req.Argv), "interactive", req.Interactive)
	go c.readCommand(sessCtx, s, sess, log)
	return nil
}

// StopCommand cancels the active command session, if any.
func (c *Console) StopCommand() {
	c.stopSession(schema.SessionCommand)
}

// SendInput writes a line of text to the active interactive command session.
func (c *Console) SendInput(text string) error {
	c.mu.Lock()
	s := c.sessions[schema.SessionCommand]
	var input io.WriteCloser
	if s != nil && s.state == sessionRunning {
		input = s.input
	}
	c.mu.Unlock()
	if input == nil {
		return schema.ErrNoCommandInput
	}
	if _, err := io.WriteString(input, text+"\n"); err != nil {
		return fmt.Errorf("send input: %w", err)
	}
	return nil
}

// LogsRunning reports whether a log session is currently running.
func (c *Console) LogsRunning() bool { return c.running(schema.SessionLogs) }

// CommandRunning reports whether a command session is currently running.
func (c *Console) CommandRunning() bool { return c.running(schema.SessionCommand) }

func (c *Console) running(kind schema.SessionKind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sessions[kind]
	return s != nil && s.state == sessionRunning
}

// Clear empties the console's display and queued output.
func (c *Console) Clear() {
	c.buffer.Clear()
}

// CopyOutput exports the current display snapshot to the clipboard
// collaborator. Clipboard failures are logged and swallowed.
func (c *Console) CopyOutput(ctx context.Context) {
	if c.clip == nil {
		return
	}
	text := c.buffer.SnapshotText()
	if err := c.clip.SetText(ctx, text); err != nil {
		c.log.Warn("console copy failed", "err", err)
		return
	}
	c.log.Debug("console copy ok", "bytes", len(text))
}

// Close cancels both sessions, stops the line buffer, and marks the console
// closed. Close is safe to call repeatedly and with no sessions active; after
// it returns no further lines are appended to the display.
func (c *Console) Close() error {
	c.mu.Lock()
	alreadyClosed := c.closed
	c.closed = true
	c.mu.Unlock()

	c.stopSession(schema.SessionLogs)
	c.stopSession(schema.SessionCommand)
	c.buffer.Stop()
	if !alreadyClosed {
		c.log.Info("console closed")
	}
	return nil
}

// acquire installs a new starting session of the given kind. An existing
// session is cancelled and awaited first when replace is set; otherwise the
// request is refused.
func (c *Console) acquire(kind schema.SessionKind, replace bool) (*session, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, schema.ErrConsoleClosed
		}
		current := c.sessions[kind]
		if current == nil {
			next := &session{
				kind:  kind,
				id:    uuid.NewString(),
				state: sessionStarting,
				done:  make(chan struct{}),
			}
			c.sessions[kind] = next
			c.mu.Unlock()
			return next, nil
		}
		if !replace {
			c.mu.Unlock()
			return nil, schema.ErrCommandBusy
		}
		current.state = sessionStopping
		cancel, done := current.cancel, current.done
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		select {
		case <-done:
		case <-time.After(c.cfg.StopGrace):
			c.abandon(current)
		}
	}
}

// activate transitions a starting session to running. It fails when the
// console was closed or the session was stopped while the engine call was in
// flight; the caller must then tear down the engine session and release.
func (c *Console) activate(s *session, cancel context.CancelFunc, input io.WriteCloser) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return schema.ErrConsoleClosed
	}
	if s.state == sessionStopping {
		return context.Canceled
	}
	s.cancel = cancel
	s.input = input
	s.state = sessionRunning
	return nil
}

// release drops a session that never reached the running state.
func (c *Console) release(s *session) {
	c.mu.Lock()
	if c.sessions[s.kind] == s {
		delete(c.sessions, s.kind)
	}
	c.mu.Unlock()
	close(s.done)
}

// finish retires a session whose reader loop has exited and emits the
// not-running state transition.
func (c *Console) finish(s *session, exitCode *int) {
	c.mu.Lock()
	if c.sessions[s.kind] == s {
		delete(c.sessions, s.kind)
	}
	c.mu.Unlock()
	close(s.done)
	c.sink.OnSessionState(schema.SessionStateEvent{Console: c.id, Kind: s.kind, Running: false, ExitCode: exitCode})
}

func (c *Console) stopSession(kind schema.SessionKind) {
	c.mu.Lock()
	s := c.sessions[kind]
	if s == nil {
		c.mu.Unlock()
		return
	}
	s.state = sessionStopping
	cancel, done := s.cancel, s.done
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	select {
	case <-done:
	case <-time.After(c.cfg.StopGrace):
		c.log.Warn("console session stop timed out", "kind", kind, "session", s.id)
		c.abandon(s)
	}
}

// abandon forcibly removes a session that missed the stop grace period. A
// session still starting can never reach running afterwards, because activate
// refuses the stopping state; a running reader may still retire itself later,
// which finish tolerates.
func (c *Console) abandon(s *session) {
	c.mu.Lock()
	if c.sessions[s.kind] == s {
		delete(c.sessions, s.kind)
	}
	c.mu.Unlock()
}

func (c *Console) readLogs(ctx context.Context, s *session, sess LogSession, log pslog.Logger) {
	stream := sess.Lines()
	count := 0
	for {
		line, err := stream.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				log.Debug("console logs stream ended", "lines", count)
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				log.Debug("console logs stream cancelled", "lines", count)
			default:
				log.Warn("console logs stream failed", "err", err, "lines", count)
				c.buffer.PushImportant(fmt.Sprintf("[logs] stream error: %v", err), true)
			}
			break
		}
		count++
		c.buffer.Push(line.Text, line.Stderr)
	}
	_ = stream.Close()
	_ = sess.Close()
	c.finish(s, nil)
	log.Info("console logs stopped", "lines", count)
}

func (c *Console) readCommand(ctx context.Context, s *session, sess ExecSession, log pslog.Logger) {
	stream := sess.Outputs()
	count := 0
	cancelled := false
	for {
		line, err := stream.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				log.Debug("console command stream ended", "lines", count)
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				cancelled = true
				log.Debug("console command stream cancelled", "lines", count)
			default:
				log.Warn("console command stream failed", "err", err, "lines", count)
				c.buffer.PushImportant(fmt.Sprintf("[command] stream error: %v", err), true)
			}
			break
		}
		count++
		c.buffer.Push(line.Text, line.Stderr)
	}
	_ = stream.Close()

	if cancelled {
		// A cancelled command has no exit code to report.
		_ = sess.Close()
		c.finish(s, nil)
		log.Info("console command cancelled", "lines", count)
		return
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), c.cfg.StopGrace)
	result, err := sess.Wait(waitCtx)
	cancel()
	var exitCode *int
	if err != nil {
		log.Warn("console command wait failed", "err", err)
		c.buffer.PushImportant("[exit] unknown", true)
	} else {
		code := result.ExitCode
		exitCode = &code
		c.buffer.PushImportant(fmt.Sprintf("[exit] %d", code), code != 0)
		if code != 0 {
			log.Warn("console command failed", "exit_code", code, "lines", count)
		} else {
			log.Info("console command ok", "exit_code", code, "lines", count)
		}
	}
	_ = sess.Close()
	c.finish(s, exitCode)
}
