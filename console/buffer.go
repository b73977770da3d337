package console

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pkt.systems/pslog"

	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/schema"
)

// LineBuffer decouples bursty line producers from a rate-limited consumer.
//
// Producers enqueue lines from any goroutine into a bounded queue; past
// capacity new lines are dropped, never blocking the producer. A single flush
// goroutine drains the queue on a fixed cadence, appends batches to the
// display sequence, evicts the oldest lines once MaxLines is exceeded, and
// keeps a flat-text mirror in exact byte lockstep with the display for copy
// and search use. Display mutations happen only on the flush goroutine; the
// mirror carries its own lock because it is read from arbitrary goroutines.
type LineBuffer struct {
	console schema.ConsoleID
	cfg     schema.ConsoleConfig
	sink    EventSink
	log     pslog.Logger

	queue   chan schema.ConsoleLine
	dropped atomic.Uint64

	mu      sync.Mutex
	display []schema.ConsoleLine

	textMu sync.Mutex
	text   bytes.Buffer

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	clearCh chan chan struct{}
}

// NewLineBuffer constructs a stopped line buffer. Call Start to begin the
// flush loop. A nil sink discards events.
func NewLineBuffer(console schema.ConsoleID, cfg schema.ConsoleConfig, sink EventSink, logger pslog.Logger) *LineBuffer {
	cfg = schema.NormalizeConsoleConfig(cfg)
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &LineBuffer{
		console: console,
		cfg:     cfg,
		sink:    sink,
		log:     logger.With("console", console),
		queue:   make(chan schema.ConsoleLine, cfg.MaxQueueSize),
		clearCh: make(chan chan struct{}),
	}
}

// Config returns the normalized buffer configuration.
func (b *LineBuffer) Config() schema.ConsoleConfig { return b.cfg }

// Enqueue appends a line to the ingestion queue. It never blocks; once the
// queue is at capacity the line is dropped and counted.
func (b *LineBuffer) Enqueue(line schema.ConsoleLine) {
	select {
	case b.queue <- line:
	default:
		b.dropped.Add(1)
	}
}

// Push sanitizes text, timestamps it, and enqueues one line per resulting
// newline-separated segment.
func (b *LineBuffer) Push(text string, isErr bool) {
	b.push(text, isErr, false)
}

// PushImportant is Push with the important flag set on every resulting line.
func (b *LineBuffer) PushImportant(text string, isErr bool) {
	b.push(text, isErr, true)
}

func (b *LineBuffer) push(text string, isErr, important bool) {
	now := time.Now()
	sanitized := Sanitize(text)
	for _, part := range strings.Split(sanitized, "\n") {
		b.Enqueue(schema.ConsoleLine{Time: now, Text: part, Err: isErr, Important: important})
	}
}

// Start launches the flush loop. Calling Start on a running buffer is a no-op.
func (b *LineBuffer) Start() {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.running {
		return
	}
	b.running = true
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	go b.run(b.stopCh, b.doneCh)
	b.log.Debug("console buffer started", "flush_interval", b.cfg.FlushInterval)
}

// Stop signals the flush loop to force-drain the queue and exit, waiting up
// to StopGrace. On timeout Stop returns without publishing anything itself:
// the loop stays the sole consumer and still performs the final drain once it
// observes the stop signal. Calling Stop on a stopped buffer is a no-op.
func (b *LineBuffer) Stop() {
	b.runMu.Lock()
	if !b.running {
		b.runMu.Unlock()
		return
	}
	b.running = false
	stopCh, doneCh := b.stopCh, b.doneCh
	b.runMu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
		b.log.Debug("console buffer stopped")
	case <-time.After(b.cfg.StopGrace):
		b.log.Warn("console buffer stop timed out", "grace_ms", b.cfg.StopGrace.Milliseconds())
	}
}

func (b *LineBuffer) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			b.safeFlush(0)
			return
		case ack := <-b.clearCh:
			b.clearNow()
			close(ack)
		case <-ticker.C:
			b.safeFlush(b.cfg.MaxLinesPerTick)
		}
	}
}

// safeFlush publishes up to limit queued lines (0 means everything). Panics
// are contained so one bad tick cannot take the loop down.
func (b *LineBuffer) safeFlush(limit int) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Warn("console flush failed", "err", r)
		}
	}()
	b.flush(limit)
}

func (b *LineBuffer) flush(limit int) {
	batch := b.drain(limit)
	if len(batch) == 0 {
		return
	}
	evicted := b.apply(batch)
	b.sink.OnOutput(schema.OutputEvent{Console: b.console, Lines: batch, Evicted: evicted})
	for _, line := range batch {
		if line.Important {
			b.sink.OnImportantLine(schema.ImportantLineEvent{Console: b.console, Line: line})
		}
	}
}

func (b *LineBuffer) drain(limit int) []schema.ConsoleLine {
	var batch []schema.ConsoleLine
	for {
		select {
		case line := <-b.queue:
			batch = append(batch, line)
			if limit > 0 && len(batch) >= limit {
				return batch
			}
		default:
			return batch
		}
	}
}

// apply appends the batch to the display and evicts overflow from the front,
// trimming the mirror by the exact byte ranges of the evicted lines.
func (b *LineBuffer) apply(batch []schema.ConsoleLine) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.textMu.Lock()
	defer b.textMu.Unlock()

	for _, line := range batch {
		b.text.WriteString(line.Text)
		b.text.WriteByte('\n')
	}
	b.display = append(b.display, batch...)
	overflow := len(b.display) - b.cfg.MaxLines
	if overflow <= 0 {
		return 0
	}
	cut := 0
	for _, line := range b.display[:overflow] {
		cut += len(line.Text) + 1
	}
	b.text.Next(cut)
	b.display = b.display[overflow:]
	return overflow
}

// Clear empties the display, the mirror, and the queue. When the flush loop
// is running the clear is marshaled onto it so it cannot interleave with a
// batch publish.
func (b *LineBuffer) Clear() {
	b.runMu.Lock()
	running := b.running
	doneCh := b.doneCh
	b.runMu.Unlock()

	if !running {
		b.clearNow()
		return
	}
	ack := make(chan struct{})
	select {
	case b.clearCh <- ack:
		select {
		case <-ack:
		case <-doneCh:
		}
	case <-doneCh:
		b.clearNow()
	}
}

func (b *LineBuffer) clearNow() {
	for {
		select {
		case <-b.queue:
		default:
			b.mu.Lock()
			b.display = nil
			b.textMu.Lock()
			b.text.Reset()
			b.textMu.Unlock()
			b.mu.Unlock()
			b.sink.OnClear(schema.ClearEvent{Console: b.console})
			b.log.Debug("console buffer cleared")
			return
		}
	}
}

// Lines returns a snapshot copy of the display sequence.
func (b *LineBuffer) Lines() []schema.ConsoleLine {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]schema.ConsoleLine, len(b.display))
	copy(out, b.display)
	return out
}

// Len returns the current display sequence length.
func (b *LineBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.display)
}

// Text returns the flat-text mirror of the currently displayed lines, one
// line per displayed entry, each terminated by a newline.
func (b *LineBuffer) Text() string {
	b.textMu.Lock()
	defer b.textMu.Unlock()
	return b.text.String()
}

// SnapshotText renders the display sequence as timestamp-prefixed lines for
// export.
func (b *LineBuffer) SnapshotText() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var sb strings.Builder
	for i, line := range b.display {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(line.Time.Format("15:04:05"))
		sb.WriteByte(' ')
		sb.WriteString(line.Text)
	}
	return sb.String()
}

// Dropped returns how many lines were discarded at queue capacity.
func (b *LineBuffer) Dropped() uint64 { return b.dropped.Load() }

// Queued returns how many lines are waiting in the ingestion queue.
func (b *LineBuffer) Queued() int { return len(b.queue) }
