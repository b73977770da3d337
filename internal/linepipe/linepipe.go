// Package linepipe adapts raw byte streams produced by container engines into
// the console.LineStream contract: a channel-backed, context-aware sequence of
// complete text lines.
package linepipe

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/console"
)

// Stream is a channel-backed console.LineStream. Producers push lines with
// Send and terminate the stream with Finish; consumers read with Next until
// io.EOF (or the terminal error passed to Finish).
type Stream struct {
	ch      chan console.StreamLine
	closeFn func()

	errMu sync.Mutex
	err   error
	once  sync.Once
}

// New constructs a Stream with the given channel depth. closeFn is invoked on
// consumer Close to cancel the upstream producer; it may be nil.
func New(depth int, closeFn func()) *Stream {
	if depth <= 0 {
		depth = 256
	}
	return &Stream{
		ch:      make(chan console.StreamLine, depth),
		closeFn: closeFn,
	}
}

// Send delivers one line. It blocks while the consumer lags, which applies
// natural back-pressure to the producer's socket reads, and returns false once
// ctx is cancelled.
func (s *Stream) Send(ctx context.Context, line console.StreamLine) bool {
	select {
	case <-ctx.Done():
		return false
	case s.ch <- line:
		return true
	}
}

// Finish terminates the stream. A nil or cancellation error yields io.EOF
// from Next once the channel drains; any other error is surfaced instead.
// Only the first call has effect.
func (s *Stream) Finish(err error) {
	s.once.Do(func() {
		if err != nil && !isBenign(err) {
			s.errMu.Lock()
			s.err = err
			s.errMu.Unlock()
		}
		close(s.ch)
	})
}

func isBenign(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Next implements console.LineStream.
func (s *Stream) Next(ctx context.Context) (console.StreamLine, error) {
	select {
	case <-ctx.Done():
		return console.StreamLine{}, ctx.Err()
	case line, ok := <-s.ch:
		if ok {
			return line, nil
		}
		s.errMu.Lock()
		err := s.err
		s.errMu.Unlock()
		if err != nil {
			return console.StreamLine{}, err
		}
		return console.StreamLine{}, io.EOF
	}
}

// Close implements console.LineStream by cancelling the upstream producer.
func (s *Stream) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// LineWriter is an io.Writer that splits written bytes into lines and sends
// them on a Stream with a fixed stderr tag. A trailing carriage return is
// trimmed from each line; a trailing partial line is held until Flush.
type LineWriter struct {
	ctx    context.Context
	stream *Stream
	stderr bool

	mu  sync.Mutex
	buf []byte
}

// NewLineWriter constructs a LineWriter bound to stream's producer context.
func NewLineWriter(ctx context.Context, stream *Stream, stderr bool) *LineWriter {
	return &LineWriter{ctx: ctx, stream: stream, stderr: stderr}
}

// Write implements io.Writer. It returns the producer context's error once
// the stream consumer is gone, which stops upstream copy loops.
func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			return len(p), nil
		}
		line := string(bytes.TrimRight(w.buf[:i], "\r"))
		w.buf = w.buf[i+1:]
		if !w.stream.Send(w.ctx, console.StreamLine{Stderr: w.stderr, Text: line}) {
			return len(p), w.ctx.Err()
		}
	}
}

// Flush emits any held partial line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) == 0 {
		return
	}
	line := string(bytes.TrimRight(w.buf, "\r"))
	w.buf = nil
	if line != "" {
		w.stream.Send(w.ctx, console.StreamLine{Stderr: w.stderr, Text: line})
	}
}
