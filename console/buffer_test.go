package console

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/schema"
)

func testConfig() schema.ConsoleConfig {
	return schema.ConsoleConfig{
		MaxLines:        1000,
		MaxQueueSize:    2000,
		MaxLinesPerTick: 500,
		FlushInterval:   5 * time.Millisecond,
		StopGrace:       time.Second,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

// recordSink captures pipeline events for assertions.
type recordSink struct {
	mu        sync.Mutex
	outputs   []schema.OutputEvent
	important []schema.ImportantLineEvent
	states    []schema.SessionStateEvent
	clears    []schema.ClearEvent
}

func (s *recordSink) OnOutput(e schema.OutputEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs = append(s.outputs, e)
}

func (s *recordSink) OnImportantLine(e schema.ImportantLineEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.important = append(s.important, e)
}

func (s *recordSink) OnSessionState(e schema.SessionStateEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, e)
}

func (s *recordSink) OnClear(e schema.ClearEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears = append(s.clears, e)
}

func (s *recordSink) importantTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.important {
		out = append(out, e.Line.Text)
	}
	return out
}

func (s *recordSink) stateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

func mirrorOf(lines []schema.ConsoleLine) string {
	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(line.Text)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func TestLineBufferDeliversInOrder(t *testing.T) {
	buf := NewLineBuffer("c1", testConfig(), nil, nil)
	buf.Start()
	defer buf.Stop()

	for i := 0; i < 100; i++ {
		buf.Push(fmt.Sprintf("line %d", i), false)
	}
	waitFor(t, time.Second, func() bool { return buf.Len() == 100 })

	lines := buf.Lines()
	for i, line := range lines {
		want := fmt.Sprintf("line %d", i)
		if line.Text != want {
			t.Fatalf("expected %q at index %d, got %q", want, i, line.Text)
		}
	}
	if got := buf.Text(); got != mirrorOf(lines) {
		t.Fatalf("expected mirror to match display, got %q", got)
	}
}

func TestLineBufferQueueBounded(t *testing.T) {
	cfg := testConfig()
	cfg.MaxQueueSize = 50
	buf := NewLineBuffer("c1", cfg, nil, nil)
	// Not started: nothing drains the queue, so the excess must be dropped.
	for i := 0; i < 200; i++ {
		buf.Enqueue(schema.ConsoleLine{Text: fmt.Sprintf("line %d", i)})
	}
	if got := buf.Queued(); got != 50 {
		t.Fatalf("expected queue at capacity 50, got %d", got)
	}
	if got := buf.Dropped(); got != 150 {
		t.Fatalf("expected 150 dropped lines, got %d", got)
	}
}

func TestLineBufferEvictsOldest(t *testing.T) {
	buf := NewLineBuffer("c1", testConfig(), nil, nil)
	buf.Start()
	defer buf.Stop()

	// Two waves, each within queue capacity, 3000 lines total against a
	// 1000-line display.
	for i := 0; i < 1500; i++ {
		buf.Push(fmt.Sprintf("line %d", i), false)
	}
	waitFor(t, 2*time.Second, func() bool {
		lines := buf.Lines()
		return len(lines) == 1000 && lines[999].Text == "line 1499"
	})
	for i := 1500; i < 3000; i++ {
		buf.Push(fmt.Sprintf("line %d", i), false)
	}
	waitFor(t, 2*time.Second, func() bool {
		lines := buf.Lines()
		return len(lines) == 1000 && lines[999].Text == "line 2999"
	})

	if dropped := buf.Dropped(); dropped != 0 {
		t.Fatalf("expected no queue drops, got %d", dropped)
	}
	lines := buf.Lines()
	for i, line := range lines {
		want := fmt.Sprintf("line %d", 2000+i)
		if line.Text != want {
			t.Fatalf("expected %q at index %d, got %q", want, i, line.Text)
		}
	}
	if got := buf.Text(); got != mirrorOf(lines) {
		t.Fatalf("expected mirror to track evictions exactly")
	}
}

func TestLineBufferDisplayNeverExceedsMaxLines(t *testing.T) {
	cfg := testConfig()
	cfg.MaxLines = 20
	cfg.MaxLinesPerTick = 7
	buf := NewLineBuffer("c1", cfg, nil, nil)
	buf.Start()
	defer buf.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			buf.Push(fmt.Sprintf("line %d", i), false)
		}
	}()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if n := buf.Len(); n > 20 {
			t.Fatalf("expected display length <= 20, got %d", n)
		}
	}
	<-done
}

func TestLineBufferStopForceDrains(t *testing.T) {
	cfg := testConfig()
	cfg.FlushInterval = time.Hour // ticks never fire; only stop can publish
	buf := NewLineBuffer("c1", cfg, nil, nil)
	buf.Start()

	for i := 0; i < 30; i++ {
		buf.Push(fmt.Sprintf("tail %d", i), false)
	}
	buf.Stop()

	if got := buf.Len(); got != 30 {
		t.Fatalf("expected 30 lines after force-drain, got %d", got)
	}
	if lines := buf.Lines(); lines[29].Text != "tail 29" {
		t.Fatalf("expected last line %q, got %q", "tail 29", lines[29].Text)
	}
}

// blockingSink stalls the first publish until released.
type blockingSink struct {
	recordSink
	release chan struct{}
	blocked chan struct{}
	once    sync.Once
}

func (s *blockingSink) OnOutput(e schema.OutputEvent) {
	s.once.Do(func() {
		close(s.blocked)
		<-s.release
	})
	s.recordSink.OnOutput(e)
}

func TestLineBufferStopTimeoutKeepsSingleConsumer(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{}), blocked: make(chan struct{})}
	cfg := testConfig()
	cfg.StopGrace = 20 * time.Millisecond
	buf := NewLineBuffer("c1", cfg, sink, nil)
	buf.Start()

	buf.Push("line 0", false)
	<-sink.blocked // the flush loop is wedged inside the sink
	for i := 1; i < 20; i++ {
		buf.Push(fmt.Sprintf("line %d", i), false)
	}

	// Stop times out while the sink blocks; the remainder must still be
	// published by the loop alone, in order, once the sink unblocks.
	buf.Stop()
	close(sink.release)

	waitFor(t, time.Second, func() bool { return buf.Len() == 20 })
	lines := buf.Lines()
	for i, line := range lines {
		want := fmt.Sprintf("line %d", i)
		if line.Text != want {
			t.Fatalf("expected %q at index %d, got %q", want, i, line.Text)
		}
	}
	total := 0
	sink.mu.Lock()
	for _, e := range sink.outputs {
		total += len(e.Lines)
	}
	sink.mu.Unlock()
	if total != 20 {
		t.Fatalf("expected 20 published lines, got %d", total)
	}
}

func TestLineBufferStartStopIdempotent(t *testing.T) {
	buf := NewLineBuffer("c1", testConfig(), nil, nil)
	buf.Start()
	buf.Start()
	buf.Push("hello", false)
	waitFor(t, time.Second, func() bool { return buf.Len() == 1 })
	buf.Stop()
	buf.Stop()

	// Restart after stop keeps working.
	buf.Start()
	buf.Push("again", false)
	waitFor(t, time.Second, func() bool { return buf.Len() == 2 })
	buf.Stop()
}

func TestLineBufferClear(t *testing.T) {
	sink := &recordSink{}
	buf := NewLineBuffer("c1", testConfig(), sink, nil)
	buf.Start()
	defer buf.Stop()

	for i := 0; i < 10; i++ {
		buf.Push(fmt.Sprintf("line %d", i), false)
	}
	waitFor(t, time.Second, func() bool { return buf.Len() == 10 })

	buf.Clear()
	if got := buf.Len(); got != 0 {
		t.Fatalf("expected empty display after clear, got %d lines", got)
	}
	if got := buf.Text(); got != "" {
		t.Fatalf("expected empty mirror after clear, got %q", got)
	}
	sink.mu.Lock()
	clears := len(sink.clears)
	sink.mu.Unlock()
	if clears != 1 {
		t.Fatalf("expected 1 clear event, got %d", clears)
	}
}

func TestLineBufferImportantLineEvents(t *testing.T) {
	sink := &recordSink{}
	buf := NewLineBuffer("c1", testConfig(), sink, nil)
	buf.Start()
	defer buf.Stop()

	buf.Push("normal", false)
	buf.PushImportant("first", true)
	buf.PushImportant("second", false)
	waitFor(t, time.Second, func() bool { return buf.Len() == 3 })

	got := sink.importantTexts()
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("expected important events [first second] in order, got %v", got)
	}
}

func TestLineBufferSnapshotText(t *testing.T) {
	buf := NewLineBuffer("c1", testConfig(), nil, nil)
	buf.Start()
	defer buf.Stop()

	buf.Push("alpha", false)
	buf.Push("beta", true)
	waitFor(t, time.Second, func() bool { return buf.Len() == 2 })

	snapshot := buf.SnapshotText()
	rows := strings.Split(snapshot, "\n")
	if len(rows) != 2 {
		t.Fatalf("expected 2 snapshot rows, got %d", len(rows))
	}
	if !strings.HasSuffix(rows[0], " alpha") || !strings.HasSuffix(rows[1], " beta") {
		t.Fatalf("expected timestamp-prefixed rows, got %q", rows)
	}
}

func TestLineBufferSanitizesOnPush(t *testing.T) {
	buf := NewLineBuffer("c1", testConfig(), nil, nil)
	buf.Start()
	defer buf.Stop()

	buf.Push("\x1b[31merror:\x1b[0m boom", true)
	waitFor(t, time.Second, func() bool { return buf.Len() == 1 })

	line := buf.Lines()[0]
	if line.Text != "error: boom" {
		t.Fatalf("expected sanitized text, got %q", line.Text)
	}
	if !line.Err {
		t.Fatalf("expected error flag to be preserved")
	}
}
