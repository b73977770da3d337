package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"pkt.systems/pslog"

	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/schema"
)

func TestWithConsoleAddsField(t *testing.T) {
	capture := &logCapture{}
	logger := pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
	ctx := pslog.ContextWithLogger(context.Background(), logger)
	log := WithConsole(ctx, schema.ConsoleID("web"))
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["console"] != "web" {
		t.Fatalf("expected console field, got %+v", entry)
	}
}

func TestWithConsoleSkipsDuplicate(t *testing.T) {
	capture := &logCapture{}
	logger := pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
	ctx := ContextWithConsoleLogger(context.Background(), logger.With("console", "web"), "web")
	log := WithConsole(ctx, schema.ConsoleID("web"))
	log.Info("hello")

	data := capture.buf.String()
	if got := bytes.Count([]byte(data), []byte(`"console"`)); got != 1 {
		t.Fatalf("expected console field once, got %d in %q", got, data)
	}
}

func TestWithContainerAddsFields(t *testing.T) {
	capture := &logCapture{}
	logger := pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
	ctx := pslog.ContextWithLogger(context.Background(), logger)
	log := WithContainer(ctx, "web", "abc123")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["console"] != "web" {
		t.Fatalf("expected console field, got %+v", entry)
	}
	if entry["container"] != "abc123" {
		t.Fatalf("expected container field, got %+v", entry)
	}
}

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

func (c *logCapture) firstEntry(t *testing.T) map[string]any {
	t.Helper()
	data := c.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		idx = len(data)
	}
	line := bytes.TrimSpace(data[:idx])
	entry := map[string]any{}
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("parse log entry: %v", err)
	}
	return entry
}
