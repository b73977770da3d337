package buildpipe

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/moby/buildkit/client"

	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/console"
	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/schema"
)

func newTestBuffer(t *testing.T) *console.LineBuffer {
	t.Helper()
	buffer := console.NewLineBuffer("build", schema.ConsoleConfig{
		MaxLines:        1000,
		MaxQueueSize:    1000,
		MaxLinesPerTick: 500,
		FlushInterval:   5 * time.Millisecond,
		StopGrace:       time.Second,
	}, console.NopSink{}, nil)
	buffer.Start()
	t.Cleanup(buffer.Stop)
	return buffer
}

func waitForLines(t *testing.T, buffer *console.LineBuffer, want int) []schema.ConsoleLine {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if buffer.Len() >= want {
			return buffer.Lines()
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected %d lines, got %d: %v", want, buffer.Len(), buffer.Lines())
	return nil
}

func TestStreamStatusConvertsProgress(t *testing.T) {
	buffer := newTestBuffer(t)
	started := time.Now()

	statusCh := make(chan *client.SolveStatus, 3)
	statusCh <- &client.SolveStatus{
		Vertexes: []*client.Vertex{
			{Digest: "sha256:aaa", Name: "[1/2] FROM alpine", Started: &started},
		},
	}
	statusCh <- &client.SolveStatus{
		Logs: []*client.VertexLog{
			{Vertex: "sha256:aaa", Data: []byte("fetching layers\n"), Timestamp: started},
			{Vertex: "sha256:aaa", Data: []byte("   \n"), Timestamp: started},
		},
		Warnings: []*client.VertexWarning{
			{Vertex: "sha256:aaa", Short: []byte("legacy syntax"), URL: "https://docs.docker.com"},
		},
	}
	statusCh <- &client.SolveStatus{
		Vertexes: []*client.Vertex{
			{Digest: "sha256:bbb", Name: "[2/2] RUN make", Started: &started, Error: "exit code 2"},
		},
	}
	close(statusCh)
	streamStatus(statusCh, buffer)

	lines := waitForLines(t, buffer, 4)
	if lines[0].Text != "=> [1/2] FROM alpine" || lines[0].Err {
		t.Fatalf("unexpected first line %+v", lines[0])
	}
	if lines[1].Text != "fetching layers" {
		t.Fatalf("unexpected log line %+v", lines[1])
	}
	if !strings.HasPrefix(lines[2].Text, "WARNING: legacy syntax") || !lines[2].Err {
		t.Fatalf("unexpected warning line %+v", lines[2])
	}
	last := lines[len(lines)-1]
	if !strings.Contains(last.Text, "ERROR [2/2] RUN make: exit code 2") || !last.Err {
		t.Fatalf("unexpected error line %+v", last)
	}
}

func TestStreamStatusDeduplicatesVertexStart(t *testing.T) {
	buffer := newTestBuffer(t)
	started := time.Now()
	vertex := &client.Vertex{Digest: "sha256:aaa", Name: "[1/1] FROM alpine", Started: &started}

	statusCh := make(chan *client.SolveStatus, 2)
	statusCh <- &client.SolveStatus{Vertexes: []*client.Vertex{vertex}}
	statusCh <- &client.SolveStatus{Vertexes: []*client.Vertex{vertex}}
	close(statusCh)
	streamStatus(statusCh, buffer)

	lines := waitForLines(t, buffer, 1)
	if len(lines) != 1 {
		t.Fatalf("expected one start line, got %v", lines)
	}
}

func TestBuildRejectsMissingInputs(t *testing.T) {
	builder := New(Config{}, nil)
	buffer := newTestBuffer(t)

	if err := builder.Build(context.Background(), BuildRequest{ContextDir: "/tmp"}, buffer); err == nil {
		t.Fatalf("expected missing tags error")
	}
	if err := builder.Build(context.Background(), BuildRequest{Tags: []string{"demo:latest"}}, buffer); err == nil {
		t.Fatalf("expected missing context error")
	}
}

func TestCandidateAddressesPrefersConfigured(t *testing.T) {
	addrs := candidateAddresses("unix:///custom/buildkitd.sock")
	if addrs[0] != "unix:///custom/buildkitd.sock" {
		t.Fatalf("expected configured address first, got %v", addrs)
	}
	last := addrs[len(addrs)-1]
	if last != "unix:///run/buildkit/buildkitd.sock" {
		t.Fatalf("expected system socket last, got %v", addrs)
	}
}
