package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/console"
	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/internal/linepipe"
	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/schema"
)

type execCreateRequest struct {
	AttachStdin  bool     `json:"AttachStdin"`
	AttachStdout bool     `json:"AttachStdout"`
	AttachStderr bool     `json:"AttachStderr"`
	Tty          bool     `json:"Tty"`
	Cmd          []string `json:"Cmd"`
	WorkingDir   string   `json:"WorkingDir,omitempty"`
	Env          []string `json:"Env,omitempty"`
}

type execCreateResponse struct {
	ID string `json:"Id"`
}

type execStartRequest struct {
	Detach bool `json:"Detach"`
	Tty    bool `json:"Tty"`
}

type execInspectResponse struct {
	Running  bool `json:"Running"`
	ExitCode int  `json:"ExitCode"`
}

type execSession struct {
	client *client
	execID string
	stream *linepipe.Stream
	cancel context.CancelFunc
	input  io.WriteCloser

	mu     sync.Mutex
	waited bool
	result console.ExecResult
	err    error
}

func (s *execSession) Outputs() console.LineStream { return s.stream }

func (s *execSession) Input() io.WriteCloser { return s.input }

// Wait polls the exec record until the process exits. The result is cached so
// repeated calls observe the same exit code.
func (s *execSession) Wait(ctx context.Context) (console.ExecResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waited {
		return s.result, s.err
	}
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	endpoint := fmt.Sprintf("/exec/%s/json", url.PathEscape(s.execID))
	for {
		var inspect execInspectResponse
		if err := s.client.doJSON(ctx, http.MethodGet, endpoint, nil, nil, &inspect); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return console.ExecResult{}, err
			}
			s.waited = true
			s.err = err
			return console.ExecResult{}, err
		}
		if !inspect.Running {
			s.waited = true
			s.result = console.ExecResult{ExitCode: inspect.ExitCode}
			return s.result, nil
		}
		select {
		case <-ctx.Done():
			return console.ExecResult{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *execSession) Close() error {
	if s.input != nil {
		_ = s.input.Close()
	}
	s.cancel()
	return nil
}

// hijackedInput forwards writes to the hijacked connection; Close shuts down
// the write half so the process sees EOF on stdin while output still flows.
type hijackedInput struct {
	conn net.Conn
}

func (h *hijackedInput) Write(p []byte) (int, error) { return h.conn.Write(p) }

func (h *hijackedInput) Close() error {
	type closeWriter interface{ CloseWrite() error }
	if cw, ok := h.conn.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return h.conn.Close()
}

// StreamExec creates and starts an exec process inside a running container.
// Non-interactive runs stream output over a plain HTTP response body;
// interactive runs hijack the connection for a duplex stdin/stdout stream.
func (e *Engine) StreamExec(ctx context.Context, req console.ExecStreamRequest) (console.ExecSession, error) {
	if len(req.Argv) == 0 {
		return nil, schema.ErrEmptyCommand
	}
	detail, err := e.Inspect(ctx, req.Container)
	if err != nil {
		return nil, err
	}
	if !detail.Running {
		return nil, fmt.Errorf("container %s is not running", detail.Name)
	}

	create := execCreateRequest{
		AttachStdin:  req.Interactive,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          false,
		Cmd:          req.Argv,
		WorkingDir:   req.WorkingDir,
		Env:          envList(req.Env),
	}
	var created execCreateResponse
	endpoint := fmt.Sprintf("/containers/%s/exec", url.PathEscape(detail.ID))
	if err := e.client.doJSON(ctx, http.MethodPost, endpoint, nil, create, &created); err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, fmt.Errorf("engine returned empty exec id")
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	stream := linepipe.New(256, cancel)
	session := &execSession{
		client: e.client,
		execID: created.ID,
		stream: stream,
		cancel: cancel,
	}
	start := execStartRequest{Detach: false, Tty: false}
	startEndpoint := fmt.Sprintf("/exec/%s/start", url.PathEscape(created.ID))

	if req.Interactive {
		conn, br, err := e.client.hijack(streamCtx, startEndpoint, start)
		if err != nil {
			cancel()
			return nil, err
		}
		session.input = &hijackedInput{conn: conn}
		go func() {
			<-streamCtx.Done()
			_ = conn.Close()
		}()
		go func() {
			stdout := linepipe.NewLineWriter(streamCtx, stream, false)
			stderr := linepipe.NewLineWriter(streamCtx, stream, true)
			err := demuxStream(br, stdout, stderr)
			stdout.Flush()
			stderr.Flush()
			stream.Finish(err)
		}()
	} else {
		res, err := e.client.do(streamCtx, http.MethodPost, startEndpoint, nil, jsonBody(start), "application/json")
		if err != nil {
			cancel()
			return nil, err
		}
		if res.StatusCode >= 300 {
			err := readAPIError(res)
			_ = res.Body.Close()
			cancel()
			return nil, err
		}
		go func() {
			defer func() { _ = res.Body.Close() }()
			stdout := linepipe.NewLineWriter(streamCtx, stream, false)
			stderr := linepipe.NewLineWriter(streamCtx, stream, true)
			err := demuxStream(res.Body, stdout, stderr)
			stdout.Flush()
			stderr.Flush()
			stream.Finish(err)
		}()
	}

	e.logger.Debug("exec started", "container", detail.ID, "exec", created.ID, "interactive", req.Interactive)
	return session, nil
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
