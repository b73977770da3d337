package containerd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	"github.com/containerd/errdefs"
	"github.com/google/uuid"
	"github.com/opencontainers/runtime-spec/specs-go"

	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/console"
	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/internal/linepipe"
	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/schema"
)

type logSession struct {
	stream *linepipe.Stream
	cancel context.CancelFunc
}

func (s *logSession) Lines() console.LineStream { return s.stream }

func (s *logSession) Close() error {
	s.cancel()
	return nil
}

// StreamLogs attaches to the running task's output FIFOs and streams lines
// until the task exits or the session is closed. containerd keeps no log
// history, so only output produced after attachment is observed.
func (e *Engine) StreamLogs(ctx context.Context, req console.LogStreamRequest) (console.LogSession, error) {
	nsCtx := e.withNamespace(ctx)
	container, err := e.client.LoadContainer(nsCtx, req.Container)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", schema.ErrContainerNotFound, req.Container)
		}
		return nil, err
	}
	_, err = container.Task(nsCtx, nil)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("container %s has no running task", req.Container)
		}
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(e.withNamespace(context.Background()))
	stream := linepipe.New(256, cancel)
	stdout := linepipe.NewLineWriter(streamCtx, stream, false)
	stderr := linepipe.NewLineWriter(streamCtx, stream, true)

	attached, err := container.Task(streamCtx, cio.NewAttach(cio.WithStreams(nil, stdout, stderr)))
	if err != nil {
		cancel()
		return nil, err
	}
	waitCh, err := attached.Wait(streamCtx)
	if err != nil {
		cancel()
		return nil, err
	}
	go func() {
		select {
		case <-waitCh:
		case <-streamCtx.Done():
		}
		stdout.Flush()
		stderr.Flush()
		stream.Finish(nil)
	}()

	e.logger.Debug("log stream opened", "container", req.Container, "follow", req.Follow)
	return &logSession{stream: stream, cancel: cancel}, nil
}

type execSession struct {
	process containerd.Process
	stream  *linepipe.Stream
	cancel  context.CancelFunc
	input   io.WriteCloser
	exitCh  chan containerd.ExitStatus
	nsCtx   context.Context
}

func (s *execSession) Outputs() console.LineStream { return s.stream }

func (s *execSession) Input() io.WriteCloser { return s.input }

// Wait blocks on the process exit future. The status is pushed back so
// repeated calls observe the same exit code.
func (s *execSession) Wait(ctx context.Context) (console.ExecResult, error) {
	select {
	case status := <-s.exitCh:
		s.exitCh <- status
		code, _, err := status.Result()
		if err != nil {
			return console.ExecResult{}, err
		}
		return console.ExecResult{ExitCode: int(code)}, nil
	case <-ctx.Done():
		return console.ExecResult{}, ctx.Err()
	}
}

func (s *execSession) Close() error {
	if s.input != nil {
		_ = s.input.Close()
	}
	s.cancel()
	return nil
}

// StreamExec starts a process inside the container's running task and streams
// its output line by line.
func (e *Engine) StreamExec(ctx context.Context, req console.ExecStreamRequest) (console.ExecSession, error) {
	if len(req.Argv) == 0 {
		return nil, schema.ErrEmptyCommand
	}
	nsCtx := e.withNamespace(ctx)
	container, err := e.client.LoadContainer(nsCtx, req.Container)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", schema.ErrContainerNotFound, req.Container)
		}
		return nil, err
	}
	task, err := container.Task(nsCtx, nil)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("container %s is not running", req.Container)
		}
		return nil, err
	}

	proc, err := e.processSpec(nsCtx, container, req)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(e.withNamespace(context.Background()))
	stream := linepipe.New(256, cancel)
	stdout := linepipe.NewLineWriter(streamCtx, stream, false)
	stderr := linepipe.NewLineWriter(streamCtx, stream, true)

	var stdin io.Reader
	var input io.WriteCloser
	if req.Interactive {
		pr, pw := io.Pipe()
		stdin = pr
		input = pw
	}

	execID := "exec-" + uuid.NewString()
	process, err := task.Exec(nsCtx, execID, proc, cio.NewCreator(cio.WithStreams(stdin, stdout, stderr)))
	if err != nil {
		cancel()
		return nil, err
	}
	waitCh, err := process.Wait(streamCtx)
	if err != nil {
		_, _ = process.Delete(nsCtx)
		cancel()
		return nil, err
	}
	if err := process.Start(nsCtx); err != nil {
		_, _ = process.Delete(nsCtx)
		cancel()
		return nil, err
	}

	session := &execSession{
		process: process,
		stream:  stream,
		cancel:  cancel,
		input:   input,
		exitCh:  make(chan containerd.ExitStatus, 1),
		nsCtx:   streamCtx,
	}
	go func() {
		<-streamCtx.Done()
		if input != nil {
			_ = input.Close()
		}
	}()
	go func() {
		select {
		case status := <-waitCh:
			session.exitCh <- status
			_, _ = process.Delete(e.withNamespace(context.Background()))
		case <-streamCtx.Done():
		}
		stdout.Flush()
		stderr.Flush()
		stream.Finish(nil)
	}()

	e.logger.Debug("exec started", "container", req.Container, "exec", execID, "interactive", req.Interactive)
	return session, nil
}

func (e *Engine) processSpec(ctx context.Context, container containerd.Container, req console.ExecStreamRequest) (*specs.Process, error) {
	baseSpec, err := container.Spec(ctx)
	if err != nil {
		return nil, err
	}
	base := baseSpec.Process
	if base == nil {
		base = &specs.Process{}
	}
	proc := &specs.Process{
		Args:     req.Argv,
		Cwd:      base.Cwd,
		Env:      mergeEnv(base.Env, req.Env),
		User:     base.User,
		Terminal: false,
	}
	if proc.Cwd == "" {
		proc.Cwd = "/"
	}
	if req.WorkingDir != "" {
		proc.Cwd = req.WorkingDir
	}
	return proc, nil
}

func mergeEnv(base []string, add map[string]string) []string {
	if len(add) == 0 {
		return base
	}
	merged := map[string]string{}
	order := make([]string, 0, len(base)+len(add))
	for _, entry := range base {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if _, ok := merged[parts[0]]; !ok {
			order = append(order, parts[0])
		}
		merged[parts[0]] = parts[1]
	}
	keys := make([]string, 0, len(add))
	for k := range add {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := merged[k]; !ok {
			order = append(order, k)
		}
		merged[k] = add[k]
	}
	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+merged[k])
	}
	return out
}
