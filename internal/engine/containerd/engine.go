// Package containerd implements the container engine interface against a
// containerd daemon socket.
package containerd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/namespaces"
	"github.com/containerd/errdefs"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"pkt.systems/pslog"

	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/schema"
)

// Config configures the containerd engine.
type Config struct {
	Address   string
	Namespace string
}

// Engine talks to a containerd daemon within a single namespace.
type Engine struct {
	client    *containerd.Client
	namespace string
	logger    pslog.Logger
}

// New connects to the first reachable containerd socket among the configured
// address and the usual locations.
func New(ctx context.Context, cfg Config, logger pslog.Logger) (*Engine, error) {
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	namespace := strings.TrimSpace(cfg.Namespace)
	if namespace == "" {
		namespace = "default"
	}
	var lastErr error
	for _, addr := range candidateAddresses(cfg.Address) {
		client, err := containerd.New(addr)
		if err != nil {
			logger.Debug("containerd connect failed", "address", addr, "err", err)
			lastErr = err
			continue
		}
		logger.Debug("engine connected", "address", addr, "namespace", namespace)
		return &Engine{client: client, namespace: namespace, logger: logger}, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no containerd address configured")
	}
	return nil, fmt.Errorf("%w: %v", schema.ErrEngineUnavailable, lastErr)
}

// Close releases the containerd client.
func (e *Engine) Close() error {
	if e == nil || e.client == nil {
		return nil
	}
	return e.client.Close()
}

func (e *Engine) withNamespace(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, e.namespace)
}

// ListContainers returns summaries of containers in the engine's namespace.
// With all false only containers with a running task are reported.
func (e *Engine) ListContainers(ctx context.Context, all bool) ([]schema.ContainerSummary, error) {
	ctx = e.withNamespace(ctx)
	containers, err := e.client.Containers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]schema.ContainerSummary, 0, len(containers))
	for _, container := range containers {
		info, err := container.Info(ctx)
		if err != nil {
			continue
		}
		state := "created"
		status := ""
		task, err := container.Task(ctx, nil)
		if err == nil {
			if st, err := task.Status(ctx); err == nil {
				state = string(st.Status)
				if st.Status == containerd.Stopped {
					status = fmt.Sprintf("Exited (%d)", st.ExitStatus)
				}
			}
		}
		if !all && state != string(containerd.Running) {
			continue
		}
		out = append(out, schema.ContainerSummary{
			ID:      info.ID,
			Names:   []string{info.ID},
			Image:   info.Image,
			State:   state,
			Status:  status,
			Created: info.CreatedAt,
		})
	}
	return out, nil
}

// Inspect resolves a container by id.
func (e *Engine) Inspect(ctx context.Context, container string) (schema.ContainerDetail, error) {
	ctx = e.withNamespace(ctx)
	loaded, err := e.client.LoadContainer(ctx, container)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return schema.ContainerDetail{}, fmt.Errorf("%w: %s", schema.ErrContainerNotFound, container)
		}
		return schema.ContainerDetail{}, err
	}
	info, err := loaded.Info(ctx)
	if err != nil {
		return schema.ContainerDetail{}, err
	}
	detail := schema.ContainerDetail{
		ID:     info.ID,
		Name:   info.ID,
		Image:  info.Image,
		Labels: info.Labels,
	}
	if image, err := loaded.Image(ctx); err == nil {
		detail.ImageDigest = manifestDigest(image.Target())
	}
	if spec, err := loaded.Spec(ctx); err == nil && spec.Process != nil {
		detail.TTY = spec.Process.Terminal
	}
	task, err := loaded.Task(ctx, nil)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return detail, nil
		}
		return schema.ContainerDetail{}, err
	}
	if st, err := task.Status(ctx); err == nil {
		detail.Running = st.Status == containerd.Running
		detail.ExitCode = int(st.ExitStatus)
	}
	return detail, nil
}

// StopContainer sends SIGTERM to the container's task and waits up to timeout
// for it to exit before escalating to SIGKILL. A missing container or task is
// not an error.
func (e *Engine) StopContainer(ctx context.Context, container string, timeout time.Duration) error {
	ctx = e.withNamespace(ctx)
	loaded, err := e.client.LoadContainer(ctx, container)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return err
	}
	task, err := loaded.Task(ctx, nil)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return err
	}
	waitCh, err := task.Wait(ctx)
	if err != nil {
		return err
	}
	if err := task.Kill(ctx, syscall.SIGTERM); err != nil && !errdefs.IsNotFound(err) {
		return err
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case <-waitCh:
	case <-time.After(timeout):
		_ = task.Kill(ctx, syscall.SIGKILL)
		select {
		case <-waitCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	e.logger.Debug("container stopped", "container", container)
	return nil
}

// manifestDigest renders an image descriptor's digest, empty when the store
// has no resolved manifest for it.
func manifestDigest(target ocispec.Descriptor) string {
	if target.Digest == "" {
		return ""
	}
	return target.Digest.String()
}

func candidateAddresses(primary string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(addr string) {
		addr = normalizeAddress(addr)
		if addr == "" {
			return
		}
		if _, ok := seen[addr]; ok {
			return
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	add(primary)

	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir != "" {
		add(filepath.Join(runtimeDir, "containerd", "containerd.sock"))
	}
	userRunDir := filepath.Join("/run", "user", fmt.Sprintf("%d", os.Getuid()))
	if userRunDir != runtimeDir {
		add(filepath.Join(userRunDir, "containerd", "containerd.sock"))
	}
	add("/run/containerd/containerd.sock")
	return out
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.TrimPrefix(addr, "unix://")
	addr = strings.TrimPrefix(addr, "unix:")
	return addr
}
