// Package buildpipe drives BuildKit image builds and streams their progress
// through the console line pipeline.
package buildpipe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/moby/buildkit/client"
	"pkt.systems/pslog"

	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/console"
)

// Config configures the BuildKit driver.
type Config struct {
	Address string
}

// BuildRequest describes one image build.
type BuildRequest struct {
	ContextDir    string
	Containerfile string
	Tags          []string
	BuildArgs     map[string]string
	Timeout       time.Duration
}

// Builder runs BuildKit solves and reports progress as console lines.
type Builder struct {
	addresses []string
	logger    pslog.Logger
}

// New constructs a Builder with fallback socket addresses.
func New(cfg Config, logger pslog.Logger) *Builder {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Builder{addresses: candidateAddresses(cfg.Address), logger: logger}
}

// Build runs a solve, pushing vertex, log, and warning lines into buffer as
// they arrive. The final outcome is pushed as an important line.
func (b *Builder) Build(ctx context.Context, req BuildRequest, buffer *console.LineBuffer) error {
	log := b.logger.With("backend", "buildkit")
	if len(req.Tags) == 0 {
		log.Warn("build rejected", "reason", "missing tags")
		return errors.New("build tags are required")
	}
	contextDir := strings.TrimSpace(req.ContextDir)
	if contextDir == "" {
		log.Warn("build rejected", "reason", "missing context")
		return errors.New("build context is required")
	}
	containerfile := req.Containerfile
	if containerfile == "" {
		containerfile = filepath.Join(contextDir, "Dockerfile")
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = 20 * time.Minute
	}
	log.Info("build start", "tags", len(req.Tags), "context", contextDir)
	buildCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bkclient, err := b.dial(buildCtx)
	if err != nil {
		log.Warn("build failed", "err", err)
		return err
	}
	defer func() { _ = bkclient.Close() }()

	attrs := map[string]string{
		"filename": filepath.Base(containerfile),
	}
	for k, v := range req.BuildArgs {
		attrs["build-arg:"+k] = v
	}

	statusCh := make(chan *client.SolveStatus)
	done := make(chan struct{})
	go func() {
		defer close(done)
		streamStatus(statusCh, buffer)
	}()

	_, err = bkclient.Solve(buildCtx, nil, client.SolveOpt{
		Frontend:      "dockerfile.v0",
		FrontendAttrs: attrs,
		LocalDirs: map[string]string{
			"context":    contextDir,
			"dockerfile": filepath.Dir(containerfile),
		},
		Exports: []client.ExportEntry{
			{
				Type: client.ExporterImage,
				Attrs: map[string]string{
					"name":           strings.Join(req.Tags, ","),
					"push":           "false",
					"store":          "true",
					"unpack":         "true",
					"oci-mediatypes": "true",
				},
			},
		},
	}, statusCh)
	<-done
	if err != nil {
		buffer.PushImportant(fmt.Sprintf("[build] failed: %v", err), true)
		log.Warn("build failed", "err", err)
		return err
	}
	buffer.PushImportant(fmt.Sprintf("[build] done: %s", strings.Join(req.Tags, ", ")), false)
	log.Info("build ok", "tags", len(req.Tags))
	return nil
}

// streamStatus converts SolveStatus progress into console lines. Vertex names
// become step lines, log payloads pass through, warnings and vertex errors
// are marked as error lines.
func streamStatus(statusCh <-chan *client.SolveStatus, buffer *console.LineBuffer) {
	started := make(map[string]struct{})
	failed := make(map[string]string)
	for status := range statusCh {
		for _, v := range status.Vertexes {
			if v == nil {
				continue
			}
			id := v.Digest.String()
			if v.Started != nil {
				if _, ok := started[id]; !ok && v.Name != "" {
					started[id] = struct{}{}
					buffer.Push("=> "+v.Name, false)
				}
			}
			if v.Error != "" && failed[id] != v.Error {
				failed[id] = v.Error
				buffer.Push(fmt.Sprintf("=> ERROR %s: %s", v.Name, v.Error), true)
			}
		}
		for _, logEntry := range status.Logs {
			if logEntry == nil {
				continue
			}
			msg := strings.TrimRight(string(logEntry.Data), "\n")
			if strings.TrimSpace(msg) == "" {
				continue
			}
			buffer.Push(msg, false)
		}
		for _, warn := range status.Warnings {
			if warn == nil {
				continue
			}
			short := strings.TrimSpace(string(warn.Short))
			if warn.URL != "" {
				if short != "" {
					short = short + " (" + warn.URL + ")"
				} else {
					short = warn.URL
				}
			}
			if short == "" {
				continue
			}
			buffer.Push("WARNING: "+short, true)
		}
	}
}

func (b *Builder) dial(ctx context.Context) (*client.Client, error) {
	var lastErr error
	for _, addr := range b.addresses {
		c, err := client.New(ctx, addr)
		if err == nil {
			return c, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("buildkit address not configured")
	}
	return nil, lastErr
}

// Addresses reports the socket candidates in probe order.
func (b *Builder) Addresses() []string {
	out := make([]string, len(b.addresses))
	copy(out, b.addresses)
	return out
}

func candidateAddresses(primary string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(addr string) {
		if addr == "" {
			return
		}
		if _, ok := seen[addr]; ok {
			return
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	add(strings.TrimSpace(primary))

	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir != "" {
		add(fmt.Sprintf("unix://%s", filepath.Join(runtimeDir, "buildkit", "buildkitd.sock")))
	}
	userRunDir := filepath.Join("/run", "user", fmt.Sprintf("%d", os.Getuid()))
	if userRunDir != runtimeDir {
		add(fmt.Sprintf("unix://%s", filepath.Join(userRunDir, "buildkit", "buildkitd.sock")))
	}
	add("unix:///run/buildkit/buildkitd.sock")
	return out
}
