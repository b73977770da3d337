// Package docker implements the container engine interface against a
// Docker-compatible HTTP API over a unix socket or TCP endpoint.
package docker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pkt.systems/pslog"

	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/schema"
)

// Engine talks to a single Docker-compatible daemon.
type Engine struct {
	client *client
	logger pslog.Logger
}

// New connects to the first reachable daemon among the configured address and
// the usual socket locations. It pings each candidate before settling.
func New(ctx context.Context, address string, logger pslog.Logger) (*Engine, error) {
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	var lastErr error
	for _, candidate := range candidateAddresses(address) {
		c, err := newClient(candidate)
		if err != nil {
			lastErr = err
			continue
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = c.ping(pingCtx)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		logger.Debug("engine connected", "address", candidate)
		return &Engine{client: c, logger: logger}, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no engine address configured")
	}
	return nil, fmt.Errorf("%w: %v", schema.ErrEngineUnavailable, lastErr)
}

// Close releases the underlying HTTP client's idle connections.
func (e *Engine) Close() error {
	if e == nil || e.client == nil {
		return nil
	}
	if t, ok := e.client.http.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}

// Address reports the daemon address the engine settled on.
func (e *Engine) Address() string {
	if e == nil || e.client == nil {
		return ""
	}
	return e.client.address
}

type containerJSON struct {
	ID      string   `json:"Id"`
	Names   []string `json:"Names"`
	Image   string   `json:"Image"`
	State   string   `json:"State"`
	Status  string   `json:"Status"`
	Created int64    `json:"Created"`
}

// ListContainers returns summaries of containers known to the daemon. With
// all false only running containers are reported.
func (e *Engine) ListContainers(ctx context.Context, all bool) ([]schema.ContainerSummary, error) {
	query := url.Values{}
	if all {
		query.Set("all", "true")
	}
	var decoded []containerJSON
	if err := e.client.doJSON(ctx, http.MethodGet, "/containers/json", query, nil, &decoded); err != nil {
		return nil, err
	}
	out := make([]schema.ContainerSummary, 0, len(decoded))
	for _, c := range decoded {
		out = append(out, schema.ContainerSummary{
			ID:      c.ID,
			Names:   c.Names,
			Image:   c.Image,
			State:   c.State,
			Status:  c.Status,
			Created: time.Unix(c.Created, 0),
		})
	}
	return out, nil
}

type inspectJSON struct {
	ID    string `json:"Id"`
	Name  string `json:"Name"`
	Image string `json:"Image"`
	State struct {
		Running   bool   `json:"Running"`
		ExitCode  int    `json:"ExitCode"`
		StartedAt string `json:"StartedAt"`
	} `json:"State"`
	Config struct {
		Image  string            `json:"Image"`
		Tty    bool              `json:"Tty"`
		Labels map[string]string `json:"Labels"`
	} `json:"Config"`
}

// Inspect resolves a container by id or name.
func (e *Engine) Inspect(ctx context.Context, container string) (schema.ContainerDetail, error) {
	var decoded inspectJSON
	endpoint := fmt.Sprintf("/containers/%s/json", url.PathEscape(container))
	res, err := e.client.do(ctx, http.MethodGet, endpoint, nil, nil, "")
	if err != nil {
		return schema.ContainerDetail{}, err
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode == http.StatusNotFound {
		return schema.ContainerDetail{}, fmt.Errorf("%w: %s", schema.ErrContainerNotFound, container)
	}
	if res.StatusCode >= 300 {
		return schema.ContainerDetail{}, readAPIError(res)
	}
	if err := decodeJSON(res, &decoded); err != nil {
		return schema.ContainerDetail{}, err
	}
	detail := schema.ContainerDetail{
		ID:          decoded.ID,
		Name:        strings.TrimPrefix(decoded.Name, "/"),
		Image:       decoded.Config.Image,
		ImageDigest: decoded.Image,
		Running:     decoded.State.Running,
		ExitCode:    decoded.State.ExitCode,
		TTY:         decoded.Config.Tty,
		Labels:      decoded.Config.Labels,
	}
	if ts, err := time.Parse(time.RFC3339Nano, decoded.State.StartedAt); err == nil && !ts.IsZero() {
		detail.StartedAt = ts
	}
	return detail, nil
}

// StopContainer asks the daemon to stop a container, waiting up to timeout
// before the daemon escalates to SIGKILL. Already-stopped and already-removed
// containers are not errors.
func (e *Engine) StopContainer(ctx context.Context, container string, timeout time.Duration) error {
	query := url.Values{}
	if timeout > 0 {
		query.Set("t", strconv.Itoa(int(timeout.Seconds())))
	}
	endpoint := fmt.Sprintf("/containers/%s/stop", url.PathEscape(container))
	res, err := e.client.do(ctx, http.MethodPost, endpoint, query, nil, "")
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	switch res.StatusCode {
	case http.StatusNoContent, http.StatusNotModified, http.StatusNotFound:
		return nil
	}
	if res.StatusCode >= 300 {
		return readAPIError(res)
	}
	return nil
}
