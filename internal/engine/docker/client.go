package docker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
)

const apiVersion = "v1.43"

// client wraps the Docker-compatible HTTP API.
type client struct {
	address  string
	baseURL  *url.URL
	network  string
	dialAddr string
	http     *http.Client
}

func newClient(address string) (*client, error) {
	addr := strings.TrimSpace(address)
	if addr == "" {
		return nil, errors.New("engine address is required")
	}
	baseURL, network, dialAddr, transport, err := parseAddress(addr)
	if err != nil {
		return nil, err
	}
	return &client{
		address:  addr,
		baseURL:  baseURL,
		network:  network,
		dialAddr: dialAddr,
		http: &http.Client{
			Transport: transport,
			Timeout:   0,
		},
	}, nil
}

func (c *client) ping(ctx context.Context) error {
	res, err := c.do(ctx, http.MethodGet, "/_ping", nil, nil, "")
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode >= 300 {
		return readAPIError(res)
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}

func parseAddress(addr string) (*url.URL, string, string, *http.Transport, error) {
	if strings.HasPrefix(addr, "unix://") {
		socket := strings.TrimPrefix(addr, "unix://")
		if socket == "" {
			return nil, "", "", nil, errors.New("engine unix socket path is required")
		}
		transport := &http.Transport{
			DisableCompression: true,
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return (&net.Dialer{}).DialContext(ctx, "unix", socket)
			},
		}
		baseURL, _ := url.Parse("http://docker")
		return baseURL, "unix", socket, transport, nil
	}
	if strings.HasPrefix(addr, "tcp://") {
		addr = "http://" + strings.TrimPrefix(addr, "tcp://")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	baseURL, err := url.Parse(addr)
	if err != nil {
		return nil, "", "", nil, err
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return baseURL, "tcp", baseURL.Host, transport, nil
}

func (c *client) do(ctx context.Context, method, endpoint string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	if c == nil || c.http == nil || c.baseURL == nil {
		return nil, errors.New("engine client not initialized")
	}
	if query == nil {
		query = url.Values{}
	}
	reqURL := *c.baseURL
	reqURL.Path = path.Join("/", apiVersion, strings.TrimPrefix(endpoint, "/"))
	reqURL.RawQuery = query.Encode()
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.http.Do(req)
}

// doJSON posts a JSON payload and decodes a JSON response into out (out may
// be nil for empty responses).
func (c *client) doJSON(ctx context.Context, method, endpoint string, query url.Values, payload, out any) error {
	var body io.Reader
	contentType := ""
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	res, err := c.do(ctx, method, endpoint, query, body, contentType)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode >= 300 {
		return readAPIError(res)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// hijack upgrades a request to a raw duplex TCP/unix stream, as used by
// interactive exec attachment. The returned reader holds any bytes the server
// sent past the response header.
func (c *client) hijack(ctx context.Context, endpoint string, payload any) (net.Conn, *bufio.Reader, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	conn, err := (&net.Dialer{}).DialContext(ctx, c.network, c.dialAddr)
	if err != nil {
		return nil, nil, err
	}
	reqURL := *c.baseURL
	reqURL.Path = path.Join("/", apiVersion, strings.TrimPrefix(endpoint, "/"))
	req, err := http.NewRequest(http.MethodPost, reqURL.String(), bytes.NewReader(data))
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "tcp")
	if err := req.Write(conn); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	br := bufio.NewReader(conn)
	res, err := http.ReadResponse(br, req)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if res.StatusCode != http.StatusSwitchingProtocols && res.StatusCode != http.StatusOK {
		err := readAPIError(res)
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, br, nil
}

func jsonBody(payload any) io.Reader {
	data, err := json.Marshal(payload)
	if err != nil {
		return strings.NewReader("{}")
	}
	return bytes.NewReader(data)
}

func decodeJSON(res *http.Response, out any) error {
	return json.NewDecoder(res.Body).Decode(out)
}

type apiError struct {
	Message string `json:"message"`
}

func readAPIError(res *http.Response) error {
	if res == nil {
		return errors.New("engine API error")
	}
	body, _ := io.ReadAll(res.Body)
	var decoded apiError
	if err := json.Unmarshal(body, &decoded); err == nil && strings.TrimSpace(decoded.Message) != "" {
		return fmt.Errorf("engine API error: %s", strings.TrimSpace(decoded.Message))
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = res.Status
	}
	return fmt.Errorf("engine API error: %s", msg)
}

func candidateAddresses(primary string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(addr string) {
		addr = strings.TrimSpace(addr)
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
	add(os.Getenv("DOCKER_HOST"))

	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir != "" {
		add(fmt.Sprintf("unix://%s", path.Join(runtimeDir, "docker.sock")))
	}
	userRunDir := path.Join("/run", "user", fmt.Sprintf("%d", os.Getuid()))
	if userRunDir != runtimeDir {
		add(fmt.Sprintf("unix://%s", path.Join(userRunDir, "docker.sock")))
	}
	add("unix:///var/run/docker.sock")
	return out
}
