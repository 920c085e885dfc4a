package management

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"taskbeat/internal/metrics"
)

const defaultClientTimeout = 10 * time.Second

// Client talks to a running instance's management endpoints.
type Client struct {
	rc *resty.Client
}

// NewClient returns a client for baseURL, which includes the base path, e.g.
// "http://127.0.0.1:8081/actuator". An empty token sends no Authorization header.
func NewClient(baseURL, token string) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(strings.TrimSpace(baseURL), "/")).
		SetTimeout(defaultClientTimeout).
		SetHeader("Accept", "application/json").
		// The management server is plain HTTP on loopback by default.
		SetDisableWarn(true)
	if tok := strings.TrimSpace(token); tok != "" {
		rc.SetAuthToken(tok)
	}
	return &Client{rc: rc}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Endpoint string
	Code     int
	Message  string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Code)
	}
	return fmt.Sprintf("%s: %d %s", e.Endpoint, e.Code, msg)
}

func (c *Client) Index(ctx context.Context) (*Index, error) {
	var out Index
	_, err := c.send(c.req(ctx).SetResult(&out), http.MethodGet, "/")
	return &out, err
}

// Health decodes the health body even when the instance reports DOWN (503).
// The 503 body is a Health, not an error body, so no error type is set.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	r := c.rc.R().SetContext(ctx).SetResult(&out)
	resp, err := c.send(r, http.MethodGet, "/health")
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusServiceUnavailable {
		if json.Unmarshal(resp.Body(), &out) == nil && out.Status != "" {
			return &out, nil
		}
	}
	return &out, err
}

func (c *Client) Info(ctx context.Context) (map[string]any, error) {
	out := map[string]any{}
	_, err := c.send(c.req(ctx).SetResult(&out), http.MethodGet, "/info")
	return out, err
}

func (c *Client) ScheduledTasks(ctx context.Context) (*ScheduledTasks, error) {
	var out ScheduledTasks
	_, err := c.send(c.req(ctx).SetResult(&out), http.MethodGet, "/scheduledtasks")
	return &out, err
}

func (c *Client) Executions(ctx context.Context, name string, limit int) (*Executions, error) {
	var out Executions
	r := c.req(ctx).SetResult(&out).SetPathParam("name", name)
	if limit > 0 {
		r.SetQueryParam("limit", strconv.Itoa(limit))
	}
	_, err := c.send(r, http.MethodGet, "/scheduledtasks/{name}/executions")
	return &out, err
}

func (c *Client) Loggers(ctx context.Context) (*Loggers, error) {
	var out Loggers
	_, err := c.send(c.req(ctx).SetResult(&out), http.MethodGet, "/loggers")
	return &out, err
}

func (c *Client) Logger(ctx context.Context, name string) (*LoggerLevels, error) {
	var out LoggerLevels
	_, err := c.send(c.req(ctx).SetResult(&out).SetPathParam("name", name), http.MethodGet, "/loggers/{name}")
	return &out, err
}

// SetLoggerLevel sets a logger's level; an empty level resets it to inherit.
func (c *Client) SetLoggerLevel(ctx context.Context, name, level string) error {
	var body SetLevelRequest
	if level != "" {
		body.ConfiguredLevel = &level
	}
	_, err := c.send(c.req(ctx).SetBody(body).SetPathParam("name", name), http.MethodPost, "/loggers/{name}")
	return err
}

func (c *Client) MetricNames(ctx context.Context) (*MetricNames, error) {
	var out MetricNames
	_, err := c.send(c.req(ctx).SetResult(&out), http.MethodGet, "/metrics")
	return &out, err
}

func (c *Client) Metric(ctx context.Context, name string) (*metrics.Family, error) {
	var out metrics.Family
	_, err := c.send(c.req(ctx).SetResult(&out).SetPathParam("name", name), http.MethodGet, "/metrics/{name}")
	return &out, err
}

func (c *Client) Env(ctx context.Context) (*Env, error) {
	var out Env
	_, err := c.send(c.req(ctx).SetResult(&out), http.MethodGet, "/env")
	return &out, err
}

func (c *Client) EnvProperty(ctx context.Context, name string) (*EnvProperty, error) {
	var out EnvProperty
	_, err := c.send(c.req(ctx).SetResult(&out).SetPathParam("name", name), http.MethodGet, "/env/{name}")
	return &out, err
}

func (c *Client) ThreadDump(ctx context.Context) (*ThreadDump, error) {
	var out ThreadDump
	_, err := c.send(c.req(ctx).SetResult(&out), http.MethodGet, "/threaddump")
	return &out, err
}

// Raw GETs any path below the base URL and returns the body undecoded.
func (c *Client) Raw(ctx context.Context, path string) ([]byte, error) {
	if path != "" && path[0] != '/' {
		path = "/" + path
	}
	resp, err := c.send(c.req(ctx), http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (c *Client) req(ctx context.Context) *resty.Request {
	return c.rc.R().SetContext(ctx).SetError(&errorBody{})
}

// send executes r and turns non-2xx replies into a *StatusError. The
// response is returned even then so callers can read error bodies.
func (c *Client) send(r *resty.Request, method, path string) (*resty.Response, error) {
	resp, err := r.Execute(method, path)
	if err != nil {
		return resp, err
	}
	if resp.IsSuccess() {
		return resp, nil
	}
	se := &StatusError{Endpoint: endpointName(path), Code: resp.StatusCode()}
	if eb, ok := resp.Error().(*errorBody); ok && eb != nil {
		se.Message = eb.Message
	}
	return resp, se
}

// endpointName is the first path segment ("scheduledtasks" for
// "/scheduledtasks/{name}/executions"), or "index" for the root.
func endpointName(path string) string {
	ep := strings.TrimPrefix(path, "/")
	if i := strings.IndexAny(ep, "/?"); i >= 0 {
		ep = ep[:i]
	}
	if ep == "" {
		return "index"
	}
	return ep
}
