package backend_http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/charleschow/live-scoring/internal/telemetry"
)

type Config struct {
	BaseURL   string // e.g. http://localhost:8080/api
	AuthToken string
	Timeout   time.Duration
	ReadRate  float64 // requests/sec
	WriteRate float64
}

// Client wraps the scoring backend's REST surface. It never retries; the
// reconciler's poll interval is the retry policy.
type Client struct {
	baseURL      string
	authToken    string
	httpClient   *http.Client
	readLimiter  *rate.Limiter
	writeLimiter *rate.Limiter
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ReadRate <= 0 {
		cfg.ReadRate = 20
	}
	if cfg.WriteRate <= 0 {
		cfg.WriteRate = 10
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		authToken:    cfg.AuthToken,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		readLimiter:  rate.NewLimiter(rate.Limit(cfg.ReadRate), int(max(cfg.ReadRate, 1))),
		writeLimiter: rate.NewLimiter(rate.Limit(cfg.WriteRate), int(max(cfg.WriteRate, 1))),
	}
}

// FetchError is returned by every snapshot read. Status is 0 for transport
// failures.
type FetchError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ActionError is returned when the backend rejects a scoring command.
// Message is the backend's own explanation when it sent one.
type ActionError struct {
	Action  string
	Status  int
	Message string
	Err     error
}

func (e *ActionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s rejected (%d): %s", e.Action, e.Status, e.Message)
	}
	return fmt.Sprintf("%s failed: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, int, error) {
	lim := c.readLimiter
	if method != http.MethodGet {
		lim = c.writeLimiter
	}
	if err := lim.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limit wait: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	elapsed := time.Since(start)
	telemetry.Metrics.SnapshotLatency.Observe(elapsed.Seconds())
	telemetry.Debugf("backend_http: %s %s -> %d (%s)", method, path, resp.StatusCode, elapsed)

	return respBody, resp.StatusCode, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	telemetry.Metrics.SnapshotFetches.WithLabelValues(op).Inc()
	fail := func(e *FetchError) error {
		telemetry.Metrics.SnapshotErrors.WithLabelValues(op).Inc()
		return e
	}

	body, status, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return fail(&FetchError{Op: op, Status: status, Err: err})
	}
	if status < 200 || status > 299 {
		return fail(&FetchError{Op: op, Status: status, Body: truncate(string(body), 512)})
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fail(&FetchError{Op: op, Err: fmt.Errorf("decode: %w", err)})
	}
	return nil
}

func (c *Client) post(ctx context.Context, action, path string, body any) error {
	respBody, status, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return &ActionError{Action: action, Status: status, Err: err}
	}
	if status < 200 || status > 299 {
		return &ActionError{Action: action, Status: status, Message: backendMessage(respBody)}
	}
	return nil
}

// backendMessage pulls the human-readable reason out of an error body.
func backendMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return truncate(strings.TrimSpace(string(body)), 512)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
