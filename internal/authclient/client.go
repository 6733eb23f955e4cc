package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/aprendizaje-adaptativo/aprendizaje/internal/domain"
	"github.com/aprendizaje-adaptativo/aprendizaje/internal/session"
)

var (
	ErrRefreshRejected   = errors.New("token refresh rejected")
	ErrLoginRejected     = errors.New("login rejected")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrMalformedResponse = errors.New("malformed auth response")
)

const maxBodyBytes = 1 << 20

// StatusError is a non-2xx response from the auth API.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
	kind       error
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error { return e.kind }

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// AuthResponse is the body of login and refresh responses.
type AuthResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user,omitempty"`
}

// Config holds client configuration.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Logger       *slog.Logger
}

// DefaultConfig returns client defaults for a local daemon.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "http://127.0.0.1:7480",
		Timeout:      15 * time.Second,
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
	}
}

type rawResponse struct {
	status int
	body   []byte
}

// Client calls the auth endpoints with retry and a circuit breaker.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    circuitbreaker.CircuitBreaker[*rawResponse]
	retrier    retry.Retry[*rawResponse]
	logger     *slog.Logger
}

var _ session.Refresher = (*Client)(nil)

// New creates an auth client.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: newHTTPClient(cfg.Timeout),
		logger:     cfg.Logger,
	}

	c.breaker = circuitbreaker.New[*rawResponse](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			c.logger.Warn("auth circuit breaker state change",
				"from", from.String(),
				"to", to.String())
		},
	})

	c.retrier = retry.New[*rawResponse](retry.Config{
		MaxAttempts:   cfg.MaxAttempts,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable:   isRetryable,
	})

	return c
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// Refresh exchanges a bearer token for a new one.
func (c *Client) Refresh(ctx context.Context, token string) (*session.RefreshResult, error) {
	resp, err := c.post(ctx, "refresh", "/v1/auth/refresh", token, nil, ErrRefreshRejected)
	if err != nil {
		return nil, err
	}
	return &session.RefreshResult{Token: resp.Token, User: resp.User}, nil
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	body := map[string]string{"email": email, "password": password}
	return c.post(ctx, "login", "/v1/auth/login", "", body, ErrLoginRejected)
}

// Me returns the user a token belongs to.
func (c *Client) Me(ctx context.Context, token string) (*domain.User, error) {
	raw, err := c.do(ctx, http.MethodGet, "/v1/auth/me", token, nil)
	if err != nil {
		return nil, fmt.Errorf("me: %w", err)
	}
	if raw.status < 200 || raw.status > 299 {
		return nil, statusError("me", raw, ErrUnauthorized)
	}
	var u domain.User
	if err := json.Unmarshal(raw.body, &u); err != nil || u.ID == "" {
		return nil, fmt.Errorf("%w: me response has no user", ErrMalformedResponse)
	}
	return &u, nil
}

func (c *Client) post(ctx context.Context, op, path, token string, body any, rejected error) (*AuthResponse, error) {
	raw, err := c.do(ctx, http.MethodPost, path, token, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if raw.status < 200 || raw.status > 299 {
		return nil, statusError(op, raw, rejected)
	}

	var resp AuthResponse
	if err := json.Unmarshal(raw.body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, op, err)
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("%w: %s response has no token", ErrMalformedResponse, op)
	}
	return &resp, nil
}

// do sends one request through the breaker and the retrier. Only transport
// errors, 429 and 5xx count as failures; other statuses are returned for the
// caller to interpret.
func (c *Client) do(ctx context.Context, method, path, token string, body any) (*rawResponse, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	attempt := func(ctx context.Context) (*rawResponse, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		raw := &rawResponse{status: resp.StatusCode, body: data}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, statusError(path, raw, nil)
		}
		return raw, nil
	}

	return c.breaker.Execute(ctx, func(ctx context.Context) (*rawResponse, error) {
		return c.retrier.Do(ctx, attempt)
	})
}

func statusError(op string, raw *rawResponse, kind error) *StatusError {
	var body struct {
		Error string `json:"error"`
	}
	msg := ""
	if json.Unmarshal(raw.body, &body) == nil {
		msg = body.Error
	}
	return &StatusError{Op: op, StatusCode: raw.status, Message: msg, kind: kind}
}

func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
