// Package sdk provides the client-side library for talking to a key switcher daemon over HTTP.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/celerix-dev/key-switcher/pkg/schema"
)

// APIError is returned when the daemon answers with a non-2xx status.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("keyswitch: %d %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client is a remote client for the key switcher daemon.
type Client struct {
	base     string
	http     *http.Client
	maxTries uint
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMaxTries bounds how often read-only calls are attempted on transport errors.
func WithMaxTries(n uint) Option {
	return func(c *Client) { c.maxTries = n }
}

// Connect returns a client for the daemon at addr. A bare host:port gets an http:// scheme.
func Connect(addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("empty daemon address")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid daemon address: %w", err)
	}

	c := &Client{
		base:     strings.TrimRight(u.String(), "/"),
		http:     &http.Client{Timeout: 30 * time.Second},
		maxTries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Health(ctx context.Context) (schema.HealthResponse, error) {
	var out schema.HealthResponse
	err := c.retry(ctx, func() error {
		return c.do(ctx, http.MethodPost, "/health", nil, &out)
	})
	return out, err
}

// AddUser registers a student. It is not retried.
func (c *Client) AddUser(ctx context.Context, name, pid string) error {
	return c.do(ctx, http.MethodPost, "/add_user", schema.AddUserRequest{Name: name, PID: pid}, nil)
}

// TempKey fetches the key for the current slot and counts one call against pid.
// It is not retried, so a lost response never counts twice.
func (c *Client) TempKey(ctx context.Context, pid string) (string, error) {
	var out schema.TempKeyResponse
	if err := c.do(ctx, http.MethodPost, "/temp_key", schema.TempKeyRequest{PID: pid}, &out); err != nil {
		return "", err
	}
	return out.Key, nil
}

func (c *Client) Usage(ctx context.Context, pid string) (schema.UsageResponse, error) {
	var out schema.UsageResponse
	err := c.retry(ctx, func() error {
		return c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(pid)+"/usage", nil, &out)
	})
	return out, err
}

func (c *Client) Schedule(ctx context.Context) ([]schema.ScheduleEntry, error) {
	var out []schema.ScheduleEntry
	err := c.retry(ctx, func() error {
		return c.do(ctx, http.MethodGet, "/schedule", nil, &out)
	})
	return out, err
}

// retry runs op with exponential backoff. Daemon answers are final; only transport errors are retried.
func (c *Client) retry(ctx context.Context, op func() error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxTries),
	)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		msg := http.StatusText(resp.StatusCode)
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
