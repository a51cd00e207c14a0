// Package sdk is a Go client for the TODO REST API.
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
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-todo/pkg/schema"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://localhost:7002/api/v1"

// Client talks to the API over HTTP. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	retries int

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sets the bearer token sent on task calls.
func WithToken(tok string) Option {
	return func(c *Client) { c.token = tok }
}

// WithRetries sets how many times a GET is retried after a transport error.
func WithRetries(n int) Option {
	return func(c *Client) { c.retries = n }
}

// New returns a client for baseURL, e.g. "http://localhost:7002/api/v1".
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		retries: 2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(tok string) {
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) Health(ctx context.Context) (schema.Health, error) {
	var out schema.Health
	err := c.do(ctx, http.MethodGet, "/health", false, nil, &out)
	return out, err
}

// Login exchanges an email for a token and stores it on the client.
func (c *Client) Login(ctx context.Context, email string) (schema.LoginResponse, error) {
	return c.authenticate(ctx, "/users/login", email)
}

// CreateUser registers email and stores the returned token on the client.
func (c *Client) CreateUser(ctx context.Context, email string) (schema.LoginResponse, error) {
	return c.authenticate(ctx, "/users", email)
}

func (c *Client) authenticate(ctx context.Context, path, email string) (schema.LoginResponse, error) {
	var out schema.LoginResponse
	if err := c.do(ctx, http.MethodPost, path, false, map[string]string{"email": email}, &out); err != nil {
		return out, err
	}
	c.SetToken(out.Token)
	return out, nil
}

// ListTasks returns the caller's tasks, newest first. limit <= 0 lists all.
func (c *Client) ListTasks(ctx context.Context, limit int) ([]schema.Task, error) {
	path := "/tasks?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	var out []schema.Task
	err := c.do(ctx, http.MethodGet, path, true, nil, &out)
	return out, err
}

func (c *Client) CreateTask(ctx context.Context, title, description string) (schema.Task, error) {
	body := map[string]string{"title": title}
	if description != "" {
		body["description"] = description
	}
	var out schema.Task
	err := c.do(ctx, http.MethodPost, "/tasks", true, body, &out)
	return out, err
}

func (c *Client) UpdateTask(ctx context.Context, id string, patch schema.TaskPatch) (schema.Task, error) {
	var out schema.Task
	err := c.do(ctx, http.MethodPatch, "/tasks/"+url.PathEscape(id), true, patch, &out)
	return out, err
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), true, nil, nil)
}

// do sends one request and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, method, path string, auth bool, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	tok := c.Token()
	if auth && tok == "" {
		return ErrNoToken
	}

	attempts := 1
	if method == http.MethodGet {
		attempts += c.retries
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i*200) * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if auth {
			req.Header.Set("Authorization", "Bearer "+tok)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}
		return decodeResponse(resp, out)
	}
	return fmt.Errorf("%s %s failed after %d attempts: %w", method, path, attempts, lastErr)
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
	var body struct {
		Error   string       `json:"error"`
		Message string       `json:"message"`
		Details []FieldError `json:"details"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Error != "" {
			apiErr.Code = body.Error
		}
		apiErr.Message = body.Message
		apiErr.Details = body.Details
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}
