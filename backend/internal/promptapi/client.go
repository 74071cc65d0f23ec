// Package promptapi is the client of the remote prompt store REST API.
// A Client is constructed explicitly and injected; nothing here is global.
package promptapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"prompt-studio/backend/internal/prompt"
	apperrors "prompt-studio/backend/pkg/errors"
	"prompt-studio/backend/pkg/logger"
)

// maxErrorBody caps how much of a failed response is kept for diagnostics
const maxErrorBody = 4096

// Client talks to the prompt store
type Client struct {
	baseURL    string
	httpClient *http.Client
	headers    http.Header
	policy     *Policy
	logger     *zap.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying transport, e.g. with an httptest server's client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds every single request
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = timeout
		c.httpClient = &hc
	}
}

// WithHeader adds a header sent with every request (credentials, tracing)
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Add(key, value)
	}
}

// WithPolicy replaces the default synchronization policy
func WithPolicy(p *Policy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// WithLogger replaces the component logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a prompt store client rooted at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		headers: http.Header{},
		logger:  logger.Named("promptapi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy == nil {
		c.policy = DefaultPolicy()
	}
	return c
}

func promptPath(name, version string) string {
	return "/prompts/" + url.PathEscape(name) + "/" + url.PathEscape(version)
}

// GetPrompt fetches one prompt
func (c *Client) GetPrompt(ctx context.Context, name, version string) (*prompt.Prompt, error) {
	var p prompt.Prompt
	if err := c.do(ctx, ClassRead, http.MethodGet, promptPath(name, version), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetChildren fetches the direct children of a prompt
func (c *Client) GetChildren(ctx context.Context, name, version string) ([]prompt.Prompt, error) {
	var children []prompt.Prompt
	if err := c.do(ctx, ClassRead, http.MethodGet, promptPath(name, version)+"/children", nil, &children); err != nil {
		return nil, err
	}
	return children, nil
}

// ListPrompts fetches every prompt in the store
func (c *Client) ListPrompts(ctx context.Context) ([]prompt.Prompt, error) {
	var prompts []prompt.Prompt
	if err := c.do(ctx, ClassRead, http.MethodGet, "/prompts", nil, &prompts); err != nil {
		return nil, err
	}
	return prompts, nil
}

// CreatePrompt creates a prompt. The returned entity carries the canonical
// name and version, which may differ from the submitted ones.
func (c *Client) CreatePrompt(ctx context.Context, p prompt.Prompt) (*prompt.Prompt, error) {
	var created prompt.Prompt
	if err := c.do(ctx, ClassCreate, http.MethodPost, "/prompts", p, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdatePrompt replaces a prompt
func (c *Client) UpdatePrompt(ctx context.Context, name, version string, p prompt.Prompt) (*prompt.Prompt, error) {
	var updated prompt.Prompt
	if err := c.do(ctx, ClassUpdate, http.MethodPut, promptPath(name, version), p, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// PatchPosition persists a flow position, rounded to integer coordinates
func (c *Client) PatchPosition(ctx context.Context, name, version string, pos prompt.Position) error {
	return c.do(ctx, ClassPosition, http.MethodPatch, promptPath(name, version), prompt.NewPositionPatch(pos), nil)
}

// PatchParent sets the parent of a prompt; nil clears it
func (c *Client) PatchParent(ctx context.Context, name, version string, parentID *string) error {
	return c.do(ctx, ClassParent, http.MethodPatch, promptPath(name, version), prompt.ParentPatch{ParentID: parentID}, nil)
}

// DeletePrompt deletes a prompt
func (c *Client) DeletePrompt(ctx context.Context, name, version string) error {
	return c.do(ctx, ClassUpdate, http.MethodDelete, promptPath(name, version), nil, nil)
}

// ExecutePrompt runs a prompt on the store's model backend
func (c *Client) ExecutePrompt(ctx context.Context, req prompt.ExecuteRequest) (*prompt.ExecuteResult, error) {
	var result prompt.ExecuteResult
	if err := c.do(ctx, ClassExecute, http.MethodPost, "/prompts/execute", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, class Class, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	return c.policy.Do(ctx, class, func(ctx context.Context) error {
		return c.send(ctx, method, path, payload, out)
	})
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range c.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewRemoteUnavailable(method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Debug("Prompt store returned error status",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
			zap.String("response_body", string(snippet)),
		)
		return apperrors.NewRemoteStatus(method, path, resp.StatusCode, string(snippet))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}
