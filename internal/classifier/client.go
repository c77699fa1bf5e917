// Package classifier cleans and categorizes raw notes through an
// OpenAI-compatible chat-completion endpoint.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pbaille/notes/internal/domain"
	"github.com/pbaille/notes/internal/logger"
	"github.com/pbaille/notes/internal/retry"
)

var (
	// ErrNotConfigured is returned by New when no API key is set.
	ErrNotConfigured = errors.New("classifier: api key not configured")
	// ErrTransport wraps the last network or HTTP failure after retries.
	ErrTransport = errors.New("classifier: api request failed")
	// ErrInvalidResponse is returned for replies that cannot be turned into notes.
	ErrInvalidResponse = errors.New("classifier: invalid api response format")
)

const maxResponseBytes = 4 << 20

// Config holds endpoint settings.
type Config struct {
	APIKey      string
	URL         string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Client handles note processing via the completion API
type Client struct {
	cfg    Config
	http   *http.Client
	policy retry.Policy
	now    func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its timeout is overridden by
// Config.Timeout when that is set.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetryPolicy replaces the default three-attempt policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithClock sets the clock used for the example date in the prompt.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a Client. It fails with ErrNotConfigured when cfg has no API key.
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("classifier: api url not configured")
	}

	c := &Client{
		cfg:    cfg,
		http:   &http.Client{},
		policy: retry.DefaultPolicy(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if cfg.Timeout > 0 {
		c.http.Timeout = cfg.Timeout
	}
	return c, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// ProcessNotes sends raw to the model and returns the validated note
// candidates. Transport failures are retried and then wrapped in
// ErrTransport; malformed replies fail with ErrInvalidResponse.
func (c *Client) ProcessNotes(ctx context.Context, raw string) ([]domain.NoteCandidate, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("process notes: empty input")
	}

	body, err := c.complete(ctx, buildPrompt(c.now()), userMessage(raw))
	if err != nil {
		return nil, err
	}

	content, err := extractContent(body)
	if err != nil {
		return nil, err
	}
	return parseCandidates(ctx, content)
}

// Ping sends a throwaway note and reports whether a usable reply came back.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ProcessNotes(ctx, "Test connection")
	return err
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// complete posts the chat request under the retry policy and returns the
// raw response body of the first 2xx reply.
func (c *Client) complete(ctx context.Context, system, user string) ([]byte, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var body []byte
	err = c.policy.Do(ctx, "chat completion", func(ctx context.Context) error {
		b, err := c.post(ctx, reqBody)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrCanceled) {
			return nil, err
		}
		logger.Log(ctx).Named("classifier").Error(ctx, "completion request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return body, nil
}

func (c *Client) post(ctx context.Context, reqBody []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("api error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
