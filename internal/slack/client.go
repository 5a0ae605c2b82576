package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultAPIBaseURL = "https://slack.com/api"
	defaultTimeout    = 10 * time.Second
	defaultRateLimit  = 5 // requests per second against the Web API
)

// ClientConfig holds Slack Web API client configuration.
type ClientConfig struct {
	BotToken  string
	BaseURL   string  // overridable for tests
	RateLimit float64 // Web API requests per second
	Timeout   time.Duration
}

// Client calls the Slack Web API and response_url endpoints.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new Slack client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BotToken == "" {
		return nil, errors.New("slack client: bot token is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultAPIBaseURL
	}
	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), int(config.RateLimit)),
	}, nil
}

// APIError is a Slack Web API "ok": false response.
type APIError struct {
	Method string
	Code   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s: %s", e.Method, e.Code)
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// ViewsOpen opens a modal in response to a trigger id.
func (c *Client) ViewsOpen(ctx context.Context, triggerID string, view *View) error {
	return c.call(ctx, "views.open", map[string]any{
		"trigger_id": triggerID,
		"view":       view,
	}, nil)
}

// ViewsUpdate replaces the content of an open modal.
func (c *Client) ViewsUpdate(ctx context.Context, viewID string, view *View) error {
	return c.call(ctx, "views.update", map[string]any{
		"view_id": viewID,
		"view":    view,
	}, nil)
}

// ViewsPush stacks a new modal on top of the current one.
func (c *Client) ViewsPush(ctx context.Context, triggerID string, view *View) error {
	return c.call(ctx, "views.push", map[string]any{
		"trigger_id": triggerID,
		"view":       view,
	}, nil)
}

// PostMessage sends a message to a channel or user DM.
func (c *Client) PostMessage(ctx context.Context, channel, text string, blocks []Block) error {
	payload := map[string]any{
		"channel": channel,
		"text":    text,
	}
	if len(blocks) > 0 {
		payload["blocks"] = blocks
	}
	return c.call(ctx, "chat.postMessage", payload, nil)
}

// UserRealName resolves a user id to a display name for commit
// attribution. Falls back to the id when the lookup fails.
func (c *Client) UserRealName(ctx context.Context, userID string) string {
	var out struct {
		apiResponse
		User struct {
			RealName string `json:"real_name"`
			Name     string `json:"name"`
		} `json:"user"`
	}
	if err := c.call(ctx, "users.info?user="+userID, nil, &out); err != nil {
		return userID
	}
	if out.User.RealName != "" {
		return out.User.RealName
	}
	if out.User.Name != "" {
		return out.User.Name
	}
	return userID
}

// Respond posts a follow-up message to a slash command response_url.
func (c *Client) Respond(ctx context.Context, responseURL string, msg *Message) error {
	if responseURL == "" {
		return errors.New("slack respond: response url is empty")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, responseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send response: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("response url returned status %d", resp.StatusCode)
	}
	return nil
}

// call posts a JSON payload to a Web API method and decodes the reply.
func (c *Client) call(ctx context.Context, method string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/"+method, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.BotToken)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var status apiResponse
	if err := json.Unmarshal(raw, &status); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !status.OK {
		return &APIError{Method: method, Code: status.Error}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s response: %w", method, err)
		}
	}
	return nil
}
