package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Client is the programmatic counterpart of the chat widget: it keeps a
// capped message history and exchanges messages with the chat webhook.

const (
	// MaxMessageLen bounds a single outbound message.
	MaxMessageLen = 500
	// HistoryCap bounds the kept conversation history.
	HistoryCap = 100
)

// Role identifies the author of a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one history entry.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Options configures a chat Client.
type Options struct {
	// WebhookURL is the chat endpoint. Empty disables sending.
	WebhookURL string
	Timeout    time.Duration
	Client     *http.Client
}

// Client holds one user session.
type Client struct {
	opts   Options
	userID string

	mu        sync.Mutex
	connected bool
	history   []Message
}

// outbound mirrors what the browser widget posts.
type outbound struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	UserID    string `json:"userId"`
	Timestamp string `json:"timestamp"`
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		opts:   opts,
		userID: "user_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
	}
}

// UserID returns the session identifier attached to every message.
func (c *Client) UserID() string { return c.userID }

// Connected reports whether the last Connect succeeded.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// History returns a copy of the kept conversation.
func (c *Client) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.history))
	copy(out, c.history)
	return out
}

// Connect pings the webhook with a GET to verify reachability. Failure is
// not fatal; Send may still be attempted later.
func (c *Client) Connect(ctx context.Context) error {
	if c.opts.WebhookURL == "" {
		return fmt.Errorf("chat webhook not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.WebhookURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.opts.Client.Do(req)
	if err != nil {
		c.setConnected(false)
		return fmt.Errorf("chat webhook unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	c.setConnected(true)
	log.Debug().Str("user_id", c.userID).Int("status", resp.StatusCode).Msg("chat webhook ping")
	return nil
}

// Send posts one user message and returns the assistant reply text. Both
// sides of the exchange are appended to the history.
func (c *Client) Send(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty message")
	}
	if len(text) > MaxMessageLen {
		return "", fmt.Errorf("message exceeds %d characters", MaxMessageLen)
	}
	if c.opts.WebhookURL == "" {
		return "", fmt.Errorf("chat webhook not configured")
	}

	now := time.Now()
	c.append(Message{Role: RoleUser, Text: text, Timestamp: now})

	payload, err := json.Marshal(outbound{
		Type:      "message",
		Text:      text,
		UserID:    c.userID,
		Timestamp: now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.opts.Client.Do(req)
	if err != nil {
		c.setConnected(false)
		return "", fmt.Errorf("chat webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("chat webhook returned status %d", resp.StatusCode)
	}

	reply := parseReply(body)
	c.append(Message{Role: RoleAssistant, Text: reply, Timestamp: time.Now()})
	c.setConnected(true)
	return reply, nil
}

// parseReply accepts either a JSON object carrying "message" or "output",
// or a raw text body.
func parseReply(body []byte) string {
	var obj struct {
		Message string `json:"message"`
		Output  string `json:"output"`
	}
	if err := json.Unmarshal(body, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		if obj.Output != "" {
			return obj.Output
		}
	}
	return strings.TrimSpace(string(body))
}

func (c *Client) append(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, m)
	if len(c.history) > HistoryCap {
		c.history = c.history[len(c.history)-HistoryCap:]
	}
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
