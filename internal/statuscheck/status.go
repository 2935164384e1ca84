package statuscheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// Checker aggregates reachability checks for the relay's external
// dependencies.
type Checker struct {
	webhookURL  string
	chatURL     string
	redis       RedisPinger
	s3Bucket    string
	httpClient  *http.Client
	previewMode bool
}

// Options configures the Checker.
type Options struct {
	WebhookURL  string
	ChatURL     string
	Redis       RedisPinger
	S3Bucket    string
	HTTPClient  *http.Client
	PreviewMode bool
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Webhook     Status `json:"webhook"`
	ChatWebhook Status `json:"chatWebhook"`
	FileStore   Status `json:"fileStore"`
	Archive     Status `json:"archive"`
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Checker{
		webhookURL:  opts.WebhookURL,
		chatURL:     opts.ChatURL,
		redis:       opts.Redis,
		s3Bucket:    opts.S3Bucket,
		httpClient:  client,
		previewMode: opts.PreviewMode,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Webhook:     c.checkWebhook(ctx, c.webhookURL),
		ChatWebhook: c.checkWebhook(ctx, c.chatURL),
		FileStore:   c.checkFileStore(ctx),
		Archive:     c.checkS3(ctx),
	}
}

func (c *Checker) checkWebhook(ctx context.Context, url string) Status {
	if url == "" {
		if c.previewMode {
			return Status{OK: true, Message: "Preview mode"}
		}
		return Status{OK: false, Message: "Not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return Status{OK: false, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	// 4xx still proves the endpoint is alive; n8n answers GET pings with 404.
	return Status{OK: true, Message: "Reachable"}
}

func (c *Checker) checkFileStore(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: true, Message: "In-memory"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.s3Bucket == "" {
		return Status{OK: true, Message: "Archiving disabled"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	cli := s3.NewFromConfig(cfg)
	_, err = cli.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &c.s3Bucket})
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
