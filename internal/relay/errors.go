package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// maxUpstreamExcerpt bounds how much of an upstream error body is carried
// into responses and logs.
const maxUpstreamExcerpt = 200

// InputError is a client-side fault (missing file, missing job id). Never
// retried automatically.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

// UpstreamError is a non-2xx answer from the processing webhook. The body is
// already truncated to an excerpt. Safe to retry manually.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("webhook responded with %d: %s", e.StatusCode, e.Body)
}

// Excerpt truncates an upstream body for propagation.
func Excerpt(body string) string {
	if len(body) > maxUpstreamExcerpt {
		return body[:maxUpstreamExcerpt]
	}
	return body
}

// IsTransient reports whether the error is worth a manual retry: network
// faults, timeouts and 5xx/429 answers.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var up *UpstreamError
	if errors.As(err, &up) {
		return up.StatusCode >= 500 || up.StatusCode == 429
	}
	var in *InputError
	if errors.As(err, &in) {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "no such host") ||
		strings.Contains(s, "eof")
}

// IsTimeout distinguishes deadline expiry from user-initiated cancellation.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "timeout") || strings.Contains(s, "deadline exceeded")
}
