// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides the HTTP client helpers shared by the search
// backends and page fetcher.
package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pdiddy/article-engine/pkg/types"
)

// RetryBaseDelay is the first backoff wait. Tests shrink it.
var RetryBaseDelay = 2 * time.Second

// MaxRetryDelay caps a single wait, including server-supplied Retry-After.
var MaxRetryDelay = 30 * time.Second

const defaultMaxRetries = 3

// NewClient returns a client honoring cfg.Timeout.
func NewClient(cfg types.HTTPConfig) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// Retryable reports whether a status code is worth another attempt.
func Retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// DoWithRetry executes req and retries throttled or unavailable responses
// with exponential backoff starting at RetryBaseDelay. A Retry-After header
// in seconds replaces the computed wait.
//
// When maxRetries is 0 the default (3) is used. Bodies of retried responses
// are drained and closed. Context cancellation during a wait returns
// ctx.Err(). After exhausting retries the last response is returned so the
// caller can inspect it. Requests with a body are retried only when
// req.GetBody is set, as it is for bytes and strings readers.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for attempt := 0; ; attempt++ {
		attemptReq := req.Clone(ctx)
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewinding request body: %w", err)
			}
			attemptReq.Body = body
		}
		resp, err := client.Do(attemptReq)
		if err != nil {
			return nil, err
		}
		if !Retryable(resp.StatusCode) || attempt >= maxRetries {
			return resp, nil
		}

		wait := retryAfter(resp.Header.Get("Retry-After"))
		if wait == 0 {
			wait = RetryBaseDelay << attempt
		}
		if wait > MaxRetryDelay {
			wait = MaxRetryDelay
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// StatusError describes a non-2xx response.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned HTTP %d", e.Service, e.Code)
	}
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Service, e.Code, e.Body)
}

// Retryable lets callers classify the failure.
func (e *StatusError) Retryable() bool { return Retryable(e.Code) || e.Code >= 500 }

// CheckStatus returns a *StatusError for non-2xx responses, reading up to
// 512 bytes of the body for context. The body is left for the caller to close.
func CheckStatus(service string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Service: service, Code: resp.StatusCode, Body: string(snippet)}
}
