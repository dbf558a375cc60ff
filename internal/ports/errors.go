// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ports

import (
	"context"
	"errors"
	"fmt"
)

// ProviderErrorKind classifies a text generation failure.
type ProviderErrorKind string

const (
	ProviderQuota     ProviderErrorKind = "quota"
	ProviderTimeout   ProviderErrorKind = "timeout"
	ProviderMalformed ProviderErrorKind = "malformed"
	ProviderRejected  ProviderErrorKind = "rejected"
)

// ProviderError is returned by TextGenerator implementations and by workers
// that cannot parse a response.
type ProviderError struct {
	Kind ProviderErrorKind
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("text provider %s: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the same call may succeed later. Rejected
// requests (bad credentials, invalid model) never will.
func (e *ProviderError) Retryable() bool { return e.Kind != ProviderRejected }

// NewProviderError wraps err, mapping context deadlines to ProviderTimeout.
func NewProviderError(kind ProviderErrorKind, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		kind = ProviderTimeout
	}
	return &ProviderError{Kind: kind, Err: err}
}

// Malformed reports a response that could not be parsed.
func Malformed(format string, args ...any) error {
	return &ProviderError{Kind: ProviderMalformed, Err: fmt.Errorf(format, args...)}
}

// SearchUnavailableError is returned by WebSearcher implementations.
type SearchUnavailableError struct {
	Query string
	Err   error
}

func (e *SearchUnavailableError) Error() string {
	return fmt.Sprintf("search unavailable for %q: %v", e.Query, e.Err)
}

func (e *SearchUnavailableError) Unwrap() error { return e.Err }

// Retryable is always true; backends are assumed to recover.
func (e *SearchUnavailableError) Retryable() bool { return true }

// ImageUnavailableError is returned by ImageGenerator implementations.
type ImageUnavailableError struct {
	Err error
}

func (e *ImageUnavailableError) Error() string {
	return fmt.Sprintf("image generation unavailable: %v", e.Err)
}

func (e *ImageUnavailableError) Unwrap() error { return e.Err }

// Retryable is always true.
func (e *ImageUnavailableError) Retryable() bool { return true }

// IsRetryable reports whether err carries a capability failure worth retrying.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
