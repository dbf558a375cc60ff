// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/article-engine/internal/ports"
	"github.com/pdiddy/article-engine/pkg/types"
)

const completionJSON = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": %q}}],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestText_Generate(t *testing.T) {
	var body map[string]any
	ts := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, completionJSON, `{"score": 80}`)
	})

	gen, err := NewText(types.AIConfig{Model: "gpt-4o-mini", APIKey: "sk-test", BaseURL: ts.URL + "/"}, nil)
	require.NoError(t, err)

	out, err := gen.Generate(context.Background(), ports.Prompt{Stage: "review", System: "sys", User: "usr", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"score": 80}`, out)

	assert.Equal(t, "gpt-4o-mini", body["model"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
	format, ok := body["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_object", format["type"])
}

func TestText_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   ports.ProviderErrorKind
	}{
		{"rate limited", http.StatusTooManyRequests, ports.ProviderQuota},
		{"server error", http.StatusInternalServerError, ports.ProviderTimeout},
		{"unauthorized", http.StatusUnauthorized, ports.ProviderRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error": {"message": "nope", "type": "x"}}`)
			})
			gen, err := NewText(types.AIConfig{Model: "m", APIKey: "k", BaseURL: ts.URL + "/"}, nil)
			require.NoError(t, err)

			_, err = gen.Generate(context.Background(), ports.Prompt{User: "hi"})
			var pe *ports.ProviderError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, tt.kind, pe.Kind)
		})
	}
}

func TestText_EmptyContentIsMalformed(t *testing.T) {
	ts := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, completionJSON, "  ")
	})
	gen, err := NewText(types.AIConfig{Model: "m", APIKey: "k", BaseURL: ts.URL + "/"}, nil)
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), ports.Prompt{User: "hi"})
	var pe *ports.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ports.ProviderMalformed, pe.Kind)
}

func TestNewText_Validation(t *testing.T) {
	_, err := NewText(types.AIConfig{Model: "m"}, nil)
	assert.ErrorContains(t, err, "api key")
	_, err = NewText(types.AIConfig{APIKey: "k"}, nil)
	assert.ErrorContains(t, err, "model")
}

func TestImages_Generate(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	ts := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"created": 1, "data": [{"b64_json": %q}]}`, base64.StdEncoding.EncodeToString(png))
	})
	gen, err := NewImages(types.ImageConfig{AIConfig: types.AIConfig{APIKey: "k", BaseURL: ts.URL + "/"}})
	require.NoError(t, err)

	img, err := gen.Generate(context.Background(), "a gopher", "watercolor")
	require.NoError(t, err)
	assert.Equal(t, png, img.Data)
	assert.Equal(t, "image/png", img.MIME)
}

func TestImages_Failure(t *testing.T) {
	ts := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	gen, err := NewImages(types.ImageConfig{AIConfig: types.AIConfig{APIKey: "k", BaseURL: ts.URL + "/"}})
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "a gopher", "")
	var unavailable *ports.ImageUnavailableError
	assert.True(t, errors.As(err, &unavailable))
	assert.True(t, ports.IsRetryable(err))
}
