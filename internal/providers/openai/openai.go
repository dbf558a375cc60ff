// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package openai adapts the OpenAI chat completions and image APIs to the
// pipeline's TextGenerator and ImageGenerator ports.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/pdiddy/article-engine/internal/logging"
	"github.com/pdiddy/article-engine/internal/ports"
	"github.com/pdiddy/article-engine/pkg/types"
)

// Text implements ports.TextGenerator with chat completions.
type Text struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

var _ ports.TextGenerator = (*Text)(nil)

// clientOptions disables SDK retries; the engine owns the retry policy.
func clientOptions(cfg types.AIConfig) []option.RequestOption {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return opts
}

// NewText builds a text generator from cfg.
func NewText(cfg types.AIConfig, logger *slog.Logger) (*Text, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key missing; set ai.api_key or OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		return nil, errors.New("ai.model is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Text{
		client: openai.NewClient(clientOptions(cfg)...),
		model:  cfg.Model,
		logger: logging.NewComponentLogger(logger, "openai"),
	}, nil
}

// Generate sends p as a system and user message pair.
func (t *Text) Generate(ctx context.Context, p ports.Prompt) (string, error) {
	msgs := []openai.ChatCompletionMessageParamUnion{}
	if p.System != "" {
		msgs = append(msgs, openai.SystemMessage(p.System))
	}
	msgs = append(msgs, openai.UserMessage(p.User))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(t.model),
		Messages: msgs,
	}
	if p.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := t.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classifyText(err)
	}
	if len(resp.Choices) == 0 {
		return "", ports.Malformed("openai: empty choices")
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ports.Malformed("openai: empty content (finish reason %q)", resp.Choices[0].FinishReason)
	}
	t.logger.Debug("completion",
		logging.String(logging.FieldStage, p.Stage),
		logging.Int("prompt_tokens", int(resp.Usage.PromptTokens)),
		logging.Int("completion_tokens", int(resp.Usage.CompletionTokens)))
	return content, nil
}

// classifyText maps SDK and transport errors to provider error kinds.
func classifyText(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return ports.NewProviderError(ports.ProviderQuota, err)
		case apiErr.StatusCode == http.StatusRequestTimeout || apiErr.StatusCode >= 500:
			return ports.NewProviderError(ports.ProviderTimeout, err)
		default:
			return ports.NewProviderError(ports.ProviderRejected, err)
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return ports.NewProviderError(ports.ProviderTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return ports.NewProviderError(ports.ProviderTimeout, err)
}

// Images implements ports.ImageGenerator with the images API.
type Images struct {
	client openai.Client
	model  string
	size   string
}

var _ ports.ImageGenerator = (*Images)(nil)

// NewImages builds an image generator from cfg.
func NewImages(cfg types.ImageConfig) (*Images, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("image api key missing; set image.api_key or IMAGE_API_KEY")
	}
	model := cfg.Model
	if model == "" {
		model = "dall-e-3"
	}
	size := cfg.Size
	if size == "" {
		size = "1024x1024"
	}
	return &Images{client: openai.NewClient(clientOptions(cfg.AIConfig)...), model: model, size: size}, nil
}

// Generate renders description in style and returns the image inline.
func (g *Images) Generate(ctx context.Context, description, style string) (ports.Image, error) {
	prompt := description
	if style != "" {
		prompt = fmt.Sprintf("%s. Style: %s.", description, style)
	}
	resp, err := g.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(g.model),
		Size:           openai.ImageGenerateParamsSize(g.size),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
		N:              openai.Int(1),
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return ports.Image{}, err
		}
		return ports.Image{}, &ports.ImageUnavailableError{Err: err}
	}
	if len(resp.Data) == 0 {
		return ports.Image{}, &ports.ImageUnavailableError{Err: errors.New("empty image response")}
	}
	img := resp.Data[0]
	if img.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return ports.Image{}, &ports.ImageUnavailableError{Err: fmt.Errorf("decoding image: %w", err)}
		}
		return ports.Image{Data: data, MIME: "image/png"}, nil
	}
	if img.URL != "" {
		return ports.Image{URL: img.URL}, nil
	}
	return ports.Image{}, &ports.ImageUnavailableError{Err: errors.New("image response has neither data nor url")}
}
