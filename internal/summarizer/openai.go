package summarizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	DefaultModel           = "gpt-4o-mini"
	DefaultTemperature     = 0.3
	DefaultMaxOutputTokens = 2000
)

// OpenAIConfig contains configuration for the OpenAI-backed invoker.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	// Model is used when a request does not name one.
	Model string
}

// OpenAIInvoker calls OpenAI's Chat Completions API.
type OpenAIInvoker struct {
	client openai.Client
	model  string
}

// NewOpenAIInvoker builds a new invoker instance. Upstream retries are
// disabled; retry policy belongs to callers.
func NewOpenAIInvoker(cfg OpenAIConfig) (*OpenAIInvoker, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is missing", ErrUpstreamUnavailable)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	return &OpenAIInvoker{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

func (i *OpenAIInvoker) Invoke(ctx context.Context, req Request) (*Response, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is empty", ErrInvalidInput)
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = i.model
	}

	maxOutputTokens := req.MaxOutputTokens
	if maxOutputTokens <= 0 {
		maxOutputTokens = DefaultMaxOutputTokens
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(prompt),
	}

	start := time.Now()

	resp, err := i.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(model),
		Messages:            messages,
		Temperature:         openai.Float(req.Temperature),
		MaxCompletionTokens: openai.Int(maxOutputTokens),
	})
	if err != nil {
		return nil, classifyError(ctx, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: chat completion choices are missing", ErrUpstreamError)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, fmt.Errorf(
			"%w: chat completion choice message content is missing (finishReason = %s)",
			ErrUpstreamError,
			resp.Choices[0].FinishReason,
		)
	}

	respModel := resp.Model
	if respModel == "" {
		respModel = model
	}

	return &Response{
		Text:    text,
		Model:   respModel,
		Elapsed: time.Since(start),
	}, nil
}

func classifyError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("do request: %w", err)
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: credential is rejected: %w", ErrUpstreamUnavailable, err)
		}
	}

	return fmt.Errorf("%w: do request: %w", ErrUpstreamError, err)
}
