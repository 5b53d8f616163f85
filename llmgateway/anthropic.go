package llmgateway

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"goa.design/nl2api/internal/retry"
)

// MessagesClient captures the subset of the Anthropic SDK client this
// package calls, so tests can substitute a fake in place of *sdk.MessageService.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicClient implements Client via the Anthropic Messages API. Embed is
// unsupported (Anthropic has no embedding endpoint); configure a fallback
// embedding function via WithEmbedFallback if embeddings are needed.
type AnthropicClient struct {
	msg          MessagesClient
	model        string
	maxTokens    int
	embedFn      func(ctx context.Context, text string) ([]float64, error)
}

// ErrEmbedUnsupported is returned by AnthropicClient.Embed when no embedding
// fallback has been configured.
var ErrEmbedUnsupported = errors.New("llmgateway: anthropic backend does not support embeddings")

// NewAnthropicClient builds a Client backed by the Anthropic Messages API.
func NewAnthropicClient(msg MessagesClient, model string, maxTokens int) *AnthropicClient {
	return &AnthropicClient{msg: msg, model: model, maxTokens: maxTokens}
}

// NewAnthropicClientFromAPIKey constructs an AnthropicClient using the
// default Anthropic HTTP client, authenticated with apiKey.
func NewAnthropicClientFromAPIKey(apiKey, model string, maxTokens int) *AnthropicClient {
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropicClient(&c.Messages, model, maxTokens)
}

// WithEmbedFallback configures a secondary embedding source (typically an
// OpenAIClient) since Anthropic has no embeddings endpoint of its own.
func (c *AnthropicClient) WithEmbedFallback(fn func(ctx context.Context, text string) ([]float64, error)) *AnthropicClient {
	c.embedFn = fn
	return c
}

func (c *AnthropicClient) Chat(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	var reply string
	err := retry.Do(ctx, retry.LLMGatewayConfig(), func(ctx context.Context, _ int) error {
		resp, err := c.msg.New(ctx, sdk.MessageNewParams{
			Model:       sdk.Model(c.model),
			MaxTokens:   int64(maxTokens),
			Temperature: sdk.Float(temperature),
			System:      []sdk.TextBlockParam{{Text: systemPrompt}},
			Messages: []sdk.MessageParam{
				sdk.NewUserMessage(sdk.NewTextBlock(userPrompt)),
			},
		})
		if err != nil {
			return classifyAnthropicError(err)
		}
		reply = concatText(resp)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("llmgateway: anthropic chat: %w", err)
	}
	return reply, nil
}

func (c *AnthropicClient) JSON(ctx context.Context, systemPrompt, userPrompt string, temperature float64, out any) error {
	text, err := c.Chat(ctx, systemPrompt, userPrompt, temperature, c.maxTokens)
	if err != nil {
		return err
	}
	return decodeJSON(text, out)
}

func (c *AnthropicClient) Embed(ctx context.Context, text string) ([]float64, error) {
	if c.embedFn == nil {
		return nil, ErrEmbedUnsupported
	}
	return c.embedFn(ctx, text)
}

// concatText joins every text block of resp's content into one string.
func concatText(resp *sdk.Message) string {
	var out string
	for _, block := range resp.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out
}

// classifyAnthropicError wraps a raw SDK error as a retry.HTTPStatusError
// when it carries an HTTP status code, so retry.IsRetryable can classify it.
func classifyAnthropicError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return &retry.HTTPStatusError{StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
	}
	return err
}
