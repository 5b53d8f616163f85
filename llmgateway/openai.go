package llmgateway

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"goa.design/nl2api/internal/retry"
)

// ChatCompletionsClient captures the subset of the official OpenAI SDK used
// by this package, so tests can substitute a fake for *openai.ChatService.
type ChatCompletionsClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// EmbeddingsClient captures the embeddings subset of the official SDK.
type EmbeddingsClient interface {
	New(ctx context.Context, body openai.EmbeddingNewParams, opts ...option.RequestOption) (*openai.CreateEmbeddingResponse, error)
}

// OpenAIClient implements Client via the official OpenAI Chat Completions
// and Embeddings APIs.
type OpenAIClient struct {
	chat       ChatCompletionsClient
	embeddings EmbeddingsClient
	model      string
	embedModel string
}

// NewOpenAIClient builds a Client backed by the official OpenAI SDK.
func NewOpenAIClient(chat ChatCompletionsClient, embeddings EmbeddingsClient, model, embedModel string) *OpenAIClient {
	return &OpenAIClient{chat: chat, embeddings: embeddings, model: model, embedModel: embedModel}
}

// NewOpenAIClientFromAPIKey constructs an OpenAIClient using the SDK's
// default HTTP client, authenticated with apiKey.
func NewOpenAIClientFromAPIKey(apiKey, model, embedModel string) *OpenAIClient {
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return NewOpenAIClient(&c.Chat.Completions, &c.Embeddings, model, embedModel)
}

func chatMessages(systemPrompt, userPrompt string) []openai.ChatCompletionMessageParamUnion {
	return []openai.ChatCompletionMessageParamUnion{
		{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: param.NewOpt(systemPrompt),
				},
			},
		},
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: param.NewOpt(userPrompt),
				},
			},
		},
	}
}

func (c *OpenAIClient) Chat(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	var reply string
	err := retry.Do(ctx, retry.LLMGatewayConfig(), func(ctx context.Context, _ int) error {
		params := openai.ChatCompletionNewParams{
			Model:       c.model,
			Messages:    chatMessages(systemPrompt, userPrompt),
			Temperature: param.NewOpt(temperature),
		}
		if maxTokens > 0 {
			params.MaxCompletionTokens = param.NewOpt(int64(maxTokens))
		}
		resp, err := c.chat.New(ctx, params)
		if err != nil {
			return classifyOpenAIError(err)
		}
		if len(resp.Choices) == 0 {
			return errors.New("llmgateway: openai returned no choices")
		}
		reply = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("llmgateway: openai chat: %w", err)
	}
	return reply, nil
}

func (c *OpenAIClient) JSON(ctx context.Context, systemPrompt, userPrompt string, temperature float64, out any) error {
	var raw string
	err := retry.Do(ctx, retry.LLMGatewayConfig(), func(ctx context.Context, _ int) error {
		params := openai.ChatCompletionNewParams{
			Model:       c.model,
			Messages:    chatMessages(systemPrompt, userPrompt),
			Temperature: param.NewOpt(temperature),
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
		}
		resp, err := c.chat.New(ctx, params)
		if err != nil {
			return classifyOpenAIError(err)
		}
		if len(resp.Choices) == 0 {
			return errors.New("llmgateway: openai returned no choices")
		}
		raw = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return fmt.Errorf("llmgateway: openai json: %w", err)
	}
	return decodeJSON(raw, out)
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float64, error) {
	var vec []float64
	err := retry.Do(ctx, retry.LLMGatewayConfig(), func(ctx context.Context, _ int) error {
		resp, err := c.embeddings.New(ctx, openai.EmbeddingNewParams{
			Model:          c.embedModel,
			Input:          openai.EmbeddingNewParamsInputUnion{OfString: param.NewOpt(text)},
			EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
		})
		if err != nil {
			return classifyOpenAIError(err)
		}
		if len(resp.Data) == 0 {
			return errors.New("llmgateway: openai returned no embeddings")
		}
		vec = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("llmgateway: openai embed: %w", err)
	}
	return vec, nil
}

// classifyOpenAIError wraps a raw SDK error as a retry.HTTPStatusError when
// it carries an HTTP status code, so retry.IsRetryable can classify it.
func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &retry.HTTPStatusError{StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
	}
	return err
}
