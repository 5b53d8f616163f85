package llmgateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"goa.design/nl2api/internal/retry"
)

// RuntimeClient mirrors the subset of the AWS Bedrock runtime client this
// package calls, matching *bedrockruntime.Client so tests can substitute a
// fake.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockClient implements Client via the AWS Bedrock Converse API.
// Embed is unsupported: Bedrock's embedding models (Titan) speak a separate
// InvokeModel shape the Converse API does not cover, so callers needing
// embeddings under a Bedrock deployment should configure WithEmbedFallback.
type BedrockClient struct {
	runtime RuntimeClient
	model   string
	embedFn func(ctx context.Context, text string) ([]float64, error)
}

// NewBedrockClient builds a Client backed by the AWS Bedrock Converse API.
func NewBedrockClient(runtime RuntimeClient, model string) *BedrockClient {
	return &BedrockClient{runtime: runtime, model: model}
}

// WithEmbedFallback configures a secondary embedding source, since this
// client speaks only the Converse API.
func (c *BedrockClient) WithEmbedFallback(fn func(ctx context.Context, text string) ([]float64, error)) *BedrockClient {
	c.embedFn = fn
	return c
}

func (c *BedrockClient) Chat(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	var reply string
	err := retry.Do(ctx, retry.LLMGatewayConfig(), func(ctx context.Context, _ int) error {
		input := &bedrockruntime.ConverseInput{
			ModelId: aws.String(c.model),
			System: []brtypes.SystemContentBlock{
				&brtypes.SystemContentBlockMemberText{Value: systemPrompt},
			},
			Messages: []brtypes.Message{
				{
					Role: brtypes.ConversationRoleUser,
					Content: []brtypes.ContentBlock{
						&brtypes.ContentBlockMemberText{Value: userPrompt},
					},
				},
			},
			InferenceConfig: &brtypes.InferenceConfiguration{
				Temperature: aws.Float32(float32(temperature)),
			},
		}
		if maxTokens > 0 {
			input.InferenceConfig.MaxTokens = aws.Int32(int32(maxTokens))
		}
		output, err := c.runtime.Converse(ctx, input)
		if err != nil {
			return classifyBedrockError(err)
		}
		reply, err = concatConverseText(output)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("llmgateway: bedrock chat: %w", err)
	}
	return reply, nil
}

func (c *BedrockClient) JSON(ctx context.Context, systemPrompt, userPrompt string, temperature float64, out any) error {
	text, err := c.Chat(ctx, systemPrompt, userPrompt, temperature, 0)
	if err != nil {
		return err
	}
	return decodeJSON(text, out)
}

// ErrBedrockEmbedUnsupported is returned by BedrockClient.Embed when no embedding
// fallback has been configured.
var ErrBedrockEmbedUnsupported = errors.New("llmgateway: bedrock backend does not support embeddings without a fallback")

func (c *BedrockClient) Embed(ctx context.Context, text string) ([]float64, error) {
	if c.embedFn == nil {
		return nil, ErrBedrockEmbedUnsupported
	}
	return c.embedFn(ctx, text)
}

func concatConverseText(output *bedrockruntime.ConverseOutput) (string, error) {
	msgOutput, ok := output.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("llmgateway: bedrock converse returned no message")
	}
	var out string
	for _, block := range msgOutput.Value.Content {
		if tb, ok := block.(*brtypes.ContentBlockMemberText); ok {
			out += tb.Value
		}
	}
	return out, nil
}

// classifyBedrockError wraps throttling and HTTP-429 responses as a
// retry.HTTPStatusError so retry.IsRetryable can classify them.
func classifyBedrockError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return &retry.HTTPStatusError{StatusCode: 429, Message: apiErr.Error()}
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return &retry.HTTPStatusError{StatusCode: respErr.HTTPStatusCode(), Message: respErr.Error()}
	}
	return err
}
