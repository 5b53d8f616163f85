package llmgateway

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMessagesClient struct {
	calls int
	resp  *sdk.Message
	err   error
}

func (s *stubMessagesClient) New(_ context.Context, _ sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func TestAnthropicClientChatConcatenatesTextBlocks(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "hello "},
			{Type: "text", Text: "world"},
		},
	}}
	c := NewAnthropicClient(stub, "claude-test", 1024)

	reply, err := c.Chat(context.Background(), "system", "user", 0.2, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello world", reply)
	assert.Equal(t, 1, stub.calls)
}

func TestAnthropicClientEmbedRequiresFallback(t *testing.T) {
	c := NewAnthropicClient(&stubMessagesClient{}, "claude-test", 1024)
	_, err := c.Embed(context.Background(), "text")
	assert.ErrorIs(t, err, ErrEmbedUnsupported)
}

func TestAnthropicClientEmbedUsesFallback(t *testing.T) {
	c := NewAnthropicClient(&stubMessagesClient{}, "claude-test", 1024).
		WithEmbedFallback(func(context.Context, string) ([]float64, error) {
			return []float64{0.1, 0.2}, nil
		})
	vec, err := c.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2}, vec)
}

func TestAnthropicClientJSONDecodesReply(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: `Here is the plan: {"steps": 3}`},
		},
	}}
	c := NewAnthropicClient(stub, "claude-test", 1024)

	var out struct {
		Steps int `json:"steps"`
	}
	require.NoError(t, c.JSON(context.Background(), "system", "user", 0, &out))
	assert.Equal(t, 3, out.Steps)
}
