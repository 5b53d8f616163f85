package llmgateway

import (
	"context"
	"testing"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChatClient struct {
	calls int
	resp  *openai.ChatCompletion
	err   error
}

func (s *stubChatClient) New(_ context.Context, _ openai.ChatCompletionNewParams, _ ...option.RequestOption) (*openai.ChatCompletion, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

type stubEmbeddingsClient struct {
	resp *openai.CreateEmbeddingResponse
	err  error
}

func (s *stubEmbeddingsClient) New(_ context.Context, _ openai.EmbeddingNewParams, _ ...option.RequestOption) (*openai.CreateEmbeddingResponse, error) {
	return s.resp, s.err
}

func TestOpenAIClientChatReturnsFirstChoice(t *testing.T) {
	stub := &stubChatClient{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "hello world"}},
		},
	}}
	c := NewOpenAIClient(stub, &stubEmbeddingsClient{}, "gpt-test", "embed-test")

	reply, err := c.Chat(context.Background(), "system", "user", 0.2, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello world", reply)
	assert.Equal(t, 1, stub.calls)
}

func TestOpenAIClientEmbedReturnsVector(t *testing.T) {
	stub := &stubEmbeddingsClient{resp: &openai.CreateEmbeddingResponse{
		Data: []openai.Embedding{{Embedding: []float64{0.1, 0.2, 0.3}}},
	}}
	c := NewOpenAIClient(&stubChatClient{}, stub, "gpt-test", "embed-test")

	vec, err := c.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
}

func TestOpenAIClientJSONDecodesReply(t *testing.T) {
	stub := &stubChatClient{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: `{"steps": 2}`}},
		},
	}}
	c := NewOpenAIClient(stub, &stubEmbeddingsClient{}, "gpt-test", "embed-test")

	var out struct {
		Steps int `json:"steps"`
	}
	require.NoError(t, c.JSON(context.Background(), "system", "user", 0, &out))
	assert.Equal(t, 2, out.Steps)
}
