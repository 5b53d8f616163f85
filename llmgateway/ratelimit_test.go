package llmgateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	calls int
}

func (f *fakeClient) Chat(context.Context, string, string, float64, int) (string, error) {
	f.calls++
	return "ok", nil
}

func (f *fakeClient) JSON(context.Context, string, string, float64, any) error {
	f.calls++
	return nil
}

func (f *fakeClient) Embed(context.Context, string) ([]float64, error) {
	f.calls++
	return nil, nil
}

func TestRateLimitedClientDelegates(t *testing.T) {
	fake := &fakeClient{}
	c := NewRateLimitedClient(fake, 10)

	reply, err := c.Chat(context.Background(), "s", "u", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.Equal(t, 1, fake.calls)
}

func TestRateLimitedClientRespectsContextCancellation(t *testing.T) {
	fake := &fakeClient{}
	c := NewRateLimitedClient(fake, 1)

	// Drain the single burst token, then cancel before the next one refills.
	_, _ = c.Chat(context.Background(), "s", "u", 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Chat(ctx, "s", "u", 0, 0)
	assert.Error(t, err)
}
