package llmgateway

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedClient wraps a Client with a token-bucket rate limit: each
// call waits for a token, and tokens refill at a fixed number per second.
// It limits how often gateway calls start, not how many are in flight at
// once.
type RateLimitedClient struct {
	next    Client
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps next so that at most concurrency calls occur
// per second, with a burst equal to concurrency.
func NewRateLimitedClient(next Client, concurrency int) *RateLimitedClient {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &RateLimitedClient{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(concurrency), concurrency),
	}
}

func (c *RateLimitedClient) Chat(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return c.next.Chat(ctx, systemPrompt, userPrompt, temperature, maxTokens)
}

func (c *RateLimitedClient) JSON(ctx context.Context, systemPrompt, userPrompt string, temperature float64, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.next.JSON(ctx, systemPrompt, userPrompt, temperature, out)
}

func (c *RateLimitedClient) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.next.Embed(ctx, text)
}
