package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"

	"goa.design/nl2api/apitypes"
)

// PulseOptions configures a PulseSink.
type PulseOptions struct {
	// Redis is the connection Pulse publishes through. Required.
	Redis *redis.Client
	// StreamMaxLen bounds the number of entries kept per stream. Zero uses
	// Pulse's default.
	StreamMaxLen int
}

// pulseEnvelope is the wire shape published to the Pulse stream; it exists
// so a consumer can distinguish update type without decoding the payload.
type pulseEnvelope struct {
	Type      apitypes.StreamUpdateType `json:"type"`
	Timestamp time.Time                 `json:"timestamp"`
	Update    apitypes.ChatStreamUpdate `json:"update"`
}

// PulseSink publishes updates to a Redis-backed Pulse stream, so progress
// updates fan out to subscribers running in other processes than the one
// driving the orchestrator.
type PulseSink struct {
	stream *streaming.Stream
}

// NewPulseSink opens (creating if absent) the Pulse stream named name and
// returns a Sink that publishes ChatStreamUpdates to it.
func NewPulseSink(name string, opts PulseOptions) (*PulseSink, error) {
	if opts.Redis == nil {
		return nil, errors.New("stream: redis client is required")
	}
	var streamOpts []streamopts.Stream
	if opts.StreamMaxLen > 0 {
		streamOpts = append(streamOpts, streamopts.WithStreamMaxLen(opts.StreamMaxLen))
	}
	s, err := streaming.NewStream(name, opts.Redis, streamOpts...)
	if err != nil {
		return nil, fmt.Errorf("stream: create pulse stream: %w", err)
	}
	return &PulseSink{stream: s}, nil
}

// Send publishes update as a single Pulse stream entry.
func (s *PulseSink) Send(ctx context.Context, update apitypes.ChatStreamUpdate) error {
	env := pulseEnvelope{Type: update.Type, Timestamp: update.Timestamp, Update: update}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("stream: marshal update: %w", err)
	}
	if _, err := s.stream.Add(ctx, string(update.Type), payload); err != nil {
		return fmt.Errorf("stream: publish update: %w", err)
	}
	return nil
}

// Close is a no-op: the caller owns the Redis connection's lifecycle, not
// the sink.
func (s *PulseSink) Close(ctx context.Context) error {
	return nil
}
