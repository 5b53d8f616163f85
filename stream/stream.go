// Package stream implements the progress-update fan-out used by
// Orchestrator.ProcessStream. A Sink delivers every ChatStreamUpdate for a
// single request run; this package provides an in-process implementation
// (ChannelSink) and a Redis-backed one for multi-process delivery
// (PulseSink).
package stream

import (
	"context"
	"sync"

	"goa.design/nl2api/apitypes"
)

// Sink receives the sequence of progress updates for one request run. Send
// and Close must be safe to call from a single goroutine at a time; a Sink
// is not shared across concurrent runs. Close is idempotent.
type Sink interface {
	Send(ctx context.Context, update apitypes.ChatStreamUpdate) error
	Close(ctx context.Context) error
}

// ChannelSink delivers updates over an in-process channel. It is the direct
// in-process analogue of a fan-out subscriber: one goroutine reads Updates()
// while the orchestrator writes via Send.
type ChannelSink struct {
	ch        chan apitypes.ChatStreamUpdate
	closeOnce sync.Once
}

// NewChannelSink constructs a ChannelSink with the given channel buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan apitypes.ChatStreamUpdate, buffer)}
}

// Updates returns the channel updates are delivered on. It is closed when
// Close is called.
func (s *ChannelSink) Updates() <-chan apitypes.ChatStreamUpdate { return s.ch }

// Send blocks until the update is buffered or ctx is done.
func (s *ChannelSink) Send(ctx context.Context, update apitypes.ChatStreamUpdate) error {
	select {
	case s.ch <- update:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the underlying channel, signaling end-of-stream to readers.
func (s *ChannelSink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.ch) })
	return nil
}
