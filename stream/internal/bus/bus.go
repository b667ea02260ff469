// Package bus implements the facility event bus: a typed publish/subscribe
// layer over the messaging transport with per-channel FIFO, fan-out to any
// number of subscribers, and best-effort at-most-once delivery.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/careatlas-systems/pulse/common/logging"
	"github.com/careatlas-systems/pulse/common/messaging"
	"github.com/careatlas-systems/pulse/stream/internal/model"
)

// DefaultQueueSize bounds a subscription's event buffer. It isolates slow
// consumers from publishers: a consumer that cannot keep up either loses
// events or loses its subscription, depending on its overflow policy.
const DefaultQueueSize = 64

// OverflowPolicy decides what happens when a subscription's buffer is full.
type OverflowPolicy int

const (
	// DropNewest silently discards the event that found the buffer full.
	// Standing consumers (the cache invalidator) use this: losing one
	// invalidation is bounded staleness, losing the subscription is not.
	DropNewest OverflowPolicy = iota

	// CloseOnOverflow terminates the subscription. Streaming connections
	// use this so a stalled client is disconnected rather than served an
	// arbitrarily stale event stream.
	CloseOnOverflow
)

// Bus publishes and subscribes typed change events over a messaging client.
type Bus struct {
	client messaging.Client
	logger *slog.Logger
}

// New creates a Bus on top of client.
func New(client messaging.Client, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{client: client, logger: logger.With(slog.String("component", "bus"))}
}

// Publish sends ev to channel. Errors mean the transport rejected the event;
// callers on the write path log them and carry on, because event delivery is
// a side effect of a write, never part of it.
func (b *Bus) Publish(ctx context.Context, channel string, ev *model.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	if err := b.client.Publish(ctx, channel, data); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

// PublishChange sends ev to its facility channel and to the catch-all
// channel, in that order. Subscribers on either channel observe the
// facility's events in publish order; no ordering holds across channels.
func (b *Bus) PublishChange(ctx context.Context, ev *model.ChangeEvent) error {
	if err := b.Publish(ctx, messaging.FacilityEventSubject(ev.FacilityID), ev); err != nil {
		return err
	}
	return b.Publish(ctx, messaging.SubjectFacilityEventsAll, ev)
}

// SubscribeOption tunes a subscription.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	queueSize int
	overflow  OverflowPolicy
}

// WithQueueSize overrides the subscription buffer capacity.
func WithQueueSize(n int) SubscribeOption {
	return func(c *subscribeConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithOverflowPolicy sets the buffer overflow behavior.
func WithOverflowPolicy(p OverflowPolicy) SubscribeOption {
	return func(c *subscribeConfig) { c.overflow = p }
}

// Subscribe registers a new subscriber on channel. Events arrive on
// Subscription.Events until ctx is cancelled, the bus transport drops the
// subscription, or (under CloseOnOverflow) the buffer overflows. The
// transport subscription is always released when ctx ends, so repeated
// subscribe/cancel cycles do not accumulate subscribers.
func (b *Bus) Subscribe(ctx context.Context, channel string, opts ...SubscribeOption) (*Subscription, error) {
	cfg := subscribeConfig{queueSize: DefaultQueueSize, overflow: DropNewest}
	for _, opt := range opts {
		opt(&cfg)
	}

	sub := &Subscription{
		channel:  channel,
		events:   make(chan *model.ChangeEvent, cfg.queueSize),
		overflow: cfg.overflow,
		logger:   b.logger,
	}

	transportSub, err := b.client.Subscribe(channel, sub.handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", channel, err)
	}

	// Release the transport subscription, then the event channel, as soon
	// as the subscriber's context ends.
	context.AfterFunc(ctx, func() {
		if err := transportSub.Unsubscribe(); err != nil {
			b.logger.Warn("unsubscribe failed",
				logging.Channel(channel),
				logging.Error(err))
		}
		sub.close(nil)
	})

	return sub, nil
}

// Subscription is one subscriber's view of a channel.
type Subscription struct {
	channel  string
	events   chan *model.ChangeEvent
	overflow OverflowPolicy
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
	err    error
}

// Events returns the subscriber's event stream. The channel is closed when
// the subscription ends; check Err afterwards to learn why.
func (s *Subscription) Events() <-chan *model.ChangeEvent {
	return s.events
}

// Err reports why the subscription ended. Nil means a clean shutdown
// (context cancellation).
func (s *Subscription) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Channel returns the subscribed channel name.
func (s *Subscription) Channel() string { return s.channel }

// handle is the transport-side delivery callback.
func (s *Subscription) handle(_ context.Context, msg *messaging.Message) error {
	var ev model.ChangeEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		s.logger.Warn("dropping undecodable event",
			logging.Channel(s.channel),
			logging.Error(err))
		return nil
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil
	}
	select {
	case s.events <- &ev:
		s.mu.RUnlock()
		return nil
	default:
	}
	s.mu.RUnlock()

	// Buffer full. Under CloseOnOverflow the consumer sees the channel
	// close, inspects Err, and tears the connection down, which cancels
	// its context and releases the transport subscription.
	if s.overflow == CloseOnOverflow {
		s.close(ErrSlowConsumer)
	}
	return nil
}

// close marks the subscription finished and closes the event channel.
// The write lock waits out any in-flight handle, so the channel is never
// closed mid-send. Idempotent.
func (s *Subscription) close(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = reason
	close(s.events)
}
