// Package memory provides an in-process implementation of the messaging
// interfaces. It backs tests and the single-binary dev mode, where running a
// broker is not worth the setup cost. Delivery semantics intentionally match
// core NATS: best-effort at-most-once fan-out with per-subject FIFO ordering
// per subscriber.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/careatlas-systems/pulse/common/messaging"
)

// subscriber buffer size. A full buffer drops the message, mirroring the
// lossy contract of the real transport.
const subscriberBuffer = 256

// Client implements messaging.Client entirely in process memory.
type Client struct {
	mu     sync.RWMutex
	subs   map[string][]*subscription
	closed bool
}

// NewClient creates an in-process messaging client.
func NewClient() *Client {
	return &Client{subs: make(map[string][]*subscription)}
}

// Publish delivers data to every active subscription on subject.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return messaging.ErrClientClosed
	}

	msg := &messaging.Message{
		Subject:   subject,
		Data:      append([]byte(nil), data...),
		Timestamp: time.Now(),
	}
	for _, sub := range c.subs[subject] {
		sub.deliver(msg)
	}
	return nil
}

// Subscribe registers handler for messages on subject. Each subscription
// drains its own buffer on a dedicated goroutine, so one slow handler never
// delays another subscriber.
func (c *Client) Subscribe(subject string, handler messaging.MessageHandler) (messaging.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, messaging.ErrClientClosed
	}

	sub := &subscription{
		client:  c,
		subject: subject,
		msgs:    make(chan *messaging.Message, subscriberBuffer),
		done:    make(chan struct{}),
	}
	c.subs[subject] = append(c.subs[subject], sub)

	go sub.run(handler)
	return sub, nil
}

// Close unsubscribes everything and rejects further publishes.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	var all []*subscription
	for _, subs := range c.subs {
		all = append(all, subs...)
	}
	c.subs = make(map[string][]*subscription)
	c.mu.Unlock()

	for _, sub := range all {
		sub.stop()
	}
	return nil
}

// Drain is equivalent to Close for the in-process client.
func (c *Client) Drain() error { return c.Close() }

// IsConnected reports whether the client is still accepting traffic.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// SubscriberCount returns the number of active subscriptions on subject.
// Exposed for leak assertions in tests.
func (c *Client) SubscriberCount(subject string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs[subject])
}

func (c *Client) remove(sub *subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := c.subs[sub.subject]
	for i, s := range subs {
		if s == sub {
			c.subs[sub.subject] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(c.subs[sub.subject]) == 0 {
		delete(c.subs, sub.subject)
	}
}

type subscription struct {
	client  *Client
	subject string
	msgs    chan *messaging.Message

	once sync.Once
	done chan struct{}
}

func (s *subscription) run(handler messaging.MessageHandler) {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.msgs:
			// Handler errors are swallowed like the NATS client does:
			// logged there, irrelevant here.
			_ = handler(context.Background(), msg)
		}
	}
}

func (s *subscription) deliver(msg *messaging.Message) {
	select {
	case s.msgs <- msg:
	case <-s.done:
	default:
		// Buffer full: drop, at-most-once.
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// Unsubscribe removes the subscription from the client registry.
func (s *subscription) Unsubscribe() error {
	s.client.remove(s)
	s.stop()
	return nil
}

// Subject returns the subscribed subject.
func (s *subscription) Subject() string { return s.subject }

// IsValid reports whether the subscription still receives messages.
func (s *subscription) IsValid() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}
