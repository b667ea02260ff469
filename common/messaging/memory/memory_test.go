package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careatlas-systems/pulse/common/messaging"
)

// collector gathers delivered messages for assertions.
type collector struct {
	mu   sync.Mutex
	msgs []*messaging.Message
	seen chan struct{}
}

func newCollector() *collector {
	return &collector{seen: make(chan struct{}, 100)}
}

func (c *collector) handle(_ context.Context, msg *messaging.Message) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	c.seen <- struct{}{}
	return nil
}

func (c *collector) wait(t *testing.T, n int) []*messaging.Message {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d of %d", i+1, n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*messaging.Message(nil), c.msgs...)
}

func TestPublishSubscribe(t *testing.T) {
	client := NewClient()
	defer client.Close()

	col := newCollector()
	_, err := client.Subscribe("facility.events.all", col.handle)
	require.NoError(t, err)

	require.NoError(t, client.Publish(context.Background(), "facility.events.all", []byte(`{"n":1}`)))

	msgs := col.wait(t, 1)
	assert.Equal(t, "facility.events.all", msgs[0].Subject)
	assert.Equal(t, `{"n":1}`, string(msgs[0].Data))
}

func TestSubjectIsolation(t *testing.T) {
	client := NewClient()
	defer client.Close()

	colA := newCollector()
	colB := newCollector()
	_, err := client.Subscribe("facility.events.id.a", colA.handle)
	require.NoError(t, err)
	_, err = client.Subscribe("facility.events.id.b", colB.handle)
	require.NoError(t, err)

	require.NoError(t, client.Publish(context.Background(), "facility.events.id.a", []byte("for-a")))

	msgs := colA.wait(t, 1)
	assert.Equal(t, "for-a", string(msgs[0].Data))

	colB.mu.Lock()
	assert.Empty(t, colB.msgs)
	colB.mu.Unlock()
}

func TestPerSubscriberFIFO(t *testing.T) {
	client := NewClient()
	defer client.Close()

	col := newCollector()
	_, err := client.Subscribe("ordered", col.handle)
	require.NoError(t, err)

	payloads := []string{"1", "2", "3", "4", "5"}
	for _, p := range payloads {
		require.NoError(t, client.Publish(context.Background(), "ordered", []byte(p)))
	}

	msgs := col.wait(t, len(payloads))
	for i, p := range payloads {
		assert.Equal(t, p, string(msgs[i].Data))
	}
}

func TestFanOut(t *testing.T) {
	client := NewClient()
	defer client.Close()

	cols := []*collector{newCollector(), newCollector(), newCollector()}
	for _, col := range cols {
		_, err := client.Subscribe("fan", col.handle)
		require.NoError(t, err)
	}

	require.NoError(t, client.Publish(context.Background(), "fan", []byte("x")))

	for _, col := range cols {
		msgs := col.wait(t, 1)
		assert.Equal(t, "x", string(msgs[0].Data))
	}
}

func TestUnsubscribeStopsDeliveryAndCleansUp(t *testing.T) {
	client := NewClient()
	defer client.Close()

	col := newCollector()
	sub, err := client.Subscribe("topic", col.handle)
	require.NoError(t, err)
	assert.Equal(t, 1, client.SubscriberCount("topic"))
	assert.True(t, sub.IsValid())

	require.NoError(t, sub.Unsubscribe())
	assert.Equal(t, 0, client.SubscriberCount("topic"))
	assert.False(t, sub.IsValid())

	require.NoError(t, client.Publish(context.Background(), "topic", []byte("late")))
	time.Sleep(20 * time.Millisecond)

	col.mu.Lock()
	assert.Empty(t, col.msgs)
	col.mu.Unlock()
}

func TestNoLeakAcrossChurn(t *testing.T) {
	client := NewClient()
	defer client.Close()

	for i := 0; i < 100; i++ {
		col := newCollector()
		sub, err := client.Subscribe("churn", col.handle)
		require.NoError(t, err)
		require.NoError(t, sub.Unsubscribe())
	}
	assert.Equal(t, 0, client.SubscriberCount("churn"))
}

func TestClosedClientRejectsTraffic(t *testing.T) {
	client := NewClient()
	require.NoError(t, client.Close())

	err := client.Publish(context.Background(), "x", []byte("y"))
	assert.ErrorIs(t, err, messaging.ErrClientClosed)

	_, err = client.Subscribe("x", func(ctx context.Context, msg *messaging.Message) error { return nil })
	assert.ErrorIs(t, err, messaging.ErrClientClosed)

	assert.False(t, client.IsConnected())
	// Closing twice is a no-op.
	require.NoError(t, client.Close())
}

func TestPublishCopiesPayload(t *testing.T) {
	client := NewClient()
	defer client.Close()

	col := newCollector()
	_, err := client.Subscribe("copy", col.handle)
	require.NoError(t, err)

	buf := []byte("original")
	require.NoError(t, client.Publish(context.Background(), "copy", buf))
	buf[0] = 'X'

	msgs := col.wait(t, 1)
	assert.Equal(t, "original", string(msgs[0].Data))
}
