package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClient_FanOut(t *testing.T) {
	client := NewMemoryClient()
	ctx := context.Background()

	var a, b []string
	_, err := client.Subscribe("sentinel.test", func(_ context.Context, msg *Message) error {
		a = append(a, string(msg.Data))
		return nil
	})
	require.NoError(t, err)
	_, err = client.Subscribe("sentinel.test", func(_ context.Context, msg *Message) error {
		b = append(b, string(msg.Data))
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, client.Publish(ctx, "sentinel.test", []byte("one")))
	require.NoError(t, client.Publish(ctx, "sentinel.other", []byte("ignored")))

	assert.Equal(t, []string{"one"}, a)
	assert.Equal(t, []string{"one"}, b)
}

func TestMemoryClient_QueueGroupDeliversOnce(t *testing.T) {
	client := NewMemoryClient()
	ctx := context.Background()

	counts := make([]int, 3)
	for i := range counts {
		idx := i
		_, err := client.QueueSubscribe("sentinel.work", "workers", func(context.Context, *Message) error {
			counts[idx]++
			return nil
		})
		require.NoError(t, err)
	}

	for i := 0; i < 9; i++ {
		require.NoError(t, client.Publish(ctx, "sentinel.work", []byte("x")))
	}

	total := 0
	for _, c := range counts {
		total += c
		assert.Equal(t, 3, c)
	}
	assert.Equal(t, 9, total)
}

func TestMemoryClient_Unsubscribe(t *testing.T) {
	client := NewMemoryClient()
	calls := 0
	sub, err := client.Subscribe("s", func(context.Context, *Message) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "s", sub.Subject())

	require.NoError(t, sub.Unsubscribe())
	assert.False(t, sub.IsValid())
	require.NoError(t, client.Publish(context.Background(), "s", nil))
	assert.Zero(t, calls)
}

func TestMemoryClient_Request(t *testing.T) {
	client := NewMemoryClient()
	ctx := context.Background()

	_, err := client.Request(ctx, "echo", []byte("hi"), time.Second)
	assert.ErrorIs(t, err, ErrNoResponders)

	_, err = client.Subscribe("echo", func(ctx context.Context, msg *Message) error {
		return client.Publish(ctx, msg.Reply, append([]byte("re:"), msg.Data...))
	})
	require.NoError(t, err)

	resp, err := client.Request(ctx, "echo", []byte("hi"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "re:hi", string(resp.Data))
}

func TestMemoryClient_Closed(t *testing.T) {
	client := NewMemoryClient()
	require.NoError(t, client.Close())

	assert.False(t, client.IsConnected())
	assert.ErrorIs(t, client.Publish(context.Background(), "s", nil), ErrClientClosed)
	_, err := client.Subscribe("s", func(context.Context, *Message) error { return nil })
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestMemoryClient_CanceledContext(t *testing.T) {
	client := NewMemoryClient()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, client.Publish(ctx, "s", nil), context.Canceled)
}

func TestCheckClientHealth(t *testing.T) {
	ctx := context.Background()

	status := CheckClientHealth(ctx, nil)
	assert.False(t, status.Healthy())
	assert.Equal(t, "client is nil", status.Error)

	client := NewMemoryClient()
	status = CheckClientHealth(ctx, client)
	assert.True(t, status.Healthy(), "no responders still counts as reachable")

	require.NoError(t, client.Close())
	status = CheckClientHealth(ctx, client)
	assert.False(t, status.Connected)
	assert.False(t, status.Healthy())
}
