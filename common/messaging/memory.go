package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClientClosed is returned by a MemoryClient after Close.
var ErrClientClosed = errors.New("messaging client closed")

// MemoryClient is an in-process Client. Delivery is synchronous on the
// publishing goroutine, which keeps tests and single-binary replays
// deterministic. Queue groups receive each message on one member, round-robin.
type MemoryClient struct {
	mu     sync.RWMutex
	subs   map[string][]*memorySubscription
	closed bool
	next   atomic.Uint64
	inbox  atomic.Uint64
}

// NewMemoryClient returns a connected in-process client.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{subs: make(map[string][]*memorySubscription)}
}

var _ Client = (*MemoryClient)(nil)

func (c *MemoryClient) Publish(ctx context.Context, subject string, data []byte) error {
	return c.PublishMsg(ctx, &Message{Subject: subject, Data: data})
}

func (c *MemoryClient) PublishMsg(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrClientClosed
	}
	targets := c.targets(msg.Subject)
	c.mu.RUnlock()

	for _, sub := range targets {
		delivered := &Message{
			Subject:   msg.Subject,
			Data:      append([]byte(nil), msg.Data...),
			Reply:     msg.Reply,
			Metadata:  msg.Metadata,
			Timestamp: time.Now(),
		}
		_ = sub.handler(ctx, delivered)
	}
	return nil
}

// targets picks every plain subscriber and one member per queue group.
// Caller holds c.mu.
func (c *MemoryClient) targets(subject string) []*memorySubscription {
	var out []*memorySubscription
	groups := make(map[string][]*memorySubscription)
	for _, sub := range c.subs[subject] {
		if !sub.IsValid() {
			continue
		}
		if sub.queue == "" {
			out = append(out, sub)
			continue
		}
		groups[sub.queue] = append(groups[sub.queue], sub)
	}
	for _, members := range groups {
		n := c.next.Add(1)
		out = append(out, members[int(n%uint64(len(members)))])
	}
	return out
}

func (c *MemoryClient) Request(ctx context.Context, subject string, data []byte, timeout time.Duration) (*Message, error) {
	c.mu.RLock()
	hasResponders := len(c.targets(subject)) > 0
	c.mu.RUnlock()
	if !hasResponders {
		return nil, ErrNoResponders
	}

	inbox := fmt.Sprintf("_INBOX.%d", c.inbox.Add(1))
	replies := make(chan *Message, 1)
	sub, err := c.Subscribe(inbox, func(_ context.Context, msg *Message) error {
		select {
		case replies <- msg:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = sub.Unsubscribe() }()

	if err := c.PublishMsg(ctx, &Message{Subject: subject, Data: data, Reply: inbox}); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-replies:
		return msg, nil
	case <-timer.C:
		return nil, fmt.Errorf("request %s: timeout after %s", subject, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *MemoryClient) Subscribe(subject string, handler MessageHandler) (Subscription, error) {
	return c.QueueSubscribe(subject, "", handler)
}

func (c *MemoryClient) QueueSubscribe(subject, queue string, handler MessageHandler) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	sub := &memorySubscription{subject: subject, queue: queue, handler: handler}
	sub.valid.Store(true)
	c.subs[subject] = append(c.subs[subject], sub)
	return sub, nil
}

func (c *MemoryClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, subs := range c.subs {
		for _, sub := range subs {
			sub.valid.Store(false)
		}
	}
	c.subs = make(map[string][]*memorySubscription)
	c.closed = true
	return nil
}

func (c *MemoryClient) Drain() error {
	return c.Close()
}

func (c *MemoryClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

type memorySubscription struct {
	subject string
	queue   string
	handler MessageHandler
	valid   atomic.Bool
}

func (s *memorySubscription) Unsubscribe() error {
	s.valid.Store(false)
	return nil
}

func (s *memorySubscription) Subject() string { return s.subject }

func (s *memorySubscription) IsValid() bool { return s.valid.Load() }
