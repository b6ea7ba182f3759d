package store

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Notifier fans out collection-change signals between store instances so
// watchers know to re-read their snapshot. The payload is advisory; watchers
// always go back to the store for the full result set.
type Notifier interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, handler func(channel string, payload []byte)) (CancelFunc, error)
}

// MemoryNotifier is an in-process Notifier for single-node deployments and
// tests.
type MemoryNotifier struct {
	mu   sync.RWMutex
	next int
	subs map[string]map[int]func(channel string, payload []byte)
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{subs: make(map[string]map[int]func(string, []byte))}
}

func (n *MemoryNotifier) Publish(ctx context.Context, channel string, payload []byte) error {
	n.mu.RLock()
	handlers := make([]func(string, []byte), 0, len(n.subs[channel]))
	for _, h := range n.subs[channel] {
		handlers = append(handlers, h)
	}
	n.mu.RUnlock()

	for _, h := range handlers {
		h(channel, payload)
	}
	return nil
}

func (n *MemoryNotifier) Subscribe(ctx context.Context, channel string, handler func(channel string, payload []byte)) (CancelFunc, error) {
	n.mu.Lock()
	id := n.next
	n.next++
	if n.subs[channel] == nil {
		n.subs[channel] = make(map[int]func(string, []byte))
	}
	n.subs[channel][id] = handler
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subs[channel], id)
		if len(n.subs[channel]) == 0 {
			delete(n.subs, channel)
		}
		n.mu.Unlock()
	}, nil
}

// RedisNotifier bridges change signals over Redis pub/sub so multiple store
// instances share one subscription space.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) Publish(ctx context.Context, channel string, payload []byte) error {
	return n.client.Publish(ctx, channel, payload).Err()
}

func (n *RedisNotifier) Subscribe(ctx context.Context, channel string, handler func(channel string, payload []byte)) (CancelFunc, error) {
	sub := n.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	go func() {
		for msg := range sub.Channel() {
			handler(msg.Channel, []byte(msg.Payload))
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { _ = sub.Close() })
	}, nil
}
