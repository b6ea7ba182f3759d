package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"chatsync/internal/presence"
	"chatsync/internal/store"
	"chatsync/pkg/logger"
)

// Channel name prefixes. The suffix is a conversation id for message feeds
// and a user id for the other two.
const (
	MessagesPrefix      = "messages:"
	ConversationsPrefix = "conversations:"
	PresencePrefix      = "presence:"
)

// Frame is the wire envelope for every server-pushed snapshot. Payload is
// always the full current state of the channel, never a delta.
type Frame struct {
	Type    string      `json:"type"`
	Channel string      `json:"channel"`
	Payload interface{} `json:"payload"`
}

// Bridge fans durable-store and presence snapshots out to hub channels. One
// backend watch stays open per channel no matter how many clients subscribe;
// late joiners get the last delivered snapshot immediately.
type Bridge struct {
	store    store.Store
	presence presence.Tracker
	hub      *Hub
	log      *logger.Logger

	mu    sync.Mutex
	feeds map[string]*feed
}

type feed struct {
	refs   int
	cancel func()
	last   []byte
}

func NewBridge(st store.Store, tracker presence.Tracker, hub *Hub, log *logger.Logger) *Bridge {
	return &Bridge{
		store:    st,
		presence: tracker,
		hub:      hub,
		log:      log,
		feeds:    make(map[string]*feed),
	}
}

// Subscribe attaches the client to a channel, opening the backend watch when
// the client is the channel's first subscriber.
func (b *Bridge) Subscribe(ctx context.Context, client *Client, channel string) error {
	b.mu.Lock()
	if f, ok := b.feeds[channel]; ok {
		f.refs++
		b.mu.Unlock()
	} else {
		cancel, err := b.openFeed(ctx, channel)
		if err != nil {
			b.mu.Unlock()
			return err
		}
		b.feeds[channel] = &feed{refs: 1, cancel: cancel}
		b.mu.Unlock()
	}

	b.hub.Subscribe(client, channel)

	// Hub subscription is asynchronous; replay the newest snapshot directly
	// so the client never starts blind. Duplicate snapshots are harmless.
	b.mu.Lock()
	var last []byte
	if f, ok := b.feeds[channel]; ok {
		last = f.last
	}
	b.mu.Unlock()
	if last != nil {
		client.SendMessage(last)
	}
	return nil
}

// Unsubscribe detaches the client and closes the backend watch when nobody
// is left on the channel.
func (b *Bridge) Unsubscribe(client *Client, channel string) {
	b.hub.Unsubscribe(client, channel)
	b.release(channel)
}

// Drop releases every channel the client was subscribed to; called on
// disconnect after the hub unregisters the client.
func (b *Bridge) Drop(client *Client) {
	for _, channel := range client.Channels() {
		b.release(channel)
	}
}

func (b *Bridge) release(channel string) {
	b.mu.Lock()
	f, ok := b.feeds[channel]
	if !ok {
		b.mu.Unlock()
		return
	}
	f.refs--
	if f.refs > 0 {
		b.mu.Unlock()
		return
	}
	delete(b.feeds, channel)
	b.mu.Unlock()

	f.cancel()
}

func (b *Bridge) openFeed(ctx context.Context, channel string) (func(), error) {
	switch {
	case strings.HasPrefix(channel, MessagesPrefix):
		conversationID := strings.TrimPrefix(channel, MessagesPrefix)
		ch, cancel, err := b.store.WatchMessages(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		return pumpFrames(b, channel, "messages", cancel, ch), nil

	case strings.HasPrefix(channel, ConversationsPrefix):
		userID := strings.TrimPrefix(channel, ConversationsPrefix)
		ch, cancel, err := b.store.WatchConversations(ctx, userID)
		if err != nil {
			return nil, err
		}
		return pumpFrames(b, channel, "conversations", cancel, ch), nil

	case strings.HasPrefix(channel, PresencePrefix):
		userID := strings.TrimPrefix(channel, PresencePrefix)
		ch, cancel, err := b.presence.Watch(ctx, userID)
		if err != nil {
			return nil, err
		}
		return pumpFrames(b, channel, "presence", func() { cancel() }, ch), nil
	}

	return nil, fmt.Errorf("unknown channel %q", channel)
}

// pumpFrames broadcasts every snapshot a watch delivers and caches the
// newest one for late joiners.
func pumpFrames[T any](b *Bridge, channel, frameType string, cancel func(), ch <-chan T) func() {
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case snapshot := <-ch:
				data, err := json.Marshal(Frame{Type: frameType, Channel: channel, Payload: snapshot})
				if err != nil {
					if b.log != nil {
						b.log.Errorf("ws bridge: encoding %s frame: %v", frameType, err)
					}
					continue
				}
				b.mu.Lock()
				if f, ok := b.feeds[channel]; ok {
					f.last = data
				}
				b.mu.Unlock()
				b.hub.Broadcast(channel, data)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			close(done)
		})
	}
}
