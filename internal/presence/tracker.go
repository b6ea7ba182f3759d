package presence

import (
	"context"
	"time"
)

// State is a user's ephemeral presence. Only the current value is kept; no
// history. Online/offline flips on explicit lifecycle signals (foreground,
// background), never on a heartbeat, so "online" is an optimistic signal and
// offline-detection latency is unbounded until the peer signals background.
type State struct {
	UserID   string    `json:"userId"`
	IsOnline bool      `json:"isOnline"`
	IsTyping bool      `json:"isTyping"`
	LastSeen time.Time `json:"lastSeen"`
}

// StatusText derives the UI status line. Offline wins over a stale typing
// flag; typing wins over plain online.
func (s State) StatusText() string {
	if !s.IsOnline {
		return "Offline"
	}
	if s.IsTyping {
		return "Typing..."
	}
	return "Online"
}

// CancelFunc tears down a presence watch.
type CancelFunc func()

// Tracker publishes and subscribes per-user presence. Publish failures are
// non-critical: callers log and drop them, presence is eventually consistent
// by nature.
type Tracker interface {
	SetOnline(ctx context.Context, userID string, online bool) error
	SetTyping(ctx context.Context, userID string, typing bool) error
	Get(ctx context.Context, userID string) (State, error)
	// Watch streams the user's state, starting with the current value.
	Watch(ctx context.Context, userID string) (<-chan State, CancelFunc, error)
}
