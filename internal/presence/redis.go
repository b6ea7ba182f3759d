package presence

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"chatsync/pkg/logger"
)

// Redis key prefixes for presence
const (
	presenceKeyPrefix = "presence:"       // per-user state document
	presenceOnlineSet = "presence:online" // set of online user ids
	presenceChannel   = "channel:presence:"
)

// RedisTracker keeps presence in Redis and fans updates out over pub/sub.
// The TTL is a safety net against records orphaned by crashed clients; the
// core itself never infers offline from silence.
type RedisTracker struct {
	client *goredis.Client
	ttl    time.Duration
	log    *logger.Logger
}

func NewRedisTracker(client *goredis.Client, ttl time.Duration, log *logger.Logger) *RedisTracker {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &RedisTracker{client: client, ttl: ttl, log: log}
}

func (t *RedisTracker) SetOnline(ctx context.Context, userID string, online bool) error {
	return t.update(ctx, userID, func(s *State) { s.IsOnline = online })
}

func (t *RedisTracker) SetTyping(ctx context.Context, userID string, typing bool) error {
	return t.update(ctx, userID, func(s *State) { s.IsTyping = typing })
}

func (t *RedisTracker) Get(ctx context.Context, userID string) (State, error) {
	data, err := t.client.Get(ctx, presenceKeyPrefix+userID).Result()
	if err == goredis.Nil {
		return State{UserID: userID}, nil
	}
	if err != nil {
		return State{}, err
	}
	var s State
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return State{}, err
	}
	return s, nil
}

func (t *RedisTracker) Watch(ctx context.Context, userID string) (<-chan State, CancelFunc, error) {
	sub := t.client.Subscribe(ctx, presenceChannel+userID)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	ch := make(chan State, 1)

	current, err := t.Get(ctx, userID)
	if err != nil {
		current = State{UserID: userID}
	}
	deliver(ch, current)

	go func() {
		for msg := range sub.Channel() {
			var s State
			if err := json.Unmarshal([]byte(msg.Payload), &s); err != nil {
				if t.log != nil {
					t.log.Warnf("presence: bad payload on %s: %v", msg.Channel, err)
				}
				continue
			}
			deliver(ch, s)
		}
	}()

	var once sync.Once
	return ch, func() {
		once.Do(func() { _ = sub.Close() })
	}, nil
}

func (t *RedisTracker) update(ctx context.Context, userID string, apply func(*State)) error {
	s, err := t.Get(ctx, userID)
	if err != nil {
		return err
	}
	s.UserID = userID
	apply(&s)
	s.LastSeen = time.Now()

	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	pipe := t.client.Pipeline()
	pipe.Set(ctx, presenceKeyPrefix+userID, data, t.ttl)
	if s.IsOnline {
		pipe.SAdd(ctx, presenceOnlineSet, userID)
	} else {
		pipe.SRem(ctx, presenceOnlineSet, userID)
	}
	pipe.Publish(ctx, presenceChannel+userID, data)
	_, err = pipe.Exec(ctx)
	return err
}

// OnlineUsers returns all user ids currently marked online.
func (t *RedisTracker) OnlineUsers(ctx context.Context) ([]string, error) {
	return t.client.SMembers(ctx, presenceOnlineSet).Result()
}
