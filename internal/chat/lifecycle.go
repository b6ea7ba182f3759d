package chat

import (
	"context"
	"sync"

	"chatsync/internal/domain"
	"chatsync/internal/store"
	"chatsync/pkg/logger"
)

// Lifecycle creates conversations and resolves the direct-conversation
// creation race. A direct conversation is created lazily on the first send;
// when both sides send "first" at the same time, each side's membership watch
// is what makes them converge on a conversation, whichever side created it.
// Duplicate documents produced by a lost race are a known gap and are not
// deduplicated after the fact.
type Lifecycle struct {
	store   store.Store
	session domain.Session
	log     *logger.Logger
}

func NewLifecycle(st store.Store, session domain.Session, log *logger.Logger) *Lifecycle {
	return &Lifecycle{store: st, session: session, log: log}
}

// WatchForPeer opens the membership watch before any send happens and calls
// adopt the first time a direct conversation with peerID appears, regardless
// of which side created it. The watch must be open before the first send or
// the race convergence breaks.
func (l *Lifecycle) WatchForPeer(ctx context.Context, peerID string, adopt func(store.ConversationRecord)) (store.CancelFunc, error) {
	ch, cancel, err := l.store.WatchConversations(ctx, l.session.UserID())
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case snapshot := <-ch:
				if conv, ok := directWith(snapshot, peerID); ok {
					adopt(conv)
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			close(done)
		})
	}, nil
}

// CreateDirect creates the direct conversation document in one atomic write
// carrying the full user list and a zeroed counter map, so it is complete the
// moment the peer's watch sees it.
func (l *Lifecycle) CreateDirect(ctx context.Context, peer domain.User) (store.ConversationRecord, error) {
	me := l.session.UserID()
	rec := store.ConversationRecord{
		Users:   []string{me, peer.ID},
		IsGroup: false,
		UsersUnreadCountInfo: map[string]int{
			me:      0,
			peer.ID: 0,
		},
	}

	id, err := l.store.CreateConversation(ctx, rec)
	if err != nil {
		return store.ConversationRecord{}, err
	}
	rec.ID = id

	if l.log != nil {
		l.log.Infof("lifecycle: created direct conversation %s with %s", id, peer.ID)
	}
	return rec, nil
}

// CreateGroup creates a group conversation eagerly, before any message is
// sent. The creator is always a member.
func (l *Lifecycle) CreateGroup(ctx context.Context, title, pictureURL string, memberIDs []string) (store.ConversationRecord, error) {
	me := l.session.UserID()
	users := []string{me}
	counts := map[string]int{me: 0}
	for _, id := range memberIDs {
		if _, seen := counts[id]; seen {
			continue
		}
		users = append(users, id)
		counts[id] = 0
	}

	rec := store.ConversationRecord{
		Users:                users,
		IsGroup:              true,
		Title:                title,
		PictureURL:           pictureURL,
		UsersUnreadCountInfo: counts,
	}

	id, err := l.store.CreateConversation(ctx, rec)
	if err != nil {
		return store.ConversationRecord{}, err
	}
	rec.ID = id

	if l.log != nil {
		l.log.Infof("lifecycle: created group conversation %s (%d members)", id, len(users))
	}
	return rec, nil
}

// directWith picks the direct conversation with peerID out of a membership
// snapshot, if one exists.
func directWith(records []store.ConversationRecord, peerID string) (store.ConversationRecord, bool) {
	for _, rec := range records {
		if rec.IsGroup {
			continue
		}
		for _, u := range rec.Users {
			if u == peerID {
				return rec, true
			}
		}
	}
	return store.ConversationRecord{}, false
}
