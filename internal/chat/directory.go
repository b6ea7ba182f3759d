package chat

import (
	"context"
	"sort"
	"strings"
	"sync"

	"chatsync/internal/domain"
	"chatsync/internal/store"
	"chatsync/pkg/logger"
)

// Directory maintains the live user list and the current user's conversation
// list, and owns the unread-counter writes. It keeps raw records cached and
// re-derives the view whenever either watch delivers, so a user rename shows
// up in conversation titles without a conversation write.
type Directory struct {
	store   store.Store
	session domain.Session
	log     *logger.Logger

	mu            sync.RWMutex
	users         map[string]domain.User
	conversations []store.ConversationRecord
	view          []domain.Conversation
	closed        bool

	updates chan []domain.Conversation
	done    chan struct{}
	cancels []store.CancelFunc
}

func NewDirectory(st store.Store, session domain.Session, log *logger.Logger) *Directory {
	return &Directory{
		store:   st,
		session: session,
		log:     log,
		users:   make(map[string]domain.User),
		updates: make(chan []domain.Conversation, 1),
		done:    make(chan struct{}),
	}
}

// Start loads the initial directory state and opens both watches. The first
// snapshot each watch delivers is the current state, so no separate fetch is
// needed before rendering.
func (d *Directory) Start(ctx context.Context) error {
	userCh, cancelUsers, err := d.store.WatchUsers(ctx)
	if err != nil {
		return err
	}
	convCh, cancelConvs, err := d.store.WatchConversations(ctx, d.session.UserID())
	if err != nil {
		cancelUsers()
		return err
	}

	d.mu.Lock()
	d.cancels = append(d.cancels, cancelUsers, cancelConvs)
	d.mu.Unlock()

	go func() {
		for {
			select {
			case <-d.done:
				return
			case snapshot := <-userCh:
				d.applyUsers(snapshot)
			case snapshot := <-convCh:
				d.applyConversations(snapshot)
			}
		}
	}()
	return nil
}

func (d *Directory) applyUsers(records []store.UserRecord) {
	me := d.session.UserID()
	users := make(map[string]domain.User, len(records))
	for _, rec := range records {
		users[rec.ID] = domain.User{
			ID:            rec.ID,
			Name:          rec.Name,
			AvatarURL:     rec.AvatarURL,
			IsCurrentUser: rec.ID == me,
		}
	}

	d.mu.Lock()
	d.users = users
	d.rebuildLocked()
	view := d.view
	d.mu.Unlock()

	d.publish(view)
}

func (d *Directory) applyConversations(records []store.ConversationRecord) {
	d.mu.Lock()
	d.conversations = records
	d.rebuildLocked()
	view := d.view
	d.mu.Unlock()

	d.publish(view)
}

// rebuildLocked derives the sorted conversation view from the cached records.
// Conversations with messages come first, newest latest-message first; empty
// ones follow, ordered by display title.
func (d *Directory) rebuildLocked() {
	me := d.session.UserID()
	view := make([]domain.Conversation, 0, len(d.conversations))
	for _, rec := range d.conversations {
		view = append(view, d.conversationLocked(rec))
	}

	sort.SliceStable(view, func(i, j int) bool {
		a, b := view[i].LatestMessage, view[j].LatestMessage
		switch {
		case a != nil && b != nil:
			return a.CreatedAt.After(b.CreatedAt)
		case a != nil:
			return true
		case b != nil:
			return false
		default:
			return view[i].DisplayTitle(me) < view[j].DisplayTitle(me)
		}
	})
	d.view = view
}

func (d *Directory) conversationLocked(rec store.ConversationRecord) domain.Conversation {
	conv := domain.Conversation{
		ID:                   rec.ID,
		IsGroup:              rec.IsGroup,
		Title:                rec.Title,
		PictureURL:           rec.PictureURL,
		UsersUnreadCountInfo: rec.UsersUnreadCountInfo,
	}
	for _, id := range rec.Users {
		// Skip ids the user watch hasn't delivered yet.
		if u, ok := d.users[id]; ok {
			conv.Users = append(conv.Users, u)
		}
	}
	if rec.LatestMessage != nil {
		senderName := ""
		if u, ok := d.users[rec.LatestMessage.UserID]; ok {
			senderName = u.Name
		}
		latest := latestFromRecord(*rec.LatestMessage, senderName)
		conv.LatestMessage = &latest
	}
	return conv
}

func (d *Directory) publish(view []domain.Conversation) {
	for {
		select {
		case d.updates <- view:
			return
		default:
			select {
			case <-d.updates:
			default:
			}
		}
	}
}

// Users returns everyone in the directory except the current user.
func (d *Directory) Users() []domain.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	users := make([]domain.User, 0, len(d.users))
	for _, u := range d.users {
		if !u.IsCurrentUser {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users
}

// UserByID looks up any directory user, the current one included.
func (d *Directory) UserByID(id string) (domain.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	return u, ok
}

// Conversations returns the current sorted conversation view.
func (d *Directory) Conversations() []domain.Conversation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Conversation, len(d.view))
	copy(out, d.view)
	return out
}

// Updates streams the conversation view. The channel holds only the newest
// snapshot; a slow consumer sees fewer, fresher snapshots, never stale ones.
func (d *Directory) Updates() <-chan []domain.Conversation {
	return d.updates
}

// Filter returns conversations whose display title contains the query,
// case-insensitively. An empty query returns the full view.
func (d *Directory) Filter(query string) []domain.Conversation {
	view := d.Conversations()
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" {
		return view
	}
	me := d.session.UserID()
	filtered := view[:0]
	for _, conv := range view {
		if strings.Contains(strings.ToLower(conv.DisplayTitle(me)), query) {
			filtered = append(filtered, conv)
		}
	}
	return filtered
}

// DirectConversationWith finds the direct conversation shared with peerID in
// the cached membership snapshot.
func (d *Directory) DirectConversationWith(peerID string) (store.ConversationRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return directWith(d.conversations, peerID)
}

// BumpUnread increments every participant's unread counter except the
// sender's, which is zeroed, in one counter-map write.
func (d *Directory) BumpUnread(ctx context.Context, conversationID, senderID string) error {
	return BumpUnread(ctx, d.store, conversationID, senderID)
}

// ResetUnread zeroes one participant's unread counter, leaving the others
// untouched.
func (d *Directory) ResetUnread(ctx context.Context, conversationID, userID string) error {
	return ResetUnread(ctx, d.store, conversationID, userID)
}

// BumpUnread increments every participant's unread counter except the
// sender's, which is zeroed, in one counter-map write.
func BumpUnread(ctx context.Context, st store.Store, conversationID, senderID string) error {
	conv, err := st.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}

	counts := make(map[string]int, len(conv.Users))
	for _, id := range conv.Users {
		counts[id] = conv.UsersUnreadCountInfo[id] + 1
	}
	counts[senderID] = 0

	return st.UpdateConversation(ctx, conversationID, store.ConversationUpdate{
		UsersUnreadCountInfo: counts,
	})
}

// ResetUnread zeroes one participant's unread counter, leaving the others
// untouched.
func ResetUnread(ctx context.Context, st store.Store, conversationID, userID string) error {
	conv, err := st.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}

	counts := make(map[string]int, len(conv.UsersUnreadCountInfo))
	for id, n := range conv.UsersUnreadCountInfo {
		counts[id] = n
	}
	counts[userID] = 0

	return st.UpdateConversation(ctx, conversationID, store.ConversationUpdate{
		UsersUnreadCountInfo: counts,
	})
}

// Close cancels both watches. The updates channel stays open; consumers stop
// receiving once the watches are gone.
func (d *Directory) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	cancels := d.cancels
	d.cancels = nil
	d.mu.Unlock()

	close(d.done)
	for _, cancel := range cancels {
		cancel()
	}
}
