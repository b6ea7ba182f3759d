package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/internal/domain"
	"chatsync/internal/presence"
	"chatsync/internal/store"
	"chatsync/internal/uploads"
	chatsync_errors "chatsync/pkg/errors"
	"chatsync/pkg/logger"
)

// flakyStore fails message writes on demand.
type flakyStore struct {
	store.Store
	mu      sync.Mutex
	failPut bool
}

func (f *flakyStore) setFailPut(fail bool) {
	f.mu.Lock()
	f.failPut = fail
	f.mu.Unlock()
}

func (f *flakyStore) PutMessage(ctx context.Context, conversationID string, msg store.MessageRecord) error {
	f.mu.Lock()
	fail := f.failPut
	f.mu.Unlock()
	if fail {
		return errors.New("write refused")
	}
	return f.Store.PutMessage(ctx, conversationID, msg)
}

func newTestDeps(t *testing.T, st store.Store, userID string) Deps {
	t.Helper()
	session := testSession(userID, userID)
	d := NewDirectory(st, session, logger.NewNop())
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(d.Close)

	return Deps{
		Store:          st,
		Uploads:        uploads.NewOrchestrator(uploads.NewMemoryUploader(), logger.NewNop()),
		Presence:       presence.NewMemory(),
		Directory:      d,
		Lifecycle:      NewLifecycle(st, session, logger.NewNop()),
		Session:        session,
		Log:            logger.NewNop(),
		TypingInterval: 30 * time.Millisecond,
	}
}

func TestEngineSend(t *testing.T) {
	ctx := context.Background()

	t.Run("optimistic append then confirmation under the same id", func(t *testing.T) {
		st := store.NewMemory()
		convID, err := st.CreateConversation(ctx, store.ConversationRecord{
			Users:                []string{"alice", "bob"},
			UsersUnreadCountInfo: map[string]int{"alice": 0, "bob": 0},
		})
		require.NoError(t, err)

		deps := newTestDeps(t, st, "alice")
		e, err := NewEngineForConversation(ctx, deps, domain.Conversation{ID: convID})
		require.NoError(t, err)
		defer e.Close()

		id := e.Send(ctx, domain.DraftMessage{Text: "hello"})

		// Visible immediately, before any write completes.
		visible := e.Messages()
		require.Len(t, visible, 1)
		assert.Equal(t, id, visible[0].ID)
		assert.Equal(t, domain.StatusSending, visible[0].Status)

		require.Eventually(t, func() bool {
			msgs := e.Messages()
			return len(msgs) == 1 && msgs[0].Status == domain.StatusSent
		}, time.Second, 5*time.Millisecond)

		// Same identity for the whole life of the message, never two copies.
		msgs := e.Messages()
		assert.Equal(t, id, msgs[0].ID)
		assert.Equal(t, "hello", msgs[0].Text)
	})

	t.Run("confirmed messages order by createdAt, pending ride at the end", func(t *testing.T) {
		st := store.NewMemory()
		convID, err := st.CreateConversation(ctx, store.ConversationRecord{
			Users:                []string{"alice", "bob"},
			UsersUnreadCountInfo: map[string]int{"alice": 0, "bob": 0},
		})
		require.NoError(t, err)
		base := time.Now()
		require.NoError(t, st.PutMessage(ctx, convID, store.MessageRecord{ID: "r2", UserID: "bob", CreatedAt: base.Add(time.Minute)}))
		require.NoError(t, st.PutMessage(ctx, convID, store.MessageRecord{ID: "r1", UserID: "bob", CreatedAt: base.Add(-time.Minute)}))

		flaky := &flakyStore{Store: st}
		flaky.setFailPut(true) // keep the send pending as a local message
		deps := newTestDeps(t, flaky, "alice")
		e, err := NewEngineForConversation(ctx, deps, domain.Conversation{ID: convID})
		require.NoError(t, err)
		defer e.Close()

		require.Eventually(t, func() bool {
			return len(e.Messages()) == 2
		}, time.Second, 5*time.Millisecond)

		localID := e.Send(ctx, domain.DraftMessage{Text: "mine", CreatedAt: base})

		require.Eventually(t, func() bool {
			msgs := e.Messages()
			return len(msgs) == 3 && msgs[2].Status == domain.StatusError
		}, time.Second, 5*time.Millisecond)

		msgs := e.Messages()
		assert.Equal(t, "r1", msgs[0].ID)
		assert.Equal(t, "r2", msgs[1].ID)
		assert.Equal(t, localID, msgs[2].ID)
	})

	t.Run("failed write marks the message and preserves the draft", func(t *testing.T) {
		st := store.NewMemory()
		convID, err := st.CreateConversation(ctx, store.ConversationRecord{
			Users:                []string{"alice", "bob"},
			UsersUnreadCountInfo: map[string]int{"alice": 0, "bob": 0},
		})
		require.NoError(t, err)

		flaky := &flakyStore{Store: st}
		flaky.setFailPut(true)
		deps := newTestDeps(t, flaky, "alice")
		e, err := NewEngineForConversation(ctx, deps, domain.Conversation{ID: convID})
		require.NoError(t, err)
		defer e.Close()

		e.Send(ctx, domain.DraftMessage{Text: "doomed"})

		require.Eventually(t, func() bool {
			msgs := e.Messages()
			return len(msgs) == 1 && msgs[0].Status == domain.StatusError
		}, time.Second, 5*time.Millisecond)

		msg := e.Messages()[0]
		require.NotNil(t, msg.FailedDraft)
		assert.Equal(t, "doomed", msg.FailedDraft.Text)

		// Nothing leaked into the durable store.
		stored, err := st.GetMessages(ctx, convID)
		require.NoError(t, err)
		assert.Empty(t, stored)
	})

	t.Run("retry is a new attempt with a new id", func(t *testing.T) {
		st := store.NewMemory()
		convID, err := st.CreateConversation(ctx, store.ConversationRecord{
			Users:                []string{"alice", "bob"},
			UsersUnreadCountInfo: map[string]int{"alice": 0, "bob": 0},
		})
		require.NoError(t, err)

		flaky := &flakyStore{Store: st}
		flaky.setFailPut(true)
		deps := newTestDeps(t, flaky, "alice")
		e, err := NewEngineForConversation(ctx, deps, domain.Conversation{ID: convID})
		require.NoError(t, err)
		defer e.Close()

		failedID := e.Send(ctx, domain.DraftMessage{Text: "try again"})
		require.Eventually(t, func() bool {
			msgs := e.Messages()
			return len(msgs) == 1 && msgs[0].Status == domain.StatusError
		}, time.Second, 5*time.Millisecond)

		flaky.setFailPut(false)
		retryID, err := e.Retry(ctx, failedID)
		require.NoError(t, err)
		assert.NotEqual(t, failedID, retryID)

		require.Eventually(t, func() bool {
			msgs := e.Messages()
			return len(msgs) == 1 && msgs[0].Status == domain.StatusSent && msgs[0].ID == retryID
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, "try again", e.Messages()[0].Text)
	})

	t.Run("retry of a healthy message is rejected", func(t *testing.T) {
		st := store.NewMemory()
		convID, err := st.CreateConversation(ctx, store.ConversationRecord{
			Users:                []string{"alice", "bob"},
			UsersUnreadCountInfo: map[string]int{"alice": 0, "bob": 0},
		})
		require.NoError(t, err)

		deps := newTestDeps(t, st, "alice")
		e, err := NewEngineForConversation(ctx, deps, domain.Conversation{ID: convID})
		require.NoError(t, err)
		defer e.Close()

		id := e.Send(ctx, domain.DraftMessage{Text: "fine"})
		require.Eventually(t, func() bool {
			msgs := e.Messages()
			return len(msgs) == 1 && msgs[0].Status == domain.StatusSent
		}, time.Second, 5*time.Millisecond)

		_, err = e.Retry(ctx, id)
		assert.ErrorIs(t, err, chatsync_errors.ErrNotFound)
	})
}

func TestEngineLazyConversation(t *testing.T) {
	ctx := context.Background()

	t.Run("first send creates the direct conversation", func(t *testing.T) {
		st := store.NewMemory()
		seedUsers(t, st, "alice", "bob")
		deps := newTestDeps(t, st, "alice")

		e, err := NewEngineForUser(ctx, deps, domain.User{ID: "bob", Name: "bob"})
		require.NoError(t, err)
		defer e.Close()

		assert.Empty(t, e.ConversationID())
		e.Send(ctx, domain.DraftMessage{Text: "first contact"})

		require.Eventually(t, func() bool {
			return e.ConversationID() != ""
		}, time.Second, 5*time.Millisecond)

		conv, err := st.GetConversation(ctx, e.ConversationID())
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"alice", "bob"}, conv.Users)

		require.Eventually(t, func() bool {
			msgs, err := st.GetMessages(ctx, conv.ID)
			return err == nil && len(msgs) == 1
		}, time.Second, 5*time.Millisecond)

		// Sender's counter stays zero, the peer's goes up.
		require.Eventually(t, func() bool {
			conv, err := st.GetConversation(ctx, e.ConversationID())
			return err == nil && conv.UsersUnreadCountInfo["bob"] == 1 && conv.UsersUnreadCountInfo["alice"] == 0
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("both sides converge on the peer's conversation", func(t *testing.T) {
		st := store.NewMemory()
		seedUsers(t, st, "alice", "bob")
		deps := newTestDeps(t, st, "alice")

		e, err := NewEngineForUser(ctx, deps, domain.User{ID: "bob", Name: "bob"})
		require.NoError(t, err)
		defer e.Close()

		bob := NewLifecycle(st, testSession("bob", "bob"), logger.NewNop())
		created, err := bob.CreateDirect(ctx, domain.User{ID: "alice", Name: "alice"})
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return e.ConversationID() == created.ID
		}, time.Second, 5*time.Millisecond)

		// A later send lands in the adopted conversation, not a new one.
		e.Send(ctx, domain.DraftMessage{Text: "hello there"})
		require.Eventually(t, func() bool {
			msgs, err := st.GetMessages(ctx, created.ID)
			return err == nil && len(msgs) == 1
		}, time.Second, 5*time.Millisecond)

		convs, err := st.GetConversations(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, convs, 1)
	})

	t.Run("send without a peer or conversation fails cleanly", func(t *testing.T) {
		st := store.NewMemory()
		deps := newTestDeps(t, st, "alice")

		e := newEngine(deps)
		defer e.Close()

		e.Send(ctx, domain.DraftMessage{Text: "nowhere to go"})
		require.Eventually(t, func() bool {
			msgs := e.Messages()
			return len(msgs) == 1 && msgs[0].Status == domain.StatusError
		}, time.Second, 5*time.Millisecond)
	})
}

func TestEnginePresence(t *testing.T) {
	ctx := context.Background()

	t.Run("typing publishes through the tracker with a debounced stop", func(t *testing.T) {
		st := store.NewMemory()
		convID, err := st.CreateConversation(ctx, store.ConversationRecord{
			Users:                []string{"alice", "bob"},
			UsersUnreadCountInfo: map[string]int{"alice": 0, "bob": 0},
		})
		require.NoError(t, err)

		deps := newTestDeps(t, st, "alice")
		e, err := NewEngineForConversation(ctx, deps, domain.Conversation{ID: convID})
		require.NoError(t, err)
		defer e.Close()

		e.UserIsTyping("h")
		require.Eventually(t, func() bool {
			state, err := deps.Presence.Get(ctx, "alice")
			return err == nil && state.IsTyping
		}, time.Second, 5*time.Millisecond)

		require.Eventually(t, func() bool {
			state, err := deps.Presence.Get(ctx, "alice")
			return err == nil && !state.IsTyping
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("opening a session marks the user online", func(t *testing.T) {
		st := store.NewMemory()
		convID, err := st.CreateConversation(ctx, store.ConversationRecord{
			Users:                []string{"alice", "bob"},
			UsersUnreadCountInfo: map[string]int{"alice": 0, "bob": 0},
		})
		require.NoError(t, err)

		deps := newTestDeps(t, st, "alice")
		e, err := NewEngineForConversation(ctx, deps, domain.Conversation{ID: convID})
		require.NoError(t, err)
		defer e.Close()

		state, err := deps.Presence.Get(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, state.IsOnline)

		e.SetActive(ctx, false)
		state, err = deps.Presence.Get(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, state.IsOnline)
	})

	t.Run("peer presence updates stream into the session", func(t *testing.T) {
		st := store.NewMemory()
		convID, err := st.CreateConversation(ctx, store.ConversationRecord{
			Users:                []string{"alice", "bob"},
			UsersUnreadCountInfo: map[string]int{"alice": 0, "bob": 0},
		})
		require.NoError(t, err)

		deps := newTestDeps(t, st, "alice")
		e, err := NewEngineForConversation(ctx, deps, domain.Conversation{
			ID:    convID,
			Users: []domain.User{{ID: "alice", IsCurrentUser: true}, {ID: "bob"}},
		})
		require.NoError(t, err)
		defer e.Close()

		require.NoError(t, deps.Presence.SetOnline(ctx, "bob", true))

		require.Eventually(t, func() bool {
			return e.PeerPresence()["bob"].IsOnline
		}, time.Second, 5*time.Millisecond)
	})
}

func TestEngineResetUnread(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	convID, err := st.CreateConversation(ctx, store.ConversationRecord{
		Users:                []string{"alice", "bob"},
		UsersUnreadCountInfo: map[string]int{"alice": 5, "bob": 1},
	})
	require.NoError(t, err)

	deps := newTestDeps(t, st, "alice")
	e, err := NewEngineForConversation(ctx, deps, domain.Conversation{ID: convID})
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.ResetUnread(ctx))

	conv, err := st.GetConversation(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, 0, conv.UsersUnreadCountInfo["alice"])
	assert.Equal(t, 1, conv.UsersUnreadCountInfo["bob"])
}
