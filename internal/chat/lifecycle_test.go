package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/internal/domain"
	"chatsync/internal/store"
	"chatsync/pkg/logger"
)

func testSession(id, name string) domain.Session {
	return domain.Session{User: domain.User{ID: id, Name: name, IsCurrentUser: true}}
}

func TestLifecycleCreateDirect(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	l := NewLifecycle(st, testSession("alice", "Alice"), logger.NewNop())

	rec, err := l.CreateDirect(ctx, domain.User{ID: "bob", Name: "Bob"})
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)

	stored, err := st.GetConversation(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsGroup)
	assert.ElementsMatch(t, []string{"alice", "bob"}, stored.Users)
	assert.Equal(t, map[string]int{"alice": 0, "bob": 0}, stored.UsersUnreadCountInfo)
}

func TestLifecycleCreateGroup(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	l := NewLifecycle(st, testSession("alice", "Alice"), logger.NewNop())

	rec, err := l.CreateGroup(ctx, "Team", "pic.png", []string{"bob", "carol", "bob", "alice"})
	require.NoError(t, err)

	stored, err := st.GetConversation(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsGroup)
	assert.Equal(t, "Team", stored.Title)
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, stored.Users)
	for _, id := range stored.Users {
		assert.Zero(t, stored.UsersUnreadCountInfo[id])
	}
}

func TestLifecycleWatchForPeer(t *testing.T) {
	ctx := context.Background()

	t.Run("adopt fires when the peer creates first", func(t *testing.T) {
		st := store.NewMemory()
		alice := NewLifecycle(st, testSession("alice", "Alice"), logger.NewNop())
		bob := NewLifecycle(st, testSession("bob", "Bob"), logger.NewNop())

		adopted := make(chan store.ConversationRecord, 1)
		cancel, err := alice.WatchForPeer(ctx, "bob", func(rec store.ConversationRecord) {
			adopted <- rec
		})
		require.NoError(t, err)
		defer cancel()

		created, err := bob.CreateDirect(ctx, domain.User{ID: "alice", Name: "Alice"})
		require.NoError(t, err)

		select {
		case rec := <-adopted:
			assert.Equal(t, created.ID, rec.ID)
		case <-time.After(time.Second):
			t.Fatal("adoption never fired")
		}
	})

	t.Run("group conversations are not adopted", func(t *testing.T) {
		st := store.NewMemory()
		alice := NewLifecycle(st, testSession("alice", "Alice"), logger.NewNop())

		adopted := make(chan store.ConversationRecord, 1)
		cancel, err := alice.WatchForPeer(ctx, "bob", func(rec store.ConversationRecord) {
			adopted <- rec
		})
		require.NoError(t, err)
		defer cancel()

		_, err = alice.CreateGroup(ctx, "Team", "", []string{"bob"})
		require.NoError(t, err)

		select {
		case <-adopted:
			t.Fatal("group was adopted as a direct conversation")
		case <-time.After(100 * time.Millisecond):
		}
	})
}
