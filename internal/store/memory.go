package store

import (
	"context"
	"sort"
	"sync"

	chatsync_errors "chatsync/pkg/errors"
)

// Memory is an in-process Store. It is the reference implementation of the
// snapshot-listener contract and the backend used by tests and single-node
// setups.
type Memory struct {
	mu sync.RWMutex

	conversations map[string]ConversationRecord
	messages      map[string]map[string]MessageRecord // conversation id -> message id -> record
	msgSeq        map[string]map[string]int64         // insertion order, tie-break for equal timestamps
	users         map[string]UserRecord
	seq           int64

	nextWatch    int
	convWatchers map[int]*convWatcher
	msgWatchers  map[int]*msgWatcher
	userWatchers map[int]chan []UserRecord
}

type convWatcher struct {
	userID string
	ch     chan []ConversationRecord
}

type msgWatcher struct {
	conversationID string
	ch             chan []MessageRecord
}

func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[string]ConversationRecord),
		messages:      make(map[string]map[string]MessageRecord),
		msgSeq:        make(map[string]map[string]int64),
		users:         make(map[string]UserRecord),
		convWatchers:  make(map[int]*convWatcher),
		msgWatchers:   make(map[int]*msgWatcher),
		userWatchers:  make(map[int]chan []UserRecord),
	}
}

// push delivers the latest snapshot, replacing any undelivered one. Watch
// channels have capacity one, so a slow consumer only ever sees the newest
// full snapshot.
func push[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (m *Memory) CreateConversation(ctx context.Context, conv ConversationRecord) (string, error) {
	m.mu.Lock()
	if conv.ID == "" {
		conv.ID = newDocumentID()
	}
	if _, ok := m.conversations[conv.ID]; ok {
		m.mu.Unlock()
		return "", chatsync_errors.ErrAlreadyExists
	}
	conv.UsersUnreadCountInfo = copyCounts(conv.UsersUnreadCountInfo)
	m.conversations[conv.ID] = conv
	id := conv.ID
	m.mu.Unlock()

	m.notifyConversations()
	return id, nil
}

func (m *Memory) GetConversation(ctx context.Context, id string) (ConversationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[id]
	if !ok {
		return ConversationRecord{}, chatsync_errors.ErrNotFound
	}
	conv.UsersUnreadCountInfo = copyCounts(conv.UsersUnreadCountInfo)
	return conv, nil
}

func (m *Memory) GetConversations(ctx context.Context, userID string) ([]ConversationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conversationsFor(userID), nil
}

func (m *Memory) UpdateConversation(ctx context.Context, id string, update ConversationUpdate) error {
	m.mu.Lock()
	conv, ok := m.conversations[id]
	if !ok {
		m.mu.Unlock()
		return chatsync_errors.ErrNotFound
	}
	if update.UsersUnreadCountInfo != nil {
		conv.UsersUnreadCountInfo = copyCounts(update.UsersUnreadCountInfo)
	}
	if update.LatestMessage != nil {
		latest := *update.LatestMessage
		conv.LatestMessage = &latest
	}
	m.conversations[id] = conv
	m.mu.Unlock()

	m.notifyConversations()
	return nil
}

func (m *Memory) WatchConversations(ctx context.Context, userID string) (<-chan []ConversationRecord, CancelFunc, error) {
	ch := make(chan []ConversationRecord, 1)

	m.mu.Lock()
	id := m.nextWatch
	m.nextWatch++
	m.convWatchers[id] = &convWatcher{userID: userID, ch: ch}
	snapshot := m.conversationsFor(userID)
	m.mu.Unlock()

	push(ch, snapshot)
	return ch, func() {
		m.mu.Lock()
		delete(m.convWatchers, id)
		m.mu.Unlock()
	}, nil
}

func (m *Memory) PutMessage(ctx context.Context, conversationID string, msg MessageRecord) error {
	m.mu.Lock()
	if _, ok := m.conversations[conversationID]; !ok {
		m.mu.Unlock()
		return chatsync_errors.ErrNotFound
	}
	if m.messages[conversationID] == nil {
		m.messages[conversationID] = make(map[string]MessageRecord)
		m.msgSeq[conversationID] = make(map[string]int64)
	}
	if _, ok := m.messages[conversationID][msg.ID]; !ok {
		m.seq++
		m.msgSeq[conversationID][msg.ID] = m.seq
	}
	m.messages[conversationID][msg.ID] = msg
	m.mu.Unlock()

	m.notifyMessages(conversationID)
	return nil
}

func (m *Memory) GetMessages(ctx context.Context, conversationID string) ([]MessageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.messagesFor(conversationID), nil
}

func (m *Memory) WatchMessages(ctx context.Context, conversationID string) (<-chan []MessageRecord, CancelFunc, error) {
	ch := make(chan []MessageRecord, 1)

	m.mu.Lock()
	id := m.nextWatch
	m.nextWatch++
	m.msgWatchers[id] = &msgWatcher{conversationID: conversationID, ch: ch}
	snapshot := m.messagesFor(conversationID)
	m.mu.Unlock()

	push(ch, snapshot)
	return ch, func() {
		m.mu.Lock()
		delete(m.msgWatchers, id)
		m.mu.Unlock()
	}, nil
}

func (m *Memory) PutUser(ctx context.Context, u UserRecord) error {
	m.mu.Lock()
	m.users[u.ID] = u
	m.mu.Unlock()

	m.notifyUsers()
	return nil
}

func (m *Memory) GetUsers(ctx context.Context) ([]UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usersSnapshot(), nil
}

func (m *Memory) WatchUsers(ctx context.Context) (<-chan []UserRecord, CancelFunc, error) {
	ch := make(chan []UserRecord, 1)

	m.mu.Lock()
	id := m.nextWatch
	m.nextWatch++
	m.userWatchers[id] = ch
	snapshot := m.usersSnapshot()
	m.mu.Unlock()

	push(ch, snapshot)
	return ch, func() {
		m.mu.Lock()
		delete(m.userWatchers, id)
		m.mu.Unlock()
	}, nil
}

// conversationsFor requires at least a read lock.
func (m *Memory) conversationsFor(userID string) []ConversationRecord {
	result := make([]ConversationRecord, 0)
	for _, conv := range m.conversations {
		for _, u := range conv.Users {
			if u == userID {
				conv.UsersUnreadCountInfo = copyCounts(conv.UsersUnreadCountInfo)
				result = append(result, conv)
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// messagesFor requires at least a read lock.
func (m *Memory) messagesFor(conversationID string) []MessageRecord {
	msgs := m.messages[conversationID]
	seqs := m.msgSeq[conversationID]
	result := make([]MessageRecord, 0, len(msgs))
	for _, msg := range msgs {
		result = append(result, msg)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return seqs[result[i].ID] < seqs[result[j].ID]
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// usersSnapshot requires at least a read lock.
func (m *Memory) usersSnapshot() []UserRecord {
	result := make([]UserRecord, 0, len(m.users))
	for _, u := range m.users {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (m *Memory) notifyConversations() {
	m.mu.RLock()
	type delivery struct {
		ch   chan []ConversationRecord
		snap []ConversationRecord
	}
	deliveries := make([]delivery, 0, len(m.convWatchers))
	for _, w := range m.convWatchers {
		deliveries = append(deliveries, delivery{ch: w.ch, snap: m.conversationsFor(w.userID)})
	}
	m.mu.RUnlock()

	for _, d := range deliveries {
		push(d.ch, d.snap)
	}
}

func (m *Memory) notifyMessages(conversationID string) {
	m.mu.RLock()
	type delivery struct {
		ch   chan []MessageRecord
		snap []MessageRecord
	}
	var deliveries []delivery
	for _, w := range m.msgWatchers {
		if w.conversationID == conversationID {
			deliveries = append(deliveries, delivery{ch: w.ch, snap: m.messagesFor(conversationID)})
		}
	}
	m.mu.RUnlock()

	for _, d := range deliveries {
		push(d.ch, d.snap)
	}
}

func (m *Memory) notifyUsers() {
	m.mu.RLock()
	snapshot := m.usersSnapshot()
	channels := make([]chan []UserRecord, 0, len(m.userWatchers))
	for _, ch := range m.userWatchers {
		channels = append(channels, ch)
	}
	m.mu.RUnlock()

	for _, ch := range channels {
		push(ch, snapshot)
	}
}

func copyCounts(counts map[string]int) map[string]int {
	if counts == nil {
		return nil
	}
	out := make(map[string]int, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return out
}
