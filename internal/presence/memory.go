package presence

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Tracker for single-node deployments and tests.
type Memory struct {
	mu       sync.RWMutex
	states   map[string]State
	next     int
	watchers map[string]map[int]chan State
}

func NewMemory() *Memory {
	return &Memory{
		states:   make(map[string]State),
		watchers: make(map[string]map[int]chan State),
	}
}

func (m *Memory) SetOnline(ctx context.Context, userID string, online bool) error {
	m.update(userID, func(s *State) { s.IsOnline = online })
	return nil
}

func (m *Memory) SetTyping(ctx context.Context, userID string, typing bool) error {
	m.update(userID, func(s *State) { s.IsTyping = typing })
	return nil
}

func (m *Memory) Get(ctx context.Context, userID string) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[userID]
	if !ok {
		return State{UserID: userID}, nil
	}
	return s, nil
}

func (m *Memory) Watch(ctx context.Context, userID string) (<-chan State, CancelFunc, error) {
	ch := make(chan State, 1)

	m.mu.Lock()
	id := m.next
	m.next++
	if m.watchers[userID] == nil {
		m.watchers[userID] = make(map[int]chan State)
	}
	m.watchers[userID][id] = ch
	current, ok := m.states[userID]
	m.mu.Unlock()

	if !ok {
		current = State{UserID: userID}
	}
	deliver(ch, current)

	return ch, func() {
		m.mu.Lock()
		delete(m.watchers[userID], id)
		if len(m.watchers[userID]) == 0 {
			delete(m.watchers, userID)
		}
		m.mu.Unlock()
	}, nil
}

func (m *Memory) update(userID string, apply func(*State)) {
	m.mu.Lock()
	s, ok := m.states[userID]
	if !ok {
		s = State{UserID: userID}
	}
	apply(&s)
	s.LastSeen = time.Now()
	m.states[userID] = s

	channels := make([]chan State, 0, len(m.watchers[userID]))
	for _, ch := range m.watchers[userID] {
		channels = append(channels, ch)
	}
	m.mu.Unlock()

	for _, ch := range channels {
		deliver(ch, s)
	}
}

// deliver replaces any undelivered state so a slow watcher only sees the
// newest value.
func deliver(ch chan State, s State) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
