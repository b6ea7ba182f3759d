package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatsync/internal/domain"
	"chatsync/internal/presence"
	"chatsync/internal/store"
	"chatsync/internal/uploads"
	chatsync_errors "chatsync/pkg/errors"
	"chatsync/pkg/logger"
)

// Deps bundles the collaborators an Engine runs against. Tests swap the store
// or the uploads orchestrator for failing fakes.
type Deps struct {
	Store     store.Store
	Uploads   *uploads.Orchestrator
	Presence  presence.Tracker
	Directory *Directory
	Lifecycle *Lifecycle
	Session   domain.Session
	Log       *logger.Logger

	// TypingInterval overrides the stopped-typing debounce window; zero means
	// DefaultTypingInterval.
	TypingInterval time.Duration
}

// Engine synchronizes one open conversation. It merges the durable message
// stream with locally pending sends into a single visible list: confirmed
// messages in store order, then local Sending/Error messages sorted by
// createdAt. A local message disappears the moment the stream confirms its id,
// so the sender's own message is never shown twice.
type Engine struct {
	deps   Deps
	typing *Debouncer

	mu             sync.Mutex
	conversationID string
	peer           *domain.User
	confirmed      []domain.Message
	local          []domain.Message
	msgCancel      store.CancelFunc
	lifecycle      store.CancelFunc
	closed         bool

	updates  chan []domain.Message
	presCh   chan map[string]presence.State
	presMu   sync.Mutex
	presence map[string]presence.State
	cancels  []store.CancelFunc

	done chan struct{}
}

// NewEngineForUser opens a session toward a peer before any conversation
// exists. The membership watch opens immediately; the conversation itself is
// created lazily on the first send, or adopted when the peer creates it
// first.
func NewEngineForUser(ctx context.Context, deps Deps, peer domain.User) (*Engine, error) {
	e := newEngine(deps)
	p := peer
	e.peer = &p

	cancel, err := deps.Lifecycle.WatchForPeer(ctx, peer.ID, func(rec store.ConversationRecord) {
		if err := e.attach(ctx, rec.ID); err != nil && deps.Log != nil {
			deps.Log.Errorf("sync: adopting conversation %s: %v", rec.ID, err)
		}
	})
	if err != nil {
		return nil, err
	}
	e.lifecycle = cancel

	e.watchPresence(ctx, []domain.User{peer})
	e.setOnline(ctx, true)
	return e, nil
}

// NewEngineForConversation opens a session on an existing conversation.
func NewEngineForConversation(ctx context.Context, deps Deps, conv domain.Conversation) (*Engine, error) {
	e := newEngine(deps)
	if err := e.attach(ctx, conv.ID); err != nil {
		return nil, err
	}

	e.watchPresence(ctx, conv.NotMe(deps.Session.UserID()))
	e.setOnline(ctx, true)
	return e, nil
}

func newEngine(deps Deps) *Engine {
	e := &Engine{
		deps:     deps,
		updates:  make(chan []domain.Message, 1),
		presCh:   make(chan map[string]presence.State, 1),
		presence: make(map[string]presence.State),
		done:     make(chan struct{}),
	}
	e.typing = NewDebouncer(deps.TypingInterval, func(isTyping bool) {
		ctx, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelTimeout()
		if err := deps.Presence.SetTyping(ctx, deps.Session.UserID(), isTyping); err != nil && deps.Log != nil {
			deps.Log.Warnf("sync: publishing typing=%v: %v", isTyping, err)
		}
	})
	return e
}

// attach binds the engine to a conversation and opens the message watch. It
// is idempotent: when the lazy-create path and the adoption path race, the
// first one wins and the second is a no-op.
func (e *Engine) attach(ctx context.Context, conversationID string) error {
	e.mu.Lock()
	if e.closed || e.conversationID != "" {
		e.mu.Unlock()
		return nil
	}
	e.conversationID = conversationID
	e.mu.Unlock()

	ch, cancel, err := e.deps.Store.WatchMessages(ctx, conversationID)
	if err != nil {
		e.mu.Lock()
		e.conversationID = ""
		e.mu.Unlock()
		return err
	}

	e.mu.Lock()
	e.msgCancel = cancel
	e.mu.Unlock()

	go func() {
		for {
			select {
			case <-e.done:
				return
			case snapshot := <-ch:
				e.applySnapshot(conversationID, snapshot)
			}
		}
	}()
	return nil
}

// applySnapshot reconciles a full confirmed snapshot with the local pending
// list. Confirmed ids supersede their local copies; unconfirmed local
// messages ride along at their createdAt position.
func (e *Engine) applySnapshot(conversationID string, records []store.MessageRecord) {
	e.mu.Lock()
	confirmed := make([]domain.Message, 0, len(records))
	confirmedIDs := make(map[string]struct{}, len(records))
	for _, rec := range records {
		confirmed = append(confirmed, messageFromRecord(conversationID, rec))
		confirmedIDs[rec.ID] = struct{}{}
	}

	local := e.local[:0]
	for _, msg := range e.local {
		if _, ok := confirmedIDs[msg.ID]; ok {
			continue
		}
		local = append(local, msg)
	}

	e.confirmed = confirmed
	e.local = local
	visible := e.visibleLocked()
	e.mu.Unlock()

	e.publish(visible)
}

func (e *Engine) visibleLocked() []domain.Message {
	visible := make([]domain.Message, 0, len(e.confirmed)+len(e.local))
	visible = append(visible, e.confirmed...)
	local := make([]domain.Message, len(e.local))
	copy(local, e.local)
	sort.SliceStable(local, func(i, j int) bool {
		return local[i].CreatedAt.Before(local[j].CreatedAt)
	})
	return append(visible, local...)
}

func (e *Engine) publish(visible []domain.Message) {
	for {
		select {
		case e.updates <- visible:
			return
		default:
			select {
			case <-e.updates:
			default:
			}
		}
	}
}

// Send appends the draft to the visible list immediately with status Sending
// and submits it in the background. The returned id is the message's identity
// for its whole life; confirmation arrives through the watch under the same
// id.
func (e *Engine) Send(ctx context.Context, draft domain.DraftMessage) string {
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = time.Now()
	}
	id := uuid.NewString()

	e.mu.Lock()
	msg := domain.Message{
		ID:             id,
		ConversationID: e.conversationID,
		UserID:         e.deps.Session.UserID(),
		Status:         domain.StatusSending,
		CreatedAt:      draft.CreatedAt,
		Text:           draft.Text,
		ReplyMessage:   draft.ReplyMessage,
	}
	e.local = append(e.local, msg)
	visible := e.visibleLocked()
	e.mu.Unlock()

	e.publish(visible)
	go e.submit(ctx, id, draft)
	return id
}

func (e *Engine) submit(ctx context.Context, id string, draft domain.DraftMessage) {
	me := e.deps.Session.UserID()

	conversationID, err := e.ensureConversation(ctx)
	if err != nil {
		if e.deps.Log != nil {
			e.deps.Log.Errorf("sync: resolving conversation for message %s: %v", id, err)
		}
		e.markError(id, draft)
		return
	}

	resolved, err := e.deps.Uploads.Resolve(ctx, me, draft)
	if err != nil {
		if e.deps.Log != nil {
			e.deps.Log.Errorf("sync: uploading media for message %s: %v", id, err)
		}
		e.markError(id, draft)
		return
	}

	rec := recordFromDraft(id, me, draft, resolved)
	if err := e.deps.Store.PutMessage(ctx, conversationID, rec); err != nil {
		if e.deps.Log != nil {
			e.deps.Log.Errorf("sync: writing message %s: %v", id, err)
		}
		e.markError(id, draft)
		return
	}

	// The message itself is durable at this point; failures below degrade the
	// conversation list, not the send.
	if err := e.deps.Store.UpdateConversation(ctx, conversationID, store.ConversationUpdate{LatestMessage: &rec}); err != nil && e.deps.Log != nil {
		e.deps.Log.Warnf("sync: caching latest message on %s: %v", conversationID, err)
	}
	if err := e.deps.Directory.BumpUnread(ctx, conversationID, me); err != nil && e.deps.Log != nil {
		e.deps.Log.Warnf("sync: bumping unread counters on %s: %v", conversationID, err)
	}
}

// ensureConversation returns the bound conversation id, creating the direct
// conversation on first send when none exists yet. Before creating it checks
// the membership snapshot in case the peer already won the race.
func (e *Engine) ensureConversation(ctx context.Context) (string, error) {
	e.mu.Lock()
	conversationID := e.conversationID
	peer := e.peer
	e.mu.Unlock()

	if conversationID != "" {
		return conversationID, nil
	}
	if peer == nil {
		return "", chatsync_errors.ErrNoConversation
	}

	if rec, ok := e.deps.Directory.DirectConversationWith(peer.ID); ok {
		if err := e.attach(ctx, rec.ID); err != nil {
			return "", err
		}
		return e.ConversationID(), nil
	}

	rec, err := e.deps.Lifecycle.CreateDirect(ctx, *peer)
	if err != nil {
		return "", err
	}
	if err := e.attach(ctx, rec.ID); err != nil {
		return "", err
	}
	return e.ConversationID(), nil
}

// markError flips the local message to Error and preserves the draft so a
// retry can resubmit without retyping.
func (e *Engine) markError(id string, draft domain.DraftMessage) {
	e.mu.Lock()
	for i := range e.local {
		if e.local[i].ID == id {
			d := draft
			e.local[i].Status = domain.StatusError
			e.local[i].FailedDraft = &d
			break
		}
	}
	visible := e.visibleLocked()
	e.mu.Unlock()

	e.publish(visible)
}

// Retry removes a failed message and resubmits its preserved draft as a new
// attempt under a new id. The failed attempt never resurrects its old id.
func (e *Engine) Retry(ctx context.Context, messageID string) (string, error) {
	e.mu.Lock()
	var draft *domain.DraftMessage
	local := e.local[:0]
	for _, msg := range e.local {
		if msg.ID == messageID && msg.Status == domain.StatusError {
			draft = msg.FailedDraft
			continue
		}
		local = append(local, msg)
	}
	e.local = local
	visible := e.visibleLocked()
	e.mu.Unlock()

	if draft == nil {
		return "", chatsync_errors.ErrNotFound
	}

	e.publish(visible)
	return e.Send(ctx, *draft), nil
}

// Messages returns the current visible list.
func (e *Engine) Messages() []domain.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visibleLocked()
}

// Updates streams the visible list. Only the newest snapshot is retained for
// a slow consumer.
func (e *Engine) Updates() <-chan []domain.Message {
	return e.updates
}

// ConversationID returns the bound conversation id, empty while a lazily
// created direct conversation doesn't exist yet.
func (e *Engine) ConversationID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conversationID
}

// UserIsTyping feeds the current draft text into the typing debouncer.
func (e *Engine) UserIsTyping(text string) {
	e.typing.Input(text)
}

// SetActive publishes the explicit app-lifecycle signal. Online and offline
// only ever come from here; silence never implies offline.
func (e *Engine) SetActive(ctx context.Context, online bool) {
	e.setOnline(ctx, online)
}

func (e *Engine) setOnline(ctx context.Context, online bool) {
	if err := e.deps.Presence.SetOnline(ctx, e.deps.Session.UserID(), online); err != nil && e.deps.Log != nil {
		e.deps.Log.Warnf("sync: publishing online=%v: %v", online, err)
	}
}

// ResetUnread zeroes the current user's unread counter; called when the
// conversation view closes.
func (e *Engine) ResetUnread(ctx context.Context) error {
	conversationID := e.ConversationID()
	if conversationID == "" {
		return nil
	}
	return e.deps.Directory.ResetUnread(ctx, conversationID, e.deps.Session.UserID())
}

func (e *Engine) watchPresence(ctx context.Context, peers []domain.User) {
	for _, peer := range peers {
		ch, cancel, err := e.deps.Presence.Watch(ctx, peer.ID)
		if err != nil {
			if e.deps.Log != nil {
				e.deps.Log.Warnf("sync: watching presence of %s: %v", peer.ID, err)
			}
			continue
		}

		e.mu.Lock()
		e.cancels = append(e.cancels, store.CancelFunc(cancel))
		e.mu.Unlock()

		go func(peerID string) {
			for {
				select {
				case <-e.done:
					return
				case state := <-ch:
					e.presMu.Lock()
					e.presence[peerID] = state
					snapshot := make(map[string]presence.State, len(e.presence))
					for id, s := range e.presence {
						snapshot[id] = s
					}
					e.presMu.Unlock()
					e.publishPresence(snapshot)
				}
			}
		}(peer.ID)
	}
}

func (e *Engine) publishPresence(snapshot map[string]presence.State) {
	for {
		select {
		case e.presCh <- snapshot:
			return
		default:
			select {
			case <-e.presCh:
			default:
			}
		}
	}
}

// PresenceUpdates streams the peers' presence keyed by user id.
func (e *Engine) PresenceUpdates() <-chan map[string]presence.State {
	return e.presCh
}

// PeerPresence returns the last known presence of the peers.
func (e *Engine) PeerPresence() map[string]presence.State {
	e.presMu.Lock()
	defer e.presMu.Unlock()
	snapshot := make(map[string]presence.State, len(e.presence))
	for id, s := range e.presence {
		snapshot[id] = s
	}
	return snapshot
}

// Close tears down every subscription the engine owns and cancels any
// pending stopped-typing timer. Pending sends keep running; their outcome
// still lands in the store.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	cancels := e.cancels
	e.cancels = nil
	msgCancel := e.msgCancel
	lifecycle := e.lifecycle
	e.mu.Unlock()

	close(e.done)
	if msgCancel != nil {
		msgCancel()
	}
	if lifecycle != nil {
		lifecycle()
	}
	for _, cancel := range cancels {
		cancel()
	}
	e.typing.Stop()
}
