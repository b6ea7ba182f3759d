package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// The store holds three collections: users, conversations, and a messages
// sub-collection per conversation, all as JSON documents keyed by
// client-chosen ids. Watches follow snapshot-listener semantics: every
// delivered value is the full current ordered result set, never a delta.

// newDocumentID generates an id for documents created without one.
func newDocumentID() string {
	return uuid.NewString()
}

// CancelFunc tears down a watch. Watches are never cancelled implicitly;
// callers own their listeners and must cancel them when a view or session
// ends.
type CancelFunc func()

// AttachmentRecord is the wire form of a resolved attachment.
type AttachmentRecord struct {
	ThumbURL string `json:"thumbURL"`
	URL      string `json:"url"`
	Type     string `json:"type"`
}

// RecordingRecord is the wire form of a voice recording.
type RecordingRecord struct {
	Duration        float64   `json:"duration"`
	WaveformSamples []float64 `json:"waveformSamples"`
	URL             string    `json:"url,omitempty"`
}

// ReplyRecord is the wire form of a reply snapshot.
type ReplyRecord struct {
	ID          string             `json:"id"`
	UserID      string             `json:"userId"`
	Text        string             `json:"text,omitempty"`
	Attachments []AttachmentRecord `json:"attachments,omitempty"`
	Recording   *RecordingRecord   `json:"recording,omitempty"`
}

// MessageRecord is the wire form of a confirmed message. CreatedAt is
// caller-supplied at draft time, not server time; ordering by it is
// vulnerable to client clock skew. That is a known limitation of the
// protocol, kept rather than papered over with a server clock.
type MessageRecord struct {
	ID           string             `json:"id"`
	UserID       string             `json:"userId"`
	CreatedAt    time.Time          `json:"createdAt"`
	Text         string             `json:"text,omitempty"`
	Attachments  []AttachmentRecord `json:"attachments,omitempty"`
	Recording    *RecordingRecord   `json:"recording,omitempty"`
	ReplyMessage *ReplyRecord       `json:"replyMessage,omitempty"`
}

// ConversationRecord is the wire form of a conversation document.
type ConversationRecord struct {
	ID                   string         `json:"id"`
	Users                []string       `json:"users"`
	IsGroup              bool           `json:"isGroup"`
	Title                string         `json:"title,omitempty"`
	PictureURL           string         `json:"pictureURL,omitempty"`
	UsersUnreadCountInfo map[string]int `json:"usersUnreadCountInfo"`
	LatestMessage        *MessageRecord `json:"latestMessage,omitempty"`
}

// UserRecord is the wire form of a directory user document.
type UserRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarURL,omitempty"`
}

// ConversationUpdate is a field-level merge update. Nil fields are left
// untouched; a non-nil UsersUnreadCountInfo replaces the whole counter map.
type ConversationUpdate struct {
	UsersUnreadCountInfo map[string]int
	LatestMessage        *MessageRecord
}

// Store is the durable document store the messaging core runs against.
// Satisfiable by any backend offering atomic single-document creation,
// field-merge updates, membership filtering and full-snapshot listeners.
type Store interface {
	// CreateConversation atomically creates the document with its initial
	// data and returns the id (generated when the record carries none).
	CreateConversation(ctx context.Context, conv ConversationRecord) (string, error)
	GetConversation(ctx context.Context, id string) (ConversationRecord, error)
	// GetConversations returns every conversation whose user list contains
	// userID.
	GetConversations(ctx context.Context, userID string) ([]ConversationRecord, error)
	UpdateConversation(ctx context.Context, id string, update ConversationUpdate) error
	// WatchConversations streams full snapshots of "conversations containing
	// userID", starting with the current one.
	WatchConversations(ctx context.Context, userID string) (<-chan []ConversationRecord, CancelFunc, error)

	// PutMessage writes the message under its client-chosen id, upserting on
	// resubmission of the same id.
	PutMessage(ctx context.Context, conversationID string, msg MessageRecord) error
	// GetMessages returns the conversation's messages ordered by createdAt
	// ascending.
	GetMessages(ctx context.Context, conversationID string) ([]MessageRecord, error)
	// WatchMessages streams full ordered snapshots of the conversation's
	// messages, starting with the current one.
	WatchMessages(ctx context.Context, conversationID string) (<-chan []MessageRecord, CancelFunc, error)

	PutUser(ctx context.Context, u UserRecord) error
	GetUsers(ctx context.Context) ([]UserRecord, error)
	WatchUsers(ctx context.Context) (<-chan []UserRecord, CancelFunc, error)
}
