package domain

import "time"

// Attachment is a resolved media reference. Attachments are produced only by
// a successful upload; both URLs are durable.
type Attachment struct {
	ID       string         `json:"id"`
	ThumbURL string         `json:"thumbURL"`
	URL      string         `json:"url"`
	Type     AttachmentType `json:"type"`
}

// Recording is a voice message. URL is empty while the upload is in flight.
type Recording struct {
	Duration        float64   `json:"duration"`
	WaveformSamples []float64 `json:"waveformSamples"`
	URL             string    `json:"url,omitempty"`
}

// ReplyMessage is a shallow snapshot of the message being replied to, not a
// live reference; it keeps its own copies of text, attachments and recording.
type ReplyMessage struct {
	ID          string       `json:"id"`
	UserID      string       `json:"userId"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Recording   *Recording   `json:"recording,omitempty"`
}

// Media is a local, not yet uploaded attachment handle. Thumbnail is only set
// for videos; images use the full asset as their own thumbnail.
type Media struct {
	Type        AttachmentType
	Filename    string
	ContentType string
	Data        []byte
	Thumbnail   []byte
}

// DraftRecording is a local voice recording pending upload.
type DraftRecording struct {
	Duration        float64
	WaveformSamples []float64
	Data            []byte
}

// DraftMessage is a locally authored, not yet persisted message.
type DraftMessage struct {
	Text         string
	Medias       []Media
	Recording    *DraftRecording
	ReplyMessage *ReplyMessage
	CreatedAt    time.Time
}

// Message is one entry in a conversation's visible list.
//
// The id is client-generated and stable across the optimistic-to-confirmed
// transition: the Sending copy appended on send and the Sent copy delivered
// by the durable store share it, which is what lets the confirmed stream
// supersede the optimistic entry.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	UserID         string        `json:"userId"`
	Status         MessageStatus `json:"status"`
	CreatedAt      time.Time     `json:"createdAt"`
	Text           string        `json:"text,omitempty"`
	Attachments    []Attachment  `json:"attachments,omitempty"`
	Recording      *Recording    `json:"recording,omitempty"`
	ReplyMessage   *ReplyMessage `json:"replyMessage,omitempty"`

	// FailedDraft preserves the original draft when Status is ERROR so the
	// user can resubmit it. Retry produces a new attempt with a new id, not
	// a status transition.
	FailedDraft *DraftMessage `json:"-"`
}

// Subtext is the list-row hint shown instead of (or before) text for media
// messages.
func (m Message) Subtext() string {
	if len(m.Attachments) > 0 {
		return m.Attachments[0].Type.Title()
	}
	if m.Recording != nil {
		return "Voice recording"
	}
	return ""
}
