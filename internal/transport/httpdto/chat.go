package httpdto

import "time"

// TokenRequest is used for POST /v1/auth/token. Identity is caller-supplied;
// an empty user id gets one generated.
type TokenRequest struct {
	UserID    string `json:"user_id,omitempty"`
	Name      string `json:"name" binding:"required"`
	AvatarURL string `json:"avatar_url,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`
}

// TokenResponse is returned after identity provisioning.
type TokenResponse struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
}

// UserDTO represents a directory user in API responses.
type UserDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// AttachmentDTO is a resolved attachment reference.
type AttachmentDTO struct {
	ThumbURL string `json:"thumb_url"`
	URL      string `json:"url"`
	Type     string `json:"type" binding:"required,oneof=image video"`
}

// RecordingDTO is a resolved voice recording reference.
type RecordingDTO struct {
	Duration        float64   `json:"duration"`
	WaveformSamples []float64 `json:"waveform_samples,omitempty"`
	URL             string    `json:"url"`
}

// ReplyDTO is the shallow snapshot of the quoted message.
type ReplyDTO struct {
	ID          string          `json:"id" binding:"required"`
	UserID      string          `json:"user_id"`
	Text        string          `json:"text,omitempty"`
	Attachments []AttachmentDTO `json:"attachments,omitempty"`
	Recording   *RecordingDTO   `json:"recording,omitempty"`
}

// SendMessageRequest is used for POST /v1/conversations/:id/messages. The id
// is client-generated so a resubmission after a lost response upserts instead
// of duplicating; createdAt is the client's draft time and drives ordering.
type SendMessageRequest struct {
	ID           string          `json:"id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	Text         string          `json:"text,omitempty"`
	Attachments  []AttachmentDTO `json:"attachments,omitempty"`
	Recording    *RecordingDTO   `json:"recording,omitempty"`
	ReplyMessage *ReplyDTO       `json:"reply_message,omitempty"`
}

// MessageDTO represents a confirmed message in API responses.
type MessageDTO struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	UserID         string          `json:"user_id"`
	CreatedAt      time.Time       `json:"created_at"`
	Text           string          `json:"text,omitempty"`
	Attachments    []AttachmentDTO `json:"attachments,omitempty"`
	Recording      *RecordingDTO   `json:"recording,omitempty"`
	ReplyMessage   *ReplyDTO       `json:"reply_message,omitempty"`
}

// CreateDirectRequest is used for POST /v1/conversations/direct.
type CreateDirectRequest struct {
	PeerID string `json:"peer_id" binding:"required"`
}

// CreateGroupRequest is used for POST /v1/conversations/group.
type CreateGroupRequest struct {
	Title      string   `json:"title" binding:"required"`
	PictureURL string   `json:"picture_url,omitempty"`
	MemberIDs  []string `json:"member_ids" binding:"required,min=1"`
}

// LatestMessageDTO is the denormalized list-row cache.
type LatestMessageDTO struct {
	UserID     string    `json:"user_id"`
	SenderName string    `json:"sender_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Text       string    `json:"text,omitempty"`
	Subtext    string    `json:"subtext,omitempty"`
}

// ConversationDTO represents a conversation in API responses.
type ConversationDTO struct {
	ID                   string            `json:"id"`
	Users                []UserDTO         `json:"users"`
	IsGroup              bool              `json:"is_group"`
	Title                string            `json:"title,omitempty"`
	PictureURL           string            `json:"picture_url,omitempty"`
	UsersUnreadCountInfo map[string]int    `json:"users_unread_count_info"`
	LatestMessage        *LatestMessageDTO `json:"latest_message,omitempty"`
}

// UploadRequest is used for POST /v1/uploads. Data is base64 in JSON.
type UploadRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
	Data        []byte `json:"data" binding:"required"`
}

// UploadResponse is returned for POST /v1/uploads.
type UploadResponse struct {
	URL string `json:"url"`
}

// PresenceRequest is used for POST /v1/presence; online and offline are
// explicit lifecycle signals, never inferred.
type PresenceRequest struct {
	Online bool `json:"online"`
}

// TypingRequest is used for POST /v1/typing.
type TypingRequest struct {
	IsTyping bool `json:"is_typing"`
}

// PresenceDTO represents a user's presence in API responses.
type PresenceDTO struct {
	UserID   string    `json:"user_id"`
	IsOnline bool      `json:"is_online"`
	IsTyping bool      `json:"is_typing"`
	LastSeen time.Time `json:"last_seen"`
	Status   string    `json:"status"`
}
