package domain

// MessageStatus tracks a message through the optimistic send pipeline.
// Sending and Error messages exist only locally; every message delivered by
// the durable store is Sent.
type MessageStatus string

const (
	StatusSending MessageStatus = "SENDING"
	StatusSent    MessageStatus = "SENT"
	StatusError   MessageStatus = "ERROR"
)

// AttachmentType is the kind of media attached to a message.
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentVideo AttachmentType = "video"
)

// Title returns the human readable label used for latest-message subtexts.
func (t AttachmentType) Title() string {
	switch t {
	case AttachmentImage:
		return "Photo"
	case AttachmentVideo:
		return "Video"
	}
	return "Attachment"
}
