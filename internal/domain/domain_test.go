package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageSubtext(t *testing.T) {
	t.Run("first attachment wins", func(t *testing.T) {
		m := Message{Attachments: []Attachment{{Type: AttachmentVideo}, {Type: AttachmentImage}}}
		assert.Equal(t, "Video", m.Subtext())
	})

	t.Run("recording without attachments", func(t *testing.T) {
		m := Message{Recording: &Recording{Duration: 2}}
		assert.Equal(t, "Voice recording", m.Subtext())
	})

	t.Run("plain text has no subtext", func(t *testing.T) {
		assert.Empty(t, Message{Text: "hi"}.Subtext())
	})
}

func TestAttachmentTypeTitle(t *testing.T) {
	assert.Equal(t, "Photo", AttachmentImage.Title())
	assert.Equal(t, "Video", AttachmentVideo.Title())
	assert.Equal(t, "Attachment", AttachmentType("weird").Title())
}

func TestConversationDisplayTitle(t *testing.T) {
	t.Run("group shows its own title", func(t *testing.T) {
		c := Conversation{IsGroup: true, Title: "Team", Users: []User{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}}
		assert.Equal(t, "Team", c.DisplayTitle("a"))
	})

	t.Run("direct shows the counterpart", func(t *testing.T) {
		c := Conversation{Users: []User{{ID: "a", Name: "Alice"}, {ID: "b", Name: "Bob"}}}
		assert.Equal(t, "Bob", c.DisplayTitle("a"))
		assert.Equal(t, "Alice", c.DisplayTitle("b"))
	})
}

func TestConversationUnread(t *testing.T) {
	c := Conversation{UsersUnreadCountInfo: map[string]int{"a": 3}}
	assert.Equal(t, 3, c.UnreadFor("a"))
	assert.Zero(t, c.UnreadFor("b"))
	assert.Zero(t, Conversation{}.UnreadFor("a"))
}
