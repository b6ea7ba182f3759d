package domain

import "time"

// LatestMessage is the denormalized cache of a conversation's newest message,
// kept on the conversation document for list rendering.
type LatestMessage struct {
	UserID     string    `json:"userId"`
	SenderName string    `json:"senderName,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	Text       string    `json:"text,omitempty"`
	Subtext    string    `json:"subtext,omitempty"`
}

// Conversation is a direct (two users) or group (N users) thread. A direct
// conversation is created exactly once per unordered user pair, lazily on the
// first message; groups are created explicitly.
type Conversation struct {
	ID         string `json:"id"`
	Users      []User `json:"users"`
	IsGroup    bool   `json:"isGroup"`
	Title      string `json:"title,omitempty"`
	PictureURL string `json:"pictureURL,omitempty"`

	// UsersUnreadCountInfo maps participant id to their unread counter.
	// Sending bumps every participant except the sender; closing the
	// conversation view resets the current user's entry to zero.
	UsersUnreadCountInfo map[string]int `json:"usersUnreadCountInfo"`

	LatestMessage *LatestMessage `json:"latestMessage,omitempty"`
}

// DisplayTitle is the group title, or the counterpart's name for a direct
// conversation.
func (c Conversation) DisplayTitle(currentUserID string) string {
	if c.IsGroup {
		return c.Title
	}
	for _, u := range c.Users {
		if u.ID != currentUserID {
			return u.Name
		}
	}
	return c.Title
}

// NotMe returns the participants other than the current user.
func (c Conversation) NotMe(currentUserID string) []User {
	others := make([]User, 0, len(c.Users))
	for _, u := range c.Users {
		if u.ID != currentUserID {
			others = append(others, u)
		}
	}
	return others
}

// HasUser reports whether the given user participates in the conversation.
func (c Conversation) HasUser(userID string) bool {
	for _, u := range c.Users {
		if u.ID == userID {
			return true
		}
	}
	return false
}

// UnreadFor returns the unread counter for one participant.
func (c Conversation) UnreadFor(userID string) int {
	if c.UsersUnreadCountInfo == nil {
		return 0
	}
	return c.UsersUnreadCountInfo[userID]
}
