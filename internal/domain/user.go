package domain

// User is a participant known to the directory. Identity is provisioned
// externally; the id may be device- or account-derived.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarURL,omitempty"`

	// IsCurrentUser is derived from the session, never persisted.
	IsCurrentUser bool `json:"-"`
}

// Session carries the externally provisioned identity for one running
// client. It is constructed once and passed in explicitly; there is no
// process-wide current user.
type Session struct {
	User     User
	DeviceID string
}

// UserID is a convenience accessor for the session's user id.
func (s Session) UserID() string {
	return s.User.ID
}
