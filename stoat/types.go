package stoat

import "fmt"

// File is an uploaded attachment reference
type File struct {
	ID       string `json:"_id"`
	Filename string `json:"filename"`
}

// User represents a Stoat user
type User struct {
	ID          string `json:"_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Avatar      *File  `json:"avatar"`
	// Relationship is "User" on the account's own user object in Ready.
	Relationship string `json:"relationship"`
}

// Name returns the user's display name, falling back to the username.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// AvatarURL returns the CDN URL for the user's avatar, or empty when
// the user has none.
func (u User) AvatarURL(cdnURL string) string {
	if u.Avatar == nil {
		return ""
	}
	return fmt.Sprintf("%s/avatars/%s", cdnURL, u.Avatar.ID)
}

// Channel represents a Stoat channel
type Channel struct {
	ID          string `json:"_id"`
	ChannelType string `json:"channel_type"`
	Name        string `json:"name"`
}

// Masquerade overrides the displayed author of a sent message
type Masquerade struct {
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Message represents a Stoat channel message. Author is a user ID;
// callers resolve it through FetchUser.
type Message struct {
	ID          string      `json:"_id"`
	ChannelID   string      `json:"channel"`
	AuthorID    string      `json:"author"`
	Content     string      `json:"content"`
	Masquerade  *Masquerade `json:"masquerade"`
	Attachments []File      `json:"attachments"`
}

// MessageUpdate is the payload of a MessageUpdate event
type MessageUpdate struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel"`
	Data      struct {
		Content string `json:"content"`
	} `json:"data"`
}

// MessageDelete is the payload of a MessageDelete event
type MessageDelete struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel"`
}

// APIError is a non-2xx response from the Stoat REST API
type APIError struct {
	StatusCode int    `json:"-"`
	Type       string `json:"type"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stoat: API error %d: %s", e.StatusCode, e.Type)
}

// IsRateLimit reports whether the error is a 429 response.
func (e *APIError) IsRateLimit() bool {
	return e.StatusCode == 429
}
