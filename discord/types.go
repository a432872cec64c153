package discord

import (
	"fmt"
	"strconv"
)

// User represents a Discord user as it appears on messages
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	GlobalName    string `json:"global_name"`
	Discriminator string `json:"discriminator"`
	Avatar        string `json:"avatar"`
	Bot           bool   `json:"bot"`
}

// DisplayName returns the user's global display name, falling back to
// the username when none is set.
func (u User) DisplayName() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// AvatarURL returns the CDN URL for the user's avatar, or the default
// avatar when the user has none.
func (u User) AvatarURL() string {
	if u.Avatar != "" {
		return fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", u.ID, u.Avatar)
	}
	// Default avatar index derives from the user ID for migrated users,
	// from the discriminator otherwise.
	var index int64
	if u.Discriminator == "" || u.Discriminator == "0" {
		id, _ := strconv.ParseInt(u.ID, 10, 64)
		index = (id >> 22) % 6
	} else {
		d, _ := strconv.ParseInt(u.Discriminator, 10, 64)
		index = d % 5
	}
	return fmt.Sprintf("https://cdn.discordapp.com/embed/avatars/%d.png", index)
}

// Attachment represents a file attached to a message
type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// Message represents a Discord channel message
type Message struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channel_id"`
	Author      User         `json:"author"`
	Content     string       `json:"content"`
	WebhookID   string       `json:"webhook_id"`
	Attachments []Attachment `json:"attachments"`
}

// MessageDelete is the payload of a MESSAGE_DELETE dispatch
type MessageDelete struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

// Channel represents a Discord guild channel
type Channel struct {
	ID      string `json:"id"`
	GuildID string `json:"guild_id"`
	Name    string `json:"name"`
	Type    int    `json:"type"`
}

// Webhook represents a channel webhook
type Webhook struct {
	ID            string `json:"id"`
	ChannelID     string `json:"channel_id"`
	Name          string `json:"name"`
	Token         string `json:"token"`
	ApplicationID string `json:"application_id"`
	User          *User  `json:"user"`
}

// Ready is the payload of the READY dispatch
type Ready struct {
	User             User   `json:"user"`
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url"`
}

// APIError is a non-2xx response from the Discord REST API
type APIError struct {
	StatusCode int     `json:"-"`
	Code       int     `json:"code"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("discord: API error %d (code %d): %s (retry after %.2fs)",
			e.StatusCode, e.Code, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("discord: API error %d (code %d): %s", e.StatusCode, e.Code, e.Message)
}

// IsRateLimit reports whether the error is a 429 response.
func (e *APIError) IsRateLimit() bool {
	return e.StatusCode == 429
}
