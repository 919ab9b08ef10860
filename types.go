package wetalk

import (
	"encoding/json"
	"time"
)

// ============================================================================
// Shared Types
// ============================================================================

// APIError represents an API error returned by the WeTalk backend.
type APIError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// ============================================================================
// Domain Types
// ============================================================================

// User is a chat participant. The canonical copy of the local user lives in
// the Session; every other User is only ever seen embedded in conversation
// payloads.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsOnline bool   `json:"isOnline"`
}

// Message is a single chat message. Messages are never mutated after
// creation except for the Seen flag, and never deleted client-side.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	Sender    User      `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Seen      bool      `json:"seen"`
}

// Before reports whether m sorts before other in a conversation's message
// sequence: creation timestamp first, message ID as the tie-break so the
// order is total and reproducible.
func (m Message) Before(other Message) bool {
	if !m.Timestamp.Equal(other.Timestamp) {
		return m.Timestamp.Before(other.Timestamp)
	}
	return m.ID < other.ID
}

// Conversation is a direct or group chat thread.
//
// Invariants maintained by the Store: the Messages slice holds no two
// entries with the same ID, is ordered by (Timestamp, ID), and LastMessage
// points at the greatest-ordered entry (nil when empty).
type Conversation struct {
	ID           string    `json:"id"`
	IsGroup      bool      `json:"isGroup"`
	Name         string    `json:"name,omitempty"`
	Participants []User    `json:"participants"`
	Messages     []Message `json:"messages"`
	LastMessage  *Message  `json:"lastMessage,omitempty"`
	UnreadCount  int       `json:"unreadCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Clone returns a deep copy of the conversation so callers can hand it to
// readers without exposing Store-internal slices.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Participants = append([]User(nil), c.Participants...)
	cp.Messages = append([]Message(nil), c.Messages...)
	if c.LastMessage != nil {
		last := *c.LastMessage
		cp.LastMessage = &last
	}
	return &cp
}

// ============================================================================
// Auth Types
// ============================================================================

// RegisterOptions is the payload for account registration.
type RegisterOptions struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthData is the response to a successful login or registration.
type AuthData struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// Contact is an entry in the local user's contact list.
type Contact struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

// ============================================================================
// Response Envelope
// ============================================================================

// apiResponse is the generic wire envelope for all request/response calls.
type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *APIError       `json:"error,omitempty"`
}
