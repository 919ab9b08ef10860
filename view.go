package wetalk

import (
	"strconv"
	"strings"
)

// TypingStatus renders the typing indicator line for a conversation given
// the users currently typing in it. Returns "" when nobody is typing.
//
//	one user:    "Ada is typing..."
//	two users:   "Ada and Grace are typing..."
//	three plus:  "Several people are typing..."
func TypingStatus(c *Conversation, typingUserIDs []string) string {
	switch len(typingUserIDs) {
	case 0:
		return ""
	case 1:
		return participantName(c, typingUserIDs[0]) + " is typing..."
	case 2:
		a := participantName(c, typingUserIDs[0])
		b := participantName(c, typingUserIDs[1])
		return a + " and " + b + " are typing..."
	default:
		return "Several people are typing..."
	}
}

// DisplayName returns the line-item title for a conversation: the group
// name for group chats, otherwise the other participant's name as seen by
// localUserID.
func DisplayName(c *Conversation, localUserID string) string {
	if c == nil {
		return ""
	}
	if c.IsGroup {
		return c.Name
	}
	for _, p := range c.Participants {
		if p.ID != localUserID {
			return p.Name
		}
	}
	return c.Name
}

// PresenceLabel returns "Online" or "Offline" for a direct conversation
// based on the other participant's state. Group conversations have no
// single peer, so the member count is shown instead.
func PresenceLabel(c *Conversation, localUserID string) string {
	if c == nil {
		return ""
	}
	if c.IsGroup {
		n := len(c.Participants)
		if n == 1 {
			return "1 member"
		}
		return strconv.Itoa(n) + " members"
	}
	for _, p := range c.Participants {
		if p.ID != localUserID {
			if p.IsOnline {
				return "Online"
			}
			return "Offline"
		}
	}
	return "Offline"
}

// FilterConversations returns the conversations matching the query,
// case-insensitively, against the conversation name, the last message
// content, or any non-local participant's name. An empty query matches
// everything. Order is preserved.
func FilterConversations(chats []Conversation, localUserID, query string) []Conversation {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return chats
	}
	out := make([]Conversation, 0, len(chats))
	for _, c := range chats {
		if conversationMatches(&c, localUserID, query) {
			out = append(out, c)
		}
	}
	return out
}

func conversationMatches(c *Conversation, localUserID, query string) bool {
	if strings.Contains(strings.ToLower(c.Name), query) {
		return true
	}
	if c.LastMessage != nil && strings.Contains(strings.ToLower(c.LastMessage.Content), query) {
		return true
	}
	for _, p := range c.Participants {
		if p.ID != localUserID && strings.Contains(strings.ToLower(p.Name), query) {
			return true
		}
	}
	return false
}

func participantName(c *Conversation, userID string) string {
	if c != nil {
		for _, p := range c.Participants {
			if p.ID == userID {
				return p.Name
			}
		}
	}
	return "Someone"
}
