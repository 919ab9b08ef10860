package wetalk

import "testing"

func viewConversation() *Conversation {
	return &Conversation{
		ID: "chat-1",
		Participants: []User{
			{ID: "u-alice", Name: "Alice"},
			{ID: "u-bob", Name: "Bob", IsOnline: true},
			{ID: "u-carol", Name: "Carol"},
		},
	}
}

func TestTypingStatus(t *testing.T) {
	c := viewConversation()

	tests := []struct {
		name   string
		typing []string
		want   string
	}{
		{"nobody", nil, ""},
		{"one user", []string{"u-bob"}, "Bob is typing..."},
		{"two users", []string{"u-bob", "u-carol"}, "Bob and Carol are typing..."},
		{"three users", []string{"u-alice", "u-bob", "u-carol"}, "Several people are typing..."},
		{"unknown user", []string{"u-stranger"}, "Someone is typing..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TypingStatus(c, tt.typing); got != tt.want {
				t.Errorf("TypingStatus(%v) = %q, want %q", tt.typing, got, tt.want)
			}
		})
	}

	t.Run("nil conversation", func(t *testing.T) {
		if got := TypingStatus(nil, []string{"u-bob"}); got != "Someone is typing..." {
			t.Errorf("TypingStatus(nil) = %q", got)
		}
	})
}

func TestDisplayName(t *testing.T) {
	t.Run("direct chat shows the peer", func(t *testing.T) {
		c := &Conversation{Participants: []User{{ID: "u-alice", Name: "Alice"}, {ID: "u-bob", Name: "Bob"}}}
		if got := DisplayName(c, "u-alice"); got != "Bob" {
			t.Errorf("DisplayName = %q, want Bob", got)
		}
		if got := DisplayName(c, "u-bob"); got != "Alice" {
			t.Errorf("DisplayName = %q, want Alice", got)
		}
	})

	t.Run("group chat shows its name", func(t *testing.T) {
		c := viewConversation()
		c.IsGroup = true
		c.Name = "Weekend plans"
		if got := DisplayName(c, "u-alice"); got != "Weekend plans" {
			t.Errorf("DisplayName = %q, want group name", got)
		}
	})

	t.Run("nil conversation", func(t *testing.T) {
		if got := DisplayName(nil, "u-alice"); got != "" {
			t.Errorf("DisplayName(nil) = %q, want empty", got)
		}
	})
}

func TestPresenceLabel(t *testing.T) {
	t.Run("direct chat follows the peer", func(t *testing.T) {
		c := &Conversation{Participants: []User{
			{ID: "u-alice", Name: "Alice"},
			{ID: "u-bob", Name: "Bob", IsOnline: true},
		}}
		if got := PresenceLabel(c, "u-alice"); got != "Online" {
			t.Errorf("PresenceLabel = %q, want Online", got)
		}
		c.Participants[1].IsOnline = false
		if got := PresenceLabel(c, "u-alice"); got != "Offline" {
			t.Errorf("PresenceLabel = %q, want Offline", got)
		}
	})

	t.Run("group chat shows member count", func(t *testing.T) {
		c := viewConversation()
		c.IsGroup = true
		if got := PresenceLabel(c, "u-alice"); got != "3 members" {
			t.Errorf("PresenceLabel = %q, want 3 members", got)
		}
	})
}

func TestFilterConversations(t *testing.T) {
	chats := []Conversation{
		{ID: "chat-1", Participants: []User{{ID: "u-me"}, {ID: "u-bob", Name: "Bob Martin"}}},
		{ID: "chat-2", IsGroup: true, Name: "Go study group"},
		{ID: "chat-3", Participants: []User{{ID: "u-me"}, {ID: "u-carol", Name: "Carol"}},
			LastMessage: &Message{Content: "see you at the airport"}},
	}

	t.Run("empty query matches all", func(t *testing.T) {
		if got := FilterConversations(chats, "u-me", "  "); len(got) != 3 {
			t.Fatalf("expected all 3, got %d", len(got))
		}
	})

	t.Run("case insensitive substring", func(t *testing.T) {
		got := FilterConversations(chats, "u-me", "MARTIN")
		if len(got) != 1 || got[0].ID != "chat-1" {
			t.Fatalf("expected chat-1, got %v", got)
		}
	})

	t.Run("matches group names", func(t *testing.T) {
		got := FilterConversations(chats, "u-me", "study")
		if len(got) != 1 || got[0].ID != "chat-2" {
			t.Fatalf("expected chat-2, got %v", got)
		}
	})

	t.Run("matches last message content", func(t *testing.T) {
		got := FilterConversations(chats, "u-me", "Airport")
		if len(got) != 1 || got[0].ID != "chat-3" {
			t.Fatalf("expected chat-3, got %v", got)
		}
	})

	t.Run("no match", func(t *testing.T) {
		if got := FilterConversations(chats, "u-me", "zebra"); len(got) != 0 {
			t.Fatalf("expected none, got %v", got)
		}
	})
}
