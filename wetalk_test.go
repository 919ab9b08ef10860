package wetalk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// ============================================================================
// Test Helpers
// ============================================================================

func writeEnvelope(w http.ResponseWriter, data any) {
	raw, _ := json.Marshal(data)
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    json.RawMessage(raw),
	})
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}

// ============================================================================
// Client construction
// ============================================================================

func TestNewClientOptions(t *testing.T) {
	c := NewClient("tok-1")
	if c.BaseURL() != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want default", c.BaseURL())
	}
	if c.Token() != "tok-1" {
		t.Errorf("Token = %q", c.Token())
	}

	c = NewClient("", WithBaseURL("https://chat.example.com/"))
	if c.BaseURL() != "https://chat.example.com" {
		t.Errorf("trailing slash not trimmed: %q", c.BaseURL())
	}
}

func TestWSURL(t *testing.T) {
	tests := []struct {
		base  string
		token string
		want  string
	}{
		{"https://chat.example.com", "", "wss://chat.example.com/ws"},
		{"http://localhost:8080", "", "ws://localhost:8080/ws"},
		{"https://chat.example.com", "abc/def", "wss://chat.example.com/ws?token=abc%2Fdef"},
	}
	for _, tt := range tests {
		c := NewClient(tt.token, WithBaseURL(tt.base))
		if got := c.WSURL(); got != tt.want {
			t.Errorf("WSURL(%q, %q) = %q, want %q", tt.base, tt.token, got, tt.want)
		}
	}
}

// ============================================================================
// Auth
// ============================================================================

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/auth/login" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "alice@example.com" {
			t.Errorf("email = %q", body["email"])
		}
		writeEnvelope(w, AuthData{
			User:  User{ID: "u-alice", Name: "Alice"},
			Token: "session-token",
		})
	}))
	defer srv.Close()

	c := NewClient("", WithBaseURL(srv.URL))
	auth, err := c.Login(context.Background(), "alice@example.com", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if auth.User.ID != "u-alice" {
		t.Errorf("user = %+v", auth.User)
	}
	if c.Token() != "session-token" {
		t.Errorf("token not stored, got %q", c.Token())
	}
}

func TestLoginError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "wrong password")
	}))
	defer srv.Close()

	c := NewClient("", WithBaseURL(srv.URL))
	_, err := c.Login(context.Background(), "alice@example.com", "nope")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.Code != "INVALID_CREDENTIALS" {
		t.Errorf("code = %q", apiErr.Code)
	}
	if c.Token() != "" {
		t.Errorf("token set after failed login: %q", c.Token())
	}
}

func TestLogoutClearsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q", got)
		}
		writeEnvelope(w, map[string]string{})
	}))
	defer srv.Close()

	c := NewClient("tok-1", WithBaseURL(srv.URL))
	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if c.Token() != "" {
		t.Errorf("token not cleared: %q", c.Token())
	}
}

// ============================================================================
// Conversations
// ============================================================================

func TestListChats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chats" {
			t.Errorf("path = %q", r.URL.Path)
		}
		writeEnvelope(w, []map[string]any{
			{"id": "chat-1", "isGroup": false},
			{"id": "chat-2", "isGroup": true, "name": "Team"},
		})
	}))
	defer srv.Close()

	c := NewClient("tok-1", WithBaseURL(srv.URL))
	chats, err := c.ListChats(context.Background())
	if err != nil {
		t.Fatalf("ListChats: %v", err)
	}
	if len(chats) != 2 || chats[0].ID != "chat-1" || !chats[1].IsGroup {
		t.Fatalf("unexpected chats: %+v", chats)
	}
}

func TestSendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/chats/chat-1/messages" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		writeEnvelope(w, map[string]any{
			"id":      "msg-1",
			"chatId":  "chat-1",
			"content": body["content"],
		})
	}))
	defer srv.Close()

	c := NewClient("tok-1", WithBaseURL(srv.URL))
	msg, err := c.SendMessage(context.Background(), "chat-1", "hello")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.ID != "msg-1" || msg.Content != "hello" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestCreateChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["isGroup"] != true || body["name"] != "Team" {
			t.Errorf("unexpected payload: %v", body)
		}
		writeEnvelope(w, map[string]any{"id": "chat-9", "isGroup": true, "name": "Team"})
	}))
	defer srv.Close()

	c := NewClient("tok-1", WithBaseURL(srv.URL))
	chat, err := c.CreateChat(context.Background(), []string{"u-bob"}, true, "Team")
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	if chat.ID != "chat-9" {
		t.Fatalf("unexpected chat: %+v", chat)
	}
}

// ============================================================================
// Envelope handling
// ============================================================================

func TestEnvelopeFailureWithoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"success":false}`)
	}))
	defer srv.Close()

	c := NewClient("tok-1", WithBaseURL(srv.URL))
	_, err := c.ListChats(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
}

func TestClientTokenConcurrency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, []map[string]any{})
	}))
	defer srv.Close()

	// Token rotation racing in-flight requests; run with -race.
	c := NewClient("tok-0", WithBaseURL(srv.URL))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.SetToken(fmt.Sprintf("tok-%d", i))
			if _, err := c.ListChats(context.Background()); err != nil {
				t.Errorf("ListChats: %v", err)
			}
			_ = c.WSURL()
			_ = c.Token()
		}(i)
	}
	wg.Wait()
}

func TestEnvelopeMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not json")
	}))
	defer srv.Close()

	c := NewClient("tok-1", WithBaseURL(srv.URL))
	if _, err := c.ListChats(context.Background()); err == nil {
		t.Fatal("expected error for malformed response")
	}
}
