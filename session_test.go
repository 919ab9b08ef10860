package wetalk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"nhooyr.io/websocket"
)

func TestSessionLoginPrimesUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, AuthData{User: User{ID: "u-alice", Name: "Alice"}, Token: "tok-1"})
	}))
	defer srv.Close()

	session := NewSession(NewClient("", WithBaseURL(srv.URL)))
	auth, err := session.Login(context.Background(), "alice@example.com", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if auth.Token != "tok-1" {
		t.Errorf("token = %q", auth.Token)
	}
	if got := session.User(); got.ID != "u-alice" {
		t.Errorf("session user = %+v", got)
	}
}

func TestSessionStartRequiresAuth(t *testing.T) {
	session := NewSession(NewClient(""))
	if err := session.Start(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestSessionResumeWithoutToken(t *testing.T) {
	session := NewSession(NewClient(""))
	if _, err := session.Resume(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestSessionReconnectRefreshesStore(t *testing.T) {
	var listCalls, accepts int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, User{ID: "u-alice", Name: "Alice"})
	})
	mux.HandleFunc("/chats", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&listCalls, 1)
		writeEnvelope(w, []map[string]any{{"id": "chat-1", "isGroup": false}})
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		if atomic.AddInt32(&accepts, 1) == 1 {
			// Swallow the join, then drop the connection to force a
			// reconnect.
			conn.Read(r.Context())
			conn.Close(websocket.StatusGoingAway, "server restart")
			return
		}
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	session := NewSession(NewClient("tok-1", WithBaseURL(srv.URL)))
	if _, err := session.Resume(context.Background()); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer session.Close()

	if got := atomic.LoadInt32(&listCalls); got != 1 {
		t.Fatalf("initial load made %d list calls, want 1", got)
	}

	// The first connection is dropped server-side; after the backoff the
	// channel reconnects and the store must refresh wholesale.
	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&listCalls) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("reconnect never refreshed the conversation list (%d calls, %d accepts)",
				atomic.LoadInt32(&listCalls), atomic.LoadInt32(&accepts))
		}
		time.Sleep(20 * time.Millisecond)
	}

	if got := atomic.LoadInt32(&accepts); got < 2 {
		t.Errorf("expected a reconnect, got %d websocket connections", got)
	}
	if snap := session.Store().Snapshot(); len(snap) != 1 || snap[0].ID != "chat-1" {
		t.Errorf("unexpected store contents after refresh: %+v", snap)
	}
}

func TestSessionTokenExpiresAt(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u-alice",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("server-secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	session := NewSession(NewClient(signed))
	got, err := session.TokenExpiresAt()
	if err != nil {
		t.Fatalf("TokenExpiresAt: %v", err)
	}
	if !got.Equal(exp) {
		t.Errorf("expiry = %s, want %s", got, exp)
	}
}

func TestSessionTokenWithoutExpiry(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u-alice"})
	signed, err := token.SignedString([]byte("server-secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	session := NewSession(NewClient(signed))
	if _, err := session.TokenExpiresAt(); err == nil {
		t.Fatal("expected error for token without expiry claim")
	}
}
