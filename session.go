package wetalk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotAuthenticated is returned by Session operations that require a
// logged-in user.
var ErrNotAuthenticated = errors.New("wetalk: not authenticated")

// Session ties the three halves of the client together: the request
// gateway, the realtime channel, and the conversation store. It owns the
// login lifecycle — authenticate, connect, resynchronize on reconnect,
// disconnect on logout.
type Session struct {
	client *Client

	mu      sync.Mutex
	user    User
	store   *Store
	channel *Channel
	synced  bool
}

// NewSession wraps a client. Authenticate with Login or Register, then
// call Start to open the realtime channel.
func NewSession(client *Client) *Session {
	return &Session{client: client}
}

// Login authenticates with email and password and primes the session with
// the returned user identity.
func (s *Session) Login(ctx context.Context, email, password string) (*AuthData, error) {
	auth, err := s.client.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.user = auth.User
	s.mu.Unlock()
	return auth, nil
}

// Register creates an account and primes the session with the new user
// identity.
func (s *Session) Register(ctx context.Context, opts *RegisterOptions) (*AuthData, error) {
	auth, err := s.client.Register(ctx, opts)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.user = auth.User
	s.mu.Unlock()
	return auth, nil
}

// Resume revalidates a stored token against the server and primes the
// session with the resolved user identity.
func (s *Session) Resume(ctx context.Context) (*User, error) {
	if s.client.Token() == "" {
		return nil, ErrNotAuthenticated
	}
	user, err := s.client.Me(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.user = *user
	s.mu.Unlock()
	return user, nil
}

// Start builds the store, opens the realtime channel, and performs the
// initial conversation load. After any reconnect the store is refreshed
// wholesale, since events missed while disconnected are not replayed.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.user.ID == "" {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	if s.channel != nil {
		s.mu.Unlock()
		return errors.New("wetalk: session already started")
	}

	channel := NewChannel(&ChannelConfig{
		URL:           s.client.WSURL(),
		UserID:        s.user.ID,
		AutoReconnect: true,
	})
	store := NewStore(s.client, channel, s.user.ID)
	channel.Route(store.HandleEvent)
	channel.OnConnected(func() { s.resync() })

	s.store = store
	s.channel = channel
	s.synced = false
	s.mu.Unlock()

	if err := channel.Connect(ctx); err != nil {
		return err
	}
	return store.LoadConversations(ctx)
}

// resync runs on every connect notification. The very first one overlaps
// with Start's own load and is skipped; each one after that means events
// were missed while disconnected, so the store is refreshed wholesale.
func (s *Session) resync() {
	s.mu.Lock()
	store := s.store
	first := !s.synced
	s.synced = true
	s.mu.Unlock()

	if first || store == nil {
		return
	}
	_ = store.LoadConversations(context.Background())
}

// Logout closes the realtime channel and invalidates the token server-side.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	channel := s.channel
	s.channel = nil
	s.store = nil
	s.user = User{}
	s.synced = false
	s.mu.Unlock()

	if channel != nil {
		_ = channel.Disconnect()
	}
	return s.client.Logout(ctx)
}

// Close tears down the realtime channel without touching the server-side
// session.
func (s *Session) Close() error {
	s.mu.Lock()
	channel := s.channel
	s.channel = nil
	s.store = nil
	s.synced = false
	s.mu.Unlock()

	if channel != nil {
		return channel.Disconnect()
	}
	return nil
}

// Store returns the conversation store, or nil before Start.
func (s *Session) Store() *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store
}

// Channel returns the realtime channel, or nil before Start.
func (s *Session) Channel() *Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

// User returns the authenticated user, zero-valued before login.
func (s *Session) User() User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// TokenExpiresAt reads the expiry claim out of the session token without
// verifying its signature. Only the server can verify; this is for local
// "log in again" hints.
func (s *Session) TokenExpiresAt() (time.Time, error) {
	raw := s.client.Token()
	if raw == "" {
		return time.Time{}, ErrNotAuthenticated
	}
	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing token: %w", err)
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, errors.New("wetalk: token has no expiry claim")
	}
	return exp.Time, nil
}
