// Package wetalk is the Go client for the WeTalk chat backend.
//
// It covers the request/response API (auth, conversations, messages,
// contacts), the realtime event channel, and a conversation Store that
// reconciles both input sources into one consistent view.
//
// Example:
//
//	client := wetalk.NewClient("", wetalk.WithBaseURL("https://wetalk.example.com"))
//	session := wetalk.NewSession(client)
//
//	if _, err := session.Login(ctx, "alice@example.com", "secret"); err != nil {
//	    log.Fatal(err)
//	}
//	if err := session.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Logout(ctx)
//
//	for _, chat := range session.Store().Snapshot() {
//	    fmt.Println(wetalk.DisplayName(&chat, session.User().ID))
//	}
package wetalk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	DefaultBaseURL = "https://api.wetalk.chat"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

// Client performs the request/response half of the protocol. It holds no
// conversation state; that belongs to the Store.
//
// Methods are safe for concurrent use: the Store issues background requests
// while the token may be rotated by a re-login.
type Client struct {
	mu         sync.RWMutex
	token      string
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func WithUserAgent(agent string) ClientOption {
	return func(c *Client) { c.userAgent = agent }
}

// NewClient creates a new WeTalk API client.
// token is optional — pass "" before authenticating and call SetToken with
// the token returned by Login or Register.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken sets or updates the session token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current session token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query map[string]string) (json.RawMessage, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !envelope.Success {
		if envelope.Error != nil {
			return nil, envelope.Error
		}
		return nil, &APIError{Message: fmt.Sprintf("request failed with HTTP %d", resp.StatusCode)}
	}
	return envelope.Data, nil
}

func decodeJSON[T any](data json.RawMessage) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// ============================================================================
// Auth
// ============================================================================

// Register creates a new account. On success the returned token is stored
// on the client for subsequent requests.
func (c *Client) Register(ctx context.Context, opts *RegisterOptions) (*AuthData, error) {
	data, err := c.doRequest(ctx, "POST", "/auth/register", opts, nil)
	if err != nil {
		return nil, err
	}
	auth, err := decodeJSON[AuthData](data)
	if err != nil {
		return nil, err
	}
	c.SetToken(auth.Token)
	return auth, nil
}

// Login authenticates with email and password. On success the returned
// token is stored on the client for subsequent requests.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthData, error) {
	payload := map[string]string{"email": email, "password": password}
	data, err := c.doRequest(ctx, "POST", "/auth/login", payload, nil)
	if err != nil {
		return nil, err
	}
	auth, err := decodeJSON[AuthData](data)
	if err != nil {
		return nil, err
	}
	c.SetToken(auth.Token)
	return auth, nil
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	data, err := c.doRequest(ctx, "GET", "/auth/me", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[User](data)
}

// Logout invalidates the server-side session and clears the local token.
func (c *Client) Logout(ctx context.Context) error {
	if _, err := c.doRequest(ctx, "GET", "/auth/logout", nil, nil); err != nil {
		return err
	}
	c.SetToken("")
	return nil
}

// ============================================================================
// Conversations
// ============================================================================

// ListChats fetches the full conversation list, most recent first.
func (c *Client) ListChats(ctx context.Context) ([]*Conversation, error) {
	data, err := c.doRequest(ctx, "GET", "/chats", nil, nil)
	if err != nil {
		return nil, err
	}
	var chats []*Conversation
	if err := json.Unmarshal(data, &chats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return chats, nil
}

// GetChat fetches one conversation with its full message history.
func (c *Client) GetChat(ctx context.Context, chatID string) (*Conversation, error) {
	data, err := c.doRequest(ctx, "GET", "/chats/"+chatID, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Conversation](data)
}

// CreateChat creates a direct or group conversation.
func (c *Client) CreateChat(ctx context.Context, participantIDs []string, isGroup bool, name string) (*Conversation, error) {
	payload := map[string]any{
		"participants": participantIDs,
		"isGroup":      isGroup,
		"name":         name,
	}
	data, err := c.doRequest(ctx, "POST", "/chats", payload, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Conversation](data)
}

// SendMessage persists a message and returns the server-assigned entry.
func (c *Client) SendMessage(ctx context.Context, chatID, content string) (*Message, error) {
	payload := map[string]string{"content": content}
	data, err := c.doRequest(ctx, "POST", "/chats/"+chatID+"/messages", payload, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Message](data)
}

// ============================================================================
// Contacts
// ============================================================================

// AddContact adds a user to the local user's contact list by email or
// username.
func (c *Client) AddContact(ctx context.Context, identifier string) (*Contact, error) {
	payload := map[string]string{"identifier": identifier}
	data, err := c.doRequest(ctx, "POST", "/contacts", payload, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Contact](data)
}

// ListContacts returns the local user's contact list.
func (c *Client) ListContacts(ctx context.Context) ([]Contact, error) {
	data, err := c.doRequest(ctx, "GET", "/contacts", nil, nil)
	if err != nil {
		return nil, err
	}
	var contacts []Contact
	if err := json.Unmarshal(data, &contacts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return contacts, nil
}

// WSURL returns the realtime channel URL for the configured base URL.
func (c *Client) WSURL() string {
	base := strings.Replace(c.baseURL, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	if token := c.Token(); token != "" {
		return base + "/ws?token=" + url.QueryEscape(token)
	}
	return base + "/ws"
}
