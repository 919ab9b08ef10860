package wetalk

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

// ============================================================================
// Wire Protocol
// ============================================================================

// Inbound event names.
const (
	eventMessage    = "message"
	eventTyping     = "typing"
	eventUserStatus = "userStatus"
)

// Outbound command names.
const (
	commandTyping = "typing"
	commandJoin   = "join"
)

// envelope is the wire format for all realtime traffic.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// command is a client-to-server message.
type command struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	RequestID string      `json:"requestId,omitempty"`
}

type messagePayload struct {
	ChatID  string  `json:"chatId"`
	Message Message `json:"message"`
}

type typingPayload struct {
	UserID   string `json:"userId"`
	ChatID   string `json:"chatId"`
	IsTyping bool   `json:"isTyping"`
}

type userStatusPayload struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

type joinPayload struct {
	UserID string `json:"userId"`
}

// ============================================================================
// Events
// ============================================================================

// Event is an inbound realtime notification. The set is closed: a consumer
// switching over MessageEvent, TypingEvent and PresenceEvent has handled
// every variant.
type Event interface {
	isEvent()
}

// MessageEvent carries a message pushed into a conversation.
type MessageEvent struct {
	ChatID  string
	Message Message
}

// TypingEvent reports a remote user starting or stopping typing.
type TypingEvent struct {
	UserID   string
	ChatID   string
	IsTyping bool
}

// PresenceEvent reports a user going online or offline.
type PresenceEvent struct {
	UserID   string
	IsOnline bool
}

func (MessageEvent) isEvent()  {}
func (TypingEvent) isEvent()   {}
func (PresenceEvent) isEvent() {}

// ============================================================================
// Configuration
// ============================================================================

// ChannelConfig configures the realtime channel.
type ChannelConfig struct {
	// URL is the websocket endpoint, typically Client.WSURL().
	URL string
	// UserID is sent in the join registration after every connect.
	UserID               string
	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	HeartbeatInterval    time.Duration
}

func (c *ChannelConfig) defaults() {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
}

// ChannelState represents the connection state.
type ChannelState string

const (
	StateDisconnected ChannelState = "disconnected"
	StateConnecting   ChannelState = "connecting"
	StateConnected    ChannelState = "connected"
	StateReconnecting ChannelState = "reconnecting"
)

// ============================================================================
// Event Dispatcher
// ============================================================================

type eventDispatcher struct {
	mu             sync.RWMutex
	routes         []func(Event)
	onConnected    []func()
	onDisconnected []func(reason string)
	onReconnecting []func(attempt int, delay time.Duration)
}

// dispatch delivers an event to every route handler, synchronously and in
// registration order. Handlers must stay cheap: there is no backpressure
// between the remote peer and this loop.
func (d *eventDispatcher) dispatch(ev Event) {
	d.mu.RLock()
	routes := d.routes
	d.mu.RUnlock()
	for _, h := range routes {
		h(ev)
	}
}

func (d *eventDispatcher) emitConnected() {
	d.mu.RLock()
	handlers := append([]func(){}, d.onConnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		go h()
	}
}

func (d *eventDispatcher) emitDisconnected(reason string) {
	d.mu.RLock()
	handlers := append([]func(string){}, d.onDisconnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		go h(reason)
	}
}

func (d *eventDispatcher) emitReconnecting(attempt int, delay time.Duration) {
	d.mu.RLock()
	handlers := append([]func(int, time.Duration){}, d.onReconnecting...)
	d.mu.RUnlock()
	for _, h := range handlers {
		go h(attempt, delay)
	}
}

// ============================================================================
// Reconnector
// ============================================================================

type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newReconnector(config *ChannelConfig) *reconnector {
	return &reconnector{
		baseDelay:   config.ReconnectBaseDelay,
		maxDelay:    config.ReconnectMaxDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

func (r *reconnector) shouldReconnect() bool {
	return r.maxAttempts == 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) markConnected() {
	r.connectedAt = time.Now()
}

func (r *reconnector) nextDelay() time.Duration {
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > 60*time.Second {
		r.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

// ============================================================================
// Channel
// ============================================================================

// Channel is the realtime half of the protocol: one live websocket per
// authenticated session, with auto-reconnect and heartbeat. It owns no
// conversation state; inbound events are translated into the closed Event
// set and handed to whatever was registered with Route.
//
// Events missed while disconnected are lost (at-most-once, no replay log);
// consumers should resynchronize from OnConnected.
type Channel struct {
	config           *ChannelConfig
	mu               sync.Mutex
	conn             *websocket.Conn
	state            ChannelState
	intentionalClose bool
	cancelFn         context.CancelFunc
	dispatcher       *eventDispatcher
	recon            *reconnector
}

// NewChannel creates a realtime channel. Call Connect to establish the
// connection.
func NewChannel(config *ChannelConfig) *Channel {
	cfg := *config
	cfg.defaults()
	return &Channel{
		config:     &cfg,
		state:      StateDisconnected,
		dispatcher: &eventDispatcher{},
		recon:      newReconnector(&cfg),
	}
}

// Route registers a handler for inbound events. Handlers run on the read
// loop and must not block.
func (ch *Channel) Route(h func(Event)) {
	ch.dispatcher.mu.Lock()
	ch.dispatcher.routes = append(ch.dispatcher.routes, h)
	ch.dispatcher.mu.Unlock()
}

// OnConnected registers a handler for the connected meta-event. It fires
// after every successful connect, including reconnects.
func (ch *Channel) OnConnected(h func()) {
	ch.dispatcher.mu.Lock()
	ch.dispatcher.onConnected = append(ch.dispatcher.onConnected, h)
	ch.dispatcher.mu.Unlock()
}

// OnDisconnected registers a handler for the disconnected meta-event.
func (ch *Channel) OnDisconnected(h func(reason string)) {
	ch.dispatcher.mu.Lock()
	ch.dispatcher.onDisconnected = append(ch.dispatcher.onDisconnected, h)
	ch.dispatcher.mu.Unlock()
}

// OnReconnecting registers a handler for the reconnecting meta-event.
func (ch *Channel) OnReconnecting(h func(attempt int, delay time.Duration)) {
	ch.dispatcher.mu.Lock()
	ch.dispatcher.onReconnecting = append(ch.dispatcher.onReconnecting, h)
	ch.dispatcher.mu.Unlock()
}

// State returns the current connection state.
func (ch *Channel) State() ChannelState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

// Connect establishes the websocket connection and registers the session
// with a join command.
func (ch *Channel) Connect(ctx context.Context) error {
	ch.mu.Lock()
	if ch.state == StateConnected || ch.state == StateConnecting {
		ch.mu.Unlock()
		return nil
	}
	ch.state = StateConnecting
	ch.intentionalClose = false
	ch.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, ch.config.URL, nil)
	if err != nil {
		ch.mu.Lock()
		ch.state = StateDisconnected
		ch.mu.Unlock()
		return fmt.Errorf("websocket dial: %w", err)
	}

	ch.mu.Lock()
	ch.conn = conn
	ch.state = StateConnected
	ch.mu.Unlock()
	ch.recon.markConnected()

	if ch.config.UserID != "" {
		if err := ch.send(ctx, &command{
			Type:      commandJoin,
			Payload:   joinPayload{UserID: ch.config.UserID},
			RequestID: uuid.NewString(),
		}); err != nil {
			conn.Close(websocket.StatusNormalClosure, "")
			ch.mu.Lock()
			ch.conn = nil
			ch.state = StateDisconnected
			ch.mu.Unlock()
			return fmt.Errorf("join: %w", err)
		}
	}

	ch.dispatcher.emitConnected()

	connCtx, cancel := context.WithCancel(context.Background())
	ch.mu.Lock()
	ch.cancelFn = cancel
	ch.mu.Unlock()

	go ch.readLoop(connCtx, conn)
	go ch.heartbeatLoop(connCtx, conn)

	return nil
}

// Disconnect gracefully closes the connection. No reconnect is attempted
// after an intentional close.
func (ch *Channel) Disconnect() error {
	ch.mu.Lock()
	ch.intentionalClose = true
	if ch.cancelFn != nil {
		ch.cancelFn()
		ch.cancelFn = nil
	}
	conn := ch.conn
	ch.conn = nil
	ch.state = StateDisconnected
	ch.mu.Unlock()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	ch.dispatcher.emitDisconnected("client disconnect")
	return nil
}

// EmitTyping notifies the remote peer that the local user started or
// stopped typing in a conversation. Delivery is fire-and-forget.
func (ch *Channel) EmitTyping(ctx context.Context, chatID string, isTyping bool) error {
	return ch.send(ctx, &command{
		Type:    commandTyping,
		Payload: typingPayload{ChatID: chatID, IsTyping: isTyping},
	})
}

func (ch *Channel) send(ctx context.Context, cmd *command) error {
	ch.mu.Lock()
	conn := ch.conn
	ch.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func (ch *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			ch.mu.Lock()
			intentional := ch.intentionalClose
			ch.mu.Unlock()
			if intentional {
				return
			}

			ch.mu.Lock()
			ch.state = StateDisconnected
			ch.conn = nil
			ch.mu.Unlock()

			ch.dispatcher.emitDisconnected(err.Error())

			if ch.config.AutoReconnect && ch.recon.shouldReconnect() {
				ch.scheduleReconnect()
			}
			return
		}

		var env envelope
		if json.Unmarshal(data, &env) != nil {
			continue
		}
		if ev := decodeEvent(env); ev != nil {
			ch.dispatcher.dispatch(ev)
		}
	}
}

// decodeEvent translates a wire envelope into a typed Event. Unknown event
// names and malformed payloads are dropped.
func decodeEvent(env envelope) Event {
	switch env.Type {
	case eventMessage:
		var p messagePayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return nil
		}
		return MessageEvent{ChatID: p.ChatID, Message: p.Message}
	case eventTyping:
		var p typingPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return nil
		}
		return TypingEvent{UserID: p.UserID, ChatID: p.ChatID, IsTyping: p.IsTyping}
	case eventUserStatus:
		var p userStatusPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return nil
		}
		return PresenceEvent{UserID: p.UserID, IsOnline: p.IsOnline}
	}
	return nil
}

func (ch *Channel) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(ch.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ch.mu.Lock()
			s := ch.state
			ch.mu.Unlock()
			if s != StateConnected {
				return
			}

			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				// Heartbeat failed; force the read loop to observe the close.
				conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				return
			}
		}
	}
}

func (ch *Channel) scheduleReconnect() {
	delay := ch.recon.nextDelay()
	ch.mu.Lock()
	ch.state = StateReconnecting
	ch.mu.Unlock()

	ch.dispatcher.emitReconnecting(ch.recon.attempt, delay)

	time.Sleep(delay)

	// Disconnect may have been called during the backoff; an intentional
	// close must not be undone by redialing.
	ch.mu.Lock()
	if ch.intentionalClose {
		ch.state = StateDisconnected
		ch.mu.Unlock()
		return
	}
	ch.state = StateDisconnected
	ch.mu.Unlock()

	if err := ch.Connect(context.Background()); err != nil {
		if ch.config.AutoReconnect && ch.recon.shouldReconnect() {
			ch.scheduleReconnect()
		}
	}
}
